package osm

import (
	"context"
	"strings"
	"testing"

	"github.com/paulmach/osm"

	"github.com/azybler/delivery_router/pkg/geo"
)

func TestIsCarAccessible(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{
			name: "residential road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: true,
		},
		{
			name: "motorway",
			tags: osm.Tags{{Key: "highway", Value: "motorway"}},
			want: true,
		},
		{
			name: "footway (not car accessible)",
			tags: osm.Tags{{Key: "highway", Value: "footway"}},
			want: false,
		},
		{
			name: "cycleway",
			tags: osm.Tags{{Key: "highway", Value: "cycleway"}},
			want: false,
		},
		{
			name: "private access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "private"},
			},
			want: false,
		},
		{
			name: "no access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "no"},
			},
			want: false,
		},
		{
			name: "motor_vehicle=no",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "motor_vehicle", Value: "no"},
			},
			want: false,
		},
		{
			name: "area=yes (pedestrian plaza)",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "area", Value: "yes"},
			},
			want: false,
		},
		{
			name: "service road",
			tags: osm.Tags{{Key: "highway", Value: "service"}},
			want: true,
		},
		{
			name: "living_street",
			tags: osm.Tags{{Key: "highway", Value: "living_street"}},
			want: true,
		},
		{
			name: "no highway tag",
			tags: osm.Tags{{Key: "name", Value: "Some Street"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isCarAccessible(tt.tags)
			if got != tt.want {
				t.Errorf("isCarAccessible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStreetName(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want string
	}{
		{"name wins", osm.Tags{{Key: "name", Value: "Westwood Boulevard"}, {Key: "ref", Value: "CA 1"}}, "Westwood Boulevard"},
		{"ref fallback", osm.Tags{{Key: "ref", Value: "I 405"}}, "I 405"},
		{"unnamed", osm.Tags{{Key: "highway", Value: "service"}}, UnnamedRoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := streetName(tt.tags); got != tt.want {
				t.Errorf("streetName() = %q, want %q", got, tt.want)
			}
		})
	}
}

const westwoodXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="34.0625329" lon="-118.4470263"/>
  <node id="2" lat="34.0628922" lon="-118.4472539"/>
  <node id="3" lat="34.0632016" lon="-118.4474519"/>
  <node id="4" lat="34.0630000" lon="-118.4460000"/>
  <node id="5" lat="35.0000000" lon="-118.0000000"/>
  <way id="10">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="3"/>
    <tag k="highway" v="secondary"/>
    <tag k="name" v="Westwood Boulevard"/>
    <tag k="oneway" v="yes"/>
  </way>
  <way id="11">
    <nd ref="2"/>
    <nd ref="4"/>
    <tag k="highway" v="residential"/>
  </way>
  <way id="12">
    <nd ref="1"/>
    <nd ref="4"/>
    <tag k="highway" v="footway"/>
    <tag k="name" v="Campus Path"/>
  </way>
  <way id="13">
    <nd ref="4"/>
    <nd ref="5"/>
    <nd ref="99"/>
    <tag k="highway" v="primary"/>
    <tag k="name" v="Long Road"/>
  </way>
</osm>`

func TestParseXML(t *testing.T) {
	res, err := ParseXML(context.Background(), strings.NewReader(westwoodXML))
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}

	names := map[string]int{}
	for _, s := range res.Streets {
		names[s.Name] = len(s.Segments)
	}
	want := map[string]int{"Westwood Boulevard": 2, UnnamedRoad: 1, "Long Road": 1}
	if len(names) != len(want) {
		t.Fatalf("streets = %v, want %v", names, want)
	}
	for name, n := range want {
		if names[name] != n {
			t.Errorf("%s: %d segments, want %d", name, names[name], n)
		}
	}

	m := Build(res)
	if m.NumCoords() != 5 {
		t.Errorf("NumCoords = %d, want 5", m.NumCoords())
	}

	// Oneway tags are ignored: Westwood Boulevard can be driven back to node 1.
	segs, ok := m.SegmentsFrom(geo.FromDegrees(34.0628922, -118.4472539))
	if !ok {
		t.Fatal("node 2 missing")
	}
	back := false
	for _, s := range segs {
		if s.End == geo.FromDegrees(34.0625329, -118.4470263) {
			back = true
		}
	}
	if !back {
		t.Error("expected a segment from node 2 back to node 1")
	}
}

func TestParseXMLBBox(t *testing.T) {
	opt := ParseOptions{BBox: BBox{MinLat: 34, MaxLat: 34.1, MinLng: -118.5, MaxLng: -118.4}}
	res, err := ParseXML(context.Background(), strings.NewReader(westwoodXML), opt)
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}
	for _, s := range res.Streets {
		if s.Name == "Long Road" {
			t.Errorf("Long Road leaves the box and should be dropped")
		}
	}
	if res.NumSegments() != 3 {
		t.Errorf("NumSegments = %d, want 3", res.NumSegments())
	}
}

func TestBBox(t *testing.T) {
	var zero BBox
	if !zero.IsZero() {
		t.Error("zero BBox should report IsZero")
	}
	b := BBox{MinLat: 1, MaxLat: 2, MinLng: 103, MaxLng: 104}
	if !b.Contains(geo.FromDegrees(1.5, 103.5)) {
		t.Error("center should be inside")
	}
	if b.Contains(geo.FromDegrees(2.5, 103.5)) {
		t.Error("north of box should be outside")
	}
}
