// Package osm extracts named, car-accessible streets from OpenStreetMap
// extracts (PBF or XML) and turns them into a street map.
package osm

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/hashmap"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

// UnnamedRoad is the street name used for ways with neither a name nor a ref tag.
const UnnamedRoad = "unnamed road"

// Street is one OSM way: its name and the pieces between consecutive nodes.
type Street struct {
	Name     string
	Segments [][2]geo.Coord
}

// ParseResult holds the output of parsing an OSM file.
type ParseResult struct {
	Streets []Street
}

// NumSegments returns the number of street pieces across all streets.
func (r *ParseResult) NumSegments() int {
	n := 0
	for _, s := range r.Streets {
		n += len(s.Segments)
	}
	return n
}

// Build creates a street map from the parsed streets. Zero-length pieces
// (repeated nodes) are dropped.
func Build(r *ParseResult) *streetmap.StreetMap {
	m := streetmap.New()
	for _, s := range r.Streets {
		for _, seg := range s.Segments {
			if seg[0] == seg[1] {
				continue
			}
			m.AddStreet(s.Name, seg[0], seg[1])
		}
	}
	return m
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	if !carHighways[tags.Find("highway")] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	return tags.Find("motor_vehicle") != "no"
}

// streetName picks the name drivers see on the sign.
func streetName(tags osm.Tags) string {
	if name := tags.Find("name"); name != "" {
		return name
	}
	if ref := tags.Find("ref"); ref != "" {
		return ref
	}
	return UnnamedRoad
}

// wayInfo holds parsed way data collected during the way pass.
type wayInfo struct {
	Name    string
	NodeIDs []osm.NodeID
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only segments with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(c geo.Coord) bool {
	lat, lng := c.Lat(), c.Lon()
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter segments to this bounding box
}

// scanner is what osmpbf and osmxml scanners have in common.
type scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// nodeCoords maps OSM node ids to their coordinates.
type nodeCoords = hashmap.Map[osm.NodeID, geo.Coord]

func newNodeCoords() *nodeCoords {
	return hashmap.New[osm.NodeID, geo.Coord](func(id osm.NodeID) uint64 {
		return hashmap.Int(int(id))
	})
}

// Parse reads an OSM PBF file and returns its car-accessible streets.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	// Pass 1: ways, and the node ids they reference.
	referenced := make(map[osm.NodeID]struct{})
	sc := osmpbf.New(ctx, rs, 1)
	sc.SkipNodes = true
	sc.SkipRelations = true
	ways, err := scanWays(sc, referenced)
	if err != nil {
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referenced))

	// Pass 2: coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}
	sc = osmpbf.New(ctx, rs, 1)
	sc.SkipWays = true
	sc.SkipRelations = true
	nodes, err := scanNodes(sc, referenced)
	if err != nil {
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	log.Printf("Pass 2 complete: %d node coordinates collected", nodes.Size())

	return buildStreets(ways, nodes, opt), nil
}

// ParseXML reads an OSM XML file in a single pass. XML extracts list nodes
// before ways, so every node coordinate is kept until the ways are known.
func ParseXML(ctx context.Context, r io.Reader, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	sc := osmxml.New(ctx, r)
	defer sc.Close()

	nodes := newNodeCoords()
	var ways []wayInfo
	for sc.Scan() {
		switch o := sc.Object().(type) {
		case *osm.Node:
			nodes.Associate(o.ID, geo.FromDegrees(o.Lat, o.Lon))
		case *osm.Way:
			if w, ok := newWayInfo(o); ok {
				ways = append(ways, w)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan xml: %w", err)
	}
	log.Printf("Scan complete: %d ways, %d nodes", len(ways), nodes.Size())

	return buildStreets(ways, nodes, opt), nil
}

func newWayInfo(w *osm.Way) (wayInfo, bool) {
	if !isCarAccessible(w.Tags) || len(w.Nodes) < 2 {
		return wayInfo{}, false
	}
	ids := make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = wn.ID
	}
	return wayInfo{Name: streetName(w.Tags), NodeIDs: ids}, true
}

func scanWays(sc scanner, referenced map[osm.NodeID]struct{}) ([]wayInfo, error) {
	defer sc.Close()

	var ways []wayInfo
	for sc.Scan() {
		w, ok := sc.Object().(*osm.Way)
		if !ok {
			continue
		}
		info, ok := newWayInfo(w)
		if !ok {
			continue
		}
		for _, id := range info.NodeIDs {
			referenced[id] = struct{}{}
		}
		ways = append(ways, info)
	}
	return ways, sc.Err()
}

func scanNodes(sc scanner, referenced map[osm.NodeID]struct{}) (*nodeCoords, error) {
	defer sc.Close()

	nodes := newNodeCoords()
	for sc.Scan() {
		n, ok := sc.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referenced[n.ID]; !needed {
			continue
		}
		nodes.Associate(n.ID, geo.FromDegrees(n.Lat, n.Lon))
	}
	return nodes, sc.Err()
}

// buildStreets resolves way node ids into coordinate pairs.
func buildStreets(ways []wayInfo, nodes *nodeCoords, opt ParseOptions) *ParseResult {
	useBBox := !opt.BBox.IsZero()
	var skipped, bboxFiltered int

	res := &ParseResult{}
	for _, w := range ways {
		st := Street{Name: w.Name}
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			from, fromOk := nodes.Find(w.NodeIDs[i])
			to, toOk := nodes.Find(w.NodeIDs[i+1])
			if !fromOk || !toOk {
				skipped++
				continue
			}
			if useBBox && (!opt.BBox.Contains(from) || !opt.BBox.Contains(to)) {
				bboxFiltered++
				continue
			}
			st.Segments = append(st.Segments, [2]geo.Coord{from, to})
		}
		if len(st.Segments) > 0 {
			res.Streets = append(res.Streets, st)
		}
	}

	if skipped > 0 {
		log.Printf("Warning: skipped %d segments due to missing node coordinates", skipped)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d segments outside bounding box", bboxFiltered)
	}
	log.Printf("Built %d streets, %d segments", len(res.Streets), res.NumSegments())
	return res
}
