package streetmap

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"github.com/azybler/delivery_router/pkg/geo"
)

// MaxSnapDistMeters is the farthest a query point may be from the nearest
// map coordinate.
const MaxSnapDistMeters = 500.0

const metersPerDegreeLat = 111_320.0

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// SnapResult is a query point moved onto the map.
type SnapResult struct {
	Coord    geo.Coord
	Dist     float64 // meters from the query point to Coord
	RoadDist float64 // meters from the query point to the nearest nearby segment
}

// Snapper finds the nearest map coordinate to an arbitrary point. It is safe
// for concurrent use once built, provided the map is no longer modified.
type Snapper struct {
	tr rtree.RTreeG[geo.Coord]
	m  *StreetMap
}

// NewSnapper indexes every coordinate of m.
func NewSnapper(m *StreetMap) *Snapper {
	s := &Snapper{m: m}
	for c := range m.Coords() {
		p := [2]float64{c.Lon(), c.Lat()}
		s.tr.Insert(p, p, c)
	}
	return s
}

// Len returns the number of indexed coordinates.
func (s *Snapper) Len() int { return s.tr.Len() }

// Snap returns the map coordinate nearest to lat/lng.
func (s *Snapper) Snap(lat, lng float64) (SnapResult, error) {
	if err := geo.Validate(lat, lng); err != nil {
		return SnapResult{}, err
	}

	dLat := MaxSnapDistMeters / metersPerDegreeLat
	dLon := 180.0
	if cos := math.Cos(lat * math.Pi / 180); cos > 1e-9 {
		dLon = min(MaxSnapDistMeters/(metersPerDegreeLat*cos), 180)
	}

	best := SnapResult{Dist: math.Inf(1), RoadDist: math.Inf(1)}
	s.tr.Search(
		[2]float64{lng - dLon, lat - dLat},
		[2]float64{lng + dLon, lat + dLat},
		func(_, _ [2]float64, c geo.Coord) bool {
			d := geo.Haversine(lat, lng, c.Lat(), c.Lon())
			if d < best.Dist || (d == best.Dist && c.Compare(best.Coord) < 0) {
				best.Coord, best.Dist = c, d
			}
			best.RoadDist = min(best.RoadDist, d, s.roadDist(lat, lng, c))
			return true
		},
	)

	if best.Dist > MaxSnapDistMeters {
		return SnapResult{}, ErrPointTooFar
	}
	return best, nil
}

// roadDist is the distance from lat/lng to the closest segment leaving c.
func (s *Snapper) roadDist(lat, lng float64, c geo.Coord) float64 {
	best := math.Inf(1)
	segs := s.m.adj.Ptr(c)
	if segs == nil {
		return best
	}
	for _, seg := range *segs {
		d, _ := geo.PointToSegmentDist(lat, lng, seg.Start.Lat(), seg.Start.Lon(), seg.End.Lat(), seg.End.Lon())
		best = min(best, d)
	}
	return best
}
