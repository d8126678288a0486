package routing

import (
	"context"
	"errors"
	"slices"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/hashmap"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

var (
	// ErrUnknownCoordinate is returned when the start or end is not a coordinate of the map.
	ErrUnknownCoordinate = errors.New("unknown coordinate")
	// ErrNoRoute is returned when no route exists between the two points.
	ErrNoRoute = errors.New("no route found")
	// ErrSearchLimit is returned when the search expands more coordinates than allowed.
	ErrSearchLimit = errors.New("search expansion limit reached")
)

// ctxCheckInterval is how many expansions pass between context checks.
const ctxCheckInterval = 100

// Graph is the read side of a street map.
type Graph interface {
	SegmentsFrom(c geo.Coord) ([]streetmap.Segment, bool)
}

// RouteResult is the output of a route query.
type RouteResult struct {
	Segments            []streetmap.Segment
	TotalDistanceMeters float64

	Expanded int // coordinates popped and expanded
	Reopened int // closed coordinates reached again at lower cost
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, start, end geo.Coord) (*RouteResult, error)
}

// Engine implements Router with A* over a street map, using great-circle
// distance to the destination as the heuristic. It holds no per-query state
// and is safe for concurrent use.
type Engine struct {
	g             Graph
	comps         *streetmap.Components
	maxExpansions int
	earlyExit     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithComponents lets the engine reject routes between disconnected parts of
// the map without searching.
func WithComponents(c *streetmap.Components) Option {
	return func(e *Engine) { e.comps = c }
}

// WithMaxExpansions caps the coordinates a single query may expand. Zero means no cap.
func WithMaxExpansions(n int) Option {
	return func(e *Engine) { e.maxExpansions = max(n, 0) }
}

// WithEarlyExit stops the search as soon as the destination is first reached
// instead of when it is popped from the frontier. Faster, but the route is
// no longer guaranteed to be the shortest.
func WithEarlyExit() Option {
	return func(e *Engine) { e.earlyExit = true }
}

// NewEngine creates a routing engine over g.
func NewEngine(g Graph, opts ...Option) *Engine {
	e := &Engine{g: g}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nodeInfo is the search record of one coordinate.
type nodeInfo struct {
	cost    float64 // best known distance from start
	pred    geo.Coord
	street  string
	hasPred bool
}

// Route computes the shortest path from start to end.
func (e *Engine) Route(ctx context.Context, start, end geo.Coord) (*RouteResult, error) {
	if _, ok := e.g.SegmentsFrom(start); !ok {
		return nil, ErrUnknownCoordinate
	}
	if _, ok := e.g.SegmentsFrom(end); !ok {
		return nil, ErrUnknownCoordinate
	}
	if start == end {
		return &RouteResult{}, nil
	}
	if e.comps != nil && !e.comps.Same(start, end) {
		return nil, ErrNoRoute
	}

	info := hashmap.New[geo.Coord, nodeInfo](geo.Coord.Hash)
	closed := hashmap.New[geo.Coord, bool](geo.Coord.Hash)
	var pq MinHeap

	info.Associate(start, nodeInfo{})
	pq.Push(start, 0, geo.Distance(start, end))

	res := &RouteResult{}
	for pq.Len() > 0 {
		item := pq.Pop()
		u := item.Coord

		cur, _ := info.Find(u)
		if item.Cost > cur.cost {
			continue // stale entry
		}
		if done, _ := closed.Find(u); done {
			continue // equal-cost duplicate
		}
		if u == end {
			return e.finish(res, info, start, end), nil
		}
		closed.Associate(u, true)

		res.Expanded++
		if res.Expanded%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if e.maxExpansions > 0 && res.Expanded > e.maxExpansions {
			return nil, ErrSearchLimit
		}

		segs, _ := e.g.SegmentsFrom(u)
		for _, s := range segs {
			v := s.End
			cost := cur.cost + s.Length()
			if old, ok := info.Find(v); ok && cost >= old.cost {
				continue
			}
			if done, _ := closed.Find(v); done {
				closed.Associate(v, false)
				res.Reopened++
			}
			info.Associate(v, nodeInfo{cost: cost, pred: u, street: s.Name, hasPred: true})

			if e.earlyExit && v == end {
				return e.finish(res, info, start, end), nil
			}
			pq.Push(v, cost, cost+geo.Distance(v, end))
		}
	}

	return nil, ErrNoRoute
}

// finish walks predecessors back from end and fills in the route.
func (e *Engine) finish(res *RouteResult, info *hashmap.Map[geo.Coord, nodeInfo], start, end geo.Coord) *RouteResult {
	var path []streetmap.Segment
	for c := end; c != start; {
		ni, _ := info.Find(c)
		if !ni.hasPred {
			break
		}
		path = append(path, streetmap.Segment{Start: ni.pred, End: c, Name: ni.street})
		c = ni.pred
	}
	slices.Reverse(path)

	res.Segments = path
	res.TotalDistanceMeters = TotalDistance(path)
	return res
}

// TotalDistance sums the great-circle lengths of segs in meters.
func TotalDistance(segs []streetmap.Segment) float64 {
	var total float64
	for _, s := range segs {
		total += s.Length()
	}
	return total
}
