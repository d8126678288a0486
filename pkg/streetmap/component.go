package streetmap

import (
	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/hashmap"
)

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Size returns the number of elements in the set containing x.
func (uf *UnionFind) Size(x uint32) uint32 {
	return uf.size[uf.Find(x)]
}

// Components labels every coordinate of a street map with its connected
// component. Streets are two-way, so connectivity is symmetric.
//
// Labels are resolved when the Components is built; queries only read, so a
// Components is safe for concurrent use.
type Components struct {
	index  *hashmap.Map[geo.Coord, uint32]
	coords []geo.Coord
	labels []uint32 // component root of each coordinate index
	sizes  []uint32 // coordinates per root, indexed by root
	count  int
}

// NewComponents computes the connected components of m.
func NewComponents(m *StreetMap) *Components {
	c := &Components{index: hashmap.New[geo.Coord, uint32](geo.Coord.Hash)}
	for coord := range m.Coords() {
		c.index.Associate(coord, uint32(len(c.coords)))
		c.coords = append(c.coords, coord)
	}

	uf := NewUnionFind(uint32(len(c.coords)))
	c.count = len(c.coords)
	for coord, segs := range m.Coords() {
		u, _ := c.index.Find(coord)
		for _, s := range segs {
			v, _ := c.index.Find(s.End)
			if uf.Union(u, v) {
				c.count--
			}
		}
	}

	c.labels = make([]uint32, len(c.coords))
	c.sizes = make([]uint32, len(c.coords))
	for i := range c.labels {
		root := uf.Find(uint32(i))
		c.labels[i] = root
		c.sizes[root]++
	}
	return c
}

// Count returns the number of connected components.
func (c *Components) Count() int { return c.count }

// Label returns the component id of coord, or false if coord is not in the map.
// Ids are stable for the lifetime of c but carry no other meaning.
func (c *Components) Label(coord geo.Coord) (uint32, bool) {
	i, ok := c.index.Find(coord)
	if !ok {
		return 0, false
	}
	return c.labels[i], true
}

// Same reports whether a route between a and b can exist. Coordinates not in
// the map are never connected.
func (c *Components) Same(a, b geo.Coord) bool {
	la, ok := c.Label(a)
	if !ok {
		return false
	}
	lb, ok := c.Label(b)
	return ok && la == lb
}

// Largest returns the coordinates of the largest connected component.
func (c *Components) Largest() []geo.Coord {
	if len(c.coords) == 0 {
		return nil
	}

	bestRoot := uint32(0)
	bestSize := uint32(0)
	for root, size := range c.sizes {
		if size > bestSize {
			bestRoot = uint32(root)
			bestSize = size
		}
	}

	coords := make([]geo.Coord, 0, bestSize)
	for i, coord := range c.coords {
		if c.labels[i] == bestRoot {
			coords = append(coords, coord)
		}
	}
	return coords
}

// LargestComponent returns a copy of m restricted to its largest connected
// component. OSM extracts are cut at a bounding box, which leaves islands of
// road that no delivery could reach from the main network.
func LargestComponent(m *StreetMap) *StreetMap {
	return FilterToComponent(m, NewComponents(m).Largest())
}

// FilterToComponent returns a new street map containing only the street
// segments whose endpoints are both in coords. Street order is preserved.
func FilterToComponent(m *StreetMap, coords []geo.Coord) *StreetMap {
	keep := hashmap.New[geo.Coord, struct{}](geo.Coord.Hash)
	for _, c := range coords {
		keep.Associate(c, struct{}{})
	}

	out := New()
	for _, name := range m.names {
		for _, s := range m.streetSegments(name) {
			if keep.Contains(s.Start) && keep.Contains(s.End) {
				out.AddStreet(name, s.Start, s.End)
			}
		}
	}
	return out
}
