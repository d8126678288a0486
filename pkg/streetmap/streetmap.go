package streetmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/hashmap"
)

// ErrLoad is returned when a map source is unreadable, empty or malformed.
var ErrLoad = errors.New("load street map")

// Segment is a directed piece of a named street.
type Segment struct {
	Start geo.Coord
	End   geo.Coord
	Name  string
}

// Length returns the great-circle length of the segment in meters.
func (s Segment) Length() float64 {
	return geo.Distance(s.Start, s.End)
}

// Reverse returns the same piece of street traversed the other way.
func (s Segment) Reverse() Segment {
	return Segment{Start: s.End, End: s.Start, Name: s.Name}
}

// StreetMap is the coordinate graph: for every coordinate, the segments that
// start there. Every street is traversable in both directions.
//
// A StreetMap is built once and then shared read-only; concurrent readers need
// no locking, but AddStreet must not run concurrently with anything else.
type StreetMap struct {
	adj      *hashmap.Map[geo.Coord, []Segment]
	byStreet *hashmap.Map[string, []Segment] // forward segments as added
	names    []string                        // street names in first-seen order
	numSegs  int
}

// New returns an empty street map.
func New() *StreetMap {
	return &StreetMap{
		adj:      hashmap.New[geo.Coord, []Segment](geo.Coord.Hash),
		byStreet: hashmap.New[string, []Segment](hashmap.String),
	}
}

// AddStreet adds the segment a–b of the named street, in both directions.
func (m *StreetMap) AddStreet(name string, a, b geo.Coord) {
	fwd := Segment{Start: a, End: b, Name: name}
	m.link(fwd)
	m.link(fwd.Reverse())

	if p := m.byStreet.Ptr(name); p != nil {
		*p = append(*p, fwd)
	} else {
		m.byStreet.Associate(name, []Segment{fwd})
		m.names = append(m.names, name)
	}
}

func (m *StreetMap) link(s Segment) {
	if p := m.adj.Ptr(s.Start); p != nil {
		*p = append(*p, s)
	} else {
		m.adj.Associate(s.Start, []Segment{s})
	}
	m.numSegs++
}

// SegmentsFrom returns the segments leaving c. The boolean is false when c is
// not a coordinate of the map, which distinguishes unknown coordinates from
// known dead ends.
func (m *StreetMap) SegmentsFrom(c geo.Coord) ([]Segment, bool) {
	segs, ok := m.adj.Find(c)
	if !ok {
		return nil, false
	}
	return slices.Clone(segs), true
}

// Contains reports whether c is a coordinate of the map.
func (m *StreetMap) Contains(c geo.Coord) bool {
	return m.adj.Contains(c)
}

// NumCoords returns the number of distinct coordinates.
func (m *StreetMap) NumCoords() int { return m.adj.Size() }

// NumSegments returns the number of directed segments (twice the street pieces added).
func (m *StreetMap) NumSegments() int { return m.numSegs }

// Streets returns the distinct street names in the order they were first added.
func (m *StreetMap) Streets() []string { return slices.Clone(m.names) }

// Coords iterates over every coordinate and its outgoing segments. The
// segment slices are shared and must not be modified.
func (m *StreetMap) Coords() iter.Seq2[geo.Coord, []Segment] {
	return m.adj.All()
}

// streetSegments returns the forward segments recorded for name.
func (m *StreetMap) streetSegments(name string) []Segment {
	segs, _ := m.byStreet.Find(name)
	return segs
}

// Load parses the street-block text format:
//
//	Westwood Blvd
//	2
//	34.0625329 -118.4470263 34.0628922 -118.4472539
//	34.0628922 -118.4472539 34.0632016 -118.4474519
//
// i.e. a street name line, a segment count line, then that many lines of
// "lat1 lon1 lat2 lon2". Blank lines between blocks are ignored.
func Load(r io.Reader) (*StreetMap, error) {
	m := New()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			if text := strings.TrimSpace(sc.Text()); text != "" {
				return text, true
			}
		}
		return "", false
	}

	for {
		name, ok := next()
		if !ok {
			break
		}

		countText, ok := next()
		if !ok {
			return nil, fmt.Errorf("%w: street %q: missing segment count", ErrLoad, name)
		}
		count, err := strconv.Atoi(countText)
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%w: line %d: invalid segment count %q", ErrLoad, lineNo, countText)
		}

		for i := 0; i < count; i++ {
			segText, ok := next()
			if !ok {
				return nil, fmt.Errorf("%w: street %q: expected %d segments, found %d", ErrLoad, name, count, i)
			}
			a, b, err := parseSegment(segText)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrLoad, lineNo, err)
			}
			m.AddStreet(name, a, b)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrLoad, err)
	}

	if m.NumCoords() == 0 {
		return nil, fmt.Errorf("%w: no street segments", ErrLoad)
	}
	return m, nil
}

// parseSegment parses "lat1 lon1 lat2 lon2"; commas are accepted as separators.
func parseSegment(line string) (geo.Coord, geo.Coord, error) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) != 4 {
		return geo.Coord{}, geo.Coord{}, fmt.Errorf("segment %q: want 4 numbers, got %d", line, len(fields))
	}
	a, err := geo.ParseCoord(fields[0], fields[1])
	if err != nil {
		return geo.Coord{}, geo.Coord{}, err
	}
	b, err := geo.ParseCoord(fields[2], fields[3])
	if err != nil {
		return geo.Coord{}, geo.Coord{}, err
	}
	return a, b, nil
}

// LoadFile reads a map from path: a binary snapshot for ".bin" files, the
// street-block text format otherwise.
func LoadFile(path string) (*StreetMap, error) {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		m, err := ReadBinary(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		return m, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer f.Close()

	return Load(f)
}

// Write serializes m in the text format accepted by Load, one block per street.
func (m *StreetMap) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, name := range m.names {
		segs := m.streetSegments(name)
		fmt.Fprintf(bw, "%s\n%d\n", name, len(segs))
		for _, s := range segs {
			fmt.Fprintf(bw, "%s %s\n", s.Start, s.End)
		}
	}
	return bw.Flush()
}

// WriteFile writes m to path, as a binary snapshot for ".bin" files and as text otherwise.
func (m *StreetMap) WriteFile(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		return WriteBinary(path, m)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if err := m.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write: %w", err)
	}
	return f.Close()
}
