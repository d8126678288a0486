package geo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Scale is the number of fixed-point units per degree. 1e-7 degrees is the
// precision OpenStreetMap stores coordinates at (~1 cm).
const Scale = 1e7

// ErrInvalidCoord is returned when a coordinate cannot be parsed or is out of range.
var ErrInvalidCoord = errors.New("invalid coordinate")

// Coord is a geographic point stored in fixed precision so that two
// coordinates read from the same text always compare equal with ==.
type Coord struct {
	LatE7 int32
	LonE7 int32
}

// FromDegrees rounds lat/lon to the nearest fixed-precision coordinate.
// Inputs are not range checked; use ParseCoord or Validate for untrusted data.
func FromDegrees(lat, lon float64) Coord {
	return Coord{
		LatE7: int32(math.Round(lat * Scale)),
		LonE7: int32(math.Round(lon * Scale)),
	}
}

// ParseCoord parses decimal latitude and longitude text, e.g. "34.0625329", "-118.4470263".
func ParseCoord(lat, lon string) (Coord, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoord, lat)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return Coord{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoord, lon)
	}
	if err := Validate(la, lo); err != nil {
		return Coord{}, err
	}
	return FromDegrees(la, lo), nil
}

// Validate checks that lat/lon are finite and within WGS84 bounds.
func Validate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: coordinates must be finite numbers", ErrInvalidCoord)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: (%g, %g) out of range", ErrInvalidCoord, lat, lon)
	}
	return nil
}

// Lat returns the latitude in degrees.
func (c Coord) Lat() float64 { return float64(c.LatE7) / Scale }

// Lon returns the longitude in degrees.
func (c Coord) Lon() float64 { return float64(c.LonE7) / Scale }

// Hash is a pure content hash: equal coordinates hash equally no matter how
// they were constructed.
func (c Coord) Hash() uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[:4], uint32(c.LatE7))
	binary.LittleEndian.PutUint32(b[4:], uint32(c.LonE7))
	return xxhash.Sum64(b[:])
}

// Compare orders coordinates by latitude, then longitude.
func (c Coord) Compare(o Coord) int {
	switch {
	case c.LatE7 != o.LatE7:
		if c.LatE7 < o.LatE7 {
			return -1
		}
		return 1
	case c.LonE7 != o.LonE7:
		if c.LonE7 < o.LonE7 {
			return -1
		}
		return 1
	}
	return 0
}

func (c Coord) String() string {
	return strconv.FormatFloat(c.Lat(), 'f', 7, 64) + " " + strconv.FormatFloat(c.Lon(), 'f', 7, 64)
}
