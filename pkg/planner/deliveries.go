package planner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/optimizer"
)

// ErrDeliveries is returned for a malformed deliveries file.
var ErrDeliveries = errors.New("read deliveries")

// ReadDeliveries parses a deliveries file: the depot as "lat lon" on the
// first line, then one "lat lon:item" line per delivery.
//
//	34.0625329 -118.4470263
//	34.0712323 -118.4505969:Chicken tenders
//	34.0687443 -118.4449195:B-Plate salmon
//
// Blank lines are skipped.
func ReadDeliveries(r io.Reader) (geo.Coord, []optimizer.Delivery, error) {
	sc := bufio.NewScanner(r)

	var (
		depot      geo.Coord
		haveDepot  bool
		deliveries []optimizer.Delivery
		lineNo     int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if !haveDepot {
			c, err := parseLatLon(line)
			if err != nil {
				return geo.Coord{}, nil, fmt.Errorf("%w: line %d: depot: %w", ErrDeliveries, lineNo, err)
			}
			depot, haveDepot = c, true
			continue
		}

		loc, item, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(item) == "" {
			return geo.Coord{}, nil, fmt.Errorf("%w: line %d: want \"lat lon:item\"", ErrDeliveries, lineNo)
		}
		c, err := parseLatLon(loc)
		if err != nil {
			return geo.Coord{}, nil, fmt.Errorf("%w: line %d: %w", ErrDeliveries, lineNo, err)
		}
		deliveries = append(deliveries, optimizer.Delivery{Item: strings.TrimSpace(item), Location: c})
	}
	if err := sc.Err(); err != nil {
		return geo.Coord{}, nil, fmt.Errorf("%w: %w", ErrDeliveries, err)
	}
	if !haveDepot {
		return geo.Coord{}, nil, fmt.Errorf("%w: no depot", ErrDeliveries)
	}
	return depot, deliveries, nil
}

func parseLatLon(s string) (geo.Coord, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 2 {
		return geo.Coord{}, fmt.Errorf("%w: %q", geo.ErrInvalidCoord, s)
	}
	return geo.ParseCoord(fields[0], fields[1])
}
