package planner

import (
	"fmt"
	"math"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

// Kind distinguishes the three driving instructions.
type Kind int

const (
	Proceed Kind = iota
	Turn
	Deliver
)

func (k Kind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case Turn:
		return "turn"
	case Deliver:
		return "deliver"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is one instruction for the driver. Which fields are set depends on Kind:
// Proceed uses Direction, Street and DistanceMeters; Turn uses Direction
// ("left" or "right") and Street; Deliver uses Item.
type Command struct {
	Kind           Kind
	Direction      string
	Street         string
	DistanceMeters float64
	Item           string
}

func (c Command) String() string {
	switch c.Kind {
	case Proceed:
		return fmt.Sprintf("Proceed %.0f meters %s on %s", c.DistanceMeters, c.Direction, c.Street)
	case Turn:
		return fmt.Sprintf("Turn %s on %s", c.Direction, c.Street)
	case Deliver:
		return "Deliver " + c.Item
	}
	return c.Kind.String()
}

// Compass returns the 8-point compass name for a heading in degrees
// counter-clockwise from east. Boundaries belong to the sector below them.
func Compass(heading float64) string {
	switch {
	case 22.5 < heading && heading <= 67.5:
		return "northeast"
	case 67.5 < heading && heading <= 112.5:
		return "north"
	case 112.5 < heading && heading <= 157.5:
		return "northwest"
	case 157.5 < heading && heading <= 202.5:
		return "west"
	case 202.5 < heading && heading <= 247.5:
		return "southwest"
	case 247.5 < heading && heading <= 292.5:
		return "south"
	case 292.5 < heading && heading <= 337.5:
		return "southeast"
	}
	return "east"
}

// TurnSide returns "left" or "right" for the turn from segment prev onto
// next, or "" when next continues nearly straight on.
func TurnSide(prev, next streetmap.Segment) string {
	a := math.Mod(heading(next)-heading(prev)+360, 360)
	switch {
	case a < 1 || a > 359:
		return ""
	case a < 180:
		return "left"
	}
	return "right"
}

func heading(s streetmap.Segment) float64 {
	return geo.Heading(s.Start, s.End)
}

// legCommands turns one routed leg into proceed and turn commands. Consecutive
// segments on the same street are merged into one proceed command whose
// direction is that of the first segment.
func legCommands(segs []streetmap.Segment) []Command {
	if len(segs) == 0 {
		return nil
	}

	var cmds []Command
	cur := Command{
		Kind:      Proceed,
		Direction: Compass(heading(segs[0])),
		Street:    segs[0].Name,
	}
	for i, s := range segs {
		if i > 0 && s.Name != cur.Street {
			cmds = append(cmds, cur)
			if side := TurnSide(segs[i-1], s); side != "" {
				cmds = append(cmds, Command{Kind: Turn, Direction: side, Street: s.Name})
			}
			cur = Command{Kind: Proceed, Direction: Compass(heading(s)), Street: s.Name}
		}
		cur.DistanceMeters += s.Length()
	}
	return append(cmds, cur)
}
