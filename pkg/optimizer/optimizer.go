// Package optimizer reorders deliveries to shorten the straight-line tour
// from the depot through every delivery location, using simulated annealing.
//
// The result is a good order, not a proven optimal one. The tour starts at
// the depot and ends at the last delivery; the return leg is not counted.
package optimizer

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/azybler/delivery_router/pkg/geo"
)

const (
	// DefaultInitialTemp is the starting temperature, in meters of tour length.
	DefaultInitialTemp = 10_000.0
	// DefaultRetention is the factor the temperature is multiplied by each iteration.
	DefaultRetention = 0.997
	// DefaultMinTemp is the temperature at which annealing stops.
	DefaultMinTemp = 1.0

	// defaultSeed is used when callers pass seed 0.
	defaultSeed uint64 = 1
)

// Delivery is an item to drop off at a location.
type Delivery struct {
	Item     string
	Location geo.Coord
}

// Result is the outcome of one optimization.
type Result struct {
	Deliveries        []Delivery
	OldDistanceMeters float64 // tour length of the input order
	NewDistanceMeters float64 // tour length of Deliveries

	Iterations int // swaps tried
	Accepted   int // swaps kept, improving or not
	Improved   int // times a new best order was found
}

// Optimizer runs simulated annealing over delivery orders.
//
// An Optimizer built with WithSeed (or no options) may be shared between
// goroutines: every call draws from a fresh stream. One built with WithRand
// shares that generator and must not be.
type Optimizer struct {
	initialTemp float64
	retention   float64
	minTemp     float64
	seed        uint64
	rng         *rand.Rand
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithSeed makes every Optimize call replay the same pseudo-random stream.
// Seed 0 selects the default seed.
func WithSeed(seed uint64) Option {
	return func(o *Optimizer) {
		if seed == 0 {
			seed = defaultSeed
		}
		o.seed = seed
		o.rng = nil
	}
}

// WithRand draws from r instead of a per-call stream. Panics on nil.
func WithRand(r *rand.Rand) Option {
	if r == nil {
		panic("optimizer: WithRand(nil)")
	}
	return func(o *Optimizer) { o.rng = r }
}

// WithInitialTemp sets the starting temperature. Non-positive values are ignored.
func WithInitialTemp(t float64) Option {
	return func(o *Optimizer) {
		if t > 0 {
			o.initialTemp = t
		}
	}
}

// WithRetention sets the cooling factor. Values outside (0, 1) are ignored.
func WithRetention(r float64) Option {
	return func(o *Optimizer) {
		if r > 0 && r < 1 {
			o.retention = r
		}
	}
}

// WithMinTemp sets the stopping temperature. Non-positive values are ignored.
func WithMinTemp(t float64) Option {
	return func(o *Optimizer) {
		if t > 0 {
			o.minTemp = t
		}
	}
}

// New returns an Optimizer with the default schedule and seed.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		initialTemp: DefaultInitialTemp,
		retention:   DefaultRetention,
		minTemp:     DefaultMinTemp,
		seed:        defaultSeed,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Optimizer) stream() *rand.Rand {
	if o.rng != nil {
		return o.rng
	}
	return rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
}

// TourLength returns the straight-line length in meters of depot → d1 → … → dn.
func TourLength(depot geo.Coord, deliveries []Delivery) float64 {
	var total float64
	prev := depot
	for _, d := range deliveries {
		total += geo.Distance(prev, d.Location)
		prev = d.Location
	}
	return total
}

// Optimize returns deliveries reordered to shorten the tour from depot. The
// returned order is the best one seen, so it is never longer than the input.
// The input slice is not modified.
func (o *Optimizer) Optimize(depot geo.Coord, deliveries []Delivery) Result {
	order := slices.Clone(deliveries)
	oldLen := TourLength(depot, order)
	res := Result{
		Deliveries:        order,
		OldDistanceMeters: oldLen,
		NewDistanceMeters: oldLen,
	}
	n := len(order)
	if n < 2 {
		return res
	}

	rng := o.stream()
	best := slices.Clone(order)
	bestLen, curLen := oldLen, oldLen

	for temp := o.initialTemp; temp >= o.minTemp; temp *= o.retention {
		res.Iterations++

		i := rng.IntN(n)
		j := rng.IntN(n - 1)
		if j >= i {
			j++
		}
		order[i], order[j] = order[j], order[i]

		newLen := TourLength(depot, order)
		if newLen < curLen || rng.Float64() < math.Exp((curLen-newLen)/temp) {
			curLen = newLen
			res.Accepted++
			if curLen < bestLen {
				bestLen = curLen
				copy(best, order)
				res.Improved++
			}
			continue
		}
		order[i], order[j] = order[j], order[i]
	}

	res.Deliveries = best
	res.NewDistanceMeters = bestLen
	return res
}
