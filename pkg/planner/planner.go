// Package planner turns a depot and a set of deliveries into turn-by-turn
// driving commands: it orders the deliveries, routes every leg of the tour
// (back to the depot at the end) and describes each leg in street terms.
package planner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/obs"
	"github.com/azybler/delivery_router/pkg/optimizer"
	"github.com/azybler/delivery_router/pkg/routing"
)

// DefaultWorkers is how many legs are routed at once.
const DefaultWorkers = 4

// LegError reports a leg of the tour that could not be routed. To is the
// depot on the return leg, where Item is empty.
type LegError struct {
	From geo.Coord
	To   geo.Coord
	Item string
	Err  error
}

func (e *LegError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("route %v -> %v: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("route %v -> %v (%s): %v", e.From, e.To, e.Item, e.Err)
}

func (e *LegError) Unwrap() error { return e.Err }

// Plan is a complete delivery run.
type Plan struct {
	Commands            []Command
	Deliveries          []optimizer.Delivery // in visiting order
	Skipped             []optimizer.Delivery // unreachable, when skipping is enabled
	TotalDistanceMeters float64              // along the streets, including the return leg

	// Straight-line tour lengths before and after reordering.
	OldCrowMeters float64
	NewCrowMeters float64
}

// Planner builds delivery plans. It is safe for concurrent use when its
// Router and Optimizer are.
type Planner struct {
	router          routing.Router
	optimizer       *optimizer.Optimizer
	skipUnreachable bool
	workers         int
}

// Option configures a Planner.
type Option func(*Planner)

// WithSkipUnreachable drops deliveries that cannot be reached from the depot
// instead of failing the whole plan. They are listed in Plan.Skipped.
func WithSkipUnreachable() Option {
	return func(p *Planner) { p.skipUnreachable = true }
}

// WithWorkers sets how many legs are routed concurrently.
func WithWorkers(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New returns a Planner routing with r and ordering with o.
func New(r routing.Router, o *optimizer.Optimizer, opts ...Option) *Planner {
	p := &Planner{router: r, optimizer: o, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan orders deliveries, routes depot → d1 → … → dn → depot and returns the
// commands for the whole run. A leg that cannot be routed fails the plan with
// a *LegError, unless skipping is enabled and the delivery is unreachable.
func (p *Planner) Plan(ctx context.Context, depot geo.Coord, deliveries []optimizer.Delivery) (_ *Plan, err error) {
	defer obs.Time(ctx, "planner.Plan")(&err)

	plan := &Plan{}

	if p.skipUnreachable {
		reachable, skipped, err := p.reachable(ctx, depot, deliveries)
		if err != nil {
			return nil, err
		}
		deliveries = reachable
		plan.Skipped = skipped
	}

	opt := p.optimizer.Optimize(depot, deliveries)
	plan.Deliveries = opt.Deliveries
	plan.OldCrowMeters = opt.OldDistanceMeters
	plan.NewCrowMeters = opt.NewDistanceMeters

	// Legs are independent once the order is fixed.
	stops := make([]geo.Coord, 0, len(opt.Deliveries)+2)
	stops = append(stops, depot)
	for _, d := range opt.Deliveries {
		stops = append(stops, d.Location)
	}
	stops = append(stops, depot)

	legs := make([]*routing.RouteResult, len(stops)-1)
	legErrs := make([]error, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range legs {
		g.Go(func() error {
			res, err := p.router.Route(gctx, stops[i], stops[i+1])
			if err != nil {
				le := &LegError{From: stops[i], To: stops[i+1], Err: err}
				if i < len(opt.Deliveries) {
					le.Item = opt.Deliveries[i].Item
				}
				legErrs[i] = le
				return le
			}
			legs[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, firstLegError(legErrs, err)
	}

	for i, leg := range legs {
		plan.Commands = append(plan.Commands, legCommands(leg.Segments)...)
		plan.TotalDistanceMeters += leg.TotalDistanceMeters
		if i < len(opt.Deliveries) {
			plan.Commands = append(plan.Commands, Command{Kind: Deliver, Item: opt.Deliveries[i].Item})
		}
	}
	return plan, nil
}

// reachable splits deliveries by whether a route from the depot exists.
// Streets are two-way, so a delivery reachable from the depot is reachable
// from every other reachable delivery too.
func (p *Planner) reachable(ctx context.Context, depot geo.Coord, deliveries []optimizer.Delivery) (ok, skipped []optimizer.Delivery, err error) {
	if _, err := p.router.Route(ctx, depot, depot); err != nil {
		return nil, nil, &LegError{From: depot, To: depot, Err: err}
	}

	unreachable := make([]bool, len(deliveries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, d := range deliveries {
		g.Go(func() error {
			_, err := p.router.Route(gctx, depot, d.Location)
			switch {
			case err == nil:
			case errors.Is(err, routing.ErrNoRoute), errors.Is(err, routing.ErrUnknownCoordinate):
				unreachable[i] = true
			default:
				return &LegError{From: depot, To: d.Location, Item: d.Item, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i, d := range deliveries {
		if unreachable[i] {
			skipped = append(skipped, d)
		} else {
			ok = append(ok, d)
		}
	}
	return ok, skipped, nil
}

// firstLegError picks the failure of the earliest leg, passing over legs that
// were only cancelled because a later one failed first.
func firstLegError(errs []error, fallback error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return fallback
}
