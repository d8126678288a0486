package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"mime"
	"net/http"
	"time"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/obs"
	"github.com/azybler/delivery_router/pkg/optimizer"
	"github.com/azybler/delivery_router/pkg/planner"
	"github.com/azybler/delivery_router/pkg/routing"
	"github.com/azybler/delivery_router/pkg/store"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

const (
	maxRouteBody = 1024
	maxPlanBody  = 1 << 20

	// DefaultMaxDeliveries caps the deliveries accepted by one plan request.
	DefaultMaxDeliveries = 100
)

// Snapper moves an arbitrary point onto the street map.
type Snapper interface {
	Snap(lat, lng float64) (streetmap.SnapResult, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	router        routing.Router
	snapper       Snapper
	stats         StatsResponse
	plans         store.PlanStore
	workers       int
	maxDeliveries int
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithPlanStore keeps every computed plan in s so it can be fetched by id.
func WithPlanStore(s store.PlanStore) HandlerOption {
	return func(h *Handlers) { h.plans = s }
}

// WithPlanWorkers sets how many legs of a plan are routed concurrently.
func WithPlanWorkers(n int) HandlerOption {
	return func(h *Handlers) { h.workers = n }
}

// WithMaxDeliveries caps the number of deliveries in a plan request.
func WithMaxDeliveries(n int) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxDeliveries = n
		}
	}
}

// NewHandlers creates handlers with the given router. snapper may be nil, in
// which case requests asking for snapping are rejected.
func NewHandlers(router routing.Router, snapper Snapper, stats StatsResponse, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		router:        router,
		snapper:       snapper,
		stats:         stats,
		workers:       planner.DefaultWorkers,
		maxDeliveries: DefaultMaxDeliveries,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRoute handles POST /api/v1/route.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
		return
	}

	var req RouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRouteBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
		return
	}

	start, ok := h.resolve(w, req.Start, req.Snap, "start")
	if !ok {
		return
	}
	end, ok := h.resolve(w, req.End, req.Snap, "end")
	if !ok {
		return
	}

	result, err := h.router.Route(r.Context(), start, end)
	if err != nil {
		writeRoutingError(w, err, ErrorResponse{})
		return
	}

	resp := RouteResponse{
		TotalDistanceMeters: result.TotalDistanceMeters,
		Segments:            make([]SegmentJSON, 0, len(result.Segments)),
	}
	for _, seg := range result.Segments {
		resp.Segments = append(resp.Segments, SegmentJSON{
			Start:          toJSON(seg.Start),
			End:            toJSON(seg.End),
			Street:         seg.Name,
			DistanceMeters: seg.Length(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePlan handles POST /api/v1/plan.
func (h *Handlers) HandlePlan(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
		return
	}

	var req PlanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlanBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
		return
	}
	if len(req.Deliveries) > h.maxDeliveries {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "too_many_deliveries", Field: "deliveries"})
		return
	}

	depot, ok := h.resolve(w, req.Depot, req.Snap, "depot")
	if !ok {
		return
	}
	deliveries := make([]optimizer.Delivery, len(req.Deliveries))
	for i, d := range req.Deliveries {
		if d.Item == "" {
			writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_item", Field: fmt.Sprintf("deliveries[%d].item", i)})
			return
		}
		loc, ok := h.resolve(w, d.Location, req.Snap, fmt.Sprintf("deliveries[%d].location", i))
		if !ok {
			return
		}
		deliveries[i] = optimizer.Delivery{Item: d.Item, Location: loc}
	}

	opts := []planner.Option{planner.WithWorkers(h.workers)}
	if req.SkipUnreachable {
		opts = append(opts, planner.WithSkipUnreachable())
	}
	p := planner.New(h.router, optimizer.New(optimizer.WithSeed(req.Seed)), opts...)

	plan, err := p.Plan(r.Context(), depot, deliveries)
	if err != nil {
		var le *planner.LegError
		resp := ErrorResponse{}
		if errors.As(err, &le) {
			resp.Item = le.Item
		}
		writeRoutingError(w, err, resp)
		return
	}

	resp := planResponse(plan)
	if h.plans != nil {
		h.savePlan(r.Context(), depot, &resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// savePlan stores resp and sets its id. A failed save is logged and the plan
// is returned without an id.
func (h *Handlers) savePlan(ctx context.Context, depot geo.Coord, resp *PlanResponse) {
	resp.ID = obs.NewRequestID()
	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("req_id=%s encode plan: %v", obs.RequestID(ctx), err)
		resp.ID = ""
		return
	}

	err = h.plans.Save(ctx, store.Record{
		ID:                  resp.ID,
		CreatedAt:           time.Now().UTC(),
		DepotLat:            depot.Lat(),
		DepotLng:            depot.Lon(),
		NumDeliveries:       len(resp.Deliveries),
		TotalDistanceMeters: resp.TotalDistanceMeters,
		Body:                body,
	})
	if err != nil {
		log.Printf("req_id=%s save plan: %v", obs.RequestID(ctx), err)
		resp.ID = ""
	}
}

// HandleGetPlan handles GET /api/v1/plans/{id}.
func (h *Handlers) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "plan_not_found"})
		return
	}

	rec, err := h.plans.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "plan_not_found"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(rec.Body)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats)
}

// resolve validates ll and turns it into a map coordinate, snapping it onto
// the nearest street coordinate when asked. On failure it writes the error
// response and returns false.
func (h *Handlers) resolve(w http.ResponseWriter, ll LatLngJSON, snap bool, field string) (geo.Coord, bool) {
	if err := validateCoord(ll); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_coordinates", Field: field})
		return geo.Coord{}, false
	}
	if !snap {
		return geo.FromDegrees(ll.Lat, ll.Lng), true
	}
	if h.snapper == nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "snap_unavailable", Field: field})
		return geo.Coord{}, false
	}

	res, err := h.snapper.Snap(ll.Lat, ll.Lng)
	if err != nil {
		if errors.Is(err, streetmap.ErrPointTooFar) {
			writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "point_too_far_from_road", Field: field})
		} else {
			writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_coordinates", Field: field})
		}
		return geo.Coord{}, false
	}
	return res.Coord, true
}

func planResponse(p *planner.Plan) PlanResponse {
	resp := PlanResponse{
		Commands:            make([]CommandJSON, len(p.Commands)),
		Deliveries:          deliveriesJSON(p.Deliveries),
		Skipped:             deliveriesJSON(p.Skipped),
		TotalDistanceMeters: p.TotalDistanceMeters,
		OldCrowMeters:       p.OldCrowMeters,
		NewCrowMeters:       p.NewCrowMeters,
	}
	for i, c := range p.Commands {
		resp.Commands[i] = CommandJSON{
			Kind:           c.Kind.String(),
			Direction:      c.Direction,
			Street:         c.Street,
			DistanceMeters: c.DistanceMeters,
			Item:           c.Item,
			Text:           c.String(),
		}
	}
	return resp
}

func deliveriesJSON(ds []optimizer.Delivery) []DeliveryJSON {
	if len(ds) == 0 {
		return nil
	}
	out := make([]DeliveryJSON, len(ds))
	for i, d := range ds {
		out[i] = DeliveryJSON{Item: d.Item, Location: toJSON(d.Location)}
	}
	return out
}

func toJSON(c geo.Coord) LatLngJSON {
	return LatLngJSON{Lat: c.Lat(), Lng: c.Lon()}
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

// writeRoutingError maps routing and planning failures to HTTP responses.
// base carries fields already known about the failure.
func writeRoutingError(w http.ResponseWriter, err error, base ErrorResponse) {
	status := http.StatusInternalServerError
	base.Error = "internal_error"
	switch {
	case errors.Is(err, routing.ErrUnknownCoordinate):
		status, base.Error = http.StatusUnprocessableEntity, "unknown_coordinate"
	case errors.Is(err, routing.ErrNoRoute):
		status, base.Error = http.StatusNotFound, "no_route_found"
	case errors.Is(err, routing.ErrSearchLimit):
		status, base.Error = http.StatusUnprocessableEntity, "search_limit_exceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, base.Error = http.StatusServiceUnavailable, "request_timeout"
	}
	writeError(w, status, base)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
