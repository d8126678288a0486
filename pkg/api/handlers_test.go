package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/azybler/delivery_router/pkg/geo"
	"github.com/azybler/delivery_router/pkg/routing"
	"github.com/azybler/delivery_router/pkg/store"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

// mockRouter implements routing.Router for testing.
type mockRouter struct {
	result     *routing.RouteResult
	err        error
	start, end geo.Coord
}

func (m *mockRouter) Route(ctx context.Context, start, end geo.Coord) (*routing.RouteResult, error) {
	m.start, m.end = start, end
	return m.result, m.err
}

// mockSnapper moves every point to the same coordinate.
type mockSnapper struct {
	to  geo.Coord
	err error
}

func (m mockSnapper) Snap(lat, lng float64) (streetmap.SnapResult, error) {
	return streetmap.SnapResult{Coord: m.to}, m.err
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, w.Body.String())
	}
	return resp
}

const routeBody = `{"start":{"lat":34.0625329,"lng":-118.4470263},"end":{"lat":34.0636671,"lng":-118.4464709}}`

func TestHandleRoute_Success(t *testing.T) {
	a := geo.FromDegrees(34.0625329, -118.4470263)
	b := geo.FromDegrees(34.0636671, -118.4464709)
	seg := streetmap.Segment{Start: a, End: b, Name: "Westwood Blvd"}
	mock := &mockRouter{
		result: &routing.RouteResult{
			TotalDistanceMeters: seg.Length(),
			Segments:            []streetmap.Segment{seg},
		},
	}
	h := NewHandlers(mock, nil, StatsResponse{})

	w := post(h.HandleRoute, "/api/v1/route", routeBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	if mock.start != a || mock.end != b {
		t.Errorf("routed %v -> %v, want %v -> %v", mock.start, mock.end, a, b)
	}

	var resp RouteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Segments) != 1 {
		t.Fatalf("Segments length = %d, want 1", len(resp.Segments))
	}
	got := resp.Segments[0]
	if got.Street != "Westwood Blvd" {
		t.Errorf("Street = %q", got.Street)
	}
	if got.DistanceMeters != seg.Length() || resp.TotalDistanceMeters != seg.Length() {
		t.Errorf("distance = %f / %f, want %f", got.DistanceMeters, resp.TotalDistanceMeters, seg.Length())
	}
	if got.Start.Lat != a.Lat() || got.End.Lng != b.Lon() {
		t.Errorf("segment endpoints = %+v", got)
	}
}

func TestHandleRoute_EmptyRouteHasSegmentsArray(t *testing.T) {
	mock := &mockRouter{result: &routing.RouteResult{}}
	h := NewHandlers(mock, nil, StatsResponse{})

	w := post(h.HandleRoute, "/api/v1/route", routeBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"segments":[]`) {
		t.Errorf("body = %s, want empty segments array", w.Body.String())
	}
}

func TestHandleRoute_Snap(t *testing.T) {
	to := geo.FromDegrees(34.06, -118.44)
	mock := &mockRouter{result: &routing.RouteResult{}}
	h := NewHandlers(mock, mockSnapper{to: to}, StatsResponse{})

	body := `{"start":{"lat":34.0001,"lng":-118.0001},"end":{"lat":34.0002,"lng":-118.0002},"snap":true}`
	w := post(h.HandleRoute, "/api/v1/route", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	if mock.start != to || mock.end != to {
		t.Errorf("routed %v -> %v, want snapped %v", mock.start, mock.end, to)
	}
}

func TestHandleRoute_SnapErrors(t *testing.T) {
	body := `{"start":{"lat":34,"lng":-118},"end":{"lat":34,"lng":-118},"snap":true}`

	h := NewHandlers(&mockRouter{}, mockSnapper{err: streetmap.ErrPointTooFar}, StatsResponse{})
	w := post(h.HandleRoute, "/api/v1/route", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	if resp := decodeError(t, w); resp.Error != "point_too_far_from_road" || resp.Field != "start" {
		t.Errorf("error = %+v", resp)
	}

	h = NewHandlers(&mockRouter{}, nil, StatsResponse{})
	w = post(h.HandleRoute, "/api/v1/route", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status without snapper = %d, want 400", w.Code)
	}
}

func TestHandleRoute_BadRequests(t *testing.T) {
	h := NewHandlers(&mockRouter{}, nil, StatsResponse{})

	tests := []struct {
		name, body, field string
	}{
		{"invalid json", "not json", ""},
		{"lat out of range", `{"start":{"lat":91.0,"lng":103.8},"end":{"lat":1.35,"lng":103.85}}`, "start"},
		{"lng out of range", `{"start":{"lat":1.3,"lng":103.8},"end":{"lat":1.35,"lng":181}}`, "end"},
		{"too large", `{"start":{"lat":1.3,"lng":103.8},"pad":"` + strings.Repeat("x", 2048) + `"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h.HandleRoute, "/api/v1/route", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if resp := decodeError(t, w); resp.Field != tt.field {
				t.Errorf("field = %q, want %q", resp.Field, tt.field)
			}
		})
	}
}

func TestHandleRoute_MissingContentType(t *testing.T) {
	h := NewHandlers(&mockRouter{}, nil, StatsResponse{})

	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(routeBody))
	w := httptest.NewRecorder()
	h.HandleRoute(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRoute_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{routing.ErrUnknownCoordinate, http.StatusUnprocessableEntity, "unknown_coordinate"},
		{routing.ErrNoRoute, http.StatusNotFound, "no_route_found"},
		{routing.ErrSearchLimit, http.StatusUnprocessableEntity, "search_limit_exceeded"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "request_timeout"},
		{context.Canceled, http.StatusServiceUnavailable, "request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := NewHandlers(&mockRouter{err: tt.err}, nil, StatsResponse{})
			w := post(h.HandleRoute, "/api/v1/route", routeBody)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if resp := decodeError(t, w); resp.Error != tt.code {
				t.Errorf("error = %q, want %q", resp.Error, tt.code)
			}
		})
	}
}

// Main St runs east from the depot through a to b; Oak Ave runs north from b.
func townHandlers(opts ...HandlerOption) *Handlers {
	m := streetmap.New()
	depot := geo.FromDegrees(0, 0)
	a := geo.FromDegrees(0, 0.001)
	b := geo.FromDegrees(0, 0.002)
	c := geo.FromDegrees(0.001, 0.002)
	m.AddStreet("Main St", depot, a)
	m.AddStreet("Main St", a, b)
	m.AddStreet("Oak Ave", b, c)
	m.AddStreet("Island Rd", geo.FromDegrees(0.5, 0.5), geo.FromDegrees(0.5, 0.501))

	engine := routing.NewEngine(m, routing.WithComponents(streetmap.NewComponents(m)))
	return NewHandlers(engine, streetmap.NewSnapper(m), StatsResponse{}, opts...)
}

func TestHandlePlan_Success(t *testing.T) {
	h := townHandlers()

	body := `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"pizza","location":{"lat":0.001,"lng":0.002}}],"seed":7}`
	w := post(h.HandlePlan, "/api/v1/plan", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp PlanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "" {
		t.Errorf("ID = %q without a plan store", resp.ID)
	}
	wantText := []string{
		"Proceed 222 meters east on Main St",
		"Turn left on Oak Ave",
		"Proceed 111 meters north on Oak Ave",
		"Deliver pizza",
		"Proceed 111 meters south on Oak Ave",
		"Turn right on Main St",
		"Proceed 222 meters west on Main St",
	}
	if len(resp.Commands) != len(wantText) {
		t.Fatalf("got %d commands, want %d: %+v", len(resp.Commands), len(wantText), resp.Commands)
	}
	for i, want := range wantText {
		if resp.Commands[i].Text != want {
			t.Errorf("command %d = %q, want %q", i, resp.Commands[i].Text, want)
		}
	}
	if resp.Commands[3].Kind != "deliver" || resp.Commands[3].Item != "pizza" {
		t.Errorf("deliver command = %+v", resp.Commands[3])
	}
}

func TestHandlePlan_Unreachable(t *testing.T) {
	h := townHandlers()
	body := `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"boat","location":{"lat":0.5,"lng":0.501}}]}`

	w := post(h.HandlePlan, "/api/v1/plan", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404. body: %s", w.Code, w.Body.String())
	}
	if resp := decodeError(t, w); resp.Error != "no_route_found" || resp.Item != "boat" {
		t.Errorf("error = %+v", resp)
	}

	body = `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"boat","location":{"lat":0.5,"lng":0.501}}],"skip_unreachable":true}`
	w = post(h.HandlePlan, "/api/v1/plan", body)
	if w.Code != http.StatusOK {
		t.Fatalf("skip: status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp PlanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Item != "boat" {
		t.Errorf("Skipped = %+v", resp.Skipped)
	}
	if len(resp.Commands) != 0 {
		t.Errorf("Commands = %+v, want none", resp.Commands)
	}
}

func TestHandlePlan_BadRequests(t *testing.T) {
	h := townHandlers(WithMaxDeliveries(1))

	tests := []struct {
		name, body, code, field string
	}{
		{"bad depot", `{"depot":{"lat":-91,"lng":0}}`, "invalid_coordinates", "depot"},
		{"empty item", `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"","location":{"lat":0,"lng":0}}]}`, "invalid_item", "deliveries[0].item"},
		{"bad location", `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"x","location":{"lat":0,"lng":200}}]}`, "invalid_coordinates", "deliveries[0].location"},
		{"too many", `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"x","location":{"lat":0,"lng":0}},{"item":"y","location":{"lat":0,"lng":0}}]}`, "too_many_deliveries", "deliveries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h.HandlePlan, "/api/v1/plan", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			resp := decodeError(t, w)
			if resp.Error != tt.code || resp.Field != tt.field {
				t.Errorf("error = %+v, want %s/%s", resp, tt.code, tt.field)
			}
		})
	}
}

func TestHandlePlan_SnapsLocations(t *testing.T) {
	h := townHandlers()
	// About 20 m north of b, which is not a map coordinate.
	body := `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"pizza","location":{"lat":0.0002,"lng":0.002}}],"snap":true}`

	w := post(h.HandlePlan, "/api/v1/plan", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	var resp PlanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got := resp.Deliveries[0].Location; got.Lat != 0 || got.Lng != 0.002 {
		t.Errorf("delivery snapped to %+v, want b", got)
	}
}

func TestPlanStoreRoundTrip(t *testing.T) {
	plans := store.NewMemoryStore(10)
	srv := httptest.NewServer(NewServer(DefaultConfig(""), townHandlers(WithPlanStore(plans))).Handler)
	defer srv.Close()

	body := `{"depot":{"lat":0,"lng":0},"deliveries":[{"item":"pizza","location":{"lat":0,"lng":0.002}}]}`
	res, err := http.Post(srv.URL+"/api/v1/plan", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var created PlanResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("plan has no id")
	}
	if plans.Len() != 1 {
		t.Errorf("store holds %d plans, want 1", plans.Len())
	}

	res2, err := http.Get(srv.URL + "/api/v1/plans/" + created.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Body.Close()
	var fetched PlanResponse
	if err := json.NewDecoder(res2.Body).Decode(&fetched); err != nil {
		t.Fatal(err)
	}
	if fetched.ID != created.ID || len(fetched.Commands) != len(created.Commands) {
		t.Errorf("fetched %+v, want %+v", fetched, created)
	}

	res3, err := http.Get(srv.URL + "/api/v1/plans/nope")
	if err != nil {
		t.Fatal(err)
	}
	res3.Body.Close()
	if res3.StatusCode != http.StatusNotFound {
		t.Errorf("missing plan status = %d, want 404", res3.StatusCode)
	}
}

func TestServerRequestTimeout(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.RequestTimeout = time.Nanosecond
	blocking := routerFunc(func(ctx context.Context, _, _ geo.Coord) (*routing.RouteResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	srv := httptest.NewServer(NewServer(cfg, NewHandlers(blocking, nil, StatsResponse{})).Handler)
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/v1/route", "application/json", strings.NewReader(routeBody))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.StatusCode)
	}
}

type routerFunc func(ctx context.Context, start, end geo.Coord) (*routing.RouteResult, error)

func (f routerFunc) Route(ctx context.Context, start, end geo.Coord) (*routing.RouteResult, error) {
	return f(ctx, start, end)
}

func TestHandleHealth(t *testing.T) {
	h := NewHandlers(&mockRouter{}, nil, StatsResponse{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want 'ok'", resp.Status)
	}
}

func TestHandleStats(t *testing.T) {
	stats := StatsResponse{NumCoords: 500, NumSegments: 1200, NumStreets: 40}
	h := NewHandlers(&mockRouter{}, nil, stats)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	h.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp StatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp != stats {
		t.Errorf("stats = %+v, want %+v", resp, stats)
	}
}
