package api

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteRequest is the JSON body for POST /api/v1/route.
// Without Snap, Start and End must be coordinates of the map.
type RouteRequest struct {
	Start LatLngJSON `json:"start"`
	End   LatLngJSON `json:"end"`
	Snap  bool       `json:"snap,omitempty"`
}

// RouteResponse is the JSON response for a successful route query.
type RouteResponse struct {
	TotalDistanceMeters float64       `json:"total_distance_meters"`
	Segments            []SegmentJSON `json:"segments"`
}

// SegmentJSON represents a street segment in the response.
type SegmentJSON struct {
	Start          LatLngJSON `json:"start"`
	End            LatLngJSON `json:"end"`
	Street         string     `json:"street"`
	DistanceMeters float64    `json:"distance_meters"`
}

// DeliveryJSON is one delivery request.
type DeliveryJSON struct {
	Item     string     `json:"item"`
	Location LatLngJSON `json:"location"`
}

// PlanRequest is the JSON body for POST /api/v1/plan.
type PlanRequest struct {
	Depot           LatLngJSON     `json:"depot"`
	Deliveries      []DeliveryJSON `json:"deliveries"`
	Seed            uint64         `json:"seed,omitempty"`
	SkipUnreachable bool           `json:"skip_unreachable,omitempty"`
	Snap            bool           `json:"snap,omitempty"`
}

// CommandJSON is one driving instruction.
type CommandJSON struct {
	Kind           string  `json:"kind"`
	Direction      string  `json:"direction,omitempty"`
	Street         string  `json:"street,omitempty"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
	Item           string  `json:"item,omitempty"`
	Text           string  `json:"text"`
}

// PlanResponse is the JSON response for a successful plan.
type PlanResponse struct {
	ID                  string         `json:"id,omitempty"`
	Commands            []CommandJSON  `json:"commands"`
	Deliveries          []DeliveryJSON `json:"deliveries"`
	Skipped             []DeliveryJSON `json:"skipped,omitempty"`
	TotalDistanceMeters float64        `json:"total_distance_meters"`
	OldCrowMeters       float64        `json:"old_crow_meters"`
	NewCrowMeters       float64        `json:"new_crow_meters"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Item  string `json:"item,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumCoords   int `json:"num_coords"`
	NumSegments int `json:"num_segments"`
	NumStreets  int `json:"num_streets"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
