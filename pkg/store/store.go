// Package store keeps computed delivery plans so clients can fetch them again
// by id. Plans are stored as the JSON document the API returned.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no plan has the requested id.
var ErrNotFound = errors.New("plan not found")

// Record is a stored plan.
type Record struct {
	ID                  string
	CreatedAt           time.Time
	DepotLat, DepotLng  float64
	NumDeliveries       int
	TotalDistanceMeters float64
	Body                json.RawMessage
}

// PlanStore saves and loads plans.
type PlanStore interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
}

// DefaultMemoryCapacity is how many plans a MemoryStore keeps by default.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps the most recent plans in process memory. It is safe for
// concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	cap   int
	byID  map[string]Record
	order []string // oldest first
}

// NewMemoryStore returns a store holding at most capacity plans; older plans
// are evicted first. Non-positive capacity selects DefaultMemoryCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{cap: capacity, byID: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("save plan: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.byID[rec.ID] = rec

	for len(s.order) > s.cap {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len returns the number of stored plans.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
