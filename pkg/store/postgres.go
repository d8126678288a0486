package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/azybler/delivery_router/pkg/obs"
)

// Open connects to Postgres through the pgx database/sql driver and checks
// the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}
	return db, nil
}

// SQLStore keeps plans in the delivery_plans table.
type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// InitSchema creates the plan table if it does not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("init schema: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS delivery_plans (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			depot_lat DOUBLE PRECISION NOT NULL,
			depot_lng DOUBLE PRECISION NOT NULL,
			num_deliveries INTEGER NOT NULL,
			total_distance_meters DOUBLE PRECISION NOT NULL,
			body JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_plans_created_at
			ON delivery_plans(created_at);`,
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, rec Record) (err error) {
	defer obs.Time(ctx, "store.plans.Save")(&err)

	if s.DB == nil {
		return errors.New("save plan: db is nil")
	}
	if rec.ID == "" {
		return errors.New("save plan: empty id")
	}

	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO delivery_plans
		(id, created_at, depot_lat, depot_lng, num_deliveries, total_distance_meters, body)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE
	SET body = EXCLUDED.body,
		total_distance_meters = EXCLUDED.total_distance_meters;
	`, rec.ID, rec.CreatedAt, rec.DepotLat, rec.DepotLng, rec.NumDeliveries,
		rec.TotalDistanceMeters, []byte(rec.Body))
	if err != nil {
		return fmt.Errorf("save plan: insert: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (_ Record, err error) {
	defer obs.Time(ctx, "store.plans.Get")(&err)

	if s.DB == nil {
		return Record{}, errors.New("get plan: db is nil")
	}

	var (
		rec  Record
		body []byte
	)
	err = s.DB.QueryRowContext(ctx, `
	SELECT id, created_at, depot_lat, depot_lng, num_deliveries, total_distance_meters, body
	FROM delivery_plans
	WHERE id = $1;
	`, id).Scan(&rec.ID, &rec.CreatedAt, &rec.DepotLat, &rec.DepotLng,
		&rec.NumDeliveries, &rec.TotalDistanceMeters, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get plan: query: %w", err)
	}
	rec.Body = body
	return rec, nil
}
