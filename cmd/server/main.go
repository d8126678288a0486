package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/azybler/delivery_router/pkg/api"
	"github.com/azybler/delivery_router/pkg/routing"
	"github.com/azybler/delivery_router/pkg/store"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	mapPath := flag.String("map", getEnv("MAP_PATH", "map.bin"), "Path to street map (text or .bin snapshot)")
	port := flag.Int("port", getEnvInt("PORT", 8080), "HTTP port")
	corsOrigin := flag.String("cors-origin", getEnv("CORS_ORIGIN", ""), "CORS allowed origin (empty = same-origin)")
	timeout := flag.Duration("timeout", getEnvDuration("ROUTE_TIMEOUT", 10*time.Second), "Deadline for one route or plan request")
	maxExpansions := flag.Int("max-expansions", getEnvInt("MAX_EXPANSIONS", 0), "Cap on coordinates expanded per route (0 = no cap)")
	databaseURL := flag.String("database-url", getEnv("DATABASE_URL", ""), "Postgres URL for stored plans (empty = in memory)")
	flag.Parse()

	start := time.Now()

	log.Printf("Loading map from %s...", *mapPath)
	m, err := streetmap.LoadFile(*mapPath)
	if err != nil {
		log.Fatalf("Failed to load map: %v", err)
	}
	log.Printf("Loaded: %d coords, %d segments, %d streets", m.NumCoords(), m.NumSegments(), len(m.Streets()))

	comps := streetmap.NewComponents(m)
	log.Printf("Connected components: %d", comps.Count())

	log.Println("Building R-tree spatial index...")
	snapper := streetmap.NewSnapper(m)

	engine := routing.NewEngine(m,
		routing.WithComponents(comps),
		routing.WithMaxExpansions(*maxExpansions),
	)

	plans, closeStore := openPlanStore(*databaseURL)
	defer closeStore()

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	cfg := api.DefaultConfig(fmt.Sprintf(":%d", *port))
	cfg.CORSOrigin = *corsOrigin
	cfg.RequestTimeout = *timeout
	cfg.WriteTimeout = *timeout + 5*time.Second

	stats := api.StatsResponse{
		NumCoords:   m.NumCoords(),
		NumSegments: m.NumSegments(),
		NumStreets:  len(m.Streets()),
	}

	handlers := api.NewHandlers(engine, snapper, stats, api.WithPlanStore(plans))
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		closeStore()
		os.Exit(1)
	}
}

// openPlanStore returns the Postgres plan store when url is set and an
// in-memory one otherwise.
func openPlanStore(url string) (store.PlanStore, func()) {
	if url == "" {
		log.Println("Storing plans in memory")
		return store.NewMemoryStore(store.DefaultMemoryCapacity), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.Open(ctx, url)
	if err != nil {
		log.Fatalf("Failed to open plan database: %v", err)
	}
	s := store.NewSQLStore(db)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		log.Fatalf("Failed to initialize plan schema: %v", err)
	}
	log.Println("Storing plans in Postgres")
	return s, func() { db.Close() }
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid %s %q: %v", key, v, err)
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("Invalid %s %q: %v", key, v, err)
	}
	return d
}
