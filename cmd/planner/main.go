package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/azybler/delivery_router/pkg/obs"
	"github.com/azybler/delivery_router/pkg/optimizer"
	"github.com/azybler/delivery_router/pkg/planner"
	"github.com/azybler/delivery_router/pkg/routing"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	mapPath := flag.String("map", getEnv("MAP_PATH", "map.bin"), "Path to street map (text or .bin snapshot)")
	deliveriesPath := flag.String("deliveries", "", "Deliveries file: depot \"lat lon\" line, then \"lat lon:item\" lines")
	seed := flag.Uint64("seed", 0, "Seed for the delivery order optimizer")
	skip := flag.Bool("skip-unreachable", false, "Skip deliveries that cannot be reached instead of failing")
	workers := flag.Int("workers", planner.DefaultWorkers, "Legs routed concurrently")
	flag.Parse()

	if *deliveriesPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: planner --deliveries <file> [--map map.bin] [--seed N] [--skip-unreachable]")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithRequestID(ctx, obs.NewRequestID())

	m, err := streetmap.LoadFile(*mapPath)
	if err != nil {
		log.Fatalf("Failed to load map: %v", err)
	}
	log.Printf("Loaded: %d coords, %d segments", m.NumCoords(), m.NumSegments())

	f, err := os.Open(*deliveriesPath)
	if err != nil {
		log.Fatalf("Failed to open deliveries: %v", err)
	}
	depot, deliveries, err := planner.ReadDeliveries(f)
	f.Close()
	if err != nil {
		log.Fatalf("Failed to read deliveries: %v", err)
	}

	opts := []planner.Option{planner.WithWorkers(*workers)}
	if *skip {
		opts = append(opts, planner.WithSkipUnreachable())
	}
	engine := routing.NewEngine(m, routing.WithComponents(streetmap.NewComponents(m)))
	p := planner.New(engine, optimizer.New(optimizer.WithSeed(*seed)), opts...)

	plan, err := p.Plan(ctx, depot, deliveries)
	if err != nil {
		log.Fatalf("Failed to plan deliveries: %v", err)
	}

	for _, d := range plan.Skipped {
		log.Printf("Skipped unreachable delivery %q at %v", d.Item, d.Location)
	}
	for _, c := range plan.Commands {
		fmt.Println(c)
	}
	fmt.Printf("Total travel distance: %.2f km\n", plan.TotalDistanceMeters/1000)
	log.Printf("Crow-flies tour: %.0f m before reordering, %.0f m after", plan.OldCrowMeters, plan.NewCrowMeters)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
