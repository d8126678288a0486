package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	osmparser "github.com/azybler/delivery_router/pkg/osm"
	"github.com/azybler/delivery_router/pkg/streetmap"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf or .osm (XML) file")
	output := flag.String("output", "map.bin", "Output street map (.bin snapshot, anything else is text)")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 34.05,-118.46,34.08,-118.43)")
	largest := flag.Bool("largest", false, "Keep only the largest connected component")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf|file.osm> [--output map.bin] [--bbox minLat,minLng,maxLat,maxLng] [--largest]")
		os.Exit(1)
	}

	var opts osmparser.ParseOptions
	if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		_, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng)
		if err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	var res *osmparser.ParseResult
	switch ext := strings.ToLower(filepath.Ext(*input)); ext {
	case ".osm", ".xml":
		res, err = osmparser.ParseXML(context.Background(), f, opts)
	default:
		res, err = osmparser.Parse(context.Background(), f, opts)
	}
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d streets, %d segments", len(res.Streets), res.NumSegments())

	// Step 2: Build the street map.
	m := osmparser.Build(res)
	log.Printf("Street map: %d coords, %d segments", m.NumCoords(), m.NumSegments())
	if m.NumSegments() == 0 {
		log.Fatal("No drivable streets found")
	}

	// Step 3: Optionally extract the largest connected component.
	if *largest {
		log.Println("Extracting largest connected component...")
		total := m.NumCoords()
		m = streetmap.LargestComponent(m)
		log.Printf("Largest component: %d coords (%.1f%%), %d segments",
			m.NumCoords(), float64(m.NumCoords())/float64(total)*100, m.NumSegments())
	}

	// Step 4: Write.
	log.Printf("Writing street map to %s...", *output)
	if err := m.WriteFile(*output); err != nil {
		log.Fatalf("Failed to write street map: %v", err)
	}

	info, _ := os.Stat(*output)
	log.Printf("Done in %s. Output: %s (%.1f MB)", time.Since(start).Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
