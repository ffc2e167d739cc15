package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/zarrview/pkg/stream"
)

func main() {
	ctx := context.Background()

	// Point at a Zarr store over HTTP
	src, err := stream.SourceFromURL("https://example.com/data/tavg.zarr", nil)
	if err != nil {
		log.Fatal(err)
	}

	// Resolve the dataset metadata
	ds, err := stream.Resolve(ctx, src, "tavg", stream.ResolveOptions{})
	if err != nil {
		log.Fatal(err)
	}

	// Print dataset info
	fmt.Printf("Variable: %s\n", ds.Variable)
	fmt.Printf("Kind: %s\n", ds.Kind)
	fmt.Printf("Levels: %d\n", len(ds.Levels))
	fmt.Printf("CRS: %s\n", ds.CRS)

	// Get dataset bounds
	b := ds.Bounds
	fmt.Printf("Bounds: [%.4f,%.4f] to [%.4f,%.4f]\n",
		b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}
