package main

import (
	"context"
	"fmt"
	"log"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/zarrview/pkg/stream"
)

func main() {
	ctx := context.Background()

	src, err := stream.SourceFromURL("https://example.com/data/tavg.zarr", nil)
	if err != nil {
		log.Fatal(err)
	}
	ds, err := stream.Resolve(ctx, src, "tavg", stream.ResolveOptions{})
	if err != nil {
		log.Fatal(err)
	}

	cache := stream.NewTileCache(ds, stream.CacheOptions{})
	ctrl, err := stream.NewTiledController(ds, cache, stream.DefaultControllerOptions())
	if err != nil {
		log.Fatal(err)
	}

	vp := stream.Viewport{
		Zoom:   1.0,
		Bounds: orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}},
	}
	if err := ctrl.Update(ctx, vp); err != nil {
		log.Fatal(err)
	}

	// Index the cached tiles for spatial lookups (O(log n))
	index := stream.NewQueryIndex(ds, cache)
	n := index.Rebuild()
	fmt.Printf("indexed %d tiles\n", n)

	// Sample the value under the cursor, in dataset CRS coordinates
	pt := orb.Point{-71.05, 42.36}
	if sample, ok := index.At(pt); ok {
		fmt.Printf("tile %s at (%.2f, %.2f):\n", sample.Key, pt[0], pt[1])
		for band, value := range sample.Values {
			fmt.Printf("  %s = %.2f\n", band, value)
		}
	} else {
		fmt.Println("no data under cursor")
	}

	// Find every cached tile touching a region
	region := orb.Bound{Min: orb.Point{-80, 35}, Max: orb.Point{-60, 50}}
	for _, key := range index.Within(region) {
		fmt.Printf("tile %s intersects region\n", key)
	}
}
