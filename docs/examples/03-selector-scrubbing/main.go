package main

import (
	"context"
	"fmt"
	"log"
	"time"

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
		Zoom:   2.0,
		Bounds: orb.Bound{Min: orb.Point{-180, -60}, Max: orb.Point{180, 60}},
	}
	if err := ctrl.Update(ctx, vp); err != nil {
		log.Fatal(err)
	}

	// Step through months. When the new selection lives in chunks already
	// resident, the cache re-slices them without any network I/O.
	for month := 0; month < 12; month++ {
		sel := stream.Selector{"month": stream.Index(month)}
		if err := ctrl.SetSelector(ctx, sel); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("month %d selected\n", month)
		time.Sleep(200 * time.Millisecond)
	}

	// Selecting by coordinate value instead of index
	if err := ctrl.SetSelector(ctx, stream.Selector{"month": stream.Value(6)}); err != nil {
		log.Fatal(err)
	}

	stats := cache.Stats()
	fmt.Printf("cache: %d hits, %d misses, %d evictions\n",
		stats.Hits, stats.Misses, stats.Evictions)
}
