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

	// Re-render whenever a tile commits new data
	rendered := make(chan struct{}, 1)
	opts := stream.DefaultControllerOptions()
	opts.OnRender = func() {
		select {
		case rendered <- struct{}{}:
		default:
		}
	}
	opts.OnLoadingChange = func(state stream.LoadingState) {
		fmt.Printf("loading: chunks=%v\n", state.Chunks)
	}

	ctrl, err := stream.NewTiledController(ds, cache, opts)
	if err != nil {
		log.Fatal(err)
	}

	// Viewport over the north Atlantic at zoom 3
	vp := stream.Viewport{
		Zoom:   3.0,
		Bounds: orb.Bound{Min: orb.Point{-60, 30}, Max: orb.Point{0, 60}},
	}
	if err := ctrl.Update(ctx, vp); err != nil {
		log.Fatal(err)
	}

	// Draw tiles as they arrive, substituting coarser data while loading
	for {
		select {
		case <-rendered:
			for _, key := range ctrl.VisibleKeys() {
				entry, ok := ctrl.Entry(key)
				if ok && entry.Bands() != nil {
					fmt.Printf("  tile %s ready (%d bands)\n", key, len(entry.Bands()))
					continue
				}
				if sub, ok := ctrl.Substitute(key); ok {
					fmt.Printf("  tile %s pending, showing %s\n", key, sub)
				}
			}
			if !ctrl.LoadingState().Loading {
				fmt.Println("all tiles loaded")
				return
			}
		case <-time.After(30 * time.Second):
			log.Fatal("timed out waiting for tiles")
		}
	}
}
