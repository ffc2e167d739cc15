package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beetlebugorg/zarrview/pkg/stream"
)

func openDataset(ctx context.Context, url, variable string) (*stream.Dataset, error) {
	src, err := stream.SourceFromURL(url, nil)
	if err != nil {
		return nil, fmt.Errorf("bad source URL: %w", err)
	}

	ds, err := stream.Resolve(ctx, src, variable, stream.ResolveOptions{})
	if err != nil {
		// Fatal: no bounds or dimensions could be derived. The layer
		// cannot be set up; reject it rather than guessing.
		if stream.IsMetadataUnavailable(err) {
			return nil, fmt.Errorf("dataset undescribable, supply bounds overrides: %w", err)
		}
		return nil, err
	}

	if len(ds.Levels) == 0 {
		log.Printf("Warning: %s has no levels", url)
	}
	return ds, nil
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ds, err := openDataset(ctx, "https://example.com/data/tavg.zarr", "tavg")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Loaded %s (%s)\n", ds.Variable, ds.Kind)

	// Selector errors surface instead of silently defaulting
	_, err = ds.ResolveSelector(ctx, stream.Selector{"month": stream.Value(13)})
	if err != nil {
		fmt.Printf("selector rejected: %v\n", err)
	}

	cache := stream.NewTileCache(ds, stream.CacheOptions{})
	rsel, err := ds.ResolveSelector(ctx, stream.Selector{})
	if err != nil {
		log.Fatal(err)
	}

	// Per-tile fetch failures are recoverable: the tile retries on the
	// next update cycle, other tiles are unaffected.
	key := stream.Key{Level: 0, X: 0, Y: 0}
	_, err = cache.FetchTile(ctx, key, stream.FetchRequest{Selector: rsel, Version: 1})
	switch {
	case err == nil:
		fmt.Printf("tile %s loaded\n", key)
	case stream.IsCancelled(err):
		fmt.Println("fetch cancelled, not an error")
	case stream.IsFetchFailed(err):
		fmt.Printf("tile fetch failed, will retry: %v\n", err)
	default:
		log.Fatal(err)
	}
}
