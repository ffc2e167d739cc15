// Package stream provides viewport-driven access to chunked-array
// (Zarr) datasets for interactive map rendering.
//
// The package resolves a dataset's metadata once, then serves the
// render loop from an in-memory tile cache: a viewport update computes
// the visible tile keys at the zoom-appropriate level, fetches only the
// chunks backing those keys, and extracts normalized float32 bands
// ready for texture upload.
//
// # Resolving a dataset
//
// Resolve probes a store for Zarr v3 metadata first, then falls back to
// v2 (consolidated, then unconsolidated), and classifies the dataset as
// a tiled pyramid, an untiled multilevel dataset, or a single array:
//
//	src, err := stream.SourceFromURL("https://example.com/data.zarr", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ds, err := stream.Resolve(ctx, src, "temperature", stream.DefaultResolveOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Spatial reference and bounds come from metadata when declared and
// from inference ladders when not; ResolveOptions can override both.
//
// # Serving a viewport
//
// A TileCache holds extracted tiles under an LRU bound, and a mode
// controller matched to the dataset kind drives it:
//
//	cache := stream.NewTileCache(ds, stream.DefaultCacheOptions())
//	ctrl, err := stream.NewTiledController(ds, cache, stream.DefaultControllerOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctrl.Update(ctx, stream.Viewport{Zoom: 3.2, Bounds: visible})
//
// Fetches are throttled, deduplicated, and canceled when a newer
// request generation supersedes them. Changing the dimension selection
// with SetSelector re-slices resident chunk buffers in place when the
// chunk index set is unchanged, so flipping through timesteps inside
// one chunk costs no network I/O.
//
// # Point and region queries
//
// QueryIndex maintains an R-tree over cached tiles for picking values
// under a cursor or enumerating tiles in a region:
//
//	idx := stream.NewQueryIndex(ds, cache)
//	idx.Rebuild()
//	if s, ok := idx.At(orb.Point{-122.4, 37.8}); ok {
//	    fmt.Println(s.Values)
//	}
//
// All exported types are safe for concurrent use unless noted.
package stream
