package stream

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"
)

// ControllerOptions configures a mode controller.
type ControllerOptions struct {
	// ThrottleInterval is the minimum spacing between fetch cycles.
	// Default: DefaultThrottleInterval.
	ThrottleInterval time.Duration

	// OnRender is invoked after any tile commits new data. Optional.
	OnRender func()

	// OnLoadingChange is invoked on every loading-state transition.
	// Optional.
	OnLoadingChange func(LoadingState)

	// Logger receives controller diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// DefaultControllerOptions returns controller options with defaults.
func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{ThrottleInterval: DefaultThrottleInterval}
}

// TiledController drives the cache for slippy-map pyramid datasets.
//
// Each Update computes the visible tile keys at the zoom-appropriate
// pyramid level and schedules throttled, cancelable fetches for the keys
// that are not already fresh or pending. While a tile loads, the nearest
// available ancestor or descendant with data substitutes for it so
// something is always displayed.
//
// Example:
//
//	ctrl, err := stream.NewTiledController(ds, cache, stream.DefaultControllerOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctrl.Update(ctx, stream.Viewport{Zoom: 3.2, Bounds: visible})
type TiledController struct {
	ds       *Dataset
	cache    *TileCache
	throttle *throttle
	log      zerolog.Logger
	onRender func()
	onState  func(LoadingState)

	mu          sync.Mutex
	version     uint64
	resolved    *ResolvedSelector
	level       int
	visible     []Key
	substitutes map[Key]Key
	inflight    map[uint64]versionScope
	state       LoadingState
}

// NewTiledController creates a controller for a tiled-pyramid dataset.
func NewTiledController(ds *Dataset, cache *TileCache, opts ControllerOptions) (*TiledController, error) {
	if ds.Kind != TiledPyramid {
		return nil, fmt.Errorf("dataset %s is %s, not a tiled pyramid", ds.Source, ds.Kind)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &TiledController{
		ds:          ds,
		cache:       cache,
		throttle:    newThrottle(opts.ThrottleInterval),
		log:         logger,
		onRender:    opts.OnRender,
		onState:     opts.OnLoadingChange,
		substitutes: make(map[Key]Key),
		inflight:    make(map[uint64]versionScope),
	}, nil
}

// versionScope ties one request generation to a cancelable context.
type versionScope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// zoomToLevel maps a viewport zoom to a pyramid level index.
//
// The zoom encoded in a level's path may differ from its index
// (pyramids need not be zero-based), so the mapping goes through each
// level's own declared zoom: the fractional viewport zoom rounds half
// up, then the level with the nearest declared zoom wins, ties to the
// finer level. The mapping is monotonic in the viewport zoom.
func (c *TiledController) zoomToLevel(zoom float64) int {
	target := int(math.Floor(zoom + 0.5))
	best, bestDist := 0, math.MaxInt
	for i, lvl := range c.ds.Levels {
		d := lvl.Zoom - target
		if d < 0 {
			d = -d
		}
		if d < bestDist || (d == bestDist && c.ds.Levels[i].Zoom > c.ds.Levels[best].Zoom) {
			best, bestDist = i, d
		}
	}
	return best
}

// visibleKeys enumerates the tile keys covering the viewport at level.
func (c *TiledController) visibleKeys(vp Viewport, level int) []Key {
	lvl := c.ds.Levels[level]
	nx, ny := c.ds.LevelGrid(level)

	var minTx, maxTx, minTy, maxTy int
	if c.ds.CRS == CRSProjected {
		// Web-mercator pyramid: the level grid is the slippy-map grid at
		// the level's declared zoom.
		z := maptile.Zoom(lvl.Zoom)
		nw := maptile.At(orb.Point{vp.Bounds.Min[0], vp.Bounds.Max[1]}, z)
		se := maptile.At(orb.Point{vp.Bounds.Max[0], vp.Bounds.Min[1]}, z)
		minTx, minTy = int(nw.X), int(nw.Y)
		maxTx, maxTy = int(se.X), int(se.Y)
	} else {
		b := c.ds.Bounds
		w := b.Max[0] - b.Min[0]
		h := b.Max[1] - b.Min[1]
		if w <= 0 || h <= 0 {
			return nil
		}
		minTx = int(math.Floor((vp.Bounds.Min[0] - b.Min[0]) / w * float64(nx)))
		maxTx = int(math.Ceil((vp.Bounds.Max[0]-b.Min[0])/w*float64(nx))) - 1
		// Row 0 is the northern edge.
		minTy = int(math.Floor((b.Max[1] - vp.Bounds.Max[1]) / h * float64(ny)))
		maxTy = int(math.Ceil((b.Max[1]-vp.Bounds.Min[1])/h*float64(ny))) - 1
	}

	if maxTx < 0 || maxTy < 0 || minTx >= nx || minTy >= ny {
		return nil
	}
	minTx = clampInt(minTx, 0, nx-1)
	maxTx = clampInt(maxTx, 0, nx-1)
	minTy = clampInt(minTy, 0, ny-1)
	maxTy = clampInt(maxTy, 0, ny-1)

	keys := make([]Key, 0, (maxTx-minTx+1)*(maxTy-minTy+1))
	for ty := minTy; ty <= maxTy; ty++ {
		for tx := minTx; tx <= maxTx; tx++ {
			keys = append(keys, Key{Level: level, X: tx, Y: ty})
		}
	}
	return keys
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Update recomputes the visible key set for the viewport and schedules a
// throttled fetch wave for every key that is not fresh and not pending.
func (c *TiledController) Update(ctx context.Context, vp Viewport) error {
	rsel, err := c.currentSelector(ctx)
	if err != nil {
		return err
	}

	level := c.zoomToLevel(vp.Zoom)
	keys := c.visibleKeys(vp, level)

	c.mu.Lock()
	c.level = level
	c.visible = keys
	version := c.version
	c.mu.Unlock()

	c.refreshSubstitutes(keys, rsel.Fingerprint())
	c.updateLoadingState(keys, rsel.Fingerprint())
	c.throttle.Do(func() { c.fetchWave(keys, level, rsel, version) })
	return nil
}

// SetSelector changes the dimension selection.
//
// The version counter advances, resident chunks are re-sliced without
// network I/O where the chunk index set is unchanged, and a fetch wave
// covers the rest. In-flight fetches from older versions are canceled
// once any same-or-newer completion lands for the key set.
func (c *TiledController) SetSelector(ctx context.Context, sel Selector) error {
	rsel, err := c.ds.ResolveSelector(ctx, sel)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.version++
	version := c.version
	c.resolved = rsel
	keys := append([]Key(nil), c.visible...)
	level := c.level
	c.mu.Unlock()

	c.cache.ReextractSlices(keys, rsel, version)
	c.notifyRender()
	c.updateLoadingState(keys, rsel.Fingerprint())
	c.throttle.Do(func() { c.fetchWave(keys, level, rsel, version) })
	return nil
}

// currentSelector returns the resolved selector, resolving the empty
// default on first use.
func (c *TiledController) currentSelector(ctx context.Context) (*ResolvedSelector, error) {
	c.mu.Lock()
	rsel := c.resolved
	c.mu.Unlock()
	if rsel != nil {
		return rsel, nil
	}

	rsel, err := c.ds.ResolveSelector(ctx, Selector{})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = rsel
	}
	return c.resolved, nil
}

// fetchWave launches one cancelable fetch per visible key that is not
// already fresh. The cache's loading flag dedups keys already in flight.
func (c *TiledController) fetchWave(keys []Key, level int, rsel *ResolvedSelector, version uint64) {
	vctx := c.versionContext(version)
	fp := rsel.Fingerprint()

	for _, key := range keys {
		if e, ok := c.cache.Get(key); ok && e.Fresh(fp) {
			continue
		}
		go func(k Key) {
			entry, err := c.cache.FetchTile(vctx, k, FetchRequest{
				Level:    level,
				Selector: rsel,
				Version:  version,
			})
			if err != nil {
				c.log.Warn().Err(err).Stringer("key", k).Msg("tile fetch failed")
				return
			}
			if entry == nil {
				// In flight elsewhere, canceled, or superseded.
				return
			}
			c.mu.Lock()
			delete(c.substitutes, k)
			visible := append([]Key(nil), c.visible...)
			c.mu.Unlock()

			c.cancelOlder(version)
			c.updateLoadingState(visible, fp)
			c.notifyRender()
		}(key)
	}
}

// versionContext returns the cancellation context tied to a request
// version, creating it on first use.
func (c *TiledController) versionContext(version uint64) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scope, ok := c.inflight[version]; ok {
		return scope.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.inflight[version] = versionScope{ctx: ctx, cancel: cancel}
	return ctx
}

// cancelOlder cancels every in-flight fetch context older than version.
func (c *TiledController) cancelOlder(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for v, scope := range c.inflight {
		if v < version {
			scope.cancel()
			delete(c.inflight, v)
		}
	}
}

// refreshSubstitutes recomputes fallback tiles for keys without fresh data.
func (c *TiledController) refreshSubstitutes(keys []Key, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if e, ok := c.cache.Get(key); ok && e.Fresh(fingerprint) {
			delete(c.substitutes, key)
			continue
		}
		if sub, ok := c.findSubstitute(key); ok {
			c.substitutes[key] = sub
		}
	}
}

// findSubstitute looks for the nearest ancestor with data (coarser,
// cropped at render time), then for any covering child (finer).
func (c *TiledController) findSubstitute(key Key) (Key, bool) {
	anc := key
	for anc.Level > 0 {
		anc = anc.Parent()
		if e, ok := c.cache.Get(anc); ok && e.Bands() != nil {
			return anc, true
		}
	}
	if key.Level+1 < len(c.ds.Levels) {
		for _, child := range key.Children() {
			if e, ok := c.cache.Get(child); ok && e.Bands() != nil {
				return child, true
			}
		}
	}
	return Key{}, false
}

// Substitute returns the fallback key currently standing in for a
// loading tile, if any.
func (c *TiledController) Substitute(key Key) (Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.substitutes[key]
	return sub, ok
}

// VisibleKeys returns the keys computed by the last Update.
func (c *TiledController) VisibleKeys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Key(nil), c.visible...)
}

// Entry returns the cache entry for a visible key.
func (c *TiledController) Entry(key Key) (*TileEntry, bool) {
	return c.cache.Get(key)
}

// Describe returns the dataset description the controller serves.
func (c *TiledController) Describe() *Dataset { return c.ds }

// LoadingState returns the current loading state.
func (c *TiledController) LoadingState() LoadingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *TiledController) updateLoadingState(keys []Key, fingerprint string) {
	chunks := false
	for _, key := range keys {
		e, ok := c.cache.Get(key)
		if !ok || !e.Fresh(fingerprint) {
			chunks = true
			break
		}
	}
	next := loadingState(false, chunks)

	c.mu.Lock()
	changed := next != c.state
	c.state = next
	cb := c.onState
	c.mu.Unlock()

	if changed && cb != nil {
		cb(next)
	}
}

func (c *TiledController) notifyRender() {
	if c.onRender != nil {
		c.onRender()
	}
}
