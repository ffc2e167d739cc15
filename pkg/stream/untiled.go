package stream

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// UntiledController drives the cache for untiled datasets: single arrays
// and multilevel datasets whose levels are whole arrays rather than tile
// grids. Each level is one cache entry keyed {Level, 0, 0}.
//
// On zoom change the controller picks the coarsest level that still
// meets the viewport's pixel density and fetches it; the previously
// displayed level stays on screen until the new one has data, so level
// changes swap atomically rather than blanking.
type UntiledController struct {
	ds       *Dataset
	cache    *TileCache
	throttle *throttle
	log      zerolog.Logger
	onRender func()
	onState  func(LoadingState)

	mu        sync.Mutex
	version   uint64
	resolved  *ResolvedSelector
	target    Key
	displayed Key
	hasShown  bool
	inflight  map[uint64]versionScope
	state     LoadingState
}

// NewUntiledController creates a controller for a single-array or
// untiled multilevel dataset.
func NewUntiledController(ds *Dataset, cache *TileCache, opts ControllerOptions) (*UntiledController, error) {
	if ds.Kind == TiledPyramid {
		return nil, fmt.Errorf("dataset %s is a tiled pyramid; use NewTiledController", ds.Source)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &UntiledController{
		ds:       ds,
		cache:    cache,
		throttle: newThrottle(opts.ThrottleInterval),
		log:      logger,
		onRender: opts.OnRender,
		onState:  opts.OnLoadingChange,
		inflight: make(map[uint64]versionScope),
	}, nil
}

// chooseLevel picks the coarsest level whose effective on-screen pixel
// density covers the viewport zoom. A dataset that spans a fraction of
// the world contributes proportionally fewer pixels to a world-sized
// screen, so each level's width is scaled up by the inverse of that
// coverage fraction before comparison.
func (c *UntiledController) chooseLevel(zoom float64) int {
	if len(c.ds.Levels) == 1 {
		return 0
	}
	desired := 256 * math.Pow(2, zoom)
	fraction := c.coverageFraction()

	best, bestWidth := -1, math.MaxFloat64
	finest, finestWidth := 0, 0.0
	for i, lvl := range c.ds.Levels {
		shape := lvl.Shape()
		w := float64(shape[len(shape)-1])
		if w > finestWidth {
			finest, finestWidth = i, w
		}
		effective := w / fraction
		if effective >= desired && w < bestWidth {
			best, bestWidth = i, w
		}
	}
	if best < 0 {
		return finest
	}
	return best
}

func (c *UntiledController) coverageFraction() float64 {
	w := c.ds.Bounds.Max[0] - c.ds.Bounds.Min[0]
	world := 360.0
	if c.ds.CRS == CRSProjected {
		world = 2 * webMercatorExtent
	}
	f := w / world
	if f <= 0 || f > 1 {
		return 1
	}
	return f
}

// Update selects the level for the viewport zoom and schedules a fetch
// if it is not already resident and fresh.
func (c *UntiledController) Update(ctx context.Context, vp Viewport) error {
	rsel, err := c.currentSelector(ctx)
	if err != nil {
		return err
	}

	level := c.chooseLevel(vp.Zoom)
	key := Key{Level: level}

	c.mu.Lock()
	c.target = key
	version := c.version
	c.mu.Unlock()

	if e, ok := c.cache.Get(key); ok && e.Fresh(rsel.Fingerprint()) {
		c.swapDisplayed(key)
		c.updateLoadingState(rsel.Fingerprint())
		return nil
	}

	c.updateLoadingState(rsel.Fingerprint())
	c.throttle.Do(func() { c.fetchLevel(key, rsel, version) })
	return nil
}

// SetSelector changes the dimension selection. Resident levels whose
// chunk index set is unchanged are re-sliced in place without I/O.
func (c *UntiledController) SetSelector(ctx context.Context, sel Selector) error {
	rsel, err := c.ds.ResolveSelector(ctx, sel)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.version++
	version := c.version
	c.resolved = rsel
	target := c.target
	c.mu.Unlock()

	keys := make([]Key, 0, len(c.ds.Levels))
	for i := range c.ds.Levels {
		keys = append(keys, Key{Level: i})
	}
	c.cache.ReextractSlices(keys, rsel, version)
	c.notifyRender()
	c.updateLoadingState(rsel.Fingerprint())
	c.throttle.Do(func() { c.fetchLevel(target, rsel, version) })
	return nil
}

func (c *UntiledController) currentSelector(ctx context.Context) (*ResolvedSelector, error) {
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

func (c *UntiledController) fetchLevel(key Key, rsel *ResolvedSelector, version uint64) {
	vctx := c.versionContext(version)

	go func() {
		entry, err := c.cache.FetchTile(vctx, key, FetchRequest{
			Level:    key.Level,
			Selector: rsel,
			Version:  version,
		})
		if err != nil {
			c.log.Warn().Err(err).Stringer("key", key).Msg("level fetch failed")
			return
		}
		if entry == nil {
			return
		}
		c.swapDisplayed(key)
		c.cancelOlder(version)
		c.updateLoadingState(rsel.Fingerprint())
		c.notifyRender()
	}()
}

// swapDisplayed promotes key to the displayed level if it is still the
// target; stale completions for abandoned levels are ignored.
func (c *UntiledController) swapDisplayed(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != c.target {
		return
	}
	c.displayed = key
	c.hasShown = true
}

// Displayed returns the level entry currently on screen. The second
// return is false before the first level commits.
func (c *UntiledController) Displayed() (*TileEntry, bool) {
	c.mu.Lock()
	key, shown := c.displayed, c.hasShown
	c.mu.Unlock()
	if !shown {
		return nil, false
	}
	return c.cache.Get(key)
}

// Target returns the key of the level selected for the last viewport.
func (c *UntiledController) Target() Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Describe returns the dataset description the controller serves.
func (c *UntiledController) Describe() *Dataset { return c.ds }

// LoadingState returns the current loading state.
func (c *UntiledController) LoadingState() LoadingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *UntiledController) versionContext(version uint64) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scope, ok := c.inflight[version]; ok {
		return scope.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.inflight[version] = versionScope{ctx: ctx, cancel: cancel}
	return ctx
}

func (c *UntiledController) cancelOlder(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for v, scope := range c.inflight {
		if v < version {
			scope.cancel()
			delete(c.inflight, v)
		}
	}
}

func (c *UntiledController) updateLoadingState(fingerprint string) {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()

	chunks := true
	if e, ok := c.cache.Get(target); ok && e.Fresh(fingerprint) {
		chunks = false
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

func (c *UntiledController) notifyRender() {
	if c.onRender != nil {
		c.onRender()
	}
}
