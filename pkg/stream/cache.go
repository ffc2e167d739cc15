package stream

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// DefaultCacheCapacity bounds the cache to a small multiple of a typical
// viewport's tile count.
const DefaultCacheCapacity = 64

// CacheOptions configures tile cache behavior.
type CacheOptions struct {
	// Capacity is the maximum number of resident entries.
	// Default: DefaultCacheCapacity.
	Capacity int

	// ReleaseHandles is invoked with an entry's GPU-resource handles when
	// the entry is evicted or cleared. Optional.
	ReleaseHandles func(key Key, handles interface{})

	// Logger receives cache diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// DefaultCacheOptions returns cache options with defaults.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{Capacity: DefaultCacheCapacity}
}

// FetchRequest carries the parameters of one tile fetch cycle.
type FetchRequest struct {
	// Level is the pyramid level index the key addresses.
	Level int

	// Selector is the resolved selector to extract under.
	Selector *ResolvedSelector

	// Version is the monotonic selector/viewport version of this fetch.
	// A completion is committed only if its version is not older than the
	// entry's last committed version.
	Version uint64

	// Bounds optionally overrides the entry's geographic bounds; the
	// zero value derives them from the dataset extent.
	Bounds orb.Bound
}

// TileCache is the keyed store of per-tile extraction state.
//
// It implements LRU eviction with a bounded capacity, chunk reuse across
// selector changes, and versioned staleness so a slow stale response
// never overwrites newer data. The cache is the sole owner of tile
// entries and of any GPU-resource handles they reference.
//
// Example:
//
//	cache := stream.NewTileCache(ds, stream.DefaultCacheOptions())
//	entry, err := cache.FetchTile(ctx, key, stream.FetchRequest{
//	    Level:    level,
//	    Selector: resolved,
//	    Version:  version,
//	})
type TileCache struct {
	mu sync.Mutex

	ds       *Dataset
	capacity int
	entries  map[Key]*TileEntry
	lru      *list.List // most recent at front
	release  func(Key, interface{})
	log      zerolog.Logger

	hits       int
	misses     int
	evictions  int
	staleDrops int
}

// NewTileCache creates a tile cache over a resolved dataset.
func NewTileCache(ds *Dataset, opts CacheOptions) *TileCache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &TileCache{
		ds:       ds,
		capacity: capacity,
		entries:  make(map[Key]*TileEntry),
		lru:      list.New(),
		release:  opts.ReleaseHandles,
		log:      logger,
	}
}

// Dataset returns the dataset description this cache serves.
func (c *TileCache) Dataset() *Dataset { return c.ds }

// Upsert returns the entry for key, refreshing its recency, or creates a
// new empty one. Creating may evict least-recently-used entries down to
// the configured capacity.
func (c *TileCache) Upsert(key Key) *TileEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(key)
}

func (c *TileCache) upsertLocked(key Key) *TileEntry {
	if e, ok := c.entries[key]; ok {
		c.touchLocked(e)
		return e
	}
	e := &TileEntry{key: key, lastAccessed: time.Now()}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.evictLocked()
	return e
}

func (c *TileCache) touchLocked(e *TileEntry) {
	e.lastAccessed = time.Now()
	e.accessCount++
	c.lru.MoveToFront(e.elem)
}

// evictLocked removes oldest-by-access entries down to capacity,
// releasing any GPU-resource handles they owned.
func (c *TileCache) evictLocked() {
	for len(c.entries) > c.capacity {
		elem := c.lru.Back()
		if elem == nil {
			return
		}
		e := elem.Value.(*TileEntry)
		c.lru.Remove(elem)
		delete(c.entries, e.key)
		c.evictions++
		if c.release != nil && e.handles != nil {
			c.release(e.key, e.handles)
		}
		c.log.Debug().Stringer("key", e.key).Msg("evicted tile")
	}
}

// Get returns the entry for key without refreshing its recency.
func (c *TileCache) Get(key Key) (*TileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Len returns the number of resident entries.
func (c *TileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SetHandles attaches GPU-resource handles to an entry. The cache takes
// ownership and releases them on eviction or clear.
func (c *TileCache) SetHandles(key Key, handles interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.mu.Lock()
		old := e.handles
		e.handles = handles
		e.mu.Unlock()
		if c.release != nil && old != nil && old != handles {
			c.release(e.key, old)
		}
	}
}

// FetchTile ensures the entry for key holds data for the request's
// selector, fetching and extracting as needed.
//
// Returns the entry immediately when already fresh. Returns (nil, nil)
// when a fetch is already in flight for the key, or when the request was
// canceled or superseded; both are expected during panning and selector
// scrubbing. A selector-only change that lands in the already-resident
// chunk re-slices with zero network reads.
//
// A fetch error other than cancellation clears the loading flag so a
// future call can retry, and is reported as an ErrFetchFailed.
func (c *TileCache) FetchTile(ctx context.Context, key Key, req FetchRequest) (*TileEntry, error) {
	fp := req.Selector.Fingerprint()

	c.mu.Lock()
	e := c.upsertLocked(key)
	e.mu.Lock()
	if e.freshLocked(fp) {
		e.mu.Unlock()
		c.hits++
		c.mu.Unlock()
		return e, nil
	}
	if e.loading {
		e.mu.Unlock()
		c.mu.Unlock()
		return nil, nil
	}
	e.loading = true
	e.mu.Unlock()
	c.misses++

	plan := c.ds.planChunks(req.Level, key, req.Selector)
	buf := e.chunkBuf
	reuse := buf != nil && chunkIndicesEqual(e.chunkIndices, plan.chunkIndices)
	c.mu.Unlock()

	if !reuse {
		var err error
		buf, err = c.ds.Levels[req.Level].arr.ReadChunk(ctx, plan.chunkIndices)
		if err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			e.mu.Lock()
			e.loading = false
			e.mu.Unlock()
			if IsCancelled(err) {
				return nil, nil
			}
			return nil, &ErrFetchFailed{Key: key, Err: err}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = false

	// The entry may have been evicted or cleared during the network read.
	if cur, ok := c.entries[key]; !ok || cur != e {
		return nil, nil
	}
	// Out-of-order completion: never regress to older data.
	if req.Version < e.version {
		c.staleDrops++
		c.log.Debug().Stringer("key", key).Uint64("version", req.Version).
			Uint64("committed", e.version).Msg("dropped stale completion")
		return nil, nil
	}

	e.chunkBuf = buf
	e.chunkIndices = plan.chunkIndices
	e.bands = c.ds.extractBands(buf, req.Level, plan)
	e.fingerprint = fp
	e.version = req.Version
	if req.Bounds.Min != req.Bounds.Max {
		e.bounds = req.Bounds
	} else {
		e.bounds = c.ds.TileBounds(key)
	}
	c.touchLocked(e)
	return e, nil
}

// ReextractSlices re-slices entries from their resident chunk buffers
// after a selector change that keeps each key's chunk index set
// unchanged. No network I/O is performed; an entry whose chunk index set
// did change is cleared instead, forcing a future re-fetch.
//
// Re-extraction is idempotent: calling it twice with the same selector
// and version yields bit-identical band data.
func (c *TileCache) ReextractSlices(keys []Key, sel *ResolvedSelector, version uint64) {
	fp := sel.Fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok || e.chunkBuf == nil {
			continue
		}
		if version < e.version {
			c.staleDrops++
			continue
		}
		plan := c.ds.planChunks(key.Level, key, sel)
		if !chunkIndicesEqual(e.chunkIndices, plan.chunkIndices) {
			e.clearData()
			continue
		}
		bands := c.ds.extractBands(e.chunkBuf, key.Level, plan)
		e.mu.Lock()
		e.bands = bands
		e.fingerprint = fp
		e.version = version
		e.mu.Unlock()
	}
}

// Clear releases every entry and its GPU-resource handles. Used on a
// full dataset or variable switch; losing the cache is always safe and
// only triggers re-fetches.
func (c *TileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.release != nil {
		for _, e := range c.entries {
			if e.handles != nil {
				c.release(e.key, e.handles)
			}
		}
	}
	c.entries = make(map[Key]*TileEntry)
	c.lru.Init()
}

// Keys returns the keys of all resident entries in no particular order.
func (c *TileCache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns cache performance counters.
func (c *TileCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:    len(c.entries),
		Capacity:   c.capacity,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		StaleDrops: c.staleDrops,
	}
}

// CacheStats holds cache performance counters.
type CacheStats struct {
	Entries    int // Resident entries
	Capacity   int // Configured capacity
	Hits       int // Fresh-entry returns
	Misses     int // Fetches or re-extractions started
	Evictions  int // Entries removed by LRU pressure
	StaleDrops int // Out-of-order completions discarded
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
