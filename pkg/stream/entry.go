package stream

import (
	"container/list"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// TileEntry is the cached extraction state of one tile key.
//
// Entries are owned by the TileCache: created on first reference,
// mutated on fetch and selector change, destroyed on eviction or clear.
// Collaborators read through accessors and never mutate. Mutations hold
// both the cache lock and the entry lock; accessors take only the entry
// lock, so controllers may inspect entries while other tiles commit.
//
// The last raw chunk fetched for the key stays resident so selector
// changes that land in the same chunk re-slice without network I/O.
// Extracted band data is always either empty or consistent with the
// committed selector fingerprint, never a mix of two selections.
type TileEntry struct {
	key Key

	mu sync.RWMutex

	chunkBuf     []float64
	chunkIndices []int

	bands       []Band
	fingerprint string
	version     uint64

	loading bool
	bounds  orb.Bound
	handles interface{}

	elem         *list.Element
	lastAccessed time.Time
	accessCount  int
}

// Key returns the tile key this entry caches.
func (e *TileEntry) Key() Key { return e.key }

// Bands returns the extracted bands, or nil while no data is committed.
func (e *TileEntry) Bands() []Band {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bands
}

// BandNames returns the labels of the extracted bands.
func (e *TileEntry) BandNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.bands))
	for i, b := range e.bands {
		names[i] = b.Name
	}
	return names
}

// Bounds returns the entry's geographic bounds, used for non-mercator
// CRS resampling by the render collaborator.
func (e *TileEntry) Bounds() orb.Bound {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bounds
}

// Fingerprint returns the selector fingerprint the committed data
// belongs to, or "" when empty.
func (e *TileEntry) Fingerprint() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fingerprint
}

// Version returns the last committed fetch version.
func (e *TileEntry) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Loading reports whether a fetch is in flight for this key.
func (e *TileEntry) Loading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// Fresh reports whether the entry holds committed data for fingerprint.
func (e *TileEntry) Fresh(fingerprint string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.freshLocked(fingerprint)
}

func (e *TileEntry) freshLocked(fingerprint string) bool {
	return e.bands != nil && e.fingerprint == fingerprint
}

// Handles returns the GPU-resource handles attached to this entry, if
// any. The cache owns them and releases them on eviction.
func (e *TileEntry) Handles() interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handles
}

// clearData drops committed data, forcing a future re-fetch. The raw
// chunk buffer is dropped too: callers use this exactly when the chunk
// index set changed. Caller holds the cache lock.
func (e *TileEntry) clearData() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunkBuf = nil
	e.chunkIndices = nil
	e.bands = nil
	e.fingerprint = ""
}
