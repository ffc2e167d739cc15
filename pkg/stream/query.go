package stream

import (
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// minTileExtent keeps degenerate rects out of the R-tree, which
// requires non-zero dimensions.
const minTileExtent = 1e-9

// indexedTile wraps a cached tile's footprint for the R-tree.
type indexedTile struct {
	key    Key
	bounds orb.Bound
}

// Bounds implements rtreego.Spatial.
func (t *indexedTile) Bounds() rtreego.Rect {
	point := rtreego.Point{t.bounds.Min[0], t.bounds.Min[1]}

	lonLength := t.bounds.Max[0] - t.bounds.Min[0]
	latLength := t.bounds.Max[1] - t.bounds.Min[1]
	if lonLength < minTileExtent {
		lonLength = minTileExtent
	}
	if latLength < minTileExtent {
		latLength = minTileExtent
	}

	rect, _ := rtreego.NewRect(point, []float64{lonLength, latLength})
	return rect
}

// Sample is the result of a point query: the tile that answered it and
// the de-normalized value of each band at that point.
type Sample struct {
	Key    Key
	Point  orb.Point
	Values map[string]float64
}

// QueryIndex answers spatial point and region queries against tiles
// resident in a cache. Query results reflect the cache contents as of
// the last Rebuild; rebuild after fetch waves settle, not per commit.
type QueryIndex struct {
	ds    *Dataset
	cache *TileCache

	mu   sync.RWMutex
	tree *rtreego.Rtree
}

// NewQueryIndex creates an index over a cache's tiles. The index is
// empty until the first Rebuild.
func NewQueryIndex(ds *Dataset, cache *TileCache) *QueryIndex {
	return &QueryIndex{
		ds:    ds,
		cache: cache,
		tree:  rtreego.NewTree(2, 25, 50),
	}
}

// Rebuild re-indexes every cached tile that has committed band data.
func (q *QueryIndex) Rebuild() int {
	tree := rtreego.NewTree(2, 25, 50)
	n := 0
	for _, key := range q.cache.Keys() {
		e, ok := q.cache.Get(key)
		if !ok || e.Bands() == nil {
			continue
		}
		tree.Insert(&indexedTile{key: key, bounds: e.Bounds()})
		n++
	}
	q.mu.Lock()
	q.tree = tree
	q.mu.Unlock()
	return n
}

// Within returns the keys of indexed tiles intersecting the bound.
func (q *QueryIndex) Within(b orb.Bound) []Key {
	point := rtreego.Point{b.Min[0], b.Min[1]}
	lengths := []float64{
		math.Max(b.Max[0]-b.Min[0], minTileExtent),
		math.Max(b.Max[1]-b.Min[1], minTileExtent),
	}
	queryRect, _ := rtreego.NewRect(point, lengths)

	q.mu.RLock()
	results := q.tree.SearchIntersect(queryRect)
	q.mu.RUnlock()

	keys := make([]Key, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.(*indexedTile).key)
	}
	return keys
}

// At samples every band at a point. When tiles from several pyramid
// levels cover the point, the finest level wins. The second return is
// false when no indexed tile covers the point.
func (q *QueryIndex) At(pt orb.Point) (Sample, bool) {
	point := rtreego.Point{pt[0], pt[1]}
	queryRect, _ := rtreego.NewRect(point, []float64{minTileExtent, minTileExtent})

	q.mu.RLock()
	results := q.tree.SearchIntersect(queryRect)
	q.mu.RUnlock()

	var best *indexedTile
	for _, r := range results {
		t := r.(*indexedTile)
		if !t.bounds.Contains(pt) {
			continue
		}
		if best == nil || t.key.Level > best.key.Level {
			best = t
		}
	}
	if best == nil {
		return Sample{}, false
	}

	e, ok := q.cache.Get(best.key)
	if !ok || e.Bands() == nil {
		return Sample{}, false
	}
	return q.sample(e, pt)
}

// sample reads each band's pixel under pt and undoes normalization.
func (q *QueryIndex) sample(e *TileEntry, pt orb.Point) (Sample, bool) {
	w, h := q.ds.tilePixels(e.Key().Level)
	if w == 0 || h == 0 {
		return Sample{}, false
	}
	b := e.Bounds()
	dx := b.Max[0] - b.Min[0]
	dy := b.Max[1] - b.Min[1]
	if dx <= 0 || dy <= 0 {
		return Sample{}, false
	}

	col := int((pt[0] - b.Min[0]) / dx * float64(w))
	// Row 0 holds the northern edge.
	row := int((b.Max[1] - pt[1]) / dy * float64(h))
	col = clampInt(col, 0, w-1)
	row = clampInt(row, 0, h-1)

	values := make(map[string]float64, len(e.Bands()))
	for _, band := range e.Bands() {
		idx := row*w + col
		if idx >= len(band.Data) {
			continue
		}
		v := float64(band.Data[idx])
		if math.IsNaN(v) {
			values[band.Name] = math.NaN()
			continue
		}
		values[band.Name] = v * band.Scale
	}
	return Sample{Key: e.Key(), Point: pt, Values: values}, true
}
