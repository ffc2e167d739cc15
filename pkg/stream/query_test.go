package stream

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func queryFixture(t *testing.T) (*Dataset, *TileCache, *QueryIndex) {
	t.Helper()
	ds, _ := tiledFixture(t)
	cache := NewTileCache(ds, DefaultCacheOptions())
	rsel := mustResolve(t, ds, Selector{})

	keys := []Key{
		{Level: 0, X: 0, Y: 0},
		{Level: 1, X: 0, Y: 0},
		{Level: 1, X: 1, Y: 0},
	}
	for _, key := range keys {
		if _, err := cache.FetchTile(context.Background(), key, FetchRequest{Level: key.Level, Selector: rsel, Version: 1}); err != nil {
			t.Fatalf("FetchTile %s: %v", key, err)
		}
	}

	idx := NewQueryIndex(ds, cache)
	if n := idx.Rebuild(); n != len(keys) {
		t.Fatalf("Rebuild indexed %d tiles, expected %d", n, len(keys))
	}
	return ds, cache, idx
}

func TestQueryIndexAtPrefersFinestLevel(t *testing.T) {
	_, _, idx := queryFixture(t)
	m := webMercatorExtent

	// A point in the northwest quadrant is covered by the level-0 tile
	// and the level-1 tile (1,0,0); the finer one answers.
	pt := orb.Point{-0.75 * m, 0.25 * m}
	s, ok := idx.At(pt)
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.Key != (Key{Level: 1, X: 0, Y: 0}) {
		t.Errorf("sample key = %v, expected the level-1 tile", s.Key)
	}

	// Tile (1,0,0) spans the western-north quadrant with 2x2 pixels;
	// the point lands in row 1, column 0: global cell (1, 0).
	got, ok := s.Values["tavg"]
	if !ok {
		t.Fatalf("sample values = %v, expected band tavg", s.Values)
	}
	if want := tiledValue(0, 1, 0); math.Abs(got-want) > 1e-3 {
		t.Errorf("sampled value = %v, expected %v", got, want)
	}
}

func TestQueryIndexAtFallsBackToCoarse(t *testing.T) {
	_, _, idx := queryFixture(t)
	m := webMercatorExtent

	// The southern hemisphere has no level-1 tiles committed; the
	// level-0 tile answers.
	s, ok := idx.At(orb.Point{0.5 * m, -0.5 * m})
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.Key != (Key{Level: 0, X: 0, Y: 0}) {
		t.Errorf("sample key = %v, expected the level-0 tile", s.Key)
	}
}

func TestQueryIndexAtMiss(t *testing.T) {
	ds, cache, _ := queryFixture(t)

	empty := NewQueryIndex(ds, cache)
	if _, ok := empty.At(orb.Point{0, 0}); ok {
		t.Error("unbuilt index should return no sample")
	}
}

func TestQueryIndexWithin(t *testing.T) {
	_, _, idx := queryFixture(t)
	m := webMercatorExtent

	// The northwest quadrant intersects the world tile and both
	// committed northern level-1 tiles at its eastern edge.
	keys := idx.Within(orb.Bound{
		Min: orb.Point{-0.9 * m, 0.1 * m},
		Max: orb.Point{-0.1 * m, 0.9 * m},
	})
	if len(keys) != 2 {
		t.Fatalf("Within returned %v, expected 2 keys", keys)
	}
	found := map[Key]bool{}
	for _, k := range keys {
		found[k] = true
	}
	if !found[(Key{Level: 0, X: 0, Y: 0})] || !found[(Key{Level: 1, X: 0, Y: 0})] {
		t.Errorf("Within returned %v", keys)
	}
}

func TestQueryIndexNaNCells(t *testing.T) {
	ds, _ := tiledFixture(t)
	cache := NewTileCache(ds, DefaultCacheOptions())
	rsel := mustResolve(t, ds, Selector{})
	m := webMercatorExtent

	// Tile (1,1,1) is mostly edge overhang; its masked cells sample NaN.
	key := Key{Level: 1, X: 1, Y: 1}
	if _, err := cache.FetchTile(context.Background(), key, FetchRequest{Level: 1, Selector: rsel, Version: 1}); err != nil {
		t.Fatalf("FetchTile: %v", err)
	}
	idx := NewQueryIndex(ds, cache)
	idx.Rebuild()

	s, ok := idx.At(orb.Point{0.75 * m, -0.75 * m})
	if !ok {
		t.Fatal("expected a sample")
	}
	if v := s.Values["tavg"]; !math.IsNaN(v) {
		t.Errorf("masked cell sampled %v, expected NaN", v)
	}
}

func TestQueryIndexRebuildDropsEvicted(t *testing.T) {
	_, cache, idx := queryFixture(t)

	cache.Clear()
	if n := idx.Rebuild(); n != 0 {
		t.Errorf("Rebuild after Clear indexed %d tiles", n)
	}
	if _, ok := idx.At(orb.Point{0, 0}); ok {
		t.Error("cleared cache should yield no samples")
	}
}
