package stream

import (
	"context"
	"errors"
	"testing"
)

func TestResolveSelectorDefaults(t *testing.T) {
	ds, _ := tiledFixture(t)

	rsel, err := ds.ResolveSelector(context.Background(), Selector{})
	if err != nil {
		t.Fatalf("ResolveSelector: %v", err)
	}
	if rsel.BandCount() != 1 {
		t.Errorf("expected 1 band for empty selector, got %d", rsel.BandCount())
	}
	if rsel.Fingerprint() != "month:0" {
		t.Errorf("expected fingerprint %q, got %q", "month:0", rsel.Fingerprint())
	}
}

func TestResolveSelectorIndices(t *testing.T) {
	ds, _ := tiledFixture(t)

	rsel, err := ds.ResolveSelector(context.Background(), Selector{"month": Indices(1, 3)})
	if err != nil {
		t.Fatalf("ResolveSelector: %v", err)
	}
	if rsel.BandCount() != 2 {
		t.Errorf("expected 2 bands, got %d", rsel.BandCount())
	}
	if rsel.Fingerprint() != "month:1,3" {
		t.Errorf("expected fingerprint %q, got %q", "month:1,3", rsel.Fingerprint())
	}
}

func TestResolveSelectorValues(t *testing.T) {
	ds, cs := tiledFixture(t)

	// Month coordinates are [1, 2, 3, 4]; value 2 resolves to index 1.
	rsel, err := ds.ResolveSelector(context.Background(), Selector{"month": Values(2, 4)})
	if err != nil {
		t.Fatalf("ResolveSelector: %v", err)
	}
	if rsel.Fingerprint() != "month:1,3" {
		t.Errorf("expected fingerprint %q, got %q", "month:1,3", rsel.Fingerprint())
	}

	// Coordinate vector is cached on the dataset after first load.
	before := cs.ChunkGets("0/month")
	if _, err := ds.ResolveSelector(context.Background(), Selector{"month": Value(3)}); err != nil {
		t.Fatalf("ResolveSelector: %v", err)
	}
	if after := cs.ChunkGets("0/month"); after != before {
		t.Errorf("expected cached coordinates, got %d extra reads", after-before)
	}
}

func TestResolveSelectorValueNotFound(t *testing.T) {
	ds, _ := tiledFixture(t)

	_, err := ds.ResolveSelector(context.Background(), Selector{"month": Value(99)})
	var serr *ErrSelectorResolution
	if !errors.As(err, &serr) {
		t.Fatalf("expected ErrSelectorResolution, got %v", err)
	}
	if serr.Dimension != "month" || serr.Value != 99 {
		t.Errorf("unexpected error detail: %+v", serr)
	}
}

func TestResolveSelectorUnknownDimension(t *testing.T) {
	ds, _ := tiledFixture(t)

	_, err := ds.ResolveSelector(context.Background(), Selector{"scenario": Index(0)})
	var uerr *ErrUnknownDimension
	if !errors.As(err, &uerr) {
		t.Fatalf("expected ErrUnknownDimension, got %v", err)
	}
}

func TestResolveSelectorSpatialDimension(t *testing.T) {
	ds, _ := tiledFixture(t)

	if _, err := ds.ResolveSelector(context.Background(), Selector{"x": Index(0)}); err == nil {
		t.Error("expected error selecting spatial dimension")
	}
}

func TestResolveSelectorIndexOutOfRange(t *testing.T) {
	ds, _ := tiledFixture(t)

	if _, err := ds.ResolveSelector(context.Background(), Selector{"month": Index(4)}); err == nil {
		t.Error("expected out-of-range error for index 4 of 4-entry dimension")
	}
	if _, err := ds.ResolveSelector(context.Background(), Selector{"month": Index(-1)}); err == nil {
		t.Error("expected out-of-range error for negative index")
	}
}

func TestResolveSelectorDeterministic(t *testing.T) {
	ds, _ := tiledFixture(t)

	a, err := ds.ResolveSelector(context.Background(), Selector{"month": Values(2)})
	if err != nil {
		t.Fatalf("ResolveSelector: %v", err)
	}
	b, err := ds.ResolveSelector(context.Background(), Selector{"month": Index(1)})
	if err != nil {
		t.Fatalf("ResolveSelector: %v", err)
	}
	// A value-typed and an index-typed selection of the same position
	// converge on the same fingerprint.
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
}

func TestLookupCoordinate(t *testing.T) {
	coords := []float64{10, 20, 30}

	tests := []struct {
		value float64
		index int
		found bool
	}{
		{10, 0, true},
		{30, 2, true},
		{20 + 1e-12, 1, true}, // within relative tolerance
		{25, 0, false},
	}
	for _, tt := range tests {
		ix, ok := lookupCoordinate(coords, tt.value)
		if ok != tt.found {
			t.Errorf("lookupCoordinate(%v): found=%v, expected %v", tt.value, ok, tt.found)
			continue
		}
		if ok && ix != tt.index {
			t.Errorf("lookupCoordinate(%v) = %d, expected %d", tt.value, ix, tt.index)
		}
	}
}

func TestDimSelectionIsMulti(t *testing.T) {
	if Index(3).IsMulti() {
		t.Error("Index should not be multi")
	}
	if !Indices(1, 2).IsMulti() {
		t.Error("Indices(1,2) should be multi")
	}
	if !Values(1, 2, 3).IsMulti() {
		t.Error("Values(1,2,3) should be multi")
	}
}
