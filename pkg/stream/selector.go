package stream

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Selector chooses a slice of the array along its non-spatial dimensions.
//
// Each dimension maps to a DimSelection built through the Index/Indices/
// Value/Values constructors. Multi-valued selections request multiple
// bands (for example several months at once).
//
// Example:
//
//	sel := stream.Selector{
//	    "month": stream.Values(1, 2),
//	    "scenario": stream.Index(0),
//	}
type Selector map[string]DimSelection

type selectionKind int

const (
	kindIndex selectionKind = iota
	kindValue
)

// DimSelection is a normalized single- or multi-valued selection for one
// dimension, either index-typed or value-typed.
//
// The zero value selects index 0.
type DimSelection struct {
	kind    selectionKind
	indices []int
	values  []float64
}

// Index selects a single position along a dimension.
func Index(i int) DimSelection {
	return DimSelection{kind: kindIndex, indices: []int{i}}
}

// Indices selects multiple positions along a dimension.
func Indices(is ...int) DimSelection {
	out := make([]int, len(is))
	copy(out, is)
	return DimSelection{kind: kindIndex, indices: out}
}

// Value selects the position whose coordinate equals v.
func Value(v float64) DimSelection {
	return DimSelection{kind: kindValue, values: []float64{v}}
}

// Values selects the positions whose coordinates equal each of vs.
func Values(vs ...float64) DimSelection {
	out := make([]float64, len(vs))
	copy(out, vs)
	return DimSelection{kind: kindValue, values: out}
}

// IsMulti reports whether the selection requests more than one band.
func (s DimSelection) IsMulti() bool {
	return len(s.indices) > 1 || len(s.values) > 1
}

func (s DimSelection) count() int {
	if s.kind == kindValue {
		return len(s.values)
	}
	if len(s.indices) == 0 {
		return 1
	}
	return len(s.indices)
}

// resolvedDim is one dimension's selection resolved to global indices.
type resolvedDim struct {
	name    string
	dim     int
	indices []int
	labels  []string
}

// ResolvedSelector is a selector resolved against a dataset: every
// non-spatial dimension has concrete global indices and band labels,
// ordered by the dataset's dimension order.
//
// Resolution is deterministic and idempotent: the same selector against
// the same dataset always yields the same indices and fingerprint.
type ResolvedSelector struct {
	dims        []resolvedDim
	fingerprint string
}

// Fingerprint returns the canonical identity of this selection, used by
// the cache to detect staleness.
func (r *ResolvedSelector) Fingerprint() string { return r.fingerprint }

// BandCount returns the number of bands this selection extracts: the
// cartesian product of the per-dimension selection counts.
func (r *ResolvedSelector) BandCount() int {
	n := 1
	for _, d := range r.dims {
		n *= len(d.indices)
	}
	return n
}

// ResolveSelector normalizes and resolves a selector against the dataset.
//
// Index-typed entries are bounds-checked; value-typed entries are looked
// up in the dimension's coordinate array (one small read per dimension,
// cached on the dataset). Non-spatial dimensions absent from the selector
// default to index 0. Selecting a spatial dimension is an error.
func (ds *Dataset) ResolveSelector(ctx context.Context, sel Selector) (*ResolvedSelector, error) {
	for name := range sel {
		if _, ok := ds.DimIndex(name); !ok {
			return nil, &ErrUnknownDimension{Dimension: name}
		}
		if ds.isSpatialDim(name) {
			return nil, fmt.Errorf("dimension %q is spatial and cannot be selected", name)
		}
	}

	out := &ResolvedSelector{}
	for d, name := range ds.Dimensions {
		if ds.isSpatialDim(name) {
			continue
		}
		s, ok := sel[name]
		if !ok {
			out.dims = append(out.dims, resolvedDim{
				name:    name,
				dim:     d,
				indices: []int{0},
				labels:  []string{name + "=0"},
			})
			continue
		}

		rd := resolvedDim{name: name, dim: d}
		switch s.kind {
		case kindIndex:
			indices := s.indices
			if len(indices) == 0 {
				indices = []int{0}
			}
			for _, ix := range indices {
				if ix < 0 || ix >= ds.Shape[d] {
					return nil, fmt.Errorf("index %d out of range for dimension %q (size %d)",
						ix, name, ds.Shape[d])
				}
				rd.indices = append(rd.indices, ix)
				rd.labels = append(rd.labels, name+"="+strconv.Itoa(ix))
			}
		case kindValue:
			coords, err := ds.Coordinates(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("load coordinates for %q: %w", name, err)
			}
			for _, v := range s.values {
				ix, ok := lookupCoordinate(coords, v)
				if !ok {
					return nil, &ErrSelectorResolution{Dimension: name, Value: v}
				}
				rd.indices = append(rd.indices, ix)
				rd.labels = append(rd.labels, name+"="+formatCoord(v))
			}
		}
		out.dims = append(out.dims, rd)
	}

	out.fingerprint = fingerprint(out)
	return out, nil
}

// lookupCoordinate finds the index of value v in a coordinate vector.
//
// Exact matches win; otherwise the nearest coordinate within a relative
// tolerance is accepted, so float-encoded coordinates round-trip.
func lookupCoordinate(coords []float64, v float64) (int, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, c := range coords {
		if c == v {
			return i, true
		}
		d := math.Abs(c - v)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, false
	}
	scale := math.Max(math.Abs(v), 1)
	if bestDist <= scale*1e-9 {
		return best, true
	}
	return 0, false
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// fingerprint builds the canonical selector identity string.
func fingerprint(r *ResolvedSelector) string {
	parts := make([]string, 0, len(r.dims))
	for _, d := range r.dims {
		ixs := make([]string, len(d.indices))
		for i, ix := range d.indices {
			ixs[i] = strconv.Itoa(ix)
		}
		parts = append(parts, d.name+":"+strings.Join(ixs, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
