package stream

import (
	"math"
)

// Band is one extracted, render-ready slice of a tile.
//
// Data is normalized by Scale for reduced-precision GPU upload; multiply
// back by Scale to recover physical values. Fill values are NaN.
type Band struct {
	Name  string
	Data  []float32
	Scale float64
}

// bandSpec is one band's in-chunk position along the non-spatial axes.
type bandSpec struct {
	label   string
	offsets []int // aligned with chunkPlan.dims
}

// chunkPlan maps a tile key and resolved selector to the chunk to fetch
// and the bands to extract from it.
type chunkPlan struct {
	chunkIndices []int // per dataset dimension, owning chunk index
	dims         []int // non-spatial dataset dimension indices, in order
	bands        []bandSpec
}

// chunkIndicesEqual reports whether two plans target the same chunk.
func chunkIndicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// planChunks computes the target chunk index set for a tile key under a
// resolved selector.
//
// For each non-spatial dimension the selected global indices map to an
// owning chunk by integer division by that dimension's chunk size. A
// selection spanning multiple chunks is approximated by the chunk of its
// first entry, with a logged warning; spanning selections are not split
// into multiple fetches. Spatial dimensions take the tile's own x/y. The
// cartesian product of the per-dimension selections determines the
// extracted bands and their labels.
func (ds *Dataset) planChunks(level int, key Key, sel *ResolvedSelector) *chunkPlan {
	lvl := ds.Levels[level]
	chunkShape := lvl.ChunkShape()

	plan := &chunkPlan{chunkIndices: make([]int, len(chunkShape))}
	plan.chunkIndices[ds.xdim] = key.X
	plan.chunkIndices[ds.ydim] = key.Y

	// Per-dimension in-chunk offsets and labels for each selected entry.
	type dimEntries struct {
		dim       int
		offsets   []int
		labels    []string
		defaulted bool
	}
	var entries []dimEntries

	for _, rd := range sel.dims {
		size := chunkShape[rd.dim]
		owner := rd.indices[0] / size
		spans := false
		for _, ix := range rd.indices[1:] {
			if ix/size != owner {
				spans = true
				break
			}
		}
		if spans {
			ds.log.Warn().Str("dimension", rd.name).Ints("indices", rd.indices).
				Int("chunk_size", size).
				Msg("selection spans multiple chunks; using first chunk only")
		}
		plan.chunkIndices[rd.dim] = owner

		de := dimEntries{dim: rd.dim, defaulted: isDefaultSelection(rd)}
		for i, ix := range rd.indices {
			off := ix - owner*size
			if off < 0 {
				off = 0
			}
			if off >= size {
				off = size - 1
			}
			de.offsets = append(de.offsets, off)
			de.labels = append(de.labels, rd.labels[i])
		}
		entries = append(entries, de)
		plan.dims = append(plan.dims, rd.dim)
	}

	// Cartesian product across dimensions.
	plan.bands = []bandSpec{{}}
	for _, de := range entries {
		next := make([]bandSpec, 0, len(plan.bands)*len(de.offsets))
		for _, b := range plan.bands {
			for i, off := range de.offsets {
				nb := bandSpec{
					label:   b.label,
					offsets: append(append([]int(nil), b.offsets...), off),
				}
				if !de.defaulted {
					if nb.label != "" {
						nb.label += ","
					}
					nb.label += de.labels[i]
				}
				next = append(next, nb)
			}
		}
		plan.bands = next
	}
	for i := range plan.bands {
		if plan.bands[i].label == "" {
			plan.bands[i].label = ds.Variable
		}
	}
	return plan
}

// isDefaultSelection reports whether a resolved dimension is the implicit
// index-0 default, which is left out of band labels.
func isDefaultSelection(rd resolvedDim) bool {
	return len(rd.indices) == 1 && rd.indices[0] == 0 &&
		len(rd.labels) == 1 && rd.labels[0] == rd.name+"=0"
}

// extractBands slices the requested bands out of a resident chunk buffer
// and normalizes each band independently.
//
// The chunk buffer is full chunk shape in C order. Output rows run north
// to south; ascending-latitude arrays are flipped. Cells past the array
// extent (edge chunks) and fill values come out as NaN.
func (ds *Dataset) extractBands(buf []float64, level int, plan *chunkPlan) []Band {
	lvl := ds.Levels[level]
	shape := lvl.Shape()
	chunkShape := lvl.ChunkShape()
	rank := len(chunkShape)

	// C-order strides.
	strides := make([]int, rank)
	s := 1
	for d := rank - 1; d >= 0; d-- {
		strides[d] = s
		s *= chunkShape[d]
	}

	w := chunkShape[ds.xdim]
	h := chunkShape[ds.ydim]
	baseX := plan.chunkIndices[ds.xdim] * w
	baseY := plan.chunkIndices[ds.ydim] * h

	out := make([]Band, 0, len(plan.bands))
	for _, bs := range plan.bands {
		base := 0
		for i, d := range plan.dims {
			base += bs.offsets[i] * strides[d]
		}

		data := make([]float32, w*h)
		scale := 0.0
		for row := 0; row < h; row++ {
			yIn := row
			if ds.LatAscending {
				yIn = h - 1 - row
			}
			rowOOB := baseY+yIn >= shape[ds.ydim]
			rowBase := base + yIn*strides[ds.ydim]
			for col := 0; col < w; col++ {
				i := row*w + col
				if rowOOB || baseX+col >= shape[ds.xdim] {
					data[i] = float32(math.NaN())
					continue
				}
				v := lvl.Transform.Apply(buf[rowBase+col*strides[ds.xdim]])
				if math.IsNaN(v) {
					data[i] = float32(math.NaN())
					continue
				}
				if a := math.Abs(v); a > scale {
					scale = a
				}
				data[i] = float32(v)
			}
		}

		if scale == 0 {
			scale = 1
		}
		inv := float32(1 / scale)
		for i, v := range data {
			data[i] = v * inv
		}
		out = append(out, Band{Name: bs.label, Data: data, Scale: scale})
	}
	return out
}
