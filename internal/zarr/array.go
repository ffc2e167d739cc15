package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Array is a read handle on one Zarr array.
//
// Opening an array reads its metadata once; chunk reads are issued on
// demand. An Array is immutable after Open and safe for concurrent use.
type Array struct {
	store Store
	path  string
	meta  *ArrayMeta
	attrs Attributes
}

// OpenArray opens the array at path within the store.
//
// FormatAuto probes the v3 "zarr.json" document first and falls back to
// the v2 ".zarray" document.
func OpenArray(ctx context.Context, store Store, path string, format Format) (*Array, error) {
	switch format {
	case FormatV3:
		return openV3(ctx, store, path)
	case FormatV2:
		return openV2(ctx, store, path, nil)
	default:
		a, err := openV3(ctx, store, path)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return openV2(ctx, store, path, nil)
	}
}

// OpenArrayConsolidated opens an array using previously fetched v2
// consolidated metadata, avoiding per-array metadata reads.
func OpenArrayConsolidated(store Store, path string, cm *ConsolidatedMetadata) (*Array, error) {
	meta, err := cm.Array(path)
	if err != nil {
		return nil, err
	}
	attrs, err := cm.Attrs(path)
	if err != nil {
		return nil, err
	}
	return newArray(store, path, meta, attrs)
}

func openV3(ctx context.Context, store Store, path string) (*Array, error) {
	doc, err := store.Get(ctx, JoinPath(path, "zarr.json"))
	if err != nil {
		return nil, err
	}
	meta, err := DecodeArrayMetaV3(doc)
	if err != nil {
		return nil, err
	}
	return newArray(store, path, meta, meta.Attrs)
}

func openV2(ctx context.Context, store Store, path string, attrs Attributes) (*Array, error) {
	doc, err := store.Get(ctx, JoinPath(path, ".zarray"))
	if err != nil {
		return nil, err
	}
	meta, err := DecodeArrayMetaV2(doc)
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = Attributes{}
		if adoc, aerr := store.Get(ctx, JoinPath(path, ".zattrs")); aerr == nil {
			if jerr := json.Unmarshal(adoc, &attrs); jerr != nil {
				return nil, fmt.Errorf("zarr: decode %s/.zattrs: %w", path, jerr)
			}
		} else if !errors.Is(aerr, ErrNotFound) {
			return nil, aerr
		}
	}
	return newArray(store, path, meta, attrs)
}

func newArray(store Store, path string, meta *ArrayMeta, attrs Attributes) (*Array, error) {
	if attrs == nil {
		attrs = Attributes{}
	}
	a := &Array{store: store, path: path, meta: meta, attrs: attrs}
	if len(meta.Dimensions) == 0 {
		// xarray convention for v2 stores
		if dims, ok := attrs.Strings("_ARRAY_DIMENSIONS"); ok {
			meta.Dimensions = dims
		}
	}
	return a, nil
}

// Path returns the array's path within the store.
func (a *Array) Path() string { return a.path }

// Meta returns the normalized array metadata.
func (a *Array) Meta() *ArrayMeta { return a.meta }

// Attrs returns the array's attributes.
func (a *Array) Attrs() Attributes { return a.attrs }

// Shape returns the per-dimension extents.
func (a *Array) Shape() []int { return a.meta.Shape }

// ChunkShape returns the per-dimension chunk extents.
func (a *Array) ChunkShape() []int { return a.meta.Chunks }

// ChunkCount returns the number of chunks along dimension d.
func (a *Array) ChunkCount(d int) int {
	return (a.meta.Shape[d] + a.meta.Chunks[d] - 1) / a.meta.Chunks[d]
}

// ChunkLen returns the element count of one chunk.
func (a *Array) ChunkLen() int {
	n := 1
	for _, c := range a.meta.Chunks {
		n *= c
	}
	return n
}

// ChunkKey builds the store key for the chunk at the given indices.
func (a *Array) ChunkKey(indices []int) string {
	parts := make([]string, len(indices))
	for i, ix := range indices {
		parts[i] = strconv.Itoa(ix)
	}
	if a.meta.V3 {
		return JoinPath(a.path, "c", strings.Join(parts, a.meta.Separator))
	}
	return JoinPath(a.path, strings.Join(parts, a.meta.Separator))
}

// ReadChunk fetches, decompresses and decodes one chunk.
//
// A chunk absent from the store decodes as a fill-value chunk, per the
// Zarr uninitialized-region semantics. Edge chunks are always full chunk
// shape; the caller masks the overhang using the array shape.
func (a *Array) ReadChunk(ctx context.Context, indices []int) ([]float64, error) {
	if len(indices) != len(a.meta.Chunks) {
		return nil, fmt.Errorf("zarr: chunk index rank %d does not match array rank %d",
			len(indices), len(a.meta.Chunks))
	}
	for d, ix := range indices {
		if ix < 0 || ix >= a.ChunkCount(d) {
			return nil, fmt.Errorf("zarr: chunk index %d out of range for dimension %d", ix, d)
		}
	}

	raw, err := a.store.Get(ctx, a.ChunkKey(indices))
	if errors.Is(err, ErrNotFound) {
		out := make([]float64, a.ChunkLen())
		for i := range out {
			out[i] = a.meta.FillValue
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	raw, err = Decompress(a.meta.Compressor, raw)
	if err != nil {
		return nil, err
	}
	return a.meta.DType.Decode(raw, a.ChunkLen())
}

// ReadVector reads an entire 1-D array, chunk by chunk.
//
// Used for coordinate arrays, which are small relative to data arrays.
func (a *Array) ReadVector(ctx context.Context) ([]float64, error) {
	if len(a.meta.Shape) != 1 {
		return nil, fmt.Errorf("zarr: ReadVector on rank-%d array %s", len(a.meta.Shape), a.path)
	}
	n := a.meta.Shape[0]
	out := make([]float64, 0, n)
	for c := 0; c < a.ChunkCount(0); c++ {
		vals, err := a.ReadChunk(ctx, []int{c})
		if err != nil {
			return nil, err
		}
		remain := n - len(out)
		if remain < len(vals) {
			vals = vals[:remain]
		}
		out = append(out, vals...)
	}
	return out, nil
}

// ReadEdges reads the first and last elements of a 1-D array.
//
// This is the cheap path for bounds resolution: two byte-range reads for
// uncompressed chunks, at most two chunk reads otherwise.
func (a *Array) ReadEdges(ctx context.Context) (first, last float64, err error) {
	if len(a.meta.Shape) != 1 {
		return 0, 0, fmt.Errorf("zarr: ReadEdges on rank-%d array %s", len(a.meta.Shape), a.path)
	}
	n := a.meta.Shape[0]
	if n == 0 {
		return 0, 0, fmt.Errorf("zarr: ReadEdges on empty array %s", a.path)
	}

	if a.meta.Compressor == "" || a.meta.Compressor == "raw" {
		if f, ok := a.readElementRange(ctx, 0); ok {
			if l, ok := a.readElementRange(ctx, n-1); ok {
				return f, l, nil
			}
		}
	}

	head, err := a.ReadChunk(ctx, []int{0})
	if err != nil {
		return 0, 0, err
	}
	first = head[0]

	lastChunk := (n - 1) / a.meta.Chunks[0]
	tail := head
	if lastChunk != 0 {
		tail, err = a.ReadChunk(ctx, []int{lastChunk})
		if err != nil {
			return 0, 0, err
		}
	}
	last = tail[(n-1)%a.meta.Chunks[0]]
	return first, last, nil
}

// readElementRange reads one element of an uncompressed 1-D array with a
// byte-range read. Any failure (missing chunk, short read) reports false
// and the caller falls back to whole-chunk reads.
func (a *Array) readElementRange(ctx context.Context, i int) (float64, bool) {
	size := a.meta.DType.ByteSize
	chunk := i / a.meta.Chunks[0]
	off := int64(i%a.meta.Chunks[0]) * int64(size)

	raw, err := a.store.GetRange(ctx, a.ChunkKey([]int{chunk}), off, int64(size))
	if err != nil {
		return 0, false
	}
	if len(raw) > size {
		// Store ignored the range and returned the whole chunk.
		if off+int64(size) > int64(len(raw)) {
			return 0, false
		}
		raw = raw[off : off+int64(size)]
	}
	if len(raw) < size {
		return 0, false
	}
	vals, err := a.meta.DType.Decode(raw, 1)
	if err != nil {
		return 0, false
	}
	return vals[0], true
}

// OpenGroupAttrs reads group-level attributes at path, probing v3 then
// v2 documents according to format.
func OpenGroupAttrs(ctx context.Context, store Store, path string, format Format) (Attributes, error) {
	readV3 := func() (Attributes, error) {
		doc, err := store.Get(ctx, JoinPath(path, "zarr.json"))
		if err != nil {
			return nil, err
		}
		var g groupMetaV3
		if err := json.Unmarshal(doc, &g); err != nil {
			return nil, fmt.Errorf("zarr: decode group zarr.json: %w", err)
		}
		if g.NodeType != "group" {
			return nil, fmt.Errorf("zarr: zarr.json node_type %q is not a group", g.NodeType)
		}
		if g.Attributes == nil {
			return Attributes{}, nil
		}
		return g.Attributes, nil
	}
	readV2 := func() (Attributes, error) {
		doc, err := store.Get(ctx, JoinPath(path, ".zattrs"))
		if errors.Is(err, ErrNotFound) {
			return Attributes{}, nil
		}
		if err != nil {
			return nil, err
		}
		var attrs Attributes
		if err := json.Unmarshal(doc, &attrs); err != nil {
			return nil, fmt.Errorf("zarr: decode group .zattrs: %w", err)
		}
		return attrs, nil
	}

	switch format {
	case FormatV3:
		return readV3()
	case FormatV2:
		return readV2()
	default:
		attrs, err := readV3()
		if err == nil {
			return attrs, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return readV2()
	}
}
