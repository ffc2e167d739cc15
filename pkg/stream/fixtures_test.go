package stream

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/beetlebugorg/zarrview/internal/logx"
	"github.com/beetlebugorg/zarrview/internal/zarr"
)

// testLogger returns a console logger when ZARRVIEW_TEST_LOG is set,
// for debugging controller timing, and a no-op logger otherwise.
func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	if os.Getenv("ZARRVIEW_TEST_LOG") != "" {
		l = logx.NewLogger()
	}
	return &l
}

// putV2Array writes a v2 array and all its chunks into a memory store.
// value receives global indices and may be called past the array shape
// for edge-chunk overhang.
func putV2Array(store *zarr.MemoryStore, path string, shape, chunks []int, dims []string, value func(ix []int) float64) {
	shapeJSON := intsJSON(shape)
	chunksJSON := intsJSON(chunks)
	store.SetJSON(zarr.JoinPath(path, ".zarray"), fmt.Sprintf(
		`{"zarr_format":2,"shape":%s,"chunks":%s,"dtype":"<f8","compressor":null,"fill_value":null,"order":"C","dimension_separator":"."}`,
		shapeJSON, chunksJSON))
	if dims != nil {
		quoted := make([]string, len(dims))
		for i, d := range dims {
			quoted[i] = `"` + d + `"`
		}
		store.SetJSON(zarr.JoinPath(path, ".zattrs"),
			`{"_ARRAY_DIMENSIONS":[`+strings.Join(quoted, ",")+`]}`)
	}

	dt := zarr.DType{Basic: zarr.BTFloat, ByteSize: 8}
	rank := len(shape)
	counts := make([]int, rank)
	for d := range counts {
		counts[d] = (shape[d] + chunks[d] - 1) / chunks[d]
	}

	chunkLen := 1
	for _, c := range chunks {
		chunkLen *= c
	}

	chunkIdx := make([]int, rank)
	for {
		vals := make([]float64, 0, chunkLen)
		off := make([]int, rank)
		for {
			global := make([]int, rank)
			for d := range global {
				global[d] = chunkIdx[d]*chunks[d] + off[d]
			}
			vals = append(vals, value(global))
			d := rank - 1
			for ; d >= 0; d-- {
				off[d]++
				if off[d] < chunks[d] {
					break
				}
				off[d] = 0
			}
			if d < 0 {
				break
			}
		}

		parts := make([]string, rank)
		for d, ix := range chunkIdx {
			parts[d] = fmt.Sprintf("%d", ix)
		}
		store.Set(zarr.JoinPath(path, strings.Join(parts, ".")), dt.Encode(vals))

		d := rank - 1
		for ; d >= 0; d-- {
			chunkIdx[d]++
			if chunkIdx[d] < counts[d] {
				break
			}
			chunkIdx[d] = 0
		}
		if d < 0 {
			break
		}
	}
}

func intsJSON(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// countingStore counts chunk reads per key, ignoring metadata documents.
type countingStore struct {
	zarr.Store

	mu        sync.Mutex
	chunkGets map[string]int
}

func newCountingStore(inner zarr.Store) *countingStore {
	return &countingStore{Store: inner, chunkGets: make(map[string]int)}
}

func isMetadataKey(key string) bool {
	return strings.HasSuffix(key, ".zarray") || strings.HasSuffix(key, ".zattrs") ||
		strings.HasSuffix(key, ".zmetadata") || strings.HasSuffix(key, "zarr.json")
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !isMetadataKey(key) {
		s.mu.Lock()
		s.chunkGets[key]++
		s.mu.Unlock()
	}
	return s.Store.Get(ctx, key)
}

// ChunkGets returns total chunk reads for keys with the given prefix.
func (s *countingStore) ChunkGets(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.chunkGets {
		if strings.HasPrefix(k, prefix) {
			n += c
		}
	}
	return n
}

// tiledValue is the deterministic cell formula used by the tiled fixture:
// month index mi, global row gy, global column gx.
func tiledValue(mi, gy, gx int) float64 {
	return float64((mi+1)*100 + gy*10 + gx)
}

// tiledFixtureStore builds a two-level web-mercator pyramid:
// level "0" is 1x1 tiles, level "1" is 2x2 tiles with edge overhang
// (spatial shape 3x3 under 2x2 chunks). The month dimension has four
// entries chunked in pairs.
func tiledFixtureStore() *countingStore {
	store := zarr.NewMemoryStore()
	store.SetJSON(".zattrs", `{
		"crs": "EPSG:3857",
		"multiscales": [{"datasets": [
			{"path": "0", "pixels_per_tile": 2},
			{"path": "1", "pixels_per_tile": 2}
		]}]
	}`)

	putV2Array(store, "0/tavg", []int{4, 2, 2}, []int{2, 2, 2},
		[]string{"month", "y", "x"},
		func(ix []int) float64 { return tiledValue(ix[0], ix[1], ix[2]) })
	putV2Array(store, "1/tavg", []int{4, 3, 3}, []int{2, 2, 2},
		[]string{"month", "y", "x"},
		func(ix []int) float64 { return tiledValue(ix[0], ix[1], ix[2]) })
	putV2Array(store, "0/month", []int{4}, []int{4}, nil,
		func(ix []int) float64 { return float64(ix[0] + 1) })

	return newCountingStore(store)
}

func tiledFixture(t *testing.T) (*Dataset, *countingStore) {
	t.Helper()
	cs := tiledFixtureStore()
	ds, err := Resolve(context.Background(), sourceFromStore(cs, "mem://tiled"), "tavg", DefaultResolveOptions())
	if err != nil {
		t.Fatalf("resolve tiled fixture: %v", err)
	}
	return ds, cs
}

// untiledFixture builds a two-level whole-image dataset covering the
// full geographic world via scale/translation transforms.
func untiledFixture(t *testing.T) (*Dataset, *countingStore) {
	t.Helper()
	store := zarr.NewMemoryStore()
	store.SetJSON(".zattrs", `{
		"multiscales": [{"datasets": [
			{"path": "0", "coordinateTransformations": [
				{"type": "scale", "scale": [-45, 90]},
				{"type": "translation", "translation": [90, -180]}
			]},
			{"path": "1", "coordinateTransformations": [
				{"type": "scale", "scale": [-22.5, 45]},
				{"type": "translation", "translation": [90, -180]}
			]}
		]}]
	}`)

	putV2Array(store, "0/temp", []int{4, 4}, []int{4, 4},
		[]string{"y", "x"},
		func(ix []int) float64 { return float64(ix[0]*10 + ix[1]) })
	putV2Array(store, "1/temp", []int{8, 8}, []int{8, 8},
		[]string{"y", "x"},
		func(ix []int) float64 { return float64(ix[0]*10 + ix[1]) })

	cs := newCountingStore(store)
	ds, err := Resolve(context.Background(), sourceFromStore(cs, "mem://untiled"), "temp", DefaultResolveOptions())
	if err != nil {
		t.Fatalf("resolve untiled fixture: %v", err)
	}
	return ds, cs
}

// singleFixture builds a plain single-array dataset with ascending
// latitude coordinates and a chunked time dimension.
func singleFixture(t *testing.T) (*Dataset, *countingStore) {
	t.Helper()
	store := zarr.NewMemoryStore()

	putV2Array(store, "temp", []int{2, 4, 4}, []int{1, 4, 4},
		[]string{"time", "y", "x"},
		func(ix []int) float64 { return float64(ix[0]*100 + ix[1]*10 + ix[2]) })
	putV2Array(store, "time", []int{2}, []int{2}, nil,
		func(ix []int) float64 { return float64(ix[0]) })
	putV2Array(store, "y", []int{4}, []int{4}, nil,
		func(ix []int) float64 { return float64(-60 + ix[0]*40) })
	putV2Array(store, "x", []int{4}, []int{4}, nil,
		func(ix []int) float64 { return float64(-120 + ix[0]*80) })

	cs := newCountingStore(store)
	ds, err := Resolve(context.Background(), sourceFromStore(cs, "mem://single"), "temp", DefaultResolveOptions())
	if err != nil {
		t.Fatalf("resolve single fixture: %v", err)
	}
	return ds, cs
}
