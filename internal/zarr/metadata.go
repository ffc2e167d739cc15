package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Format selects the store layout version.
type Format int

const (
	// FormatAuto probes v3 first and falls back to v2.
	FormatAuto Format = iota
	// FormatV2 reads ".zarray"/".zattrs"/".zmetadata" documents.
	FormatV2
	// FormatV3 reads "zarr.json" documents.
	FormatV3
)

func (f Format) String() string {
	switch f {
	case FormatV2:
		return "v2"
	case FormatV3:
		return "v3"
	default:
		return "auto"
	}
}

// Attributes holds userland metadata attached to a group or array.
type Attributes map[string]interface{}

// Float returns a numeric attribute as float64.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	}
	return 0, false
}

// String returns a string attribute.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Strings returns a string-array attribute.
func (a Attributes) Strings(key string) ([]string, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Floats returns a numeric-array attribute.
func (a Attributes) Floats(key string) ([]float64, bool) {
	v, ok := a[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// ArrayMeta is the normalized description of one array, independent of
// whether it was decoded from a v2 ".zarray" or a v3 "zarr.json".
type ArrayMeta struct {
	Shape      []int
	Chunks     []int
	DType      DType
	Compressor string
	FillValue  float64
	Order      string
	Separator  string // chunk key separator within the array
	V3         bool
	Dimensions []string // dimension names, when declared
	Attrs      Attributes
}

// arrayMetaV2 mirrors the ".zarray" document.
type arrayMetaV2 struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         *CompressorMeta `json:"compressor"`
	FillValue          interface{}     `json:"fill_value"`
	Order              string          `json:"order"`
	DimensionSeparator string          `json:"dimension_separator"`
}

// arrayMetaV3 mirrors the array form of "zarr.json".
type arrayMetaV3 struct {
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
	Shape      []int  `json:"shape"`
	DataType   string `json:"data_type"`
	ChunkGrid  struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	Codecs []struct {
		Name          string `json:"name"`
		Configuration struct {
			Endian string `json:"endian"`
		} `json:"configuration"`
	} `json:"codecs"`
	FillValue      interface{} `json:"fill_value"`
	DimensionNames []string    `json:"dimension_names"`
	Attributes     Attributes  `json:"attributes"`
}

// groupMetaV3 mirrors the group form of "zarr.json".
type groupMetaV3 struct {
	ZarrFormat int        `json:"zarr_format"`
	NodeType   string     `json:"node_type"`
	Attributes Attributes `json:"attributes"`
}

// parseFillValue normalizes the JSON fill value encodings, including the
// "NaN"/"Infinity" string forms the Zarr format allows.
func parseFillValue(v interface{}) float64 {
	switch f := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return f
	case string:
		switch f {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
	case bool:
		if f {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// DecodeArrayMetaV2 decodes a ".zarray" document.
func DecodeArrayMetaV2(data []byte) (*ArrayMeta, error) {
	var raw arrayMetaV2
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("zarr: decode .zarray: %w", err)
	}
	if raw.ZarrFormat != 0 && raw.ZarrFormat != 2 {
		return nil, fmt.Errorf("zarr: unexpected zarr_format %d in .zarray", raw.ZarrFormat)
	}
	dt, err := ParseDType(raw.DType)
	if err != nil {
		return nil, err
	}
	if len(raw.Shape) == 0 || len(raw.Shape) != len(raw.Chunks) {
		return nil, fmt.Errorf("zarr: shape/chunks mismatch: %v vs %v", raw.Shape, raw.Chunks)
	}

	meta := &ArrayMeta{
		Shape:     raw.Shape,
		Chunks:    raw.Chunks,
		DType:     dt,
		FillValue: parseFillValue(raw.FillValue),
		Order:     raw.Order,
		Separator: raw.DimensionSeparator,
	}
	if meta.Separator == "" {
		meta.Separator = "."
	}
	if raw.Compressor != nil {
		meta.Compressor = raw.Compressor.ID
	}
	return meta, nil
}

// DecodeArrayMetaV3 decodes an array "zarr.json" document.
func DecodeArrayMetaV3(data []byte) (*ArrayMeta, error) {
	var raw arrayMetaV3
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("zarr: decode zarr.json: %w", err)
	}
	if raw.NodeType != "array" {
		return nil, fmt.Errorf("zarr: zarr.json node_type %q is not an array", raw.NodeType)
	}
	dt, err := ParseDType(raw.DataType)
	if err != nil {
		return nil, err
	}
	chunks := raw.ChunkGrid.Configuration.ChunkShape
	if len(raw.Shape) == 0 || len(raw.Shape) != len(chunks) {
		return nil, fmt.Errorf("zarr: shape/chunk_shape mismatch: %v vs %v", raw.Shape, chunks)
	}

	meta := &ArrayMeta{
		Shape:      raw.Shape,
		Chunks:     chunks,
		DType:      dt,
		FillValue:  parseFillValue(raw.FillValue),
		Order:      "C",
		Separator:  raw.ChunkKeyEncoding.Configuration.Separator,
		V3:         true,
		Dimensions: raw.DimensionNames,
		Attrs:      raw.Attributes,
	}
	if meta.Separator == "" {
		meta.Separator = "/"
	}
	for _, c := range raw.Codecs {
		switch c.Name {
		case "bytes", "endian":
			if c.Configuration.Endian == "big" {
				meta.DType.BigEndian = true
			}
		case "gzip", "zstd", "zlib":
			meta.Compressor = c.Name
		default:
			return nil, fmt.Errorf("zarr: unsupported v3 codec %q", c.Name)
		}
	}
	return meta, nil
}

// ConsolidatedMetadata is a decoded v2 ".zmetadata" document: every
// metadata document of the hierarchy in one read.
type ConsolidatedMetadata struct {
	Format int
	Docs   map[string]json.RawMessage
}

// DecodeConsolidated decodes a ".zmetadata" document.
func DecodeConsolidated(data []byte) (*ConsolidatedMetadata, error) {
	var raw struct {
		Format int                        `json:"zarr_consolidated_format"`
		Meta   map[string]json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("zarr: decode .zmetadata: %w", err)
	}
	if raw.Meta == nil {
		return nil, fmt.Errorf("zarr: .zmetadata has no metadata map")
	}
	return &ConsolidatedMetadata{Format: raw.Format, Docs: raw.Meta}, nil
}

// Doc returns the raw document stored under key ("path/.zarray" etc).
func (c *ConsolidatedMetadata) Doc(key string) (json.RawMessage, bool) {
	d, ok := c.Docs[strings.TrimLeft(key, "/")]
	return d, ok
}

// Array decodes the ".zarray" document for path.
func (c *ConsolidatedMetadata) Array(path string) (*ArrayMeta, error) {
	doc, ok := c.Doc(JoinPath(path, ".zarray"))
	if !ok {
		return nil, fmt.Errorf("%w: %s/.zarray", ErrNotFound, path)
	}
	return DecodeArrayMetaV2(doc)
}

// Attrs decodes the ".zattrs" document for path. A missing document
// yields empty attributes, not an error.
func (c *ConsolidatedMetadata) Attrs(path string) (Attributes, error) {
	doc, ok := c.Doc(JoinPath(path, ".zattrs"))
	if !ok {
		return Attributes{}, nil
	}
	var attrs Attributes
	if err := json.Unmarshal(doc, &attrs); err != nil {
		return nil, fmt.Errorf("zarr: decode %s/.zattrs: %w", path, err)
	}
	return attrs, nil
}

// JoinPath joins store key segments, dropping empty ones.
func JoinPath(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
