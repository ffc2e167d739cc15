package zarr

import (
	"math"
	"testing"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		in       string
		expected DType
	}{
		{"<f4", DType{Basic: BTFloat, ByteSize: 4}},
		{"<f8", DType{Basic: BTFloat, ByteSize: 8}},
		{">i2", DType{Basic: BTInteger, ByteSize: 2, BigEndian: true}},
		{"|u1", DType{Basic: BTUnsigned, ByteSize: 1}},
		{"|b1", DType{Basic: BTBoolean, ByteSize: 1}},
		{"<i8", DType{Basic: BTInteger, ByteSize: 8}},
		{"float32", DType{Basic: BTFloat, ByteSize: 4}},
		{"float64", DType{Basic: BTFloat, ByteSize: 8}},
		{"int16", DType{Basic: BTInteger, ByteSize: 2}},
		{"uint8", DType{Basic: BTUnsigned, ByteSize: 1}},
		{"bool", DType{Basic: BTBoolean, ByteSize: 1}},
	}
	for _, tt := range tests {
		got, err := ParseDType(tt.in)
		if err != nil {
			t.Errorf("ParseDType(%q): %v", tt.in, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDType(%q) = %+v, expected %+v", tt.in, got, tt.expected)
		}
	}
}

func TestParseDTypeInvalid(t *testing.T) {
	for _, in := range []string{"", "f4", "<x4", "<f3", "~f8", "complex64"} {
		if _, err := ParseDType(in); err == nil {
			t.Errorf("ParseDType(%q): expected error", in)
		}
	}
}

func TestDecodeArrayMetaV2(t *testing.T) {
	doc := `{
		"zarr_format": 2,
		"shape": [12, 180, 360],
		"chunks": [1, 90, 90],
		"dtype": "<f4",
		"compressor": {"id": "zlib", "level": 5},
		"fill_value": -9999,
		"order": "C"
	}`
	meta, err := DecodeArrayMetaV2([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeArrayMetaV2: %v", err)
	}
	if len(meta.Shape) != 3 || meta.Shape[1] != 180 {
		t.Errorf("shape = %v", meta.Shape)
	}
	if meta.Chunks[2] != 90 {
		t.Errorf("chunks = %v", meta.Chunks)
	}
	if meta.DType.Basic != BTFloat || meta.DType.ByteSize != 4 {
		t.Errorf("dtype = %+v", meta.DType)
	}
	if meta.Compressor != "zlib" {
		t.Errorf("compressor = %q, expected zlib", meta.Compressor)
	}
	if meta.FillValue != -9999 {
		t.Errorf("fill = %v", meta.FillValue)
	}
	if meta.Separator != "." {
		t.Errorf("separator = %q, expected v2 default %q", meta.Separator, ".")
	}
	if meta.V3 {
		t.Error("v2 document decoded as v3")
	}
}

func TestDecodeArrayMetaV2FillNaN(t *testing.T) {
	doc := `{"shape": [4], "chunks": [2], "dtype": "<f8", "compressor": null, "fill_value": "NaN", "dimension_separator": "/"}`
	meta, err := DecodeArrayMetaV2([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeArrayMetaV2: %v", err)
	}
	if !math.IsNaN(meta.FillValue) {
		t.Errorf("fill = %v, expected NaN", meta.FillValue)
	}
	if meta.Compressor != "" {
		t.Errorf("compressor = %q, expected none", meta.Compressor)
	}
	if meta.Separator != "/" {
		t.Errorf("separator = %q, expected declared %q", meta.Separator, "/")
	}
}

func TestDecodeArrayMetaV2Mismatch(t *testing.T) {
	doc := `{"shape": [4, 4], "chunks": [2], "dtype": "<f8"}`
	if _, err := DecodeArrayMetaV2([]byte(doc)); err == nil {
		t.Error("expected shape/chunks mismatch error")
	}
}

func TestDecodeArrayMetaV3(t *testing.T) {
	doc := `{
		"zarr_format": 3,
		"node_type": "array",
		"shape": [6, 8],
		"data_type": "int16",
		"chunk_grid": {"name": "regular", "configuration": {"chunk_shape": [3, 4]}},
		"chunk_key_encoding": {"name": "default", "configuration": {}},
		"codecs": [
			{"name": "bytes", "configuration": {"endian": "big"}},
			{"name": "zstd", "configuration": {}}
		],
		"fill_value": 0,
		"dimension_names": ["y", "x"],
		"attributes": {"units": "K"}
	}`
	meta, err := DecodeArrayMetaV3([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeArrayMetaV3: %v", err)
	}
	if !meta.V3 {
		t.Error("V3 flag not set")
	}
	if meta.Chunks[0] != 3 || meta.Chunks[1] != 4 {
		t.Errorf("chunks = %v", meta.Chunks)
	}
	if !meta.DType.BigEndian {
		t.Error("bytes codec endian big not applied to dtype")
	}
	if meta.Compressor != "zstd" {
		t.Errorf("compressor = %q, expected zstd", meta.Compressor)
	}
	if meta.Separator != "/" {
		t.Errorf("separator = %q, expected v3 default %q", meta.Separator, "/")
	}
	if len(meta.Dimensions) != 2 || meta.Dimensions[0] != "y" {
		t.Errorf("dimensions = %v", meta.Dimensions)
	}
	if units, _ := meta.Attrs.String("units"); units != "K" {
		t.Errorf("attrs units = %q", units)
	}
}

func TestDecodeArrayMetaV3NotArray(t *testing.T) {
	doc := `{"zarr_format": 3, "node_type": "group"}`
	if _, err := DecodeArrayMetaV3([]byte(doc)); err == nil {
		t.Error("expected node_type error for group document")
	}
}

func TestDecodeArrayMetaV3UnsupportedCodec(t *testing.T) {
	doc := `{
		"node_type": "array",
		"shape": [4],
		"data_type": "float32",
		"chunk_grid": {"configuration": {"chunk_shape": [4]}},
		"codecs": [{"name": "blosc", "configuration": {}}]
	}`
	if _, err := DecodeArrayMetaV3([]byte(doc)); err == nil {
		t.Error("expected unsupported codec error")
	}
}

func TestDecodeConsolidated(t *testing.T) {
	doc := `{
		"zarr_consolidated_format": 1,
		"metadata": {
			".zattrs": {"title": "demo"},
			"air/.zarray": {"shape": [4], "chunks": [2], "dtype": "<f8", "compressor": null},
			"air/.zattrs": {"_ARRAY_DIMENSIONS": ["time"]}
		}
	}`
	cm, err := DecodeConsolidated([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeConsolidated: %v", err)
	}
	if cm.Format != 1 {
		t.Errorf("format = %d", cm.Format)
	}

	meta, err := cm.Array("air")
	if err != nil {
		t.Fatalf("Array: %v", err)
	}
	if meta.Shape[0] != 4 {
		t.Errorf("shape = %v", meta.Shape)
	}

	attrs, err := cm.Attrs("air")
	if err != nil {
		t.Fatalf("Attrs: %v", err)
	}
	if dims, ok := attrs.Strings("_ARRAY_DIMENSIONS"); !ok || dims[0] != "time" {
		t.Errorf("dims = %v", dims)
	}

	// Missing attrs document yields empty attributes, not an error.
	attrs, err = cm.Attrs("missing")
	if err != nil || len(attrs) != 0 {
		t.Errorf("Attrs(missing) = %v, %v", attrs, err)
	}
	if _, err := cm.Array("missing"); err == nil {
		t.Error("Array(missing): expected error")
	}
}

func TestParseFillValue(t *testing.T) {
	if !math.IsNaN(parseFillValue(nil)) {
		t.Error("nil fill should be NaN")
	}
	if got := parseFillValue(float64(-1)); got != -1 {
		t.Errorf("numeric fill = %v", got)
	}
	if !math.IsInf(parseFillValue("Infinity"), 1) {
		t.Error(`"Infinity" fill should be +Inf`)
	}
	if !math.IsInf(parseFillValue("-Infinity"), -1) {
		t.Error(`"-Infinity" fill should be -Inf`)
	}
	if got := parseFillValue(true); got != 1 {
		t.Errorf("bool fill = %v", got)
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{[]string{"a", "b"}, "a/b"},
		{[]string{"", "b"}, "b"},
		{[]string{"/a/", "/b/"}, "a/b"},
		{[]string{"a", "", "c"}, "a/c"},
		{[]string{""}, ""},
	}
	for _, tt := range tests {
		if got := JoinPath(tt.parts...); got != tt.expected {
			t.Errorf("JoinPath(%v) = %q, expected %q", tt.parts, got, tt.expected)
		}
	}
}

func TestAttributesAccessors(t *testing.T) {
	a := Attributes{
		"num":   float64(2.5),
		"str":   "hello",
		"strs":  []interface{}{"a", "b"},
		"nums":  []interface{}{1.0, 2.0},
		"mixed": []interface{}{"a", 1.0},
	}
	if f, ok := a.Float("num"); !ok || f != 2.5 {
		t.Errorf("Float = %v, %v", f, ok)
	}
	if _, ok := a.Float("str"); ok {
		t.Error("Float on string should fail")
	}
	if s, ok := a.String("str"); !ok || s != "hello" {
		t.Errorf("String = %q, %v", s, ok)
	}
	if ss, ok := a.Strings("strs"); !ok || len(ss) != 2 {
		t.Errorf("Strings = %v, %v", ss, ok)
	}
	if _, ok := a.Strings("mixed"); ok {
		t.Error("Strings on mixed array should fail")
	}
	if fs, ok := a.Floats("nums"); !ok || fs[1] != 2 {
		t.Errorf("Floats = %v, %v", fs, ok)
	}
	if _, ok := a.Float("absent"); ok {
		t.Error("absent key should miss")
	}
}
