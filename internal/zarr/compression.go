package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// CompressorMeta identifies the codec applied to chunk payloads.
//
// A nil compressor in array metadata means chunks are stored raw.
type CompressorMeta struct {
	ID     string `json:"id"`
	Level  int    `json:"level,omitempty"`
	Cname  string `json:"cname,omitempty"`
	Clevel int    `json:"clevel,omitempty"`
}

// Decompress decodes a chunk payload with the named codec.
//
// Supported codecs: "" / "raw" (identity), "zlib", "gzip", "zstd".
func Decompress(id string, data []byte) ([]byte, error) {
	switch id {
	case "", "raw", "bytes":
		return data, nil
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zarr: zlib: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zarr: gzip: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zarr: zstd: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", id)
	}
}

// Compress encodes data with the named codec. Fixture/test helper.
func Compress(id string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch id {
	case "", "raw", "bytes":
		return data, nil
	case "zlib":
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "gzip":
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", id)
	}
	return buf.Bytes(), nil
}
