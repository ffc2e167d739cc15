package zarr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BasicType identifies the numeric family of an array's element type.
type BasicType byte

const (
	BTBoolean  BasicType = 'b'
	BTInteger  BasicType = 'i'
	BTUnsigned BasicType = 'u'
	BTFloat    BasicType = 'f'
)

// DType describes the element type of a Zarr array.
type DType struct {
	Basic     BasicType
	ByteSize  int
	BigEndian bool
}

// IsFloat reports whether values are stored as floating point.
//
// Float-typed levels are assumed already physically scaled; integer-typed
// levels apply a declared scale/offset transform.
func (d DType) IsFloat() bool { return d.Basic == BTFloat }

func (d DType) byteOrder() binary.ByteOrder {
	if d.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseDType parses a v2 numpy-style dtype string ("<f4", ">i2", "|u1")
// or a v3 type name ("float32", "int16", "uint8", "bool").
func ParseDType(s string) (DType, error) {
	// v3 names first
	switch s {
	case "bool":
		return DType{Basic: BTBoolean, ByteSize: 1}, nil
	case "int8":
		return DType{Basic: BTInteger, ByteSize: 1}, nil
	case "int16":
		return DType{Basic: BTInteger, ByteSize: 2}, nil
	case "int32":
		return DType{Basic: BTInteger, ByteSize: 4}, nil
	case "int64":
		return DType{Basic: BTInteger, ByteSize: 8}, nil
	case "uint8":
		return DType{Basic: BTUnsigned, ByteSize: 1}, nil
	case "uint16":
		return DType{Basic: BTUnsigned, ByteSize: 2}, nil
	case "uint32":
		return DType{Basic: BTUnsigned, ByteSize: 4}, nil
	case "uint64":
		return DType{Basic: BTUnsigned, ByteSize: 8}, nil
	case "float32":
		return DType{Basic: BTFloat, ByteSize: 4}, nil
	case "float64":
		return DType{Basic: BTFloat, ByteSize: 8}, nil
	}

	if len(s) < 3 {
		return DType{}, fmt.Errorf("zarr: invalid dtype %q", s)
	}

	var big bool
	switch s[0] {
	case '<', '|':
		big = false
	case '>':
		big = true
	default:
		return DType{}, fmt.Errorf("zarr: invalid dtype byte order in %q", s)
	}

	var basic BasicType
	switch s[1] {
	case 'b':
		basic = BTBoolean
	case 'i':
		basic = BTInteger
	case 'u':
		basic = BTUnsigned
	case 'f':
		basic = BTFloat
	default:
		return DType{}, fmt.Errorf("zarr: unsupported dtype kind in %q", s)
	}

	var size int
	if _, err := fmt.Sscanf(s[2:], "%d", &size); err != nil {
		return DType{}, fmt.Errorf("zarr: invalid dtype size in %q", s)
	}
	switch size {
	case 1, 2, 4, 8:
	default:
		return DType{}, fmt.Errorf("zarr: unsupported dtype size %d in %q", size, s)
	}

	return DType{Basic: basic, ByteSize: size, BigEndian: big}, nil
}

// Decode converts a raw C-order chunk payload into float64 values.
//
// count is the expected element count (the product of the chunk shape);
// a short payload is an error, a long one is truncated.
func (d DType) Decode(raw []byte, count int) ([]float64, error) {
	need := count * d.ByteSize
	if len(raw) < need {
		return nil, fmt.Errorf("zarr: chunk payload too short: have %d bytes, need %d", len(raw), need)
	}
	raw = raw[:need]
	order := d.byteOrder()

	out := make([]float64, count)
	switch d.Basic {
	case BTBoolean:
		for i := 0; i < count; i++ {
			if raw[i] != 0 {
				out[i] = 1
			}
		}
	case BTInteger:
		switch d.ByteSize {
		case 1:
			for i := 0; i < count; i++ {
				out[i] = float64(int8(raw[i]))
			}
		case 2:
			for i := 0; i < count; i++ {
				out[i] = float64(int16(order.Uint16(raw[i*2:])))
			}
		case 4:
			for i := 0; i < count; i++ {
				out[i] = float64(int32(order.Uint32(raw[i*4:])))
			}
		case 8:
			for i := 0; i < count; i++ {
				out[i] = float64(int64(order.Uint64(raw[i*8:])))
			}
		}
	case BTUnsigned:
		switch d.ByteSize {
		case 1:
			for i := 0; i < count; i++ {
				out[i] = float64(raw[i])
			}
		case 2:
			for i := 0; i < count; i++ {
				out[i] = float64(order.Uint16(raw[i*2:]))
			}
		case 4:
			for i := 0; i < count; i++ {
				out[i] = float64(order.Uint32(raw[i*4:]))
			}
		case 8:
			for i := 0; i < count; i++ {
				out[i] = float64(order.Uint64(raw[i*8:]))
			}
		}
	case BTFloat:
		switch d.ByteSize {
		case 4:
			for i := 0; i < count; i++ {
				out[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
			}
		case 8:
			for i := 0; i < count; i++ {
				out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
			}
		default:
			return nil, fmt.Errorf("zarr: unsupported float size %d", d.ByteSize)
		}
	}
	return out, nil
}

// Encode converts float64 values into the raw C-order representation.
//
// Used by test fixtures and the memory store helpers.
func (d DType) Encode(values []float64) []byte {
	order := d.byteOrder()
	out := make([]byte, len(values)*d.ByteSize)
	for i, v := range values {
		switch d.Basic {
		case BTBoolean:
			if v != 0 {
				out[i] = 1
			}
		case BTInteger, BTUnsigned:
			switch d.ByteSize {
			case 1:
				out[i] = byte(int64(v))
			case 2:
				order.PutUint16(out[i*2:], uint16(int64(v)))
			case 4:
				order.PutUint32(out[i*4:], uint32(int64(v)))
			case 8:
				order.PutUint64(out[i*8:], uint64(int64(v)))
			}
		case BTFloat:
			switch d.ByteSize {
			case 4:
				order.PutUint32(out[i*4:], math.Float32bits(float32(v)))
			case 8:
				order.PutUint64(out[i*8:], math.Float64bits(v))
			}
		}
	}
	return out
}
