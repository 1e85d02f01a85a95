// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/internal/bufpool"
)

// Primitive type codes.
const (
	primitiveNull      byte = 0
	primitiveBool      byte = 1
	primitiveByte      byte = 2
	primitiveChar      byte = 3
	primitiveShort     byte = 4
	primitiveInt       byte = 5
	primitiveLong      byte = 6
	primitiveDouble    byte = 7
	primitiveFloat     byte = 8
	primitiveString    byte = 9
	primitiveByteArray byte = 10
	primitiveMap       byte = 11
	primitiveList      byte = 12
	primitiveBigString byte = 13
)

// Char is a UTF-16 code unit. It keeps the char primitive distinct from
// short and int on the wire.
type Char uint16

// MarshalPrimitiveMap encodes a map of primitives. Supported value types are
// nil, bool, int8, Char, int16, int32, int, int64, float32, float64, string,
// []byte, map[string]any and []any. A nil map encodes as nil.
func MarshalPrimitiveMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	buf := bufpool.Get()
	defer bufpool.Put(buf)
	if err := writePrimitiveMap(buf, m); err != nil {
		return nil, err
	}
	return bufpool.Copy(buf), nil
}

// UnmarshalPrimitiveMap decodes bytes written by MarshalPrimitiveMap.
func UnmarshalPrimitiveMap(b []byte) (map[string]any, error) {
	if b == nil {
		return nil, nil
	}
	r := bytes.NewReader(b)
	m, err := readPrimitiveMap(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after map", ErrTrailingBytes, r.Len())
	}
	return m, nil
}

func writePrimitiveMap(w io.Writer, m map[string]any) error {
	if m == nil {
		return codec.EncodeInt32(w, -1)
	}
	if err := codec.EncodeInt32(w, int32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := codec.EncodeUTF(w, k); err != nil {
			return err
		}
		if err := writePrimitive(w, v); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return nil
}

func readPrimitiveMap(r io.Reader) (map[string]any, error) {
	n, err := codec.DecodeInt32(r)
	if err != nil {
		return nil, protocolError(err)
	}
	if n < 0 {
		return nil, nil
	}
	m := make(map[string]any, min(int(n), 1024))
	for range n {
		k, err := codec.DecodeUTF(r)
		if err != nil {
			return nil, protocolError(err)
		}
		v, err := readPrimitive(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func writePrimitive(w io.Writer, v any) error {
	enc := func(code byte, fn func() error) error {
		if err := codec.EncodeByte(w, code); err != nil {
			return err
		}
		return fn()
	}
	switch v := v.(type) {
	case nil:
		return codec.EncodeByte(w, primitiveNull)
	case bool:
		return enc(primitiveBool, func() error { return codec.EncodeBool(w, v) })
	case int8:
		return enc(primitiveByte, func() error { return codec.EncodeByte(w, byte(v)) })
	case Char:
		return enc(primitiveChar, func() error { return codec.EncodeUint16(w, uint16(v)) })
	case int16:
		return enc(primitiveShort, func() error { return codec.EncodeInt16(w, v) })
	case int32:
		return enc(primitiveInt, func() error { return codec.EncodeInt32(w, v) })
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return writePrimitive(w, int32(v))
		}
		return writePrimitive(w, int64(v))
	case int64:
		return enc(primitiveLong, func() error { return codec.EncodeInt64(w, v) })
	case float32:
		return enc(primitiveFloat, func() error { return codec.EncodeUint32(w, math.Float32bits(v)) })
	case float64:
		return enc(primitiveDouble, func() error { return codec.EncodeInt64(w, int64(math.Float64bits(v))) })
	case []byte:
		return enc(primitiveByteArray, func() error { return codec.EncodeBytes(w, v) })
	case string:
		if n, _ := codec.ModifiedUTF8Len(v); n <= math.MaxUint16 {
			return enc(primitiveString, func() error { return codec.EncodeUTF(w, v) })
		}
		b, err := codec.AppendModifiedUTF8(nil, v)
		if err != nil {
			return err
		}
		return enc(primitiveBigString, func() error { return codec.EncodeBytes(w, b) })
	case map[string]any:
		return enc(primitiveMap, func() error { return writePrimitiveMap(w, v) })
	case []any:
		return enc(primitiveList, func() error {
			if err := codec.EncodeInt32(w, int32(len(v))); err != nil {
				return err
			}
			for _, e := range v {
				if err := writePrimitive(w, e); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func readPrimitive(r io.Reader) (any, error) {
	code, err := codec.DecodeByte(r)
	if err != nil {
		return nil, protocolError(err)
	}
	var v any
	switch code {
	case primitiveNull:
		return nil, nil
	case primitiveBool:
		v, err = codec.DecodeBool(r)
	case primitiveByte:
		var b byte
		b, err = codec.DecodeByte(r)
		v = int8(b)
	case primitiveChar:
		var c uint16
		c, err = codec.DecodeUint16(r)
		v = Char(c)
	case primitiveShort:
		v, err = codec.DecodeInt16(r)
	case primitiveInt:
		v, err = codec.DecodeInt32(r)
	case primitiveLong:
		v, err = codec.DecodeInt64(r)
	case primitiveFloat:
		var bits uint32
		bits, err = codec.DecodeUint32(r)
		v = math.Float32frombits(bits)
	case primitiveDouble:
		var bits int64
		bits, err = codec.DecodeInt64(r)
		v = math.Float64frombits(uint64(bits))
	case primitiveByteArray:
		v, err = codec.DecodeBytes(r)
	case primitiveString:
		v, err = codec.DecodeUTF(r)
	case primitiveBigString:
		var b []byte
		if b, err = codec.DecodeBytes(r); err == nil {
			v, err = codec.DecodeModifiedUTF8(b)
		}
	case primitiveMap:
		return readPrimitiveMap(r)
	case primitiveList:
		return readPrimitiveList(r)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPrimitive, code)
	}
	if err != nil {
		return nil, protocolError(err)
	}
	return v, nil
}

func readPrimitiveList(r io.Reader) ([]any, error) {
	n, err := codec.DecodeInt32(r)
	if err != nil {
		return nil, protocolError(err)
	}
	if n < 0 {
		return nil, ErrNegativeCount
	}
	out := make([]any, 0, min(int(n), 1024))
	for range n {
		v, err := readPrimitive(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
