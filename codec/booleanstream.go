// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"math"
)

const defaultBooleanStreamSize = 32

// BooleanStream packs booleans at bit granularity. Tight encoding writes one
// presence flag per optional field into it during the sizing pass and reads
// them back, in the same order, while writing or reading field bytes.
type BooleanStream struct {
	data       []byte
	arrayLimit int
	arrayPos   int
	bytePos    uint
}

// NewBooleanStream returns an empty stream ready for writing.
func NewBooleanStream() *BooleanStream {
	return &BooleanStream{data: make([]byte, defaultBooleanStreamSize)}
}

// WriteBoolean appends v.
func (bs *BooleanStream) WriteBoolean(v bool) {
	if bs.bytePos == 0 {
		bs.arrayLimit++
		if bs.arrayLimit >= len(bs.data) {
			grown := make([]byte, len(bs.data)*2)
			copy(grown, bs.data)
			bs.data = grown
		}
	}
	if v {
		bs.data[bs.arrayPos] |= 0x01 << bs.bytePos
	}
	bs.advance()
}

// ReadBoolean returns the next bit. Reading beyond the bytes that were
// written or unmarshalled means both ends disagree on the field layout.
func (bs *BooleanStream) ReadBoolean() (bool, error) {
	if bs.arrayPos >= bs.arrayLimit {
		return false, ErrBooleanStreamUnderflow
	}
	v := (bs.data[bs.arrayPos]>>bs.bytePos)&0x01 != 0
	bs.advance()
	return v, nil
}

func (bs *BooleanStream) advance() {
	bs.bytePos++
	if bs.bytePos >= 8 {
		bs.bytePos = 0
		bs.arrayPos++
	}
}

// Marshal writes the length header and the packed bytes, then rewinds the
// stream so the same bits can be read back during the second encoding pass.
func (bs *BooleanStream) Marshal(w io.Writer) error {
	switch {
	case bs.arrayLimit < 64:
		if err := EncodeByte(w, byte(bs.arrayLimit)); err != nil {
			return err
		}
	case bs.arrayLimit < 256:
		if err := EncodeByte(w, 0xC0); err != nil {
			return err
		}
		if err := EncodeByte(w, byte(bs.arrayLimit)); err != nil {
			return err
		}
	case bs.arrayLimit <= math.MaxInt16:
		if err := EncodeByte(w, 0x80); err != nil {
			return err
		}
		if err := EncodeInt16(w, int16(bs.arrayLimit)); err != nil {
			return err
		}
	default:
		return ErrBooleanStreamTooLarge
	}
	if _, err := w.Write(bs.data[:bs.arrayLimit]); err != nil {
		return err
	}
	bs.Clear()
	return nil
}

// Unmarshal replaces the stream content with the bits read from r.
func (bs *BooleanStream) Unmarshal(r io.Reader) error {
	b, err := DecodeByte(r)
	if err != nil {
		return err
	}
	limit := int(b)
	switch b {
	case 0xC0:
		b, err := DecodeByte(r)
		if err != nil {
			return err
		}
		limit = int(b)
	case 0x80:
		n, err := DecodeInt16(r)
		if err != nil {
			return err
		}
		if n < 0 {
			return ErrNegativeLength
		}
		limit = int(n)
	}
	if len(bs.data) < limit {
		bs.data = make([]byte, limit)
	}
	if _, err := io.ReadFull(r, bs.data[:limit]); err != nil {
		return err
	}
	bs.arrayLimit = limit
	bs.Clear()
	return nil
}

// Clear rewinds the read position without discarding content.
func (bs *BooleanStream) Clear() {
	bs.arrayPos = 0
	bs.bytePos = 0
}

// MarshalledSize returns the number of bytes Marshal will write.
func (bs *BooleanStream) MarshalledSize() int {
	switch {
	case bs.arrayLimit < 64:
		return 1 + bs.arrayLimit
	case bs.arrayLimit < 256:
		return 2 + bs.arrayLimit
	default:
		return 3 + bs.arrayLimit
	}
}
