// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"io"
)

func DecodeByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// DecodeBool reads a single byte, treating any non-zero value as true.
func DecodeBool(r io.Reader) (bool, error) {
	b, err := DecodeByte(r)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func DecodeUint16(r io.Reader) (uint16, error) {
	var num [2]byte
	_, err := io.ReadFull(r, num[:])
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(num[:]), nil
}

func DecodeInt16(r io.Reader) (int16, error) {
	v, err := DecodeUint16(r)
	return int16(v), err
}

func DecodeUint32(r io.Reader) (uint32, error) {
	var num [4]byte
	_, err := io.ReadFull(r, num[:])
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(num[:]), nil
}

func DecodeInt32(r io.Reader) (int32, error) {
	v, err := DecodeUint32(r)
	return int32(v), err
}

func DecodeInt64(r io.Reader) (int64, error) {
	var num [8]byte
	_, err := io.ReadFull(r, num[:])
	if err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(num[:])), nil
}

// maxEagerAlloc is the largest length DecodeFixed allocates before reading.
const maxEagerAlloc = 64 * 1024

// DecodeFixed reads exactly n bytes.
func DecodeFixed(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	// Buffered readers reveal a length prefix that overruns the frame before
	// the allocation.
	if lr, ok := r.(interface{ Len() int }); ok && n > lr.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	if n <= maxEagerAlloc {
		field := make([]byte, n)
		if _, err := io.ReadFull(r, field); err != nil {
			return nil, err
		}
		return field, nil
	}
	// Unbounded readers grow the buffer only as data actually arrives.
	field, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if len(field) != n {
		return nil, io.ErrUnexpectedEOF
	}
	return field, nil
}

// DecodeBytes reads an int32 length-prefixed byte array.
func DecodeBytes(r io.Reader) ([]byte, error) {
	size, err := DecodeInt32(r)
	if err != nil {
		return nil, err
	}
	return DecodeFixed(r, int(size))
}

// DecodeUTF reads a uint16 length-prefixed modified UTF-8 string,
// the format produced by Java's DataOutput.writeUTF.
func DecodeUTF(r io.Reader) (string, error) {
	size, err := DecodeUint16(r)
	if err != nil {
		return "", err
	}
	buf, err := DecodeFixed(r, int(size))
	if err != nil {
		return "", err
	}
	return DecodeModifiedUTF8(buf)
}

// DecodeASCII reads an int16 length-prefixed single-byte string.
func DecodeASCII(r io.Reader) (string, error) {
	size, err := DecodeInt16(r)
	if err != nil {
		return "", err
	}
	buf, err := DecodeFixed(r, int(size))
	if err != nil {
		return "", err
	}
	return latin1(buf), nil
}

func latin1(b []byte) string {
	for _, c := range b {
		if c >= 0x80 {
			runes := make([]rune, len(b))
			for i, c := range b {
				runes[i] = rune(c)
			}
			return string(runes)
		}
	}
	return string(b)
}
