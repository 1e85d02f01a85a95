// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"io"
	"math"
)

func EncodeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func EncodeBool(w io.Writer, b bool) error {
	if b {
		return EncodeByte(w, 1)
	}
	return EncodeByte(w, 0)
}

func EncodeUint16(w io.Writer, num uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], num)
	_, err := w.Write(b[:])
	return err
}

func EncodeInt16(w io.Writer, num int16) error {
	return EncodeUint16(w, uint16(num))
}

func EncodeUint32(w io.Writer, num uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], num)
	_, err := w.Write(b[:])
	return err
}

func EncodeInt32(w io.Writer, num int32) error {
	return EncodeUint32(w, uint32(num))
}

func EncodeInt64(w io.Writer, num int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(num))
	_, err := w.Write(b[:])
	return err
}

// EncodeBytes writes an int32 length prefix followed by field.
func EncodeBytes(w io.Writer, field []byte) error {
	if len(field) > math.MaxInt32 {
		return ErrBytesTooLong
	}
	if err := EncodeInt32(w, int32(len(field))); err != nil {
		return err
	}
	_, err := w.Write(field)
	return err
}

// EncodeUTF writes s as a uint16 length-prefixed modified UTF-8 string.
func EncodeUTF(w io.Writer, s string) error {
	n, _ := ModifiedUTF8Len(s)
	if n > math.MaxUint16 {
		return ErrStringTooLong
	}
	b, err := AppendModifiedUTF8(make([]byte, 0, n), s)
	if err != nil {
		return err
	}
	if err := EncodeUint16(w, uint16(n)); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EncodeASCII writes s as an int16 length prefix followed by one byte per character.
// Callers must have checked that s is ASCII.
func EncodeASCII(w io.Writer, s string) error {
	if len(s) > math.MaxInt16 {
		return ErrStringTooLong
	}
	if err := EncodeInt16(w, int16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}
