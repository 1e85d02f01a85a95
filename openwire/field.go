// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/absmach/openwire/codec"
)

// field is one wire field bound to a struct member. Tight encoding runs
// tightMarshal1 over every field to size the frame and collect flags, then
// tightMarshal2 to write the bytes.
type field interface {
	tightMarshal1(f *Format, bs *codec.BooleanStream) (int, error)
	tightMarshal2(f *Format, w io.Writer, bs *codec.BooleanStream) error
	tightUnmarshal(f *Format, r io.Reader, bs *codec.BooleanStream) error
	looseMarshal(f *Format, w io.Writer) error
	looseUnmarshal(f *Format, r io.Reader) error
}

type byteField struct{ p *byte }

func (fd byteField) tightMarshal1(*Format, *codec.BooleanStream) (int, error) { return 1, nil }

func (fd byteField) tightMarshal2(_ *Format, w io.Writer, _ *codec.BooleanStream) error {
	return codec.EncodeByte(w, *fd.p)
}

func (fd byteField) tightUnmarshal(_ *Format, r io.Reader, _ *codec.BooleanStream) (err error) {
	*fd.p, err = codec.DecodeByte(r)
	return err
}

func (fd byteField) looseMarshal(_ *Format, w io.Writer) error {
	return codec.EncodeByte(w, *fd.p)
}

func (fd byteField) looseUnmarshal(_ *Format, r io.Reader) (err error) {
	*fd.p, err = codec.DecodeByte(r)
	return err
}

type boolField struct{ p *bool }

func (fd boolField) tightMarshal1(_ *Format, bs *codec.BooleanStream) (int, error) {
	bs.WriteBoolean(*fd.p)
	return 0, nil
}

func (fd boolField) tightMarshal2(_ *Format, _ io.Writer, bs *codec.BooleanStream) error {
	_, err := bs.ReadBoolean()
	return err
}

func (fd boolField) tightUnmarshal(_ *Format, _ io.Reader, bs *codec.BooleanStream) (err error) {
	*fd.p, err = bs.ReadBoolean()
	return err
}

func (fd boolField) looseMarshal(_ *Format, w io.Writer) error {
	return codec.EncodeBool(w, *fd.p)
}

func (fd boolField) looseUnmarshal(_ *Format, r io.Reader) (err error) {
	*fd.p, err = codec.DecodeBool(r)
	return err
}

type int16Field struct{ p *int16 }

func (fd int16Field) tightMarshal1(*Format, *codec.BooleanStream) (int, error) { return 2, nil }

func (fd int16Field) tightMarshal2(_ *Format, w io.Writer, _ *codec.BooleanStream) error {
	return codec.EncodeInt16(w, *fd.p)
}

func (fd int16Field) tightUnmarshal(_ *Format, r io.Reader, _ *codec.BooleanStream) (err error) {
	*fd.p, err = codec.DecodeInt16(r)
	return err
}

func (fd int16Field) looseMarshal(_ *Format, w io.Writer) error {
	return codec.EncodeInt16(w, *fd.p)
}

func (fd int16Field) looseUnmarshal(_ *Format, r io.Reader) (err error) {
	*fd.p, err = codec.DecodeInt16(r)
	return err
}

type int32Field struct{ p *int32 }

func (fd int32Field) tightMarshal1(*Format, *codec.BooleanStream) (int, error) { return 4, nil }

func (fd int32Field) tightMarshal2(_ *Format, w io.Writer, _ *codec.BooleanStream) error {
	return codec.EncodeInt32(w, *fd.p)
}

func (fd int32Field) tightUnmarshal(_ *Format, r io.Reader, _ *codec.BooleanStream) (err error) {
	*fd.p, err = codec.DecodeInt32(r)
	return err
}

func (fd int32Field) looseMarshal(_ *Format, w io.Writer) error {
	return codec.EncodeInt32(w, *fd.p)
}

func (fd int32Field) looseUnmarshal(_ *Format, r io.Reader) (err error) {
	*fd.p, err = codec.DecodeInt32(r)
	return err
}

// int64Field uses two flag bits in tight mode to pick a 0, 2, 4 or 8 byte
// representation.
type int64Field struct{ p *int64 }

func (fd int64Field) tightMarshal1(_ *Format, bs *codec.BooleanStream) (int, error) {
	v := uint64(*fd.p)
	switch {
	case v == 0:
		bs.WriteBoolean(false)
		bs.WriteBoolean(false)
		return 0, nil
	case v&0xFFFFFFFFFFFF0000 == 0:
		bs.WriteBoolean(false)
		bs.WriteBoolean(true)
		return 2, nil
	case v&0xFFFFFFFF00000000 == 0:
		bs.WriteBoolean(true)
		bs.WriteBoolean(false)
		return 4, nil
	default:
		bs.WriteBoolean(true)
		bs.WriteBoolean(true)
		return 8, nil
	}
}

func (fd int64Field) tightMarshal2(_ *Format, w io.Writer, bs *codec.BooleanStream) error {
	hi, lo, err := readPair(bs)
	if err != nil {
		return err
	}
	switch {
	case hi && lo:
		return codec.EncodeInt64(w, *fd.p)
	case hi:
		return codec.EncodeUint32(w, uint32(*fd.p))
	case lo:
		return codec.EncodeUint16(w, uint16(*fd.p))
	}
	return nil
}

func (fd int64Field) tightUnmarshal(_ *Format, r io.Reader, bs *codec.BooleanStream) error {
	hi, lo, err := readPair(bs)
	if err != nil {
		return err
	}
	switch {
	case hi && lo:
		*fd.p, err = codec.DecodeInt64(r)
	case hi:
		var v uint32
		v, err = codec.DecodeUint32(r)
		*fd.p = int64(v)
	case lo:
		var v uint16
		v, err = codec.DecodeUint16(r)
		*fd.p = int64(v)
	default:
		*fd.p = 0
	}
	return err
}

func (fd int64Field) looseMarshal(_ *Format, w io.Writer) error {
	return codec.EncodeInt64(w, *fd.p)
}

func (fd int64Field) looseUnmarshal(_ *Format, r io.Reader) (err error) {
	*fd.p, err = codec.DecodeInt64(r)
	return err
}

func readPair(bs *codec.BooleanStream) (bool, bool, error) {
	a, err := bs.ReadBoolean()
	if err != nil {
		return false, false, err
	}
	b, err := bs.ReadBoolean()
	return a, b, err
}

// stringField encodes the empty string as absent.
type stringField struct{ p *string }

func (fd stringField) tightMarshal1(_ *Format, bs *codec.BooleanStream) (int, error) {
	s := *fd.p
	bs.WriteBoolean(s != "")
	if s == "" {
		return 0, nil
	}
	if !utf8.ValidString(s) {
		return 0, codec.ErrMalformedString
	}
	n, ascii := codec.ModifiedUTF8Len(s)
	if n >= math.MaxInt16 {
		return 0, codec.ErrStringTooLong
	}
	bs.WriteBoolean(ascii)
	return n + 2, nil
}

func (fd stringField) tightMarshal2(_ *Format, w io.Writer, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return err
	}
	ascii, err := bs.ReadBoolean()
	if err != nil {
		return err
	}
	if ascii {
		return codec.EncodeASCII(w, *fd.p)
	}
	return codec.EncodeUTF(w, *fd.p)
}

func (fd stringField) tightUnmarshal(_ *Format, r io.Reader, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		*fd.p = ""
		return err
	}
	ascii, err := bs.ReadBoolean()
	if err != nil {
		return err
	}
	if ascii {
		*fd.p, err = codec.DecodeASCII(r)
		return err
	}
	*fd.p, err = codec.DecodeUTF(r)
	return err
}

func (fd stringField) looseMarshal(_ *Format, w io.Writer) error {
	if err := codec.EncodeBool(w, *fd.p != ""); err != nil || *fd.p == "" {
		return err
	}
	return codec.EncodeUTF(w, *fd.p)
}

func (fd stringField) looseUnmarshal(_ *Format, r io.Reader) error {
	present, err := codec.DecodeBool(r)
	if err != nil || !present {
		*fd.p = ""
		return err
	}
	*fd.p, err = codec.DecodeUTF(r)
	return err
}

// bytesField distinguishes a nil slice (absent) from an empty one.
type bytesField struct{ p *[]byte }

func (fd bytesField) tightMarshal1(_ *Format, bs *codec.BooleanStream) (int, error) {
	bs.WriteBoolean(*fd.p != nil)
	if *fd.p == nil {
		return 0, nil
	}
	if len(*fd.p) > math.MaxInt32 {
		return 0, codec.ErrBytesTooLong
	}
	return 4 + len(*fd.p), nil
}

func (fd bytesField) tightMarshal2(_ *Format, w io.Writer, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return err
	}
	return codec.EncodeBytes(w, *fd.p)
}

func (fd bytesField) tightUnmarshal(_ *Format, r io.Reader, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		*fd.p = nil
		return err
	}
	*fd.p, err = codec.DecodeBytes(r)
	return err
}

func (fd bytesField) looseMarshal(_ *Format, w io.Writer) error {
	if err := codec.EncodeBool(w, *fd.p != nil); err != nil || *fd.p == nil {
		return err
	}
	return codec.EncodeBytes(w, *fd.p)
}

func (fd bytesField) looseUnmarshal(_ *Format, r io.Reader) error {
	present, err := codec.DecodeBool(r)
	if err != nil || !present {
		*fd.p = nil
		return err
	}
	*fd.p, err = codec.DecodeBytes(r)
	return err
}

// constBytesField is a byte array of fixed length with no presence flag and
// no length prefix.
type constBytesField struct {
	p    *[]byte
	size int
}

func (fd constBytesField) check() error {
	if len(*fd.p) != fd.size {
		return fmt.Errorf("%w: want %d bytes, have %d", ErrFixedSize, fd.size, len(*fd.p))
	}
	return nil
}

func (fd constBytesField) tightMarshal1(*Format, *codec.BooleanStream) (int, error) {
	return fd.size, fd.check()
}

func (fd constBytesField) tightMarshal2(_ *Format, w io.Writer, _ *codec.BooleanStream) error {
	_, err := w.Write(*fd.p)
	return err
}

func (fd constBytesField) tightUnmarshal(_ *Format, r io.Reader, _ *codec.BooleanStream) (err error) {
	*fd.p, err = codec.DecodeFixed(r, fd.size)
	return err
}

func (fd constBytesField) looseMarshal(_ *Format, w io.Writer) error {
	if err := fd.check(); err != nil {
		return err
	}
	_, err := w.Write(*fd.p)
	return err
}

func (fd constBytesField) looseUnmarshal(_ *Format, r io.Reader) (err error) {
	*fd.p, err = codec.DecodeFixed(r, fd.size)
	return err
}

// nestedField holds another data structure, written with its own type tag.
type nestedField[T DataStructure] struct{ p *T }

func nested[T DataStructure](p *T) field {
	return nestedField[T]{p}
}

func (fd nestedField[T]) tightMarshal1(f *Format, bs *codec.BooleanStream) (int, error) {
	return f.TightMarshalNested1(*fd.p, bs)
}

func (fd nestedField[T]) tightMarshal2(f *Format, w io.Writer, bs *codec.BooleanStream) error {
	return f.TightMarshalNested2(*fd.p, w, bs)
}

func (fd nestedField[T]) tightUnmarshal(f *Format, r io.Reader, bs *codec.BooleanStream) error {
	ds, err := f.TightUnmarshalNested(r, bs)
	if err != nil {
		return err
	}
	return assign(fd.p, ds)
}

func (fd nestedField[T]) looseMarshal(f *Format, w io.Writer) error {
	return f.LooseMarshalNested(*fd.p, w)
}

func (fd nestedField[T]) looseUnmarshal(f *Format, r io.Reader) error {
	ds, err := f.LooseUnmarshalNested(r)
	if err != nil {
		return err
	}
	return assign(fd.p, ds)
}

// nestedArrayField is an optional, int16 counted list of nested structures.
type nestedArrayField[T DataStructure] struct{ p *[]T }

func nestedArray[T DataStructure](p *[]T) field {
	return nestedArrayField[T]{p}
}

func (fd nestedArrayField[T]) tightMarshal1(f *Format, bs *codec.BooleanStream) (int, error) {
	bs.WriteBoolean(*fd.p != nil)
	if *fd.p == nil {
		return 0, nil
	}
	if len(*fd.p) > math.MaxInt16 {
		return 0, ErrArrayTooLong
	}
	rc := 2
	for _, e := range *fd.p {
		n, err := f.TightMarshalNested1(e, bs)
		if err != nil {
			return 0, err
		}
		rc += n
	}
	return rc, nil
}

func (fd nestedArrayField[T]) tightMarshal2(f *Format, w io.Writer, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return err
	}
	if err := codec.EncodeInt16(w, int16(len(*fd.p))); err != nil {
		return err
	}
	for _, e := range *fd.p {
		if err := f.TightMarshalNested2(e, w, bs); err != nil {
			return err
		}
	}
	return nil
}

func (fd nestedArrayField[T]) tightUnmarshal(f *Format, r io.Reader, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		*fd.p = nil
		return err
	}
	n, err := readCount(r)
	if err != nil {
		return err
	}
	out := make([]T, n)
	for i := range out {
		ds, err := f.TightUnmarshalNested(r, bs)
		if err != nil {
			return err
		}
		if err := assign(&out[i], ds); err != nil {
			return err
		}
	}
	*fd.p = out
	return nil
}

func (fd nestedArrayField[T]) looseMarshal(f *Format, w io.Writer) error {
	if err := codec.EncodeBool(w, *fd.p != nil); err != nil || *fd.p == nil {
		return err
	}
	if len(*fd.p) > math.MaxInt16 {
		return ErrArrayTooLong
	}
	if err := codec.EncodeInt16(w, int16(len(*fd.p))); err != nil {
		return err
	}
	for _, e := range *fd.p {
		if err := f.LooseMarshalNested(e, w); err != nil {
			return err
		}
	}
	return nil
}

func (fd nestedArrayField[T]) looseUnmarshal(f *Format, r io.Reader) error {
	present, err := codec.DecodeBool(r)
	if err != nil || !present {
		*fd.p = nil
		return err
	}
	n, err := readCount(r)
	if err != nil {
		return err
	}
	out := make([]T, n)
	for i := range out {
		ds, err := f.LooseUnmarshalNested(r)
		if err != nil {
			return err
		}
		if err := assign(&out[i], ds); err != nil {
			return err
		}
	}
	*fd.p = out
	return nil
}

func readCount(r io.Reader) (int, error) {
	n, err := codec.DecodeInt16(r)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrNegativeCount
	}
	return int(n), nil
}

func assign[T DataStructure](p *T, ds DataStructure) error {
	if ds == nil {
		var zero T
		*p = zero
		return nil
	}
	v, ok := ds.(T)
	if !ok {
		return fmt.Errorf("%w: tag %d", ErrUnexpectedType, ds.DataStructureType())
	}
	*p = v
	return nil
}

type throwableField struct{ p **BrokerError }

func (fd throwableField) tightMarshal1(f *Format, bs *codec.BooleanStream) (int, error) {
	return f.tightMarshalThrowable1(*fd.p, bs)
}

func (fd throwableField) tightMarshal2(f *Format, w io.Writer, bs *codec.BooleanStream) error {
	return f.tightMarshalThrowable2(*fd.p, w, bs)
}

func (fd throwableField) tightUnmarshal(f *Format, r io.Reader, bs *codec.BooleanStream) (err error) {
	*fd.p, err = f.tightUnmarshalThrowable(r, bs)
	return err
}

func (fd throwableField) looseMarshal(f *Format, w io.Writer) error {
	return f.looseMarshalThrowable(*fd.p, w)
}

func (fd throwableField) looseUnmarshal(f *Format, r io.Reader) (err error) {
	*fd.p, err = f.looseUnmarshalThrowable(r)
	return err
}
