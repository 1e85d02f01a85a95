// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/absmach/openwire/codec"
)

// Format is an immutable snapshot of the encoding parameters in effect for a
// connection: protocol version, negotiated flags and the marshaller table.
// A WireFormat publishes a new Format on renegotiation; every frame is
// encoded or decoded against one snapshot.
type Format struct {
	version              int
	tightEncoding        bool
	sizePrefixDisabled   bool
	stackTraceEnabled    bool
	tcpNoDelay           bool
	maxInactivity        time.Duration
	maxInactivityInitial time.Duration
	maxFrameSize         int64
	marshallers          [256]Marshaller
}

// Version is the protocol version frames are encoded with.
func (f *Format) Version() int {
	return f.version
}

func (f *Format) TightEncodingEnabled() bool {
	return f.tightEncoding
}

func (f *Format) SizePrefixDisabled() bool {
	return f.sizePrefixDisabled
}

func (f *Format) StackTraceEnabled() bool {
	return f.stackTraceEnabled
}

func (f *Format) TCPNoDelayEnabled() bool {
	return f.tcpNoDelay
}

// MaxInactivityDuration is the negotiated keep-alive window. Zero disables
// inactivity monitoring.
func (f *Format) MaxInactivityDuration() time.Duration {
	return f.maxInactivity
}

func (f *Format) MaxInactivityInitialDelay() time.Duration {
	return f.maxInactivityInitial
}

func (f *Format) MaxFrameSize() int64 {
	return f.maxFrameSize
}

// Marshaller returns the marshaller registered for tag, if any.
func (f *Format) Marshaller(tag byte) (Marshaller, bool) {
	m := f.marshallers[tag]
	return m, m != nil
}

func (f *Format) lookup(tag byte) (Marshaller, error) {
	m := f.marshallers[tag]
	if m == nil {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownDataType, tag)
	}
	return m, nil
}

// marshal writes one complete frame for o into buf.
func (f *Format) marshal(o DataStructure, buf *bytes.Buffer) error {
	if isNil(o) {
		if !f.sizePrefixDisabled {
			if err := codec.EncodeInt32(buf, 1); err != nil {
				return err
			}
		}
		return codec.EncodeByte(buf, NullType)
	}

	tag := o.DataStructureType()
	m, err := f.lookup(tag)
	if err != nil {
		return err
	}

	if f.tightEncoding {
		bs := codec.NewBooleanStream()
		size, err := m.TightMarshal1(f, o, bs)
		if err != nil {
			return err
		}
		size += 1 + bs.MarshalledSize()
		if int64(size) > f.maxFrameSize {
			return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
		}
		if !f.sizePrefixDisabled {
			if err := codec.EncodeInt32(buf, int32(size)); err != nil {
				return err
			}
		}
		start := buf.Len()
		if err := codec.EncodeByte(buf, tag); err != nil {
			return err
		}
		if err := bs.Marshal(buf); err != nil {
			return err
		}
		if err := m.TightMarshal2(f, o, buf, bs); err != nil {
			return err
		}
		if written := buf.Len() - start; written != size {
			return fmt.Errorf("%w: tag %d computed %d wrote %d", ErrSizeMismatch, tag, size, written)
		}
		return nil
	}

	if f.sizePrefixDisabled {
		if err := codec.EncodeByte(buf, tag); err != nil {
			return err
		}
		return m.LooseMarshal(f, o, buf)
	}

	// Reserve the size prefix and patch it once the body length is known.
	start := buf.Len()
	buf.Write([]byte{0, 0, 0, 0})
	if err := codec.EncodeByte(buf, tag); err != nil {
		return err
	}
	if err := m.LooseMarshal(f, o, buf); err != nil {
		return err
	}
	size := buf.Len() - start - 4
	if int64(size) > f.maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	binary.BigEndian.PutUint32(buf.Bytes()[start:], uint32(size))
	return nil
}

// unmarshal reads one complete frame from r. A clean end of stream before the
// first byte is returned unwrapped so transports can tell it apart from a
// truncated frame.
func (f *Format) unmarshal(r io.Reader) (DataStructure, error) {
	if f.sizePrefixDisabled {
		lr := &io.LimitedReader{R: r, N: f.maxFrameSize}
		o, err := f.unmarshalBody(lr)
		if err != nil && lr.N == 0 {
			return nil, fmt.Errorf("%w: over %d bytes", ErrFrameTooLarge, f.maxFrameSize)
		}
		return o, err
	}

	size, err := codec.DecodeInt32(r)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameSize, size)
	}
	if int64(size) > f.maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	body, err := codec.DecodeFixed(r, int(size))
	if err != nil {
		return nil, protocolError(err)
	}
	br := bytes.NewReader(body)
	o, err := f.unmarshalBody(br)
	if err != nil {
		return nil, protocolError(err)
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, br.Len())
	}
	return o, nil
}

func (f *Format) unmarshalBody(r io.Reader) (DataStructure, error) {
	tag, err := codec.DecodeByte(r)
	if err != nil {
		return nil, err
	}
	if tag == NullType {
		return nil, nil
	}
	m, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	o := m.CreateObject()
	if f.tightEncoding {
		bs := codec.NewBooleanStream()
		if err := bs.Unmarshal(r); err != nil {
			return nil, protocolError(err)
		}
		if err := m.TightUnmarshal(f, o, r, bs); err != nil {
			return nil, protocolError(err)
		}
		return o, nil
	}
	if err := m.LooseUnmarshal(f, o, r); err != nil {
		return nil, protocolError(err)
	}
	return o, nil
}

// TightMarshalNested1 sizes a nested structure and records its flags.
func (f *Format) TightMarshalNested1(o DataStructure, bs *codec.BooleanStream) (int, error) {
	bs.WriteBoolean(!isNil(o))
	if isNil(o) {
		return 0, nil
	}
	if ma, ok := o.(MarshalAware); ok {
		seq := ma.MarshalledForm()
		bs.WriteBoolean(seq != nil)
		if seq != nil {
			return 1 + len(seq), nil
		}
	}
	m, err := f.lookup(o.DataStructureType())
	if err != nil {
		return 0, err
	}
	n, err := m.TightMarshal1(f, o, bs)
	if err != nil {
		return 0, err
	}
	return 1 + n, nil
}

// TightMarshalNested2 writes a nested structure sized by TightMarshalNested1.
func (f *Format) TightMarshalNested2(o DataStructure, w io.Writer, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return err
	}
	tag := o.DataStructureType()
	if err := codec.EncodeByte(w, tag); err != nil {
		return err
	}
	if ma, ok := o.(MarshalAware); ok {
		cached, err := bs.ReadBoolean()
		if err != nil {
			return err
		}
		if cached {
			_, err := w.Write(ma.MarshalledForm())
			return err
		}
	}
	m, err := f.lookup(tag)
	if err != nil {
		return err
	}
	return m.TightMarshal2(f, o, w, bs)
}

// TightUnmarshalNested reads a nested structure. A cached marshal aware
// structure carries its own size prefix and boolean stream.
func (f *Format) TightUnmarshalNested(r io.Reader, bs *codec.BooleanStream) (DataStructure, error) {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return nil, err
	}
	tag, err := codec.DecodeByte(r)
	if err != nil {
		return nil, err
	}
	m, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	o := m.CreateObject()

	ma, ok := o.(MarshalAware)
	if !ok {
		return o, m.TightUnmarshal(f, o, r, bs)
	}
	cached, err := bs.ReadBoolean()
	if err != nil {
		return nil, err
	}
	if !cached {
		return o, m.TightUnmarshal(f, o, r, bs)
	}

	size, err := codec.DecodeInt32(r)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: cached form of %d bytes", ErrInvalidFrameSize, size)
	}
	body, err := codec.DecodeFixed(r, int(size))
	if err != nil {
		return nil, err
	}
	br := bytes.NewReader(body)
	inner, err := codec.DecodeByte(br)
	if err != nil {
		return nil, err
	}
	if inner != tag {
		return nil, fmt.Errorf("%w: cached form tag %d inside %d", ErrUnexpectedType, inner, tag)
	}
	ibs := codec.NewBooleanStream()
	if err := ibs.Unmarshal(br); err != nil {
		return nil, err
	}
	if err := m.TightUnmarshal(f, o, br, ibs); err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes in cached form", ErrTrailingBytes, br.Len())
	}

	seq := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(seq, uint32(size))
	copy(seq[4:], body)
	ma.SetMarshalledForm(seq)
	return o, nil
}

// LooseMarshalNested writes a presence byte, the tag and the fields.
func (f *Format) LooseMarshalNested(o DataStructure, w io.Writer) error {
	if err := codec.EncodeBool(w, !isNil(o)); err != nil || isNil(o) {
		return err
	}
	tag := o.DataStructureType()
	m, err := f.lookup(tag)
	if err != nil {
		return err
	}
	if err := codec.EncodeByte(w, tag); err != nil {
		return err
	}
	return m.LooseMarshal(f, o, w)
}

// LooseUnmarshalNested reads a structure written by LooseMarshalNested.
func (f *Format) LooseUnmarshalNested(r io.Reader) (DataStructure, error) {
	present, err := codec.DecodeBool(r)
	if err != nil || !present {
		return nil, err
	}
	tag, err := codec.DecodeByte(r)
	if err != nil {
		return nil, err
	}
	m, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	o := m.CreateObject()
	return o, m.LooseUnmarshal(f, o, r)
}

func (f *Format) tightMarshalThrowable1(e *BrokerError, bs *codec.BooleanStream) (int, error) {
	bs.WriteBoolean(e != nil)
	if e == nil {
		return 0, nil
	}
	rc := 0
	for _, s := range []*string{&e.ExceptionClass, &e.Message} {
		n, err := stringField{s}.tightMarshal1(f, bs)
		if err != nil {
			return 0, err
		}
		rc += n
	}
	if !f.stackTraceEnabled {
		return rc, nil
	}
	if len(e.StackTrace) > math.MaxInt16 {
		return 0, ErrArrayTooLong
	}
	rc += 2
	for i := range e.StackTrace {
		for _, fd := range e.StackTrace[i].fields() {
			n, err := fd.tightMarshal1(f, bs)
			if err != nil {
				return 0, err
			}
			rc += n
		}
	}
	n, err := f.tightMarshalThrowable1(e.Cause, bs)
	if err != nil {
		return 0, err
	}
	return rc + n, nil
}

func (f *Format) tightMarshalThrowable2(e *BrokerError, w io.Writer, bs *codec.BooleanStream) error {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return err
	}
	for _, s := range []*string{&e.ExceptionClass, &e.Message} {
		if err := (stringField{s}).tightMarshal2(f, w, bs); err != nil {
			return err
		}
	}
	if !f.stackTraceEnabled {
		return nil
	}
	if err := codec.EncodeInt16(w, int16(len(e.StackTrace))); err != nil {
		return err
	}
	for i := range e.StackTrace {
		for _, fd := range e.StackTrace[i].fields() {
			if err := fd.tightMarshal2(f, w, bs); err != nil {
				return err
			}
		}
	}
	return f.tightMarshalThrowable2(e.Cause, w, bs)
}

func (f *Format) tightUnmarshalThrowable(r io.Reader, bs *codec.BooleanStream) (*BrokerError, error) {
	present, err := bs.ReadBoolean()
	if err != nil || !present {
		return nil, err
	}
	e := &BrokerError{}
	for _, s := range []*string{&e.ExceptionClass, &e.Message} {
		if err := (stringField{s}).tightUnmarshal(f, r, bs); err != nil {
			return nil, err
		}
	}
	if !f.stackTraceEnabled {
		return e, nil
	}
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.StackTrace = make([]StackTraceElement, n)
	}
	for i := range e.StackTrace {
		for _, fd := range e.StackTrace[i].fields() {
			if err := fd.tightUnmarshal(f, r, bs); err != nil {
				return nil, err
			}
		}
	}
	if e.Cause, err = f.tightUnmarshalThrowable(r, bs); err != nil {
		return nil, err
	}
	return e, nil
}

func (f *Format) looseMarshalThrowable(e *BrokerError, w io.Writer) error {
	if err := codec.EncodeBool(w, e != nil); err != nil || e == nil {
		return err
	}
	for _, s := range []*string{&e.ExceptionClass, &e.Message} {
		if err := (stringField{s}).looseMarshal(f, w); err != nil {
			return err
		}
	}
	if !f.stackTraceEnabled {
		return nil
	}
	if len(e.StackTrace) > math.MaxInt16 {
		return ErrArrayTooLong
	}
	if err := codec.EncodeInt16(w, int16(len(e.StackTrace))); err != nil {
		return err
	}
	for i := range e.StackTrace {
		for _, fd := range e.StackTrace[i].fields() {
			if err := fd.looseMarshal(f, w); err != nil {
				return err
			}
		}
	}
	return f.looseMarshalThrowable(e.Cause, w)
}

func (f *Format) looseUnmarshalThrowable(r io.Reader) (*BrokerError, error) {
	present, err := codec.DecodeBool(r)
	if err != nil || !present {
		return nil, err
	}
	e := &BrokerError{}
	for _, s := range []*string{&e.ExceptionClass, &e.Message} {
		if err := (stringField{s}).looseUnmarshal(f, r); err != nil {
			return nil, err
		}
	}
	if !f.stackTraceEnabled {
		return e, nil
	}
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.StackTrace = make([]StackTraceElement, n)
	}
	for i := range e.StackTrace {
		for _, fd := range e.StackTrace[i].fields() {
			if err := fd.looseUnmarshal(f, r); err != nil {
				return nil, err
			}
		}
	}
	if e.Cause, err = f.looseUnmarshalThrowable(r); err != nil {
		return nil, err
	}
	return e, nil
}
