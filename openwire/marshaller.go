// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"fmt"
	"io"

	"github.com/absmach/openwire/codec"
)

// Marshaller encodes and decodes one data structure type for one protocol
// version. Tight marshalling is two pass: TightMarshal1 returns the body size
// and records flags into bs, TightMarshal2 writes the body and consumes the
// same flags.
type Marshaller interface {
	DataStructureType() byte
	CreateObject() DataStructure
	TightMarshal1(f *Format, o DataStructure, bs *codec.BooleanStream) (int, error)
	TightMarshal2(f *Format, o DataStructure, w io.Writer, bs *codec.BooleanStream) error
	TightUnmarshal(f *Format, o DataStructure, r io.Reader, bs *codec.BooleanStream) error
	LooseMarshal(f *Format, o DataStructure, w io.Writer) error
	LooseUnmarshal(f *Format, o DataStructure, r io.Reader) error
}

// structMarshaller drives the field list a data structure declares for its
// version.
type structMarshaller struct {
	tag     byte
	version int
	create  func() DataStructure
}

func (m *structMarshaller) DataStructureType() byte {
	return m.tag
}

func (m *structMarshaller) CreateObject() DataStructure {
	return m.create()
}

func (m *structMarshaller) fieldsOf(o DataStructure) ([]field, error) {
	if o.DataStructureType() != m.tag {
		return nil, fmt.Errorf("%w: marshaller for %d given %d", ErrUnexpectedType, m.tag, o.DataStructureType())
	}
	fo, ok := o.(fielded)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCommand, o)
	}
	return fo.fields(m.version), nil
}

func (m *structMarshaller) TightMarshal1(f *Format, o DataStructure, bs *codec.BooleanStream) (int, error) {
	fields, err := m.fieldsOf(o)
	if err != nil {
		return 0, err
	}
	rc := 0
	for _, fd := range fields {
		n, err := fd.tightMarshal1(f, bs)
		if err != nil {
			return 0, err
		}
		rc += n
	}
	return rc, nil
}

func (m *structMarshaller) TightMarshal2(f *Format, o DataStructure, w io.Writer, bs *codec.BooleanStream) error {
	fields, err := m.fieldsOf(o)
	if err != nil {
		return err
	}
	for _, fd := range fields {
		if err := fd.tightMarshal2(f, w, bs); err != nil {
			return err
		}
	}
	return nil
}

func (m *structMarshaller) TightUnmarshal(f *Format, o DataStructure, r io.Reader, bs *codec.BooleanStream) error {
	fields, err := m.fieldsOf(o)
	if err != nil {
		return err
	}
	for _, fd := range fields {
		if err := fd.tightUnmarshal(f, r, bs); err != nil {
			return err
		}
	}
	return nil
}

func (m *structMarshaller) LooseMarshal(f *Format, o DataStructure, w io.Writer) error {
	fields, err := m.fieldsOf(o)
	if err != nil {
		return err
	}
	for _, fd := range fields {
		if err := fd.looseMarshal(f, w); err != nil {
			return err
		}
	}
	return nil
}

func (m *structMarshaller) LooseUnmarshal(f *Format, o DataStructure, r io.Reader) error {
	fields, err := m.fieldsOf(o)
	if err != nil {
		return err
	}
	for _, fd := range fields {
		if err := fd.looseUnmarshal(f, r); err != nil {
			return err
		}
	}
	return nil
}
