// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/absmach/openwire/codec"
	"github.com/absmach/openwire/internal/bufpool"
	"github.com/klauspost/compress/zlib"
)

// AnyMessage is implemented by Message and every typed message.
type AnyMessage interface {
	MarshalAware
	Command
	Base() *Message
}

// Message is a broker message without a typed body.
type Message struct {
	BaseCommand
	ProducerID                *ProducerID
	Destination               Destination
	TransactionID             TransactionID
	OriginalDestination       Destination
	MessageID                 *MessageID
	OriginalTransactionID     TransactionID
	GroupID                   string
	GroupSequence             int32
	CorrelationID             string
	Persistent                bool
	Expiration                int64
	Priority                  byte
	ReplyTo                   Destination
	Timestamp                 int64
	Type                      string
	Content                   []byte
	MarshalledProperties      []byte
	DataStructure             DataStructure
	TargetConsumerID          *ConsumerID
	Compressed                bool
	RedeliveryCounter         int32
	BrokerPath                []*BrokerID
	Arrival                   int64
	UserID                    string
	ReceivedByDFBridge        bool
	Droppable                 bool
	Cluster                   []*BrokerID
	BrokerInTime              int64
	BrokerOutTime             int64
	JMSXGroupFirstForConsumer bool

	marshalled []byte
}

func (*Message) DataStructureType() byte { return MessageType }

func (m *Message) Base() *Message { return m }

func (m *Message) MarshalledForm() []byte { return m.marshalled }

func (m *Message) SetMarshalledForm(b []byte) { m.marshalled = b }

func (m *Message) fields(version int) []field {
	fs := append(m.BaseCommand.fields(),
		nested(&m.ProducerID),
		nested(&m.Destination),
		nested(&m.TransactionID),
		nested(&m.OriginalDestination),
		nested(&m.MessageID),
		nested(&m.OriginalTransactionID),
		stringField{&m.GroupID},
		int32Field{&m.GroupSequence},
		stringField{&m.CorrelationID},
		boolField{&m.Persistent},
		int64Field{&m.Expiration},
		byteField{&m.Priority},
		nested(&m.ReplyTo),
		int64Field{&m.Timestamp},
		stringField{&m.Type},
		bytesField{&m.Content},
		bytesField{&m.MarshalledProperties},
		nested(&m.DataStructure),
		nested(&m.TargetConsumerID),
		boolField{&m.Compressed},
		int32Field{&m.RedeliveryCounter},
		nestedArray(&m.BrokerPath),
		int64Field{&m.Arrival},
		stringField{&m.UserID},
		boolField{&m.ReceivedByDFBridge},
	)
	if version >= 2 {
		fs = append(fs, boolField{&m.Droppable})
	}
	if version >= 3 {
		fs = append(fs,
			nestedArray(&m.Cluster),
			int64Field{&m.BrokerInTime},
			int64Field{&m.BrokerOutTime},
		)
	}
	if version >= 10 {
		fs = append(fs, boolField{&m.JMSXGroupFirstForConsumer})
	}
	return fs
}

// Expired reports whether the message expiration has passed at now.
func (m *Message) Expired(now time.Time) bool {
	return m.Expiration > 0 && now.UnixMilli() > m.Expiration
}

// Redelivered reports whether the broker has delivered the message before.
func (m *Message) Redelivered() bool {
	return m.RedeliveryCounter > 0
}

// Properties decodes the application properties.
func (m *Message) Properties() (map[string]any, error) {
	props, err := UnmarshalPrimitiveMap(m.MarshalledProperties)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}

// SetProperties replaces the application properties.
func (m *Message) SetProperties(props map[string]any) error {
	b, err := MarshalPrimitiveMap(props)
	if err != nil {
		return err
	}
	m.MarshalledProperties = b
	m.marshalled = nil
	return nil
}

// SetProperty sets one application property.
func (m *Message) SetProperty(key string, value any) error {
	props, err := m.Properties()
	if err != nil {
		return err
	}
	props[key] = value
	return m.SetProperties(props)
}

// Property returns one application property, or nil.
func (m *Message) Property(key string) (any, error) {
	props, err := m.Properties()
	if err != nil {
		return nil, err
	}
	return props[key], nil
}

// Compress replaces the content with its zlib compressed form.
func (m *Message) Compress() error {
	if m.Compressed || m.Content == nil {
		return nil
	}
	buf := bufpool.Get()
	defer bufpool.Put(buf)
	zw := zlib.NewWriter(buf)
	if _, err := zw.Write(m.Content); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	m.Content = bufpool.Copy(buf)
	m.Compressed = true
	m.marshalled = nil
	return nil
}

// body returns the uncompressed content.
func (m *Message) body() ([]byte, error) {
	if !m.Compressed || m.Content == nil {
		return m.Content, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(m.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessageBody, err)
	}
	defer zr.Close()
	b, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessageBody, err)
	}
	return b, nil
}

func (m *Message) setBody(b []byte) {
	m.Content = b
	m.Compressed = false
	m.marshalled = nil
}

// TextMessage carries a string body.
type TextMessage struct {
	Message
}

func (*TextMessage) DataStructureType() byte { return TextMessageType }

// Text returns the body. A message without content has an empty body.
func (m *TextMessage) Text() (string, error) {
	b, err := m.body()
	if err != nil || b == nil {
		return "", err
	}
	r := bytes.NewReader(b)
	n, err := codec.DecodeInt32(r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessageBody, err)
	}
	if n < 0 {
		return "", nil
	}
	raw, err := codec.DecodeFixed(r, int(n))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessageBody, err)
	}
	s, err := codec.DecodeModifiedUTF8(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessageBody, err)
	}
	return s, nil
}

// SetText replaces the body with s, uncompressed. The body is left as it
// was if s is not valid UTF-8.
func (m *TextMessage) SetText(s string) error {
	b, err := codec.AppendModifiedUTF8(make([]byte, 4), s)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, uint32(len(b)-4))
	m.setBody(b)
	return nil
}

// BytesMessage carries an opaque body.
type BytesMessage struct {
	Message
}

func (*BytesMessage) DataStructureType() byte { return BytesMessageType }

func (m *BytesMessage) Bytes() ([]byte, error) {
	return m.body()
}

func (m *BytesMessage) SetBytes(b []byte) {
	m.setBody(b)
}

// MapMessage carries a primitive map body.
type MapMessage struct {
	Message
}

func (*MapMessage) DataStructureType() byte { return MapMessageType }

func (m *MapMessage) Map() (map[string]any, error) {
	b, err := m.body()
	if err != nil {
		return nil, err
	}
	out, err := UnmarshalPrimitiveMap(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessageBody, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (m *MapMessage) SetMap(body map[string]any) error {
	if body == nil {
		body = map[string]any{}
	}
	b, err := MarshalPrimitiveMap(body)
	if err != nil {
		return err
	}
	m.setBody(b)
	return nil
}
