// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import "reflect"

// Data structure type tags.
const (
	NullType byte = 0

	WireFormatInfoType  byte = 1
	BrokerInfoType      byte = 2
	ConnectionInfoType  byte = 3
	SessionInfoType     byte = 4
	ConsumerInfoType    byte = 5
	ProducerInfoType    byte = 6
	TransactionInfoType byte = 7
	DestinationInfoType byte = 8
	KeepAliveInfoType   byte = 10
	ShutdownInfoType    byte = 11
	RemoveInfoType      byte = 12
	ConnectionErrorType byte = 16
	MessageDispatchType byte = 21
	MessageAckType      byte = 22

	MessageType      byte = 23
	BytesMessageType byte = 24
	MapMessageType   byte = 25
	TextMessageType  byte = 28

	ResponseType          byte = 30
	ExceptionResponseType byte = 31

	QueueType     byte = 100
	TopicType     byte = 101
	TempQueueType byte = 102
	TempTopicType byte = 103

	MessageIDType          byte = 110
	LocalTransactionIDType byte = 111
	ConnectionIDType       byte = 120
	SessionIDType          byte = 121
	ConsumerIDType         byte = 122
	ProducerIDType         byte = 123
	BrokerIDType           byte = 124
)

// DataStructure is anything that can travel on the wire. The type tag selects
// the marshaller on both ends.
type DataStructure interface {
	DataStructureType() byte
}

// MarshalAware data structures can carry a pre-encoded copy of themselves.
// When present, nested tight encoding writes the copy verbatim instead of
// re-encoding every field.
type MarshalAware interface {
	DataStructure
	MarshalledForm() []byte
	SetMarshalledForm(b []byte)
}

// Command is a top level frame exchanged with the broker.
type Command interface {
	DataStructure
	Header() *BaseCommand
}

// Responder is implemented by every response command.
type Responder interface {
	Command
	ResponseHeader() *Response
}

// BaseCommand holds the fields every command shares.
type BaseCommand struct {
	CommandID        int32
	ResponseRequired bool
}

func (c *BaseCommand) Header() *BaseCommand {
	return c
}

func (c *BaseCommand) fields() []field {
	return []field{int32Field{&c.CommandID}, boolField{&c.ResponseRequired}}
}

// fielded data structures list their wire fields in encoding order. The
// same list drives sizing, writing and reading, so the order cannot drift
// between directions.
type fielded interface {
	DataStructure
	fields(version int) []field
}

func isNil(o DataStructure) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
