// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import "fmt"

// Supported protocol versions.
const (
	MinSupportedVersion = 1
	MaxSupportedVersion = 12
	DefaultVersion      = MaxSupportedVersion
)

// MarshallerFactory fills a marshaller table for one protocol version.
type MarshallerFactory func(table *[256]Marshaller)

var catalog = []struct {
	tag    byte
	create func() DataStructure
}{
	{WireFormatInfoType, func() DataStructure { return &WireFormatInfo{} }},
	{BrokerInfoType, func() DataStructure { return &BrokerInfo{} }},
	{ConnectionInfoType, func() DataStructure { return &ConnectionInfo{} }},
	{SessionInfoType, func() DataStructure { return &SessionInfo{} }},
	{ConsumerInfoType, func() DataStructure { return &ConsumerInfo{} }},
	{ProducerInfoType, func() DataStructure { return &ProducerInfo{} }},
	{TransactionInfoType, func() DataStructure { return &TransactionInfo{} }},
	{DestinationInfoType, func() DataStructure { return &DestinationInfo{} }},
	{KeepAliveInfoType, func() DataStructure { return &KeepAliveInfo{} }},
	{ShutdownInfoType, func() DataStructure { return &ShutdownInfo{} }},
	{RemoveInfoType, func() DataStructure { return &RemoveInfo{} }},
	{ConnectionErrorType, func() DataStructure { return &ConnectionError{} }},
	{MessageDispatchType, func() DataStructure { return &MessageDispatch{} }},
	{MessageAckType, func() DataStructure { return &MessageAck{} }},
	{MessageType, func() DataStructure { return &Message{} }},
	{BytesMessageType, func() DataStructure { return &BytesMessage{} }},
	{MapMessageType, func() DataStructure { return &MapMessage{} }},
	{TextMessageType, func() DataStructure { return &TextMessage{} }},
	{ResponseType, func() DataStructure { return &Response{} }},
	{ExceptionResponseType, func() DataStructure { return &ExceptionResponse{} }},
	{QueueType, func() DataStructure { return &Queue{} }},
	{TopicType, func() DataStructure { return &Topic{} }},
	{TempQueueType, func() DataStructure { return &TempQueue{} }},
	{TempTopicType, func() DataStructure { return &TempTopic{} }},
	{MessageIDType, func() DataStructure { return &MessageID{} }},
	{LocalTransactionIDType, func() DataStructure { return &LocalTransactionID{} }},
	{ConnectionIDType, func() DataStructure { return &ConnectionID{} }},
	{SessionIDType, func() DataStructure { return &SessionID{} }},
	{ConsumerIDType, func() DataStructure { return &ConsumerID{} }},
	{ProducerIDType, func() DataStructure { return &ProducerID{} }},
	{BrokerIDType, func() DataStructure { return &BrokerID{} }},
}

func structFactory(version int) MarshallerFactory {
	return func(table *[256]Marshaller) {
		for _, e := range catalog {
			table[e.tag] = &structMarshaller{tag: e.tag, version: version, create: e.create}
		}
	}
}

var factories = [MaxSupportedVersion + 1]MarshallerFactory{
	1:  structFactory(1),
	2:  structFactory(2),
	3:  structFactory(3),
	4:  structFactory(4),
	5:  structFactory(5),
	6:  structFactory(6),
	7:  structFactory(7),
	8:  structFactory(8),
	9:  structFactory(9),
	10: structFactory(10),
	11: structFactory(11),
	12: structFactory(12),
}

// FactoryFor returns the marshaller factory for version.
func FactoryFor(version int) (MarshallerFactory, error) {
	if version < MinSupportedVersion || version > MaxSupportedVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return factories[version], nil
}

func newTable(version int) ([256]Marshaller, error) {
	var table [256]Marshaller
	factory, err := FactoryFor(version)
	if err != nil {
		return table, err
	}
	factory(&table)
	return table, nil
}
