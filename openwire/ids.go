// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import "fmt"

type ConnectionID struct {
	Value string
}

func (*ConnectionID) DataStructureType() byte { return ConnectionIDType }

func (id *ConnectionID) fields(int) []field {
	return []field{stringField{&id.Value}}
}

func (id *ConnectionID) String() string {
	return id.Value
}

type SessionID struct {
	ConnectionID string
	Value        int64
}

func (*SessionID) DataStructureType() byte { return SessionIDType }

func (id *SessionID) fields(int) []field {
	return []field{stringField{&id.ConnectionID}, int64Field{&id.Value}}
}

func (id *SessionID) String() string {
	return fmt.Sprintf("%s:%d", id.ConnectionID, id.Value)
}

type ConsumerID struct {
	ConnectionID string
	SessionID    int64
	Value        int64
}

func (*ConsumerID) DataStructureType() byte { return ConsumerIDType }

func (id *ConsumerID) fields(int) []field {
	return []field{stringField{&id.ConnectionID}, int64Field{&id.SessionID}, int64Field{&id.Value}}
}

func (id *ConsumerID) String() string {
	return fmt.Sprintf("%s:%d:%d", id.ConnectionID, id.SessionID, id.Value)
}

// ProducerID encodes its value before the session, unlike ConsumerID.
type ProducerID struct {
	ConnectionID string
	Value        int64
	SessionID    int64
}

func (*ProducerID) DataStructureType() byte { return ProducerIDType }

func (id *ProducerID) fields(int) []field {
	return []field{stringField{&id.ConnectionID}, int64Field{&id.Value}, int64Field{&id.SessionID}}
}

func (id *ProducerID) String() string {
	return fmt.Sprintf("%s:%d:%d", id.ConnectionID, id.SessionID, id.Value)
}

type MessageID struct {
	TextView           string // broker-assigned text form, v10+
	ProducerID         *ProducerID
	ProducerSequenceID int64
	BrokerSequenceID   int64
}

func (*MessageID) DataStructureType() byte { return MessageIDType }

func (id *MessageID) fields(version int) []field {
	fs := []field{nested(&id.ProducerID), int64Field{&id.ProducerSequenceID}, int64Field{&id.BrokerSequenceID}}
	if version >= 10 {
		fs = append([]field{stringField{&id.TextView}}, fs...)
	}
	return fs
}

func (id *MessageID) String() string {
	if id.TextView != "" {
		return id.TextView
	}
	if id.ProducerID == nil {
		return fmt.Sprintf("?:%d", id.ProducerSequenceID)
	}
	return fmt.Sprintf("%s:%d", id.ProducerID, id.ProducerSequenceID)
}

type BrokerID struct {
	Value string
}

func (*BrokerID) DataStructureType() byte { return BrokerIDType }

func (id *BrokerID) fields(int) []field {
	return []field{stringField{&id.Value}}
}

// TransactionID identifies a transaction. Only local transactions are
// supported.
type TransactionID interface {
	DataStructure
	fmt.Stringer
	transactionID()
}

type LocalTransactionID struct {
	Value        int64
	ConnectionID *ConnectionID
}

func (*LocalTransactionID) DataStructureType() byte { return LocalTransactionIDType }

func (*LocalTransactionID) transactionID() {}

func (id *LocalTransactionID) fields(int) []field {
	return []field{int64Field{&id.Value}, nested(&id.ConnectionID)}
}

func (id *LocalTransactionID) String() string {
	if id.ConnectionID == nil {
		return fmt.Sprintf("TX:?:%d", id.Value)
	}
	return fmt.Sprintf("TX:%s:%d", id.ConnectionID.Value, id.Value)
}
