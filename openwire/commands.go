// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

// Acknowledgement types carried by MessageAck.
const (
	DeliveredAck byte = 0
	PoisonAck    byte = 1
	ConsumedAck  byte = 2
)

// Transaction operations carried by TransactionInfo.
const (
	TransactionBegin          byte = 0
	TransactionPrepare        byte = 1
	TransactionCommitOnePhase byte = 2
	TransactionCommitTwoPhase byte = 3
	TransactionRollback       byte = 4
	TransactionRecover        byte = 5
	TransactionForget         byte = 6
	TransactionEnd            byte = 7
)

// DestinationInfo operations.
const (
	DestinationAdd    byte = 0
	DestinationRemove byte = 1
)

type BrokerInfo struct {
	BaseCommand
	BrokerID                   *BrokerID
	BrokerURL                  string
	PeerBrokerInfos            []*BrokerInfo
	BrokerName                 string
	SlaveBroker                bool
	MasterBroker               bool
	FaultTolerantConfiguration bool
	DuplexConnection           bool
	NetworkConnection          bool
	ConnectionID               int64
	BrokerUploadURL            string
	NetworkProperties          string
}

func (*BrokerInfo) DataStructureType() byte { return BrokerInfoType }

func (c *BrokerInfo) fields(version int) []field {
	fs := append(c.BaseCommand.fields(),
		nested(&c.BrokerID),
		stringField{&c.BrokerURL},
		nestedArray(&c.PeerBrokerInfos),
		stringField{&c.BrokerName},
		boolField{&c.SlaveBroker},
		boolField{&c.MasterBroker},
		boolField{&c.FaultTolerantConfiguration},
	)
	if version >= 2 {
		fs = append(fs,
			boolField{&c.DuplexConnection},
			boolField{&c.NetworkConnection},
			int64Field{&c.ConnectionID},
		)
	}
	if version >= 3 {
		fs = append(fs, stringField{&c.BrokerUploadURL}, stringField{&c.NetworkProperties})
	}
	return fs
}

type ConnectionInfo struct {
	BaseCommand
	ConnectionID          *ConnectionID
	ClientID              string
	Password              string
	UserName              string
	BrokerPath            []*BrokerID
	BrokerMasterConnector bool
	Manageable            bool
	ClientMaster          bool
	FaultTolerant         bool
	FailoverReconnect     bool
	ClientIP              string
}

func (*ConnectionInfo) DataStructureType() byte { return ConnectionInfoType }

func (c *ConnectionInfo) fields(version int) []field {
	fs := append(c.BaseCommand.fields(),
		nested(&c.ConnectionID),
		stringField{&c.ClientID},
		stringField{&c.Password},
		stringField{&c.UserName},
		nestedArray(&c.BrokerPath),
		boolField{&c.BrokerMasterConnector},
		boolField{&c.Manageable},
	)
	if version >= 2 {
		fs = append(fs, boolField{&c.ClientMaster})
	}
	if version >= 6 {
		fs = append(fs, boolField{&c.FaultTolerant}, boolField{&c.FailoverReconnect})
	}
	if version >= 8 {
		fs = append(fs, stringField{&c.ClientIP})
	}
	return fs
}

type SessionInfo struct {
	BaseCommand
	SessionID *SessionID
}

func (*SessionInfo) DataStructureType() byte { return SessionInfoType }

func (c *SessionInfo) fields(int) []field {
	return append(c.BaseCommand.fields(), nested(&c.SessionID))
}

type ConsumerInfo struct {
	BaseCommand
	ConsumerID                 *ConsumerID
	Browser                    bool
	Destination                Destination
	PrefetchSize               int32
	MaximumPendingMessageLimit int32
	DispatchAsync              bool
	Selector                   string
	ClientID                   string // v10+
	SubscriptionName           string
	NoLocal                    bool
	Exclusive                  bool
	Retroactive                bool
	Priority                   byte
	BrokerPath                 []*BrokerID
	AdditionalPredicate        DataStructure
	NetworkSubscription        bool
	OptimizedAcknowledge       bool
	NoRangeAcks                bool
	NetworkConsumerPath        []*ConsumerID
}

func (*ConsumerInfo) DataStructureType() byte { return ConsumerInfoType }

func (c *ConsumerInfo) fields(version int) []field {
	fs := append(c.BaseCommand.fields(),
		nested(&c.ConsumerID),
		boolField{&c.Browser},
		nested(&c.Destination),
		int32Field{&c.PrefetchSize},
		int32Field{&c.MaximumPendingMessageLimit},
		boolField{&c.DispatchAsync},
		stringField{&c.Selector},
	)
	if version >= 10 {
		fs = append(fs, stringField{&c.ClientID})
	}
	fs = append(fs,
		stringField{&c.SubscriptionName},
		boolField{&c.NoLocal},
		boolField{&c.Exclusive},
		boolField{&c.Retroactive},
		byteField{&c.Priority},
		nestedArray(&c.BrokerPath),
		nested(&c.AdditionalPredicate),
		boolField{&c.NetworkSubscription},
		boolField{&c.OptimizedAcknowledge},
		boolField{&c.NoRangeAcks},
	)
	if version >= 4 {
		fs = append(fs, nestedArray(&c.NetworkConsumerPath))
	}
	return fs
}

type ProducerInfo struct {
	BaseCommand
	ProducerID    *ProducerID
	Destination   Destination
	BrokerPath    []*BrokerID
	DispatchAsync bool
	WindowSize    int32
}

func (*ProducerInfo) DataStructureType() byte { return ProducerInfoType }

func (c *ProducerInfo) fields(version int) []field {
	fs := append(c.BaseCommand.fields(),
		nested(&c.ProducerID),
		nested(&c.Destination),
		nestedArray(&c.BrokerPath),
	)
	if version >= 2 {
		fs = append(fs, boolField{&c.DispatchAsync})
	}
	if version >= 3 {
		fs = append(fs, int32Field{&c.WindowSize})
	}
	return fs
}

type TransactionInfo struct {
	BaseCommand
	ConnectionID  *ConnectionID
	TransactionID TransactionID
	Type          byte
}

func (*TransactionInfo) DataStructureType() byte { return TransactionInfoType }

func (c *TransactionInfo) fields(int) []field {
	return append(c.BaseCommand.fields(),
		nested(&c.ConnectionID),
		nested(&c.TransactionID),
		byteField{&c.Type},
	)
}

type DestinationInfo struct {
	BaseCommand
	ConnectionID  *ConnectionID
	Destination   Destination
	OperationType byte
	Timeout       int64
	BrokerPath    []*BrokerID
}

func (*DestinationInfo) DataStructureType() byte { return DestinationInfoType }

func (c *DestinationInfo) fields(int) []field {
	return append(c.BaseCommand.fields(),
		nested(&c.ConnectionID),
		nested(&c.Destination),
		byteField{&c.OperationType},
		int64Field{&c.Timeout},
		nestedArray(&c.BrokerPath),
	)
}

type KeepAliveInfo struct {
	BaseCommand
}

func (*KeepAliveInfo) DataStructureType() byte { return KeepAliveInfoType }

func (c *KeepAliveInfo) fields(int) []field { return c.BaseCommand.fields() }

type ShutdownInfo struct {
	BaseCommand
}

func (*ShutdownInfo) DataStructureType() byte { return ShutdownInfoType }

func (c *ShutdownInfo) fields(int) []field { return c.BaseCommand.fields() }

// RemoveInfo retires a connection, session, consumer or producer by ID.
type RemoveInfo struct {
	BaseCommand
	ObjectID                DataStructure
	LastDeliveredSequenceID int64
}

func (*RemoveInfo) DataStructureType() byte { return RemoveInfoType }

func (c *RemoveInfo) fields(version int) []field {
	fs := append(c.BaseCommand.fields(), nested(&c.ObjectID))
	if version >= 5 {
		fs = append(fs, int64Field{&c.LastDeliveredSequenceID})
	}
	return fs
}

// ConnectionError is sent by the broker when the connection fails
// asynchronously.
type ConnectionError struct {
	BaseCommand
	Exception    *BrokerError
	ConnectionID *ConnectionID
}

func (*ConnectionError) DataStructureType() byte { return ConnectionErrorType }

func (c *ConnectionError) fields(int) []field {
	return append(c.BaseCommand.fields(), throwableField{&c.Exception}, nested(&c.ConnectionID))
}

// MessageDispatch delivers a message to a consumer. A nil Message marks the
// end of a browse.
type MessageDispatch struct {
	BaseCommand
	ConsumerID        *ConsumerID
	Destination       Destination
	Message           AnyMessage
	RedeliveryCounter int32
}

func (*MessageDispatch) DataStructureType() byte { return MessageDispatchType }

func (c *MessageDispatch) fields(int) []field {
	return append(c.BaseCommand.fields(),
		nested(&c.ConsumerID),
		nested(&c.Destination),
		nested(&c.Message),
		int32Field{&c.RedeliveryCounter},
	)
}

type MessageAck struct {
	BaseCommand
	Destination    Destination
	TransactionID  TransactionID
	ConsumerID     *ConsumerID
	AckType        byte
	FirstMessageID *MessageID
	LastMessageID  *MessageID
	MessageCount   int32
	PoisonCause    *BrokerError
}

func (*MessageAck) DataStructureType() byte { return MessageAckType }

func (c *MessageAck) fields(version int) []field {
	fs := append(c.BaseCommand.fields(),
		nested(&c.Destination),
		nested(&c.TransactionID),
		nested(&c.ConsumerID),
		byteField{&c.AckType},
		nested(&c.FirstMessageID),
		nested(&c.LastMessageID),
		int32Field{&c.MessageCount},
	)
	if version >= 7 {
		fs = append(fs, throwableField{&c.PoisonCause})
	}
	return fs
}

type Response struct {
	BaseCommand
	CorrelationID int32
}

func (*Response) DataStructureType() byte { return ResponseType }

func (c *Response) ResponseHeader() *Response { return c }

func (c *Response) fields(int) []field {
	return append(c.BaseCommand.fields(), int32Field{&c.CorrelationID})
}

type ExceptionResponse struct {
	Response
	Exception *BrokerError
}

func (*ExceptionResponse) DataStructureType() byte { return ExceptionResponseType }

func (c *ExceptionResponse) fields(version int) []field {
	return append(c.Response.fields(version), throwableField{&c.Exception})
}
