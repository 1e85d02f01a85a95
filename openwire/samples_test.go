// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

func sampleConnectionID() *ConnectionID {
	return &ConnectionID{Value: "ID:host-1234"}
}

func sampleConsumerID() *ConsumerID {
	return &ConsumerID{ConnectionID: "ID:host-1234", SessionID: 1, Value: 70000}
}

func sampleProducerID() *ProducerID {
	return &ProducerID{ConnectionID: "ID:host-1234", Value: 3, SessionID: 1}
}

func sampleMessageID() *MessageID {
	return &MessageID{
		TextView:           "ID:host-1234:1:3:1099511627776",
		ProducerID:         sampleProducerID(),
		ProducerSequenceID: 1 << 40,
		BrokerSequenceID:   42,
	}
}

func sampleTransactionID() *LocalTransactionID {
	return &LocalTransactionID{Value: 9, ConnectionID: sampleConnectionID()}
}

func sampleBrokerError() *BrokerError {
	return &BrokerError{
		ExceptionClass: "javax.jms.JMSException",
		Message:        "destination does not exist: ürün",
		StackTrace: []StackTraceElement{
			{ClassName: "org.apache.Broker", MethodName: "send", FileName: "Broker.java", LineNumber: 120},
			{ClassName: "org.apache.Region", MethodName: "route", LineNumber: -1},
		},
		Cause: &BrokerError{ExceptionClass: "java.io.IOException", Message: "disk full"},
	}
}

func sampleMessage() Message {
	return Message{
		BaseCommand:               BaseCommand{CommandID: 17, ResponseRequired: true},
		ProducerID:                sampleProducerID(),
		Destination:               NewQueue("orders"),
		TransactionID:             sampleTransactionID(),
		OriginalDestination:       NewTopic("orders.all"),
		MessageID:                 sampleMessageID(),
		GroupID:                   "group-€",
		GroupSequence:             4,
		CorrelationID:             "X",
		Persistent:                true,
		Expiration:                1700000000000,
		Priority:                  4,
		ReplyTo:                   &TempQueue{PhysicalName: "ID:host-1234:1:1"},
		Timestamp:                 0xFFFF,
		Type:                      "order",
		Content:                   []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'},
		MarshalledProperties:      []byte{0, 0, 0, 0},
		TargetConsumerID:          sampleConsumerID(),
		RedeliveryCounter:         2,
		BrokerPath:                []*BrokerID{{Value: "broker-a"}, {Value: "broker-b"}},
		Arrival:                   0xFFFFFFFF,
		UserID:                    "admin",
		ReceivedByDFBridge:        true,
		Droppable:                 true,
		Cluster:                   []*BrokerID{},
		BrokerInTime:              -1,
		BrokerOutTime:             1 << 33,
		JMSXGroupFirstForConsumer: true,
	}
}

// samples returns one populated value per catalog entry.
func samples() []DataStructure {
	return []DataStructure{
		&WireFormatInfo{Magic: []byte("ActiveMQ"), Version: 12, MarshalledProperties: []byte{0, 0, 0, 0}},
		&BrokerInfo{
			BaseCommand:       BaseCommand{CommandID: 1},
			BrokerID:          &BrokerID{Value: "broker-a"},
			BrokerURL:         "tcp://localhost:61616",
			PeerBrokerInfos:   []*BrokerInfo{{BrokerName: "peer"}},
			BrokerName:        "localhost",
			MasterBroker:      true,
			DuplexConnection:  true,
			ConnectionID:      77,
			BrokerUploadURL:   "http://localhost/upload",
			NetworkProperties: "a=b",
		},
		&ConnectionInfo{
			BaseCommand:       BaseCommand{CommandID: 2, ResponseRequired: true},
			ConnectionID:      sampleConnectionID(),
			ClientID:          "client",
			Password:          "secret",
			UserName:          "user",
			BrokerPath:        []*BrokerID{{Value: "broker-a"}},
			Manageable:        true,
			ClientMaster:      true,
			FaultTolerant:     true,
			FailoverReconnect: true,
			ClientIP:          "10.0.0.1",
		},
		&SessionInfo{
			BaseCommand: BaseCommand{CommandID: 3, ResponseRequired: true},
			SessionID:   &SessionID{ConnectionID: "ID:host-1234", Value: 1},
		},
		&ConsumerInfo{
			BaseCommand:                BaseCommand{CommandID: 4, ResponseRequired: true},
			ConsumerID:                 sampleConsumerID(),
			Destination:                NewQueue("orders"),
			PrefetchSize:               1000,
			MaximumPendingMessageLimit: -1,
			DispatchAsync:              true,
			Selector:                   "priority > 4",
			ClientID:                   "orders-svc",
			SubscriptionName:           "durable",
			NoLocal:                    true,
			Priority:                   2,
			BrokerPath:                 []*BrokerID{},
			AdditionalPredicate:        &BrokerID{Value: "predicate"},
			NetworkConsumerPath:        []*ConsumerID{sampleConsumerID()},
		},
		&ProducerInfo{
			BaseCommand:   BaseCommand{CommandID: 5, ResponseRequired: true},
			ProducerID:    sampleProducerID(),
			Destination:   NewTopic("prices"),
			DispatchAsync: true,
			WindowSize:    65536,
		},
		&TransactionInfo{
			BaseCommand:   BaseCommand{CommandID: 6, ResponseRequired: true},
			ConnectionID:  sampleConnectionID(),
			TransactionID: sampleTransactionID(),
			Type:          TransactionCommitOnePhase,
		},
		&DestinationInfo{
			BaseCommand:   BaseCommand{CommandID: 7},
			ConnectionID:  sampleConnectionID(),
			Destination:   &TempTopic{PhysicalName: "ID:host-1234:1"},
			OperationType: DestinationRemove,
			Timeout:       5000,
		},
		&KeepAliveInfo{BaseCommand: BaseCommand{CommandID: 8, ResponseRequired: true}},
		&ShutdownInfo{BaseCommand: BaseCommand{CommandID: 9}},
		&RemoveInfo{
			BaseCommand:             BaseCommand{CommandID: 10, ResponseRequired: true},
			ObjectID:                sampleConsumerID(),
			LastDeliveredSequenceID: -2,
		},
		&ConnectionError{
			BaseCommand:  BaseCommand{CommandID: 11},
			Exception:    sampleBrokerError(),
			ConnectionID: sampleConnectionID(),
		},
		&MessageDispatch{
			BaseCommand:       BaseCommand{CommandID: 12},
			ConsumerID:        sampleConsumerID(),
			Destination:       NewQueue("orders"),
			Message:           &TextMessage{Message: sampleMessage()},
			RedeliveryCounter: 1,
		},
		&MessageAck{
			BaseCommand:    BaseCommand{CommandID: 13},
			Destination:    NewQueue("orders"),
			TransactionID:  sampleTransactionID(),
			ConsumerID:     sampleConsumerID(),
			AckType:        PoisonAck,
			FirstMessageID: sampleMessageID(),
			LastMessageID:  sampleMessageID(),
			MessageCount:   1,
			PoisonCause:    sampleBrokerError(),
		},
		func() DataStructure { m := sampleMessage(); return &m }(),
		&BytesMessage{Message: sampleMessage()},
		&MapMessage{Message: sampleMessage()},
		&TextMessage{Message: sampleMessage()},
		&Response{BaseCommand: BaseCommand{CommandID: 14}, CorrelationID: 3},
		&ExceptionResponse{
			Response:  Response{BaseCommand: BaseCommand{CommandID: 15}, CorrelationID: 4},
			Exception: sampleBrokerError(),
		},
		NewQueue("orders"),
		NewTopic("prices"),
		&TempQueue{PhysicalName: "tq"},
		&TempTopic{PhysicalName: "tt"},
		sampleMessageID(),
		sampleTransactionID(),
		sampleConnectionID(),
		&SessionID{ConnectionID: "ID:host-1234", Value: 1},
		sampleConsumerID(),
		sampleProducerID(),
		&BrokerID{Value: "broker-a"},
	}
}
