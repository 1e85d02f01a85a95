// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// Client errors.
var (
	// Configuration errors.
	ErrInvalidAckMode        = errors.New("invalid acknowledgement mode")
	ErrInvalidRequestTimeout = errors.New("request timeout must be positive")
	ErrInvalidPrefetch       = errors.New("prefetch size cannot be negative")
	ErrInvalidSendRate       = errors.New("send rate limit requires a positive burst")
	ErrNilTransport          = errors.New("transport cannot be nil")

	// Lifecycle errors.
	ErrConnectionClosed = errors.New("connection closed")
	ErrSessionClosed    = errors.New("session closed")
	ErrConsumerClosed   = errors.New("consumer closed")
	ErrProducerClosed   = errors.New("producer closed")
	ErrAlreadyConnected = errors.New("connection already established")
	ErrNotConnected     = errors.New("connection not established")

	// Receive errors.
	ErrNoMessage        = errors.New("no message available")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrListenerActive   = errors.New("consumer has a message listener")

	// Transaction errors.
	ErrNoTransaction = errors.New("no transaction in progress")
	ErrNotTransacted = errors.New("session is not transacted")

	// Send errors.
	ErrNoDestination   = errors.New("no destination given")
	ErrNilMessage      = errors.New("message cannot be nil")
	ErrNotTextMessage  = errors.New("not a text message")
	ErrTempDestination = errors.New("not a temporary destination")

	// Broker errors.
	ErrBrokerShutdown  = errors.New("broker shut down the connection")
	ErrConnectionError = errors.New("broker reported a connection error")
)
