// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport moves OpenWire commands over a byte stream and pairs
// requests with their responses.
package transport

import (
	"context"

	"github.com/absmach/openwire/openwire"
)

// CommandListener receives every inbound command on the reader goroutine.
// It must not block for long.
type CommandListener func(cmd openwire.Command)

// ExceptionListener is told once when the transport fails.
type ExceptionListener func(err error)

// Transport sends and receives commands.
type Transport interface {
	// Start establishes the session with the broker, including wire format
	// negotiation where the transport performs it.
	Start(ctx context.Context) error
	// Oneway sends cmd without waiting for a response.
	Oneway(cmd openwire.Command) error
	// Request sends cmd and waits for the correlated response. A broker
	// ExceptionResponse is returned as a *openwire.BrokerError.
	Request(ctx context.Context, cmd openwire.Command) (openwire.Responder, error)
	SetCommandListener(l CommandListener)
	SetExceptionListener(l ExceptionListener)
	Close() error
}
