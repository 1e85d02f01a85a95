// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import "errors"

// Transport errors.
var (
	ErrClosed             = errors.New("transport closed")
	ErrNotStarted         = errors.New("transport not started")
	ErrAlreadyStarted     = errors.New("transport already started")
	ErrConnectionLost     = errors.New("connection lost")
	ErrNegotiationTimeout = errors.New("wire format negotiation timed out")
	ErrRequestTimeout     = errors.New("request timed out")
	ErrRequestUnsupported = errors.New("transport does not correlate responses")
	ErrInactivity         = errors.New("no data received within the inactivity window")
	ErrBreakerOpen        = errors.New("request circuit breaker open")
)
