// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialOptions configure Dial.
type DialOptions struct {
	Stream      StreamOptions
	DialTimeout time.Duration
}

// Dial opens a TCP connection to address and wraps it in a Stream. The
// stream is not started.
func Dial(ctx context.Context, address string, opts DialOptions) (*Stream, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(opts.Stream.WireFormat.TCPNoDelayEnabled); err != nil {
			conn.Close()
			return nil, err
		}
	}
	s, err := NewStream(conn, opts.Stream)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}
