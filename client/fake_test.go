// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/transport"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every command and answers requests with a plain
// Response unless respond says otherwise.
type fakeTransport struct {
	mu       sync.Mutex
	oneways  []openwire.Command
	requests []openwire.Command
	closes   int
	startErr error
	respond  func(ctx context.Context, cmd openwire.Command) (openwire.Responder, error)

	onCommand   transport.CommandListener
	onException transport.ExceptionListener
}

var _ transport.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Start(context.Context) error {
	return f.startErr
}

func (f *fakeTransport) Oneway(cmd openwire.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return transport.ErrClosed
	}
	f.oneways = append(f.oneways, cmd)
	return nil
}

func (f *fakeTransport) Request(ctx context.Context, cmd openwire.Command) (openwire.Responder, error) {
	f.mu.Lock()
	if f.closes > 0 {
		f.mu.Unlock()
		return nil, transport.ErrClosed
	}
	f.requests = append(f.requests, cmd)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(ctx, cmd)
	}
	return &openwire.Response{CorrelationID: cmd.Header().CommandID}, nil
}

func (f *fakeTransport) SetCommandListener(l transport.CommandListener) {
	f.mu.Lock()
	f.onCommand = l
	f.mu.Unlock()
}

func (f *fakeTransport) SetExceptionListener(l transport.ExceptionListener) {
	f.mu.Lock()
	f.onException = l
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(cmd openwire.Command) {
	f.mu.Lock()
	l := f.onCommand
	f.mu.Unlock()
	l(cmd)
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	l := f.onException
	f.mu.Unlock()
	l(err)
}

func (f *fakeTransport) setRespond(fn func(context.Context, openwire.Command) (openwire.Responder, error)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) acks() []*openwire.MessageAck {
	return oneways[*openwire.MessageAck](f)
}

func oneways[T openwire.Command](f *fakeTransport) []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []T
	for _, cmd := range f.oneways {
		if c, ok := cmd.(T); ok {
			out = append(out, c)
		}
	}
	return out
}

func requests[T openwire.Command](f *fakeTransport) []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []T
	for _, cmd := range f.requests {
		if c, ok := cmd.(T); ok {
			out = append(out, c)
		}
	}
	return out
}

func testOptions() *Options {
	return NewOptions().SetLogger(slog.New(slog.DiscardHandler))
}

func newTestConnection(t *testing.T, mutate func(*Options)) (*Connection, *fakeTransport) {
	t.Helper()
	opts := testOptions()
	if mutate != nil {
		mutate(opts)
	}
	ft := &fakeTransport{}
	c, err := NewConnection(ft, opts)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c, ft
}

func newTestSession(t *testing.T, mode AckMode, mutate func(*Options)) (*Session, *fakeTransport) {
	t.Helper()
	c, ft := newTestConnection(t, mutate)
	s, err := c.CreateSession(context.Background(), mode)
	require.NoError(t, err)
	return s, ft
}

func newTestConsumer(t *testing.T, s *Session) *Consumer {
	t.Helper()
	c, err := s.CreateConsumer(context.Background(), openwire.NewQueue("orders"), "")
	require.NoError(t, err)
	return c
}

// dispatchFor builds a dispatch of a text message for c.
func dispatchFor(c *Consumer, seq int64, body string) *openwire.MessageDispatch {
	msg := &openwire.TextMessage{}
	msg.SetText(body)
	msg.MessageID = &openwire.MessageID{
		ProducerID:         &openwire.ProducerID{ConnectionID: "ID:broker-1", SessionID: 1, Value: 1},
		ProducerSequenceID: seq,
		BrokerSequenceID:   seq,
	}
	msg.Destination = c.Destination()
	return &openwire.MessageDispatch{
		ConsumerID:  c.ID(),
		Destination: c.Destination(),
		Message:     msg,
	}
}

func mustText(t *testing.T, m *Message) string {
	t.Helper()
	s, err := m.Text()
	require.NoError(t, err)
	return s
}
