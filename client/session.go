// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/absmach/openwire/openwire"
	"golang.org/x/time/rate"
)

// AckMode controls when received messages are acknowledged.
type AckMode int

// Acknowledgement modes.
const (
	AutoAcknowledge AckMode = iota
	ClientAcknowledge
	DupsOkAcknowledge
	Transactional
)

// String returns the mode name.
func (m AckMode) String() string {
	switch m {
	case AutoAcknowledge:
		return "auto"
	case ClientAcknowledge:
		return "client"
	case DupsOkAcknowledge:
		return "dups_ok"
	case Transactional:
		return "transactional"
	default:
		return "unknown"
	}
}

// ParseAckMode parses the name returned by AckMode.String.
func ParseAckMode(s string) (AckMode, error) {
	for m := AutoAcknowledge; m <= Transactional; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, ErrInvalidAckMode
}

// Session groups consumers and producers sharing one acknowledgement mode,
// one transaction context and one asynchronous dispatch goroutine.
type Session struct {
	conn    *Connection
	info    *openwire.SessionInfo
	ackMode AckMode
	tx      *TransactionContext
	logger  *slog.Logger

	nextConsumerID atomic.Int64
	nextProducerID atomic.Int64
	closed         atomic.Bool

	mu        sync.Mutex
	consumers []*Consumer
	producers []*Producer

	// wake is shared by every consumer's dispatcher.
	wake    chan struct{}
	runMu   sync.Mutex
	stop    chan struct{}
	stopped chan struct{}

	// dispatching is set while run may be inside a listener.
	dispatching atomic.Bool
	// exited is closed when the last dispatch goroutine returns.
	exited chan struct{}
}

func newSession(conn *Connection, info *openwire.SessionInfo, mode AckMode) *Session {
	s := &Session{
		conn:    conn,
		info:    info,
		ackMode: mode,
		logger:  conn.logger.With(slog.String("session_id", info.SessionID.String())),
		wake:    make(chan struct{}, 1),
	}
	if mode == Transactional {
		s.tx = newTransactionContext(conn, conn.info.ConnectionID, conn.nextTransactionID)
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() *openwire.SessionID {
	return s.info.SessionID
}

// AckMode returns the acknowledgement mode.
func (s *Session) AckMode() AckMode {
	return s.ackMode
}

// Transacted reports whether the session uses local transactions.
func (s *Session) Transacted() bool {
	return s.ackMode == Transactional
}

// TransactionContext returns the session's transaction context, or nil when
// the session is not transacted.
func (s *Session) TransactionContext() *TransactionContext {
	return s.tx
}

// CreateConsumer registers a consumer on dest. An empty selector receives
// every message.
func (s *Session) CreateConsumer(ctx context.Context, dest openwire.Destination, selector string) (*Consumer, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if dest == nil {
		return nil, ErrNoDestination
	}
	info := &openwire.ConsumerInfo{
		ConsumerID: &openwire.ConsumerID{
			ConnectionID: s.info.SessionID.ConnectionID,
			SessionID:    s.info.SessionID.Value,
			Value:        s.nextConsumerID.Add(1),
		},
		Destination:   dest,
		PrefetchSize:  s.conn.opts.PrefetchSize,
		DispatchAsync: true,
		Selector:      selector,
	}
	c := newConsumer(s, info)

	// Register before the broker learns about the consumer, since dispatches
	// may follow the response immediately.
	s.mu.Lock()
	s.consumers = append(s.consumers, c)
	s.mu.Unlock()
	s.conn.addConsumer(c)

	if _, err := s.conn.syncRequest(ctx, info); err != nil {
		c.closed.Store(true)
		c.dispatcher.Close()
		s.removeConsumer(c)
		return nil, err
	}
	s.conn.metrics.RecordConsumerOpened()
	return c, nil
}

// CreateProducer registers a producer. A nil dest requires a destination on
// every send.
func (s *Session) CreateProducer(ctx context.Context, dest openwire.Destination) (*Producer, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	info := &openwire.ProducerInfo{
		ProducerID: &openwire.ProducerID{
			ConnectionID: s.info.SessionID.ConnectionID,
			SessionID:    s.info.SessionID.Value,
			Value:        s.nextProducerID.Add(1),
		},
		Destination: dest,
	}
	if _, err := s.conn.syncRequest(ctx, info); err != nil {
		return nil, err
	}

	p := &Producer{
		session:      s,
		info:         info,
		deliveryMode: Persistent,
		priority:     DefaultPriority,
		logger:       s.logger.With(slog.String("producer_id", info.ProducerID.String())),
	}
	if opts := s.conn.opts; opts.SendRateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.SendRateLimit), opts.SendBurst)
	}
	s.mu.Lock()
	s.producers = append(s.producers, p)
	s.mu.Unlock()
	return p, nil
}

// Start runs the asynchronous dispatch goroutine. It is idempotent.
func (s *Session) Start() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.run(s.exited, s.stop, s.stopped)
	s.exited = s.stopped
	return nil
}

// Stop halts asynchronous dispatch. Outside a delivery it waits for the
// dispatch goroutine to exit. While a listener runs, including when the
// listener itself calls Stop or Close, it returns without waiting and
// dispatch ends once that listener returns. It is idempotent.
func (s *Session) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	if !s.dispatching.Load() {
		<-s.stopped
	}
	s.stop, s.stopped = nil, nil
}

// Running reports whether the dispatch goroutine is running.
func (s *Session) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.stop != nil
}

func (s *Session) run(prev, stop, stopped chan struct{}) {
	defer close(stopped)
	if prev != nil {
		// A goroutine stopped from its own listener may still be delivering.
		<-prev
	}
	for {
		select {
		case <-stop:
			return
		default:
		}

		s.dispatching.Store(true)
		select {
		case <-stop:
			s.dispatching.Store(false)
			return
		default:
		}
		delivered := false
		for _, c := range s.consumerSnapshot() {
			if c.dispatchOne() {
				delivered = true
			}
		}
		s.dispatching.Store(false)
		if delivered {
			continue
		}

		select {
		case <-stop:
			return
		case <-s.wake:
		}
	}
}

// Commit commits the session's transaction. Messages received in a
// transaction that fails to commit are redelivered as after a rollback.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.checkTransacted(); err != nil {
		return err
	}
	err := s.tx.Commit(ctx)
	if err != nil && !errors.Is(err, ErrNoTransaction) {
		s.redeliverRolledBack()
	}
	return err
}

// Rollback rolls the session's transaction back and puts every message
// received in it back at the head of its consumer's queue.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.checkTransacted(); err != nil {
		return err
	}
	err := s.tx.Rollback(ctx)
	s.redeliverRolledBack()
	return err
}

func (s *Session) checkTransacted() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return ErrNotTransacted
	}
	return nil
}

func (s *Session) redeliverRolledBack() {
	for _, c := range s.consumerSnapshot() {
		c.dispatcher.RedeliverRolledBackMessages()
	}
}

// Close stops dispatch, rolls back an open transaction, closes every
// consumer and producer, and unregisters the session. It is idempotent and
// never fails.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.conn.opts.CloseTimeout)
	defer cancel()
	if s.tx != nil && s.tx.InTransaction() {
		if err := s.tx.Rollback(ctx); err != nil {
			s.logger.Debug("failed to roll back on close", slog.String("error", err.Error()))
		}
	}

	for _, c := range s.consumerSnapshot() {
		c.Close()
	}
	s.mu.Lock()
	producers := append([]*Producer(nil), s.producers...)
	s.mu.Unlock()
	for _, p := range producers {
		p.Close()
	}

	if _, err := s.conn.syncRequest(ctx, &openwire.RemoveInfo{ObjectID: s.info.SessionID}); err != nil {
		s.logger.Debug("failed to unregister session", slog.String("error", err.Error()))
	}
	s.conn.removeSession(s)
	s.conn.metrics.RecordSessionClosed()
	return nil
}

func (s *Session) consumerSnapshot() []*Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Consumer(nil), s.consumers...)
}

func (s *Session) removeConsumer(c *Consumer) {
	s.mu.Lock()
	for i, cc := range s.consumers {
		if cc == c {
			s.consumers = append(s.consumers[:i], s.consumers[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.conn.removeConsumer(c)
}

func (s *Session) removeProducer(p *Producer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, pp := range s.producers {
		if pp == p {
			s.producers = append(s.producers[:i], s.producers[i+1:]...)
			return
		}
	}
}
