// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/openwire"
)

// Consumer receives messages from one destination, either synchronously
// through Receive or asynchronously through a listener run by the session.
type Consumer struct {
	session    *Session
	info       *openwire.ConsumerInfo
	dispatcher *dispatcher
	logger     *slog.Logger

	closed        atomic.Bool
	lastDelivered atomic.Int64

	listenerMu sync.RWMutex
	listener   MessageListener

	// Messages delivered in the current transaction, in delivery order.
	mu        sync.Mutex
	delivered []*openwire.MessageDispatch
}

func newConsumer(s *Session, info *openwire.ConsumerInfo) *Consumer {
	c := &Consumer{
		session:    s,
		info:       info,
		dispatcher: newDispatcher(),
		logger:     s.logger.With(slog.String("consumer_id", info.ConsumerID.String())),
	}
	c.dispatcher.SetAsyncDelivery(s.wake)
	return c
}

// ID returns the consumer ID.
func (c *Consumer) ID() *openwire.ConsumerID {
	return c.info.ConsumerID
}

// Destination returns the destination the consumer reads from.
func (c *Consumer) Destination() openwire.Destination {
	return c.info.Destination
}

// SetListener registers l for asynchronous delivery. A nil listener returns
// the consumer to synchronous receives.
func (c *Consumer) SetListener(l MessageListener) error {
	if c.closed.Load() {
		return ErrConsumerClosed
	}
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
	if l != nil {
		notify(c.session.wake)
	}
	return nil
}

func (c *Consumer) currentListener() MessageListener {
	c.listenerMu.RLock()
	defer c.listenerMu.RUnlock()
	return c.listener
}

// Receive blocks until a message arrives or ctx ends. It returns
// ErrNoMessage when ctx ends first and ErrConsumerClosed when the consumer
// is closed while waiting.
func (c *Consumer) Receive(ctx context.Context) (*Message, error) {
	if err := c.checkReceive(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { c.session.conn.metrics.RecordReceiveWait(time.Since(start)) }()

	for {
		md, err := c.dispatcher.Dequeue(ctx)
		if errors.Is(err, ErrDispatcherClosed) {
			return nil, fmt.Errorf("%w: %w", ErrConsumerClosed, err)
		}
		if err != nil {
			return nil, err
		}
		if c.skipExpired(md) {
			continue
		}
		return c.beforeDeliver(md)
	}
}

// ReceiveNoWait returns the next queued message or ErrNoMessage.
func (c *Consumer) ReceiveNoWait() (*Message, error) {
	if err := c.checkReceive(); err != nil {
		return nil, err
	}
	for {
		md := c.dispatcher.DequeueNoWait()
		if md == nil {
			if c.closed.Load() {
				return nil, ErrConsumerClosed
			}
			return nil, ErrNoMessage
		}
		if c.skipExpired(md) {
			continue
		}
		return c.beforeDeliver(md)
	}
}

func (c *Consumer) checkReceive() error {
	if c.closed.Load() {
		return ErrConsumerClosed
	}
	if c.currentListener() != nil {
		return ErrListenerActive
	}
	return nil
}

// dispatchOne delivers one queued message to the listener. It reports
// whether a message was taken from the queue.
func (c *Consumer) dispatchOne() bool {
	l := c.currentListener()
	if l == nil || c.closed.Load() {
		return false
	}
	md := c.dispatcher.DequeueNoWait()
	if md == nil {
		return false
	}
	if c.skipExpired(md) {
		return true
	}
	msg, err := c.beforeDeliver(md)
	if err != nil {
		c.session.conn.reportListenerError(err)
		return true
	}
	if err := c.invoke(l, msg); err != nil {
		c.session.conn.reportListenerError(err)
	}
	return true
}

func (c *Consumer) invoke(l MessageListener, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("message listener panic: %v", r)
		}
	}()
	return l(msg)
}

// skipExpired acknowledges md and reports true when its message expired.
func (c *Consumer) skipExpired(md *openwire.MessageDispatch) bool {
	if md.Message == nil || !md.Message.Base().Expired(time.Now()) {
		return false
	}
	c.logger.Debug("skipping expired message", slog.Any("message_id", md.Message.Base().MessageID))
	c.session.conn.metrics.RecordExpired()
	if err := c.ack(md, openwire.ConsumedAck, nil, nil); err != nil {
		c.logger.Debug("failed to ack expired message", slog.String("error", err.Error()))
	}
	return true
}

// beforeDeliver applies the session's acknowledgement mode to md.
func (c *Consumer) beforeDeliver(md *openwire.MessageDispatch) (*Message, error) {
	if md.Message != nil {
		if id := md.Message.Base().MessageID; id != nil {
			c.lastDelivered.Store(id.BrokerSequenceID)
		}
		md.Message.Base().RedeliveryCounter = md.RedeliveryCounter
	}
	msg := newMessage(md, c)

	var err error
	switch c.session.ackMode {
	case AutoAcknowledge, DupsOkAcknowledge:
		err = c.ack(md, openwire.ConsumedAck, nil, nil)
	case ClientAcknowledge:
		err = c.ack(md, openwire.DeliveredAck, nil, nil)
	case Transactional:
		err = c.session.tx.enlist(c, func(id *openwire.LocalTransactionID) error {
			c.mu.Lock()
			c.delivered = append(c.delivered, md)
			c.mu.Unlock()
			return c.ack(md, openwire.ConsumedAck, id, nil)
		})
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Consumer) acknowledge(md *openwire.MessageDispatch) error {
	if c.closed.Load() {
		return ErrConsumerClosed
	}
	return c.ack(md, openwire.ConsumedAck, nil, nil)
}

func (c *Consumer) ack(md *openwire.MessageDispatch, ackType byte, txID *openwire.LocalTransactionID, cause *openwire.BrokerError) error {
	ack := &openwire.MessageAck{
		Destination:  md.Destination,
		ConsumerID:   c.info.ConsumerID,
		AckType:      ackType,
		MessageCount: 1,
		PoisonCause:  cause,
	}
	if txID != nil {
		ack.TransactionID = txID
	}
	if md.Message != nil {
		ack.FirstMessageID = md.Message.Base().MessageID
		ack.LastMessageID = ack.FirstMessageID
	}
	if err := c.session.conn.oneway(ack); err != nil {
		return err
	}
	c.session.conn.metrics.RecordAck(ackType)
	return nil
}

// BeforeCommit implements Synchronization.
func (c *Consumer) BeforeCommit() error {
	return nil
}

// AfterCommit implements Synchronization.
func (c *Consumer) AfterCommit() error {
	c.mu.Lock()
	c.delivered = nil
	c.mu.Unlock()
	return nil
}

// AfterRollback implements Synchronization. Every message delivered in the
// transaction is staged for redelivery, or poison acked once it has been
// redelivered more than the maximum redelivery count.
func (c *Consumer) AfterRollback() error {
	c.mu.Lock()
	delivered := c.delivered
	c.delivered = nil
	c.mu.Unlock()

	limit := c.session.conn.opts.MaximumRedeliveryCount
	var errs []error
	for _, md := range delivered {
		md.RedeliveryCounter++
		if md.Message != nil {
			md.Message.Base().RedeliveryCounter = md.RedeliveryCounter
		}
		if limit >= 0 && md.RedeliveryCounter > limit {
			cause := &openwire.BrokerError{
				ExceptionClass: "javax.jms.JMSException",
				Message:        fmt.Sprintf("exceeded redelivery policy limit: %d", limit),
			}
			if err := c.ack(md, openwire.PoisonAck, nil, cause); err != nil {
				errs = append(errs, err)
			}
			c.session.conn.metrics.RecordPoisonAck()
			continue
		}
		c.dispatcher.Redeliver(md)
		c.session.conn.metrics.RecordRedelivery()
	}
	return errors.Join(errs...)
}

// Close unregisters the consumer and releases blocked receivers. Failures to
// unregister with the broker are logged and swallowed. Close is idempotent.
func (c *Consumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.dispatcher.Close()
	c.session.removeConsumer(c)
	c.session.conn.metrics.RecordConsumerClosed()

	ctx, cancel := context.WithTimeout(context.Background(), c.session.conn.opts.CloseTimeout)
	defer cancel()
	remove := &openwire.RemoveInfo{ObjectID: c.info.ConsumerID, LastDeliveredSequenceID: c.lastDelivered.Load()}
	if _, err := c.session.conn.syncRequest(ctx, remove); err != nil {
		c.logger.Debug("failed to unregister consumer", slog.String("error", err.Error()))
	}
	return nil
}

func ackTypeName(t byte) string {
	switch t {
	case openwire.DeliveredAck:
		return "delivered"
	case openwire.PoisonAck:
		return "poison"
	case openwire.ConsumedAck:
		return "consumed"
	default:
		return "unknown"
	}
}
