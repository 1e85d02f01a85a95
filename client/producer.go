// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/openwire"
	"golang.org/x/time/rate"
)

// DeliveryMode controls whether the broker persists a message.
type DeliveryMode int

// Delivery modes.
const (
	NonPersistent DeliveryMode = iota
	Persistent
)

// DefaultPriority is the JMS default message priority.
const DefaultPriority byte = 4

// Producer sends messages. Each message gets a message ID made of the
// producer ID and a per-producer sequence number.
type Producer struct {
	session *Session
	info    *openwire.ProducerInfo
	limiter *rate.Limiter
	logger  *slog.Logger

	sequence atomic.Int64
	closed   atomic.Bool

	mu           sync.Mutex
	deliveryMode DeliveryMode
	priority     byte
	ttl          time.Duration
}

// ID returns the producer ID.
func (p *Producer) ID() *openwire.ProducerID {
	return p.info.ProducerID
}

// SetDeliveryMode sets the delivery mode of subsequent sends.
func (p *Producer) SetDeliveryMode(m DeliveryMode) {
	p.mu.Lock()
	p.deliveryMode = m
	p.mu.Unlock()
}

// SetPriority sets the priority (0-9) of subsequent sends.
func (p *Producer) SetPriority(priority byte) {
	p.mu.Lock()
	p.priority = min(priority, 9)
	p.mu.Unlock()
}

// SetTimeToLive makes subsequent sends expire ttl after they are sent. Zero
// means never.
func (p *Producer) SetTimeToLive(ttl time.Duration) {
	p.mu.Lock()
	p.ttl = ttl
	p.mu.Unlock()
}

// Send sends msg to the producer's destination.
func (p *Producer) Send(ctx context.Context, msg openwire.AnyMessage) error {
	return p.SendTo(ctx, p.info.Destination, msg)
}

// SendTo sends msg to dest. The message's headers are overwritten.
func (p *Producer) SendTo(ctx context.Context, dest openwire.Destination, msg openwire.AnyMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if dest == nil {
		return ErrNoDestination
	}
	if msg == nil {
		return ErrNilMessage
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	mode, priority, ttl := p.deliveryMode, p.priority, p.ttl
	p.mu.Unlock()

	m := msg.Base()
	now := time.Now()
	m.ProducerID = p.info.ProducerID
	m.MessageID = &openwire.MessageID{ProducerID: p.info.ProducerID, ProducerSequenceID: p.sequence.Add(1)}
	m.Destination = dest
	m.Timestamp = now.UnixMilli()
	m.Expiration = 0
	if ttl > 0 {
		m.Expiration = now.Add(ttl).UnixMilli()
	}
	m.Persistent = mode == Persistent
	m.Priority = priority
	m.TransactionID = nil
	m.SetMarshalledForm(nil)
	if p.session.conn.opts.CompressMessages {
		if err := m.Compress(); err != nil {
			return err
		}
	}

	var err error
	if p.session.tx != nil {
		err = p.session.tx.enlist(nil, func(id *openwire.LocalTransactionID) error {
			m.TransactionID = id
			return p.send(ctx, msg)
		})
	} else {
		err = p.send(ctx, msg)
	}
	if err != nil {
		return err
	}
	p.session.conn.metrics.RecordSent()
	return nil
}

func (p *Producer) send(ctx context.Context, msg openwire.AnyMessage) error {
	if p.session.conn.opts.AsyncSend {
		return p.session.conn.oneway(msg)
	}
	_, err := p.session.conn.syncRequest(ctx, msg)
	return err
}

// Close unregisters the producer. Failures to unregister are logged and
// swallowed. Close is idempotent.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.session.removeProducer(p)

	ctx, cancel := context.WithTimeout(context.Background(), p.session.conn.opts.CloseTimeout)
	defer cancel()
	if _, err := p.session.conn.syncRequest(ctx, &openwire.RemoveInfo{ObjectID: p.info.ProducerID}); err != nil {
		p.logger.Debug("failed to unregister producer", slog.String("error", err.Error()))
	}
	return nil
}
