// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/absmach/openwire/openwire"
)

// dispatcher is the message queue of one consumer. The connection's reader
// enqueues; synchronous receivers and the session's dispatch loop dequeue.
// Messages staged by Redeliver go back to the head of the queue on the next
// RedeliverRolledBackMessages, in the order they were staged.
type dispatcher struct {
	mu        sync.Mutex
	queue     []*openwire.MessageDispatch
	redeliver []*openwire.MessageDispatch
	closed    bool
	async     chan struct{}

	// wake is an auto-reset signal releasing one blocked Dequeue.
	wake chan struct{}
	done chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// SetAsyncDelivery wires the session's shared wake signal.
func (d *dispatcher) SetAsyncDelivery(signal chan struct{}) {
	d.mu.Lock()
	d.async = signal
	d.mu.Unlock()
}

// Enqueue appends md. Messages enqueued after Close are dropped.
func (d *dispatcher) Enqueue(md *openwire.MessageDispatch) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, md)
	async := d.async
	d.mu.Unlock()

	notify(d.wake)
	if async != nil {
		notify(async)
	}
}

// Redeliver stages md for the next merge.
func (d *dispatcher) Redeliver(md *openwire.MessageDispatch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.redeliver = append(d.redeliver, md)
	}
}

// RedeliverRolledBackMessages puts every staged message ahead of the queue.
func (d *dispatcher) RedeliverRolledBackMessages() {
	d.mu.Lock()
	if len(d.redeliver) == 0 {
		d.mu.Unlock()
		return
	}
	merged := make([]*openwire.MessageDispatch, 0, len(d.redeliver)+len(d.queue))
	merged = append(merged, d.redeliver...)
	merged = append(merged, d.queue...)
	d.queue = merged
	d.redeliver = nil
	async := d.async
	d.mu.Unlock()

	notify(d.wake)
	if async != nil {
		notify(async)
	}
}

// DequeueNoWait returns the head of the queue, or nil when it is empty or
// the dispatcher is closed.
func (d *dispatcher) DequeueNoWait() *openwire.MessageDispatch {
	d.mu.Lock()
	if d.closed || len(d.queue) == 0 {
		d.mu.Unlock()
		return nil
	}
	md := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	more := len(d.queue) > 0
	d.mu.Unlock()

	// Pass the signal on so a second waiter sees the remaining messages.
	if more {
		notify(d.wake)
	}
	return md
}

// Dequeue blocks until a message is available. It returns ErrNoMessage when
// ctx ends first and ErrDispatcherClosed once the dispatcher is closed.
func (d *dispatcher) Dequeue(ctx context.Context) (*openwire.MessageDispatch, error) {
	for {
		if md := d.DequeueNoWait(); md != nil {
			return md, nil
		}
		if d.isClosed() {
			return nil, ErrDispatcherClosed
		}
		select {
		case <-d.wake:
		case <-d.done:
			return nil, ErrDispatcherClosed
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNoMessage, ctx.Err())
		}
	}
}

// Close drops every queued and staged message and releases all waiters.
func (d *dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.queue = nil
	d.redeliver = nil
	close(d.done)
}

func (d *dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Len returns the number of queued messages, excluding staged ones.
func (d *dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func notify(signal chan struct{}) {
	select {
	case signal <- struct{}{}:
	default:
	}
}
