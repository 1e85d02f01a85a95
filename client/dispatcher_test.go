// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/absmach/openwire/openwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatch(seq int64) *openwire.MessageDispatch {
	msg := &openwire.TextMessage{}
	msg.MessageID = &openwire.MessageID{ProducerID: &openwire.ProducerID{ConnectionID: "c", SessionID: 1, Value: 1}, ProducerSequenceID: seq}
	return &openwire.MessageDispatch{Message: msg}
}

func seqOf(md *openwire.MessageDispatch) int64 {
	return md.Message.Base().MessageID.ProducerSequenceID
}

func TestDispatcherFIFO(t *testing.T) {
	d := newDispatcher()
	for i := range int64(5) {
		d.Enqueue(dispatch(i))
	}
	assert.Equal(t, 5, d.Len())

	for i := range int64(5) {
		md := d.DequeueNoWait()
		require.NotNil(t, md)
		assert.Equal(t, i, seqOf(md))
	}
	assert.Nil(t, d.DequeueNoWait())
}

func TestDispatcherRollbackReordering(t *testing.T) {
	d := newDispatcher()
	a, b, c := dispatch(1), dispatch(2), dispatch(3)
	d.Enqueue(a)
	d.Enqueue(b)
	d.Enqueue(c)

	assert.Same(t, a, d.DequeueNoWait())
	assert.Same(t, b, d.DequeueNoWait())

	d.Redeliver(a)
	d.Redeliver(b)
	// Staged messages stay invisible until the merge.
	assert.Equal(t, 1, d.Len())

	d.RedeliverRolledBackMessages()
	assert.Same(t, a, d.DequeueNoWait())
	assert.Same(t, b, d.DequeueNoWait())
	assert.Same(t, c, d.DequeueNoWait())
	assert.Nil(t, d.DequeueNoWait())
}

func TestDispatcherMergeWithoutStagedMessages(t *testing.T) {
	d := newDispatcher()
	d.Enqueue(dispatch(1))
	d.RedeliverRolledBackMessages()
	assert.Equal(t, 1, d.Len())
}

func TestDispatcherDequeueWaitsForEnqueue(t *testing.T) {
	d := newDispatcher()
	got := make(chan *openwire.MessageDispatch, 1)
	go func() {
		md, err := d.Dequeue(context.Background())
		assert.NoError(t, err)
		got <- md
	}()

	time.Sleep(10 * time.Millisecond)
	want := dispatch(7)
	d.Enqueue(want)

	select {
	case md := <-got:
		assert.Same(t, want, md)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by enqueue")
	}
}

func TestDispatcherDequeueTimeout(t *testing.T) {
	d := newDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	md, err := d.Dequeue(ctx)
	assert.Nil(t, md)
	assert.ErrorIs(t, err, ErrNoMessage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcherCloseUnblocksWaiters(t *testing.T) {
	d := newDispatcher()
	const waiters = 3
	errs := make(chan error, waiters)
	for range waiters {
		go func() {
			_, err := d.Dequeue(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	d.Close()

	for range waiters {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDispatcherClosed)
		case <-time.After(time.Second):
			t.Fatal("waiter still blocked after close")
		}
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := newDispatcher()
	d.Enqueue(dispatch(1))
	d.Redeliver(dispatch(2))

	d.Close()
	d.Close()

	assert.Zero(t, d.Len())
	assert.Nil(t, d.DequeueNoWait())
	d.Enqueue(dispatch(3))
	d.Redeliver(dispatch(4))
	d.RedeliverRolledBackMessages()
	assert.Nil(t, d.DequeueNoWait())

	_, err := d.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcherAsyncSignal(t *testing.T) {
	d := newDispatcher()
	signal := make(chan struct{}, 1)
	d.SetAsyncDelivery(signal)

	d.Enqueue(dispatch(1))
	d.Enqueue(dispatch(2))
	select {
	case <-signal:
	default:
		t.Fatal("async signal not raised")
	}
	// The signal is a single slot.
	assert.Empty(t, signal)
}

func TestDispatcherManyWaitersDrainQueue(t *testing.T) {
	d := newDispatcher()
	const n = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			md, err := d.Dequeue(ctx)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[seqOf(md)] = true
			mu.Unlock()
		}()
	}

	for i := range int64(n) {
		d.Enqueue(dispatch(i))
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
