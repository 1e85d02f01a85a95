// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/openwire/openwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSync struct {
	name      string
	log       *[]string
	commitErr error
}

func (r *recordingSync) BeforeCommit() error {
	*r.log = append(*r.log, r.name+".before")
	return r.commitErr
}

func (r *recordingSync) AfterCommit() error {
	*r.log = append(*r.log, r.name+".commit")
	return nil
}

func (r *recordingSync) AfterRollback() error {
	*r.log = append(*r.log, r.name+".rollback")
	return nil
}

func txInfos(ft *fakeTransport, kind byte) []*openwire.TransactionInfo {
	var out []*openwire.TransactionInfo
	for _, ti := range append(oneways[*openwire.TransactionInfo](ft), requests[*openwire.TransactionInfo](ft)...) {
		if ti.Type == kind {
			out = append(out, ti)
		}
	}
	return out
}

func receiveTexts(t *testing.T, c *Consumer, n int) []string {
	t.Helper()
	var out []string
	for range n {
		msg, err := c.ReceiveNoWait()
		require.NoError(t, err)
		out = append(out, mustText(t, msg))
	}
	return out
}

func TestTransactedAcksShareTransaction(t *testing.T) {
	s, ft := newTestSession(t, Transactional, nil)
	c := newTestConsumer(t, s)
	ft.deliver(dispatchFor(c, 1, "A"))
	ft.deliver(dispatchFor(c, 2, "B"))

	receiveTexts(t, c, 2)

	begins := txInfos(ft, openwire.TransactionBegin)
	require.Len(t, begins, 1)
	id := s.TransactionContext().TransactionID()
	require.NotNil(t, id)
	assert.Equal(t, id, begins[0].TransactionID)

	acks := ft.acks()
	require.Len(t, acks, 2)
	for _, ack := range acks {
		assert.Equal(t, openwire.ConsumedAck, ack.AckType)
		assert.Same(t, id, ack.TransactionID)
	}

	require.NoError(t, s.Commit(context.Background()))
	commits := txInfos(ft, openwire.TransactionCommitOnePhase)
	require.Len(t, commits, 1)
	assert.Equal(t, id, commits[0].TransactionID)
	assert.False(t, s.TransactionContext().InTransaction())

	// The next transaction gets a fresh ID.
	ft.deliver(dispatchFor(c, 3, "C"))
	receiveTexts(t, c, 1)
	next := s.TransactionContext().TransactionID()
	require.NotNil(t, next)
	assert.NotEqual(t, id.Value, next.Value)
}

func TestRollbackRedeliversInOrder(t *testing.T) {
	s, ft := newTestSession(t, Transactional, nil)
	c := newTestConsumer(t, s)
	for i, body := range []string{"A", "B", "C"} {
		ft.deliver(dispatchFor(c, int64(i+1), body))
	}

	assert.Equal(t, []string{"A", "B"}, receiveTexts(t, c, 2))
	require.NoError(t, s.Rollback(context.Background()))
	require.Len(t, txInfos(ft, openwire.TransactionRollback), 1)

	var counters []int32
	var bodies []string
	for range 3 {
		msg, err := c.ReceiveNoWait()
		require.NoError(t, err)
		bodies = append(bodies, mustText(t, msg))
		counters = append(counters, msg.RedeliveryCount())
	}
	assert.Equal(t, []string{"A", "B", "C"}, bodies)
	assert.Equal(t, []int32{1, 1, 0}, counters)
}

func TestRedeliveryExhaustionPoisonAcks(t *testing.T) {
	s, ft := newTestSession(t, Transactional, func(o *Options) { o.SetMaximumRedeliveryCount(2) })
	c := newTestConsumer(t, s)
	ft.deliver(dispatchFor(c, 1, "A"))

	deliveries := 0
	for {
		msg, err := c.ReceiveNoWait()
		if errors.Is(err, ErrNoMessage) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, int32(deliveries), msg.RedeliveryCount())
		deliveries++
		require.NoError(t, s.Rollback(context.Background()))
	}
	assert.Equal(t, 3, deliveries)

	var poison []*openwire.MessageAck
	for _, ack := range ft.acks() {
		if ack.AckType == openwire.PoisonAck {
			poison = append(poison, ack)
		}
	}
	require.Len(t, poison, 1)
	assert.Nil(t, poison[0].TransactionID)
	require.NotNil(t, poison[0].PoisonCause)
	assert.Contains(t, poison[0].PoisonCause.Message, "2")
}

func TestUnlimitedRedelivery(t *testing.T) {
	s, ft := newTestSession(t, Transactional, func(o *Options) { o.SetMaximumRedeliveryCount(-1) })
	c := newTestConsumer(t, s)
	ft.deliver(dispatchFor(c, 1, "A"))

	for range 10 {
		receiveTexts(t, c, 1)
		require.NoError(t, s.Rollback(context.Background()))
	}
	msg, err := c.ReceiveNoWait()
	require.NoError(t, err)
	assert.Equal(t, int32(10), msg.RedeliveryCount())
}

func TestTransactionErrors(t *testing.T) {
	s, _ := newTestSession(t, Transactional, nil)
	assert.ErrorIs(t, s.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, s.Rollback(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, s.TransactionContext().AddSynchronization(&recordingSync{}), ErrNoTransaction)

	plain, _ := newTestSession(t, AutoAcknowledge, nil)
	assert.Nil(t, plain.TransactionContext())
	assert.ErrorIs(t, plain.Commit(context.Background()), ErrNotTransacted)
	assert.ErrorIs(t, plain.Rollback(context.Background()), ErrNotTransacted)
}

func TestSynchronizationOrder(t *testing.T) {
	s, _ := newTestSession(t, Transactional, nil)
	tc := s.TransactionContext()

	var log []string
	a := &recordingSync{name: "a", log: &log}
	b := &recordingSync{name: "b", log: &log}

	require.NoError(t, tc.Begin())
	require.NoError(t, tc.Begin())
	require.NoError(t, tc.AddSynchronization(a))
	require.NoError(t, tc.AddSynchronization(b))
	require.NoError(t, tc.AddSynchronization(a))
	require.NoError(t, s.Commit(context.Background()))
	assert.Equal(t, []string{"a.before", "b.before", "a.commit", "b.commit"}, log)

	log = nil
	require.NoError(t, tc.Begin())
	require.NoError(t, tc.AddSynchronization(b))
	require.NoError(t, tc.AddSynchronization(a))
	require.NoError(t, s.Rollback(context.Background()))
	assert.Equal(t, []string{"b.rollback", "a.rollback"}, log)
}

func TestBeforeCommitFailureRollsBack(t *testing.T) {
	s, ft := newTestSession(t, Transactional, nil)
	tc := s.TransactionContext()

	var log []string
	veto := errors.New("veto")
	require.NoError(t, tc.Begin())
	require.NoError(t, tc.AddSynchronization(&recordingSync{name: "a", log: &log, commitErr: veto}))

	err := s.Commit(context.Background())
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"a.before", "a.rollback"}, log)
	assert.Empty(t, txInfos(ft, openwire.TransactionCommitOnePhase))
	assert.Len(t, txInfos(ft, openwire.TransactionRollback), 1)
	assert.False(t, tc.InTransaction())
}

func TestRejectedCommitRedelivers(t *testing.T) {
	s, ft := newTestSession(t, Transactional, nil)
	c := newTestConsumer(t, s)
	ft.deliver(dispatchFor(c, 1, "A"))
	receiveTexts(t, c, 1)

	ft.setRespond(func(_ context.Context, cmd openwire.Command) (openwire.Responder, error) {
		if ti, ok := cmd.(*openwire.TransactionInfo); ok && ti.Type == openwire.TransactionCommitOnePhase {
			return nil, &openwire.BrokerError{Message: "store full"}
		}
		return &openwire.Response{}, nil
	})
	var be *openwire.BrokerError
	require.ErrorAs(t, s.Commit(context.Background()), &be)

	msg, err := c.ReceiveNoWait()
	require.NoError(t, err)
	assert.Equal(t, "A", mustText(t, msg))
	assert.Equal(t, int32(1), msg.RedeliveryCount())
}

func TestTransactedProducer(t *testing.T) {
	s, ft := newTestSession(t, Transactional, nil)
	p, err := s.CreateProducer(context.Background(), openwire.NewQueue("orders"))
	require.NoError(t, err)

	msg := &openwire.TextMessage{}
	msg.SetText("in tx")
	require.NoError(t, p.Send(context.Background(), msg))

	id := s.TransactionContext().TransactionID()
	require.NotNil(t, id)
	assert.Same(t, id, msg.TransactionID)
	assert.Len(t, txInfos(ft, openwire.TransactionBegin), 1)

	sent := requests[*openwire.TextMessage](ft)
	require.Len(t, sent, 1)
	assert.Same(t, msg, sent[0])
	require.NoError(t, s.Commit(context.Background()))
}
