// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"

	"github.com/absmach/openwire/openwire"
)

// Synchronization takes part in the completion of a local transaction.
type Synchronization interface {
	BeforeCommit() error
	AfterCommit() error
	AfterRollback() error
}

// requester sends commands to the broker.
type requester interface {
	oneway(cmd openwire.Command) error
	syncRequest(ctx context.Context, cmd openwire.Command) (openwire.Responder, error)
}

// TransactionContext tracks the local transaction of one session. Beginning,
// enlisting and completing serialize through a single mutex.
type TransactionContext struct {
	conn     requester
	connID   *openwire.ConnectionID
	nextTxID func() int64

	mu       sync.Mutex
	id       *openwire.LocalTransactionID
	syncs    []Synchronization
	enlisted map[Synchronization]struct{}
}

func newTransactionContext(conn requester, connID *openwire.ConnectionID, nextTxID func() int64) *TransactionContext {
	return &TransactionContext{
		conn:     conn,
		connID:   connID,
		nextTxID: nextTxID,
		enlisted: make(map[Synchronization]struct{}),
	}
}

// InTransaction reports whether a transaction is active.
func (tc *TransactionContext) InTransaction() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.id != nil
}

// TransactionID returns the active transaction ID, or nil.
func (tc *TransactionContext) TransactionID() *openwire.LocalTransactionID {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.id
}

// Begin starts a transaction. It is a no-op inside one.
func (tc *TransactionContext) Begin() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.begin()
}

func (tc *TransactionContext) begin() error {
	if tc.id != nil {
		return nil
	}
	id := &openwire.LocalTransactionID{Value: tc.nextTxID(), ConnectionID: tc.connID}
	err := tc.conn.oneway(&openwire.TransactionInfo{
		ConnectionID:  tc.connID,
		TransactionID: id,
		Type:          openwire.TransactionBegin,
	})
	if err != nil {
		return err
	}
	tc.id = id
	return nil
}

// AddSynchronization registers s with the active transaction. A
// synchronization registered twice fires once.
func (tc *TransactionContext) AddSynchronization(s Synchronization) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.id == nil {
		return ErrNoTransaction
	}
	tc.add(s)
	return nil
}

func (tc *TransactionContext) add(s Synchronization) {
	if _, ok := tc.enlisted[s]; ok {
		return
	}
	tc.enlisted[s] = struct{}{}
	tc.syncs = append(tc.syncs, s)
}

// enlist begins a transaction if needed, registers s when it is not nil and
// runs send with the transaction ID, all without a commit or rollback in
// between.
func (tc *TransactionContext) enlist(s Synchronization, send func(*openwire.LocalTransactionID) error) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if err := tc.begin(); err != nil {
		return err
	}
	if s != nil {
		tc.add(s)
	}
	return send(tc.id)
}

// Commit runs BeforeCommit on every synchronization, commits in one phase,
// then runs AfterCommit. A failing BeforeCommit rolls the transaction back.
// When the broker rejects the commit the transaction is gone, so every
// synchronization gets AfterRollback instead.
func (tc *TransactionContext) Commit(ctx context.Context) error {
	tc.mu.Lock()
	if tc.id == nil {
		tc.mu.Unlock()
		return ErrNoTransaction
	}
	for _, s := range tc.syncs {
		if err := s.BeforeCommit(); err != nil {
			tc.mu.Unlock()
			return errors.Join(err, tc.Rollback(ctx))
		}
	}
	id, syncs := tc.id, tc.syncs
	_, err := tc.conn.syncRequest(ctx, &openwire.TransactionInfo{
		ConnectionID:  tc.connID,
		TransactionID: id,
		Type:          openwire.TransactionCommitOnePhase,
	})
	tc.reset()
	tc.mu.Unlock()
	if err != nil {
		errs := []error{err}
		for _, s := range syncs {
			errs = append(errs, s.AfterRollback())
		}
		return errors.Join(errs...)
	}

	var errs []error
	for _, s := range syncs {
		if err := s.AfterCommit(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rollback rolls the transaction back on the broker, then runs AfterRollback
// on every synchronization in registration order.
func (tc *TransactionContext) Rollback(ctx context.Context) error {
	tc.mu.Lock()
	if tc.id == nil {
		tc.mu.Unlock()
		return ErrNoTransaction
	}
	id, syncs := tc.id, tc.syncs
	_, err := tc.conn.syncRequest(ctx, &openwire.TransactionInfo{
		ConnectionID:  tc.connID,
		TransactionID: id,
		Type:          openwire.TransactionRollback,
	})
	tc.reset()
	tc.mu.Unlock()

	errs := []error{err}
	for _, s := range syncs {
		errs = append(errs, s.AfterRollback())
	}
	return errors.Join(errs...)
}

func (tc *TransactionContext) reset() {
	tc.id = nil
	tc.syncs = nil
	clear(tc.enlisted)
}
