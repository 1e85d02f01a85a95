// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStateTransition(t *testing.T) {
	sm := newStateManager()
	assert.Equal(t, StateCreated, sm.get())

	assert.True(t, sm.transition(StateCreated, StateConnecting))
	assert.False(t, sm.transition(StateCreated, StateConnected))
	assert.True(t, sm.transitionFrom(StateConnected, StateCreated, StateConnecting))
	assert.True(t, sm.isConnected())
	assert.False(t, sm.isClosed())

	sm.set(StateClosing)
	assert.True(t, sm.isClosed())
}

func TestStateConcurrentTransition(t *testing.T) {
	sm := newStateManager()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sm.transition(StateCreated, StateConnecting) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
