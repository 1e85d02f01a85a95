// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptions(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, DefaultAddress, opts.Address)
	assert.Equal(t, DefaultRequestTimeout, opts.RequestTimeout)
	assert.Equal(t, DefaultCloseTimeout, opts.CloseTimeout)
	assert.Equal(t, int32(DefaultMaximumRedeliveryCount), opts.MaximumRedeliveryCount)
	assert.Equal(t, int32(DefaultPrefetchSize), opts.PrefetchSize)
	assert.Equal(t, openwire.DefaultVersion, opts.WireFormat.Version)
	assert.NotNil(t, opts.Logger)
	assert.NoError(t, opts.Validate())
}

func TestOptionsBuilder(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	called := false
	opts := NewOptions().
		SetAddress("broker:61616").
		SetClientID("orders-service").
		SetCredentials("user", "pass").
		SetRequestTimeout(5*time.Second).
		SetCloseTimeout(time.Second).
		SetBreaker(transport.BreakerOptions{Enabled: true, FailureThreshold: 3}).
		SetMaximumRedeliveryCount(2).
		SetPrefetchSize(10).
		SetAsyncSend(true).
		SetCompressMessages(true).
		SetSendRateLimit(100, 10).
		SetOnException(func(error) { called = true }).
		SetLogger(logger)

	assert.Equal(t, "broker:61616", opts.Address)
	assert.Equal(t, "orders-service", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pass", opts.Password)
	assert.Equal(t, 5*time.Second, opts.RequestTimeout)
	assert.Equal(t, time.Second, opts.CloseTimeout)
	assert.True(t, opts.Breaker.Enabled)
	assert.Equal(t, int32(2), opts.MaximumRedeliveryCount)
	assert.Equal(t, int32(10), opts.PrefetchSize)
	assert.True(t, opts.AsyncSend)
	assert.True(t, opts.CompressMessages)
	assert.Equal(t, 100.0, opts.SendRateLimit)
	assert.Equal(t, 10, opts.SendBurst)
	assert.Same(t, logger, opts.Logger)

	opts.OnException(nil)
	assert.True(t, called)
	require.NoError(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		err    error
	}{
		{"zero request timeout", func(o *Options) { o.RequestTimeout = 0 }, ErrInvalidRequestTimeout},
		{"negative prefetch", func(o *Options) { o.PrefetchSize = -1 }, ErrInvalidPrefetch},
		{"rate without burst", func(o *Options) { o.SendRateLimit = 5 }, ErrInvalidSendRate},
		{"bad wire format", func(o *Options) { o.WireFormat.Version = 99 }, openwire.ErrInvalidWireOptions},
		{"unlimited redelivery", func(o *Options) { o.MaximumRedeliveryCount = -1 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.mutate(opts)
			err := opts.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestOptionsValidateFillsDefaults(t *testing.T) {
	opts := NewOptions()
	opts.CloseTimeout = 0
	opts.Logger = nil

	require.NoError(t, opts.Validate())
	assert.Equal(t, DefaultCloseTimeout, opts.CloseTimeout)
	assert.NotNil(t, opts.Logger)
}
