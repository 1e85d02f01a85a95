// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"time"

	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/transport"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default values.
const (
	DefaultAddress                = "localhost:61616"
	DefaultDialTimeout            = 10 * time.Second
	DefaultRequestTimeout         = 30 * time.Second
	DefaultCloseTimeout           = 15 * time.Second
	DefaultMaximumRedeliveryCount = 6
	DefaultPrefetchSize           = 1000
)

// Options configures a Connection.
type Options struct {
	// Connection
	Address        string        // Broker address (host:port), used by Dial
	ClientID       string        // Client identifier; generated when empty
	Username       string        // Optional username
	Password       string        // Optional password
	DialTimeout    time.Duration // Timeout for the TCP dial
	RequestTimeout time.Duration // Upper bound for every synchronous request
	CloseTimeout   time.Duration // Upper bound for unregister requests on close

	// Wire format and request handling
	WireFormat openwire.Options
	Breaker    transport.BreakerOptions

	// Delivery
	MaximumRedeliveryCount int32 // Rollbacks before a poison ack; negative means unlimited
	PrefetchSize           int32 // Messages the broker may push ahead of acks
	AsyncSend              bool  // Send messages one-way instead of waiting for a response
	CompressMessages       bool  // Compress message bodies before sending

	// Producer flow control; zero SendRateLimit disables it.
	SendRateLimit float64 // Messages per second
	SendBurst     int

	// Callbacks
	OnException func(error) // Called for transport failures and listener errors

	// Observability
	Logger *slog.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		Address:                DefaultAddress,
		DialTimeout:            DefaultDialTimeout,
		RequestTimeout:         DefaultRequestTimeout,
		CloseTimeout:           DefaultCloseTimeout,
		WireFormat:             openwire.DefaultOptions(),
		MaximumRedeliveryCount: DefaultMaximumRedeliveryCount,
		PrefetchSize:           DefaultPrefetchSize,
		Logger:                 slog.Default(),
	}
}

// SetAddress sets the broker address.
func (o *Options) SetAddress(addr string) *Options {
	o.Address = addr
	return o
}

// SetDialTimeout sets the TCP dial timeout.
func (o *Options) SetDialTimeout(d time.Duration) *Options {
	o.DialTimeout = d
	return o
}

// SetClientID sets the client identifier.
func (o *Options) SetClientID(id string) *Options {
	o.ClientID = id
	return o
}

// SetCredentials sets username and password.
func (o *Options) SetCredentials(username, password string) *Options {
	o.Username = username
	o.Password = password
	return o
}

// SetRequestTimeout sets the synchronous request timeout.
func (o *Options) SetRequestTimeout(d time.Duration) *Options {
	o.RequestTimeout = d
	return o
}

// SetCloseTimeout sets the timeout for unregistering resources on close.
func (o *Options) SetCloseTimeout(d time.Duration) *Options {
	o.CloseTimeout = d
	return o
}

// SetWireFormat sets the preferred wire format.
func (o *Options) SetWireFormat(wf openwire.Options) *Options {
	o.WireFormat = wf
	return o
}

// SetBreaker enables the request circuit breaker.
func (o *Options) SetBreaker(b transport.BreakerOptions) *Options {
	o.Breaker = b
	return o
}

// SetMaximumRedeliveryCount sets how many rollbacks a message survives
// before it is poison acked.
func (o *Options) SetMaximumRedeliveryCount(n int32) *Options {
	o.MaximumRedeliveryCount = n
	return o
}

// SetPrefetchSize sets the consumer prefetch window.
func (o *Options) SetPrefetchSize(n int32) *Options {
	o.PrefetchSize = n
	return o
}

// SetAsyncSend makes producers send without waiting for the broker.
func (o *Options) SetAsyncSend(async bool) *Options {
	o.AsyncSend = async
	return o
}

// SetCompressMessages enables body compression on send.
func (o *Options) SetCompressMessages(compress bool) *Options {
	o.CompressMessages = compress
	return o
}

// SetSendRateLimit limits producers to perSecond messages with the given burst.
func (o *Options) SetSendRateLimit(perSecond float64, burst int) *Options {
	o.SendRateLimit = perSecond
	o.SendBurst = burst
	return o
}

// SetOnException sets the exception callback.
func (o *Options) SetOnException(fn func(error)) *Options {
	o.OnException = fn
	return o
}

// SetLogger sets the logger.
func (o *Options) SetLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// SetMeter sets the meter used for client metrics.
func (o *Options) SetMeter(m metric.Meter) *Options {
	o.Meter = m
	return o
}

// SetTracer sets the tracer used for broker requests.
func (o *Options) SetTracer(t trace.Tracer) *Options {
	o.Tracer = t
	return o
}

// Validate checks the options for errors and fills in unset defaults.
func (o *Options) Validate() error {
	if o.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}
	if o.PrefetchSize < 0 {
		return ErrInvalidPrefetch
	}
	if o.SendRateLimit > 0 && o.SendBurst <= 0 {
		return ErrInvalidSendRate
	}
	if err := o.WireFormat.Validate(); err != nil {
		return err
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}
