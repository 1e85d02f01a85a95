// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/openwire"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// BreakerOptions configure the optional circuit breaker around requests.
// Broker exceptions count as successes; only timeouts and transport errors
// trip it.
type BreakerOptions struct {
	Enabled          bool
	FailureThreshold uint32
	ResetTimeout     time.Duration
}

// CorrelatorOptions configure a ResponseCorrelator.
type CorrelatorOptions struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Breaker BreakerOptions
}

// pendingRequest waits for the response to one command ID.
type pendingRequest struct {
	done chan struct{}
	resp openwire.Responder
	err  error
}

// ResponseCorrelator numbers outgoing commands and matches responses to
// waiting requests by correlation ID. Other commands pass through to the
// command listener.
type ResponseCorrelator struct {
	next    Transport
	logger  *slog.Logger
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker

	nextID atomic.Int32

	mu      sync.Mutex
	pending map[int32]*pendingRequest
	failure error

	listenerMu  sync.RWMutex
	onCommand   CommandListener
	onException ExceptionListener
}

var _ Transport = (*ResponseCorrelator)(nil)

// NewResponseCorrelator wraps next.
func NewResponseCorrelator(next Transport, opts CorrelatorOptions) *ResponseCorrelator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("openwire")
	}
	c := &ResponseCorrelator{
		next:        next,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		pending:     make(map[int32]*pendingRequest),
		onCommand:   func(openwire.Command) {},
		onException: func(error) {},
	}
	if opts.Breaker.Enabled {
		threshold := max(opts.Breaker.FailureThreshold, 1)
		logger := opts.Logger
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openwire-requests",
			MaxRequests: 1,
			Timeout:     opts.Breaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				var be *openwire.BrokerError
				return err == nil || errors.As(err, &be)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("request circuit breaker state changed",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}
	next.SetCommandListener(c.handleCommand)
	next.SetExceptionListener(c.handleException)
	return c
}

func (c *ResponseCorrelator) SetCommandListener(l CommandListener) {
	if l == nil {
		l = func(openwire.Command) {}
	}
	c.listenerMu.Lock()
	c.onCommand = l
	c.listenerMu.Unlock()
}

func (c *ResponseCorrelator) SetExceptionListener(l ExceptionListener) {
	if l == nil {
		l = func(error) {}
	}
	c.listenerMu.Lock()
	c.onException = l
	c.listenerMu.Unlock()
}

func (c *ResponseCorrelator) Start(ctx context.Context) error {
	return c.next.Start(ctx)
}

// Oneway assigns the next command ID and sends cmd without expecting a
// response.
func (c *ResponseCorrelator) Oneway(cmd openwire.Command) error {
	h := cmd.Header()
	h.CommandID = c.nextID.Add(1)
	h.ResponseRequired = false
	return c.next.Oneway(cmd)
}

// Request sends cmd and blocks until its response arrives, ctx ends or the
// transport fails.
func (c *ResponseCorrelator) Request(ctx context.Context, cmd openwire.Command) (openwire.Responder, error) {
	ctx, span := c.tracer.Start(ctx, "openwire.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("openwire.command.type", int(cmd.DataStructureType()))))
	defer span.End()

	resp, err := c.execute(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (c *ResponseCorrelator) execute(ctx context.Context, cmd openwire.Command) (openwire.Responder, error) {
	if c.breaker == nil {
		return c.request(ctx, cmd)
	}
	v, err := c.breaker.Execute(func() (any, error) {
		return c.request(ctx, cmd)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return v.(openwire.Responder), nil
}

func (c *ResponseCorrelator) request(ctx context.Context, cmd openwire.Command) (openwire.Responder, error) {
	h := cmd.Header()
	h.CommandID = c.nextID.Add(1)
	h.ResponseRequired = true

	op, err := c.add(h.CommandID)
	if err != nil {
		return nil, err
	}
	if err := c.next.Oneway(cmd); err != nil {
		c.remove(h.CommandID)
		return nil, err
	}

	select {
	case <-op.done:
		if op.err != nil {
			return nil, op.err
		}
		if er, ok := op.resp.(*openwire.ExceptionResponse); ok {
			if er.Exception == nil {
				return nil, &openwire.BrokerError{ExceptionClass: "java.lang.Exception", Message: "broker returned an empty exception"}
			}
			return nil, er.Exception
		}
		return op.resp, nil
	case <-ctx.Done():
		c.remove(h.CommandID)
		return nil, fmt.Errorf("%w: %w", ErrRequestTimeout, ctx.Err())
	}
}

func (c *ResponseCorrelator) Close() error {
	c.clear(ErrClosed)
	return c.next.Close()
}

// Pending returns the number of requests awaiting a response.
func (c *ResponseCorrelator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *ResponseCorrelator) add(id int32) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return nil, c.failure
	}
	op := &pendingRequest{done: make(chan struct{})}
	c.pending[id] = op
	return op, nil
}

func (c *ResponseCorrelator) remove(id int32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *ResponseCorrelator) complete(id int32, resp openwire.Responder) bool {
	c.mu.Lock()
	op, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	op.resp = resp
	close(op.done)
	return true
}

// clear fails every pending request with err and rejects new ones.
func (c *ResponseCorrelator) clear(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int32]*pendingRequest)
	if c.failure == nil {
		c.failure = err
	}
	c.mu.Unlock()

	for _, op := range pending {
		op.err = err
		close(op.done)
	}
}

func (c *ResponseCorrelator) handleCommand(cmd openwire.Command) {
	if r, ok := cmd.(openwire.Responder); ok {
		id := r.ResponseHeader().CorrelationID
		if !c.complete(id, r) {
			c.logger.Debug("response without pending request", slog.Int("correlation_id", int(id)))
		}
		return
	}
	c.listenerMu.RLock()
	l := c.onCommand
	c.listenerMu.RUnlock()
	l(cmd)
}

func (c *ResponseCorrelator) handleException(err error) {
	c.clear(err)
	c.listenerMu.RLock()
	l := c.onException
	c.listenerMu.RUnlock()
	l(err)
}
