// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/transport"
	"github.com/google/uuid"
)

// Connection is a client connection to a broker. It owns its sessions and
// routes dispatched messages to their consumers.
type Connection struct {
	transport transport.Transport
	opts      *Options
	logger    *slog.Logger
	metrics   *Metrics
	state     *stateManager
	info      *openwire.ConnectionInfo

	sessionIDs atomic.Int64
	txIDs      atomic.Int64
	tempIDs    atomic.Int64
	started    atomic.Bool
	failed     atomic.Bool
	brokerInfo atomic.Pointer[openwire.BrokerInfo]

	mu        sync.RWMutex
	sessions  []*Session
	consumers map[openwire.ConsumerID]*Consumer

	exceptionMu sync.RWMutex
	onException func(error)
}

// NewConnection creates a connection over t, which must support Request;
// wrap a bare stream in a transport.ResponseCorrelator. The connection is
// not established until Connect.
func NewConnection(t transport.Transport, opts *Options) (*Connection, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}

	connID := &openwire.ConnectionID{Value: newConnectionID()}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = connID.Value
	}
	c := &Connection{
		transport: t,
		opts:      opts,
		logger:    opts.Logger.With(slog.String("connection_id", connID.Value)),
		metrics:   metrics,
		state:     newStateManager(),
		info: &openwire.ConnectionInfo{
			ConnectionID: connID,
			ClientID:     clientID,
			UserName:     opts.Username,
			Password:     opts.Password,
		},
		consumers:   make(map[openwire.ConsumerID]*Consumer),
		onException: opts.OnException,
	}
	t.SetCommandListener(c.onCommand)
	t.SetExceptionListener(c.onTransportException)
	return c, nil
}

// Dial connects to opts.Address over TCP and establishes the connection.
func Dial(ctx context.Context, opts *Options) (*Connection, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	stream, err := transport.Dial(ctx, opts.Address, transport.DialOptions{
		Stream: transport.StreamOptions{
			WireFormat: opts.WireFormat,
			Logger:     opts.Logger,
		},
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	t := transport.NewResponseCorrelator(stream, transport.CorrelatorOptions{
		Logger:  opts.Logger,
		Tracer:  opts.Tracer,
		Breaker: opts.Breaker,
	})
	c, err := NewConnection(t, opts)
	if err != nil {
		t.Close()
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// newConnectionID returns ID:<host>-<uuid>.
func newConnectionID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return "ID:" + host + "-" + uuid.NewString()
}

// Connect starts the transport, which negotiates the wire format, and
// registers the connection with the broker.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.state.transition(StateCreated, StateConnecting) {
		if c.state.isClosed() {
			return ErrConnectionClosed
		}
		return ErrAlreadyConnected
	}
	if err := c.transport.Start(ctx); err != nil {
		c.state.set(StateClosed)
		c.transport.Close()
		return fmt.Errorf("start transport: %w", err)
	}
	if _, err := c.request(ctx, c.info); err != nil {
		c.state.set(StateClosed)
		c.transport.Close()
		return fmt.Errorf("register connection: %w", err)
	}
	if !c.state.transition(StateConnecting, StateConnected) {
		return ErrConnectionClosed
	}
	c.logger.Info("connected", slog.String("client_id", c.info.ClientID))
	return nil
}

// ID returns the connection ID.
func (c *Connection) ID() *openwire.ConnectionID {
	return c.info.ConnectionID
}

// ClientID returns the client ID sent to the broker.
func (c *Connection) ClientID() string {
	return c.info.ClientID
}

// State returns the connection state.
func (c *Connection) State() State {
	return c.state.get()
}

// BrokerInfo returns the last BrokerInfo received, or nil.
func (c *Connection) BrokerInfo() *openwire.BrokerInfo {
	return c.brokerInfo.Load()
}

// SetExceptionListener replaces the exception callback.
func (c *Connection) SetExceptionListener(l func(error)) {
	c.exceptionMu.Lock()
	c.onException = l
	c.exceptionMu.Unlock()
}

// Start starts asynchronous delivery in every current and future session.
func (c *Connection) Start() error {
	if !c.state.isConnected() {
		return c.lifecycleError()
	}
	c.started.Store(true)
	for _, s := range c.sessionSnapshot() {
		s.Start()
	}
	return nil
}

// Stop stops asynchronous delivery in every session. Synchronous receives
// are unaffected.
func (c *Connection) Stop() {
	c.started.Store(false)
	for _, s := range c.sessionSnapshot() {
		s.Stop()
	}
}

// CreateSession opens a session with the given acknowledgement mode.
func (c *Connection) CreateSession(ctx context.Context, mode AckMode) (*Session, error) {
	if !c.state.isConnected() {
		return nil, c.lifecycleError()
	}
	if mode < AutoAcknowledge || mode > Transactional {
		return nil, ErrInvalidAckMode
	}
	info := &openwire.SessionInfo{
		SessionID: &openwire.SessionID{ConnectionID: c.info.ConnectionID.Value, Value: c.sessionIDs.Add(1)},
	}
	if _, err := c.syncRequest(ctx, info); err != nil {
		return nil, err
	}

	s := newSession(c, info, mode)
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	c.metrics.RecordSessionOpened()
	if c.started.Load() {
		s.Start()
	}
	return s, nil
}

// CreateTemporaryQueue creates a queue that lives as long as the connection.
func (c *Connection) CreateTemporaryQueue(ctx context.Context) (*openwire.TempQueue, error) {
	q := &openwire.TempQueue{PhysicalName: c.tempName()}
	if err := c.destinationInfo(ctx, q, openwire.DestinationAdd); err != nil {
		return nil, err
	}
	return q, nil
}

// CreateTemporaryTopic creates a topic that lives as long as the connection.
func (c *Connection) CreateTemporaryTopic(ctx context.Context) (*openwire.TempTopic, error) {
	t := &openwire.TempTopic{PhysicalName: c.tempName()}
	if err := c.destinationInfo(ctx, t, openwire.DestinationAdd); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTemporaryDestination removes a temporary queue or topic.
func (c *Connection) DeleteTemporaryDestination(ctx context.Context, dest openwire.Destination) error {
	if dest == nil || !dest.IsTemporary() {
		return ErrTempDestination
	}
	return c.destinationInfo(ctx, dest, openwire.DestinationRemove)
}

func (c *Connection) tempName() string {
	return c.info.ConnectionID.Value + ":" + strconv.FormatInt(c.tempIDs.Add(1), 10)
}

func (c *Connection) destinationInfo(ctx context.Context, dest openwire.Destination, op byte) error {
	_, err := c.syncRequest(ctx, &openwire.DestinationInfo{
		ConnectionID:  c.info.ConnectionID,
		Destination:   dest,
		OperationType: op,
	})
	return err
}

// Close closes every session, unregisters the connection and closes the
// transport. It is idempotent.
func (c *Connection) Close() error {
	connected := c.state.transition(StateConnected, StateClosing)
	if !connected && !c.state.transitionFrom(StateClosing, StateCreated, StateConnecting) {
		return nil
	}
	c.Stop()
	for _, s := range c.sessionSnapshot() {
		s.Close()
	}

	if connected && !c.failed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.CloseTimeout)
		if _, err := c.request(ctx, &openwire.RemoveInfo{ObjectID: c.info.ConnectionID}); err != nil {
			c.logger.Debug("failed to unregister connection", slog.String("error", err.Error()))
		}
		cancel()
		if err := c.transport.Oneway(&openwire.ShutdownInfo{}); err != nil {
			c.logger.Debug("failed to send shutdown", slog.String("error", err.Error()))
		}
	}
	err := c.transport.Close()
	c.state.set(StateClosed)
	c.logger.Info("connection closed")
	return err
}

func (c *Connection) lifecycleError() error {
	if c.state.isClosed() {
		return ErrConnectionClosed
	}
	return ErrNotConnected
}

func (c *Connection) oneway(cmd openwire.Command) error {
	if c.state.get() == StateClosed {
		return ErrConnectionClosed
	}
	return c.transport.Oneway(cmd)
}

// syncRequest sends cmd and waits for its response, bounded by the request
// timeout.
func (c *Connection) syncRequest(ctx context.Context, cmd openwire.Command) (openwire.Responder, error) {
	if c.state.get() == StateClosed {
		return nil, ErrConnectionClosed
	}
	return c.request(ctx, cmd)
}

func (c *Connection) request(ctx context.Context, cmd openwire.Command) (openwire.Responder, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	return c.transport.Request(ctx, cmd)
}

func (c *Connection) nextTransactionID() int64 {
	return c.txIDs.Add(1)
}

func (c *Connection) addConsumer(cons *Consumer) {
	c.mu.Lock()
	c.consumers[*cons.info.ConsumerID] = cons
	c.mu.Unlock()
}

func (c *Connection) removeConsumer(cons *Consumer) {
	c.mu.Lock()
	delete(c.consumers, *cons.info.ConsumerID)
	c.mu.Unlock()
}

func (c *Connection) removeSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ss := range c.sessions {
		if ss == s {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			return
		}
	}
}

func (c *Connection) sessionSnapshot() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Session(nil), c.sessions...)
}

// onCommand handles every command the transport does not consume itself.
func (c *Connection) onCommand(cmd openwire.Command) {
	switch cmd := cmd.(type) {
	case *openwire.MessageDispatch:
		c.dispatch(cmd)
	case *openwire.ShutdownInfo:
		if !c.state.isClosed() {
			c.reportFailure(ErrBrokerShutdown)
		}
	case *openwire.ConnectionError:
		if cmd.Exception != nil {
			c.reportFailure(fmt.Errorf("%w: %w", ErrConnectionError, cmd.Exception))
			return
		}
		c.reportFailure(ErrConnectionError)
	case *openwire.KeepAliveInfo:
		if cmd.ResponseRequired {
			if err := c.transport.Oneway(&openwire.KeepAliveInfo{}); err != nil {
				c.logger.Debug("failed to answer keep-alive", slog.String("error", err.Error()))
			}
		}
	case *openwire.BrokerInfo:
		c.brokerInfo.Store(cmd)
		c.logger.Debug("broker info received", slog.String("broker", cmd.BrokerName))
	case *openwire.WireFormatInfo:
		// Negotiated by the transport.
	default:
		c.logger.Debug("ignoring command", slog.Int("type", int(cmd.DataStructureType())))
	}
}

func (c *Connection) dispatch(md *openwire.MessageDispatch) {
	if md.ConsumerID == nil {
		c.logger.Warn("dispatch without consumer id")
		c.metrics.RecordDropped()
		return
	}
	c.mu.RLock()
	cons, ok := c.consumers[*md.ConsumerID]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("dispatch for unknown consumer", slog.String("consumer_id", md.ConsumerID.String()))
		c.metrics.RecordDropped()
		return
	}
	c.metrics.RecordDispatched()
	cons.dispatcher.Enqueue(md)
}

func (c *Connection) onTransportException(err error) {
	if c.state.isClosed() {
		return
	}
	c.reportFailure(err)
}

// reportFailure reports the first connection failure and ignores the rest.
func (c *Connection) reportFailure(err error) {
	if !c.failed.CompareAndSwap(false, true) {
		c.logger.Debug("suppressing further connection failure", slog.String("error", err.Error()))
		return
	}
	c.logger.Error("connection failed", slog.String("error", err.Error()))
	c.notify(err)
}

func (c *Connection) reportListenerError(err error) {
	c.metrics.RecordListenerError()
	c.logger.Warn("message listener failed", slog.String("error", err.Error()))
	c.notify(err)
}

func (c *Connection) notify(err error) {
	c.exceptionMu.RLock()
	l := c.onException
	c.exceptionMu.RUnlock()
	if l != nil {
		l(err)
	}
}

// Failed reports whether the broker or the transport failed the connection.
func (c *Connection) Failed() bool {
	return c.failed.Load()
}

var _ requester = (*Connection)(nil)

// IsClosedError reports whether err means a closed connection, session,
// consumer or producer.
func IsClosedError(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrConsumerClosed) || errors.Is(err, ErrProducerClosed)
}
