// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/openwire"
)

const defaultNegotiationTimeout = 10 * time.Second

// StreamOptions configure a Stream.
type StreamOptions struct {
	WireFormat         openwire.Options
	NegotiationTimeout time.Duration
	Logger             *slog.Logger
}

// DefaultStreamOptions returns options with the default wire format.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		WireFormat:         openwire.DefaultOptions(),
		NegotiationTimeout: defaultNegotiationTimeout,
		Logger:             slog.Default(),
	}
}

// Stream frames commands over an io.ReadWriteCloser. Start exchanges
// WireFormatInfo with the broker before any other command is sent, then runs
// the inactivity monitor at the negotiated interval.
type Stream struct {
	rwc    io.ReadWriteCloser
	wf     *openwire.WireFormat
	opts   StreamOptions
	logger *slog.Logger

	writeMu sync.Mutex

	listenerMu  sync.RWMutex
	onCommand   CommandListener
	onException ExceptionListener

	started    atomic.Bool
	closing    atomic.Bool
	negotiated chan struct{}
	done       chan struct{}
	failOnce   sync.Once
	err        error

	lastRead  atomic.Int64
	lastWrite atomic.Int64
}

var _ Transport = (*Stream)(nil)

// NewStream wraps rwc. Ownership of rwc passes to the Stream.
func NewStream(rwc io.ReadWriteCloser, opts StreamOptions) (*Stream, error) {
	wf, err := openwire.New(opts.WireFormat)
	if err != nil {
		return nil, err
	}
	if opts.NegotiationTimeout <= 0 {
		opts.NegotiationTimeout = defaultNegotiationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Stream{
		rwc:         rwc,
		wf:          wf,
		opts:        opts,
		logger:      opts.Logger,
		onCommand:   func(openwire.Command) {},
		onException: func(error) {},
		negotiated:  make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// WireFormat returns the codec used by the stream.
func (s *Stream) WireFormat() *openwire.WireFormat {
	return s.wf
}

func (s *Stream) SetCommandListener(l CommandListener) {
	if l == nil {
		l = func(openwire.Command) {}
	}
	s.listenerMu.Lock()
	s.onCommand = l
	s.listenerMu.Unlock()
}

func (s *Stream) SetExceptionListener(l ExceptionListener) {
	if l == nil {
		l = func(error) {}
	}
	s.listenerMu.Lock()
	s.onException = l
	s.listenerMu.Unlock()
}

// Start sends the local WireFormatInfo and waits until the broker's arrives
// and has been negotiated.
func (s *Stream) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	go s.readLoop()

	info, err := s.wf.PreferredInfo()
	if err != nil {
		s.Close()
		return err
	}
	if err := s.write(info); err != nil {
		s.Close()
		return err
	}

	timer := time.NewTimer(s.opts.NegotiationTimeout)
	defer timer.Stop()
	select {
	case <-s.negotiated:
	case <-s.done:
		return s.err
	case <-timer.C:
		s.Close()
		return ErrNegotiationTimeout
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}

	f := s.wf.Format()
	s.logger.Debug("wire format negotiated",
		slog.Int("version", f.Version()),
		slog.Bool("tight_encoding", f.TightEncodingEnabled()),
		slog.Duration("max_inactivity", f.MaxInactivityDuration()))
	if f.MaxInactivityDuration() > 0 {
		go s.monitor(f.MaxInactivityDuration(), f.MaxInactivityInitialDelay())
	}
	return nil
}

// Oneway writes cmd as one frame.
func (s *Stream) Oneway(cmd openwire.Command) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	return s.write(cmd)
}

// Request is not supported on a bare stream; wrap it in a ResponseCorrelator.
func (s *Stream) Request(context.Context, openwire.Command) (openwire.Responder, error) {
	return nil, ErrRequestUnsupported
}

// Close closes the underlying stream. It does not invoke the exception
// listener.
func (s *Stream) Close() error {
	s.closing.Store(true)
	var err error
	s.failOnce.Do(func() {
		s.err = ErrClosed
		close(s.done)
		err = s.rwc.Close()
	})
	return err
}

// Done is closed once the stream has failed or been closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) write(cmd openwire.Command) error {
	select {
	case <-s.done:
		return s.err
	default:
	}

	// Encoding errors leave the stream untouched; only write errors are fatal.
	b, err := s.wf.MarshalBytes(cmd)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	_, err = s.rwc.Write(b)
	s.writeMu.Unlock()
	if err != nil {
		s.fail(err)
		return s.err
	}
	s.lastWrite.Store(time.Now().UnixNano())
	return nil
}

func (s *Stream) readLoop() {
	r := bufio.NewReader(s.rwc)
	for {
		ds, err := s.wf.Unmarshal(r)
		if err != nil {
			s.fail(err)
			return
		}
		s.lastRead.Store(time.Now().UnixNano())

		switch cmd := ds.(type) {
		case nil:
			continue
		case *openwire.WireFormatInfo:
			if s.wf.Negotiated() {
				// Settings are fixed once agreed; later infos are only passed on.
				s.logger.Debug("ignoring wire format info after negotiation", slog.Int("version", int(cmd.Version)))
				s.dispatch(cmd)
				continue
			}
			if err := s.wf.Renegotiate(cmd); err != nil {
				s.fail(err)
				return
			}
			close(s.negotiated)
			s.dispatch(cmd)
		case openwire.Command:
			s.dispatch(cmd)
		default:
			s.logger.Warn("dropping non-command frame", slog.Int("type", int(ds.DataStructureType())))
		}
	}
}

func (s *Stream) dispatch(cmd openwire.Command) {
	s.listenerMu.RLock()
	l := s.onCommand
	s.listenerMu.RUnlock()
	l(cmd)
}

// fail tears the stream down and reports err once, unless Close got there
// first.
func (s *Stream) fail(err error) {
	first := false
	s.failOnce.Do(func() {
		first = true
		if !errors.Is(err, openwire.ErrProtocol) && !errors.Is(err, ErrInactivity) {
			err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		s.err = err
		close(s.done)
		s.rwc.Close()
	})
	if !first || s.closing.Load() {
		return
	}
	select {
	case <-s.negotiated:
	default:
		// Start reports failures that happen before negotiation completes.
		return
	}

	s.logger.Warn("transport failed", slog.String("error", err.Error()))
	s.listenerMu.RLock()
	l := s.onException
	s.listenerMu.RUnlock()
	l(s.err)
}

// monitor sends a KeepAliveInfo whenever nothing was written for half the
// window and fails the stream when nothing was read for a whole window.
func (s *Stream) monitor(window, initialDelay time.Duration) {
	if initialDelay > 0 {
		select {
		case <-s.done:
			return
		case <-time.After(initialDelay):
		}
	}

	ticker := time.NewTicker(window / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			if now.Sub(time.Unix(0, s.lastRead.Load())) > window {
				s.fail(ErrInactivity)
				return
			}
			if now.Sub(time.Unix(0, s.lastWrite.Load())) >= window/2 {
				if err := s.write(&openwire.KeepAliveInfo{}); err != nil {
					s.logger.Debug("keep-alive write failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}
