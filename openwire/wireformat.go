// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/openwire/internal/bufpool"
)

// Options are the wire format preferences advertised to the broker.
type Options struct {
	Version                   int
	MinimumVersion            int
	TightEncodingEnabled      bool
	SizePrefixDisabled        bool
	StackTraceEnabled         bool
	TCPNoDelayEnabled         bool
	MaxInactivityDuration     time.Duration
	MaxInactivityInitialDelay time.Duration
	MaxFrameSize              int64
}

// DefaultOptions returns the preferences used when none are configured.
func DefaultOptions() Options {
	return Options{
		Version:                   DefaultVersion,
		MinimumVersion:            MinSupportedVersion,
		TightEncodingEnabled:      true,
		StackTraceEnabled:         true,
		TCPNoDelayEnabled:         true,
		MaxInactivityDuration:     30 * time.Second,
		MaxInactivityInitialDelay: 10 * time.Second,
		MaxFrameSize:              100 * 1024 * 1024,
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	if o.Version < MinSupportedVersion || o.Version > MaxSupportedVersion {
		return fmt.Errorf("%w: version %d outside [%d, %d]", ErrInvalidWireOptions, o.Version, MinSupportedVersion, MaxSupportedVersion)
	}
	if o.MinimumVersion < MinSupportedVersion || o.MinimumVersion > o.Version {
		return fmt.Errorf("%w: minimum version %d", ErrInvalidWireOptions, o.MinimumVersion)
	}
	if o.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max frame size must be positive", ErrInvalidWireOptions)
	}
	if o.MaxInactivityDuration < 0 || o.MaxInactivityInitialDelay < 0 {
		return fmt.Errorf("%w: negative inactivity duration", ErrInvalidWireOptions)
	}
	return nil
}

// WireFormat encodes and decodes frames for one connection. Until
// Renegotiate succeeds it uses loose encoding at the preferred version, which
// is how the WireFormatInfo handshake itself travels.
type WireFormat struct {
	opts       Options
	format     atomic.Pointer[Format]
	mu         sync.Mutex
	negotiated bool
}

// New returns a WireFormat preferring opts.
func New(opts Options) (*WireFormat, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	table, err := newTable(opts.Version)
	if err != nil {
		return nil, err
	}
	wf := &WireFormat{opts: opts}
	wf.format.Store(&Format{
		version:      opts.Version,
		tcpNoDelay:   opts.TCPNoDelayEnabled,
		maxFrameSize: opts.MaxFrameSize,
		marshallers:  table,
	})
	return wf, nil
}

// Options returns the local preferences.
func (wf *WireFormat) Options() Options {
	return wf.opts
}

// Format returns the snapshot currently in effect.
func (wf *WireFormat) Format() *Format {
	return wf.format.Load()
}

// Version returns the protocol version currently in effect.
func (wf *WireFormat) Version() int {
	return wf.Format().version
}

// Negotiated reports whether Renegotiate has succeeded.
func (wf *WireFormat) Negotiated() bool {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.negotiated
}

// Marshal writes one frame for o to w in a single Write call.
func (wf *WireFormat) Marshal(o DataStructure, w io.Writer) error {
	buf := bufpool.Get()
	defer bufpool.Put(buf)
	if err := wf.Format().marshal(o, buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// MarshalBytes returns the frame for o.
func (wf *WireFormat) MarshalBytes(o DataStructure) ([]byte, error) {
	buf := bufpool.Get()
	defer bufpool.Put(buf)
	if err := wf.Format().marshal(o, buf); err != nil {
		return nil, err
	}
	return bufpool.Copy(buf), nil
}

// Unmarshal reads one frame from r. A nil structure with a nil error is a
// null frame.
func (wf *WireFormat) Unmarshal(r io.Reader) (DataStructure, error) {
	return wf.Format().unmarshal(r)
}

// UnmarshalBytes decodes a single frame held in b.
func (wf *WireFormat) UnmarshalBytes(b []byte) (DataStructure, error) {
	br := bytes.NewReader(b)
	o, err := wf.Unmarshal(br)
	if err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, br.Len())
	}
	return o, nil
}

// CacheMarshalledForm stores the tight, size prefixed encoding of o on o
// itself. Later nested writes of o copy those bytes instead of re-encoding.
// The cached form is only valid for the current version and stack trace
// setting.
func (wf *WireFormat) CacheMarshalledForm(o MarshalAware) error {
	f := *wf.Format()
	f.tightEncoding = true
	f.sizePrefixDisabled = false

	o.SetMarshalledForm(nil)
	buf := bufpool.Get()
	defer bufpool.Put(buf)
	if err := f.marshal(o, buf); err != nil {
		return err
	}
	o.SetMarshalledForm(bufpool.Copy(buf))
	return nil
}

// ClearMarshallers removes every registered marshaller.
func (wf *WireFormat) ClearMarshallers() {
	wf.update(func(f *Format) {
		f.marshallers = [256]Marshaller{}
	})
}

// AddMarshaller registers m for its data structure type, replacing any
// existing marshaller.
func (wf *WireFormat) AddMarshaller(m Marshaller) {
	wf.update(func(f *Format) {
		f.marshallers[m.DataStructureType()] = m
	})
}

func (wf *WireFormat) update(fn func(f *Format)) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	next := *wf.Format()
	fn(&next)
	wf.format.Store(&next)
}

// PreferredInfo returns the WireFormatInfo advertising the local options.
func (wf *WireFormat) PreferredInfo() (*WireFormatInfo, error) {
	return NewWireFormatInfo(wf.opts)
}

// Renegotiate adopts the common subset of the local options and the
// broker's WireFormatInfo: the lower version, and each flag only if both
// sides enable it. It succeeds at most once.
func (wf *WireFormat) Renegotiate(remote *WireFormatInfo) error {
	wf.mu.Lock()
	defer wf.mu.Unlock()

	if wf.negotiated {
		return ErrAlreadyNegotiated
	}
	if !remote.ValidMagic() {
		return ErrInvalidMagic
	}
	if int(remote.Version) < wf.opts.MinimumVersion {
		return fmt.Errorf("%w: remote %d, minimum %d", ErrVersionTooLow, remote.Version, wf.opts.MinimumVersion)
	}
	ro, err := remote.Options()
	if err != nil {
		return err
	}

	version := min(wf.opts.Version, int(remote.Version))
	table, err := newTable(version)
	if err != nil {
		return err
	}
	// Custom marshallers survive a version change.
	current := wf.Format()
	for tag, m := range current.marshallers {
		if _, ok := m.(*structMarshaller); m != nil && !ok {
			table[tag] = m
		}
	}

	next := &Format{
		version:              version,
		tightEncoding:        wf.opts.TightEncodingEnabled && ro.TightEncodingEnabled,
		sizePrefixDisabled:   wf.opts.SizePrefixDisabled && ro.SizePrefixDisabled,
		stackTraceEnabled:    wf.opts.StackTraceEnabled && ro.StackTraceEnabled,
		tcpNoDelay:           wf.opts.TCPNoDelayEnabled && ro.TCPNoDelayEnabled,
		maxInactivity:        minNonZero(wf.opts.MaxInactivityDuration, ro.MaxInactivityDuration),
		maxInactivityInitial: minNonZero(wf.opts.MaxInactivityInitialDelay, ro.MaxInactivityInitialDelay),
		maxFrameSize:         wf.opts.MaxFrameSize,
		marshallers:          table,
	}
	if ro.MaxFrameSize > 0 {
		next.maxFrameSize = min(next.maxFrameSize, ro.MaxFrameSize)
	}
	wf.format.Store(next)
	wf.negotiated = true
	return nil
}

// minNonZero returns the smaller of a and b, ignoring a side that is zero.
func minNonZero(a, b time.Duration) time.Duration {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}
