// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"bytes"
	"fmt"
	"time"
)

// Magic opens every WireFormatInfo.
var Magic = []byte("ActiveMQ")

// WireFormatInfo property keys.
const (
	propTightEncoding      = "TightEncodingEnabled"
	propSizePrefixDisabled = "SizePrefixDisabled"
	propCacheEnabled       = "CacheEnabled"
	propStackTrace         = "StackTraceEnabled"
	propTCPNoDelay         = "TcpNoDelayEnabled"
	propMaxInactivity      = "MaxInactivityDuration"
	propMaxInactivityDelay = "MaxInactivityDurationInitalDelay"
	propMaxFrameSize       = "MaxFrameSize"
	propCacheSize          = "CacheSize"
)

// WireFormatInfo is the first command each side sends. It carries no command
// header on the wire.
type WireFormatInfo struct {
	BaseCommand
	Magic                []byte
	Version              int32
	MarshalledProperties []byte
}

func (*WireFormatInfo) DataStructureType() byte { return WireFormatInfoType }

func (c *WireFormatInfo) fields(int) []field {
	return []field{
		constBytesField{&c.Magic, len(Magic)},
		int32Field{&c.Version},
		bytesField{&c.MarshalledProperties},
	}
}

// NewWireFormatInfo advertises opts.
func NewWireFormatInfo(opts Options) (*WireFormatInfo, error) {
	props, err := MarshalPrimitiveMap(map[string]any{
		propTightEncoding:      opts.TightEncodingEnabled,
		propSizePrefixDisabled: opts.SizePrefixDisabled,
		propCacheEnabled:       false,
		propCacheSize:          int32(0),
		propStackTrace:         opts.StackTraceEnabled,
		propTCPNoDelay:         opts.TCPNoDelayEnabled,
		propMaxInactivity:      opts.MaxInactivityDuration.Milliseconds(),
		propMaxInactivityDelay: opts.MaxInactivityInitialDelay.Milliseconds(),
		propMaxFrameSize:       opts.MaxFrameSize,
	})
	if err != nil {
		return nil, err
	}
	return &WireFormatInfo{
		Magic:                bytes.Clone(Magic),
		Version:              int32(opts.Version),
		MarshalledProperties: props,
	}, nil
}

// ValidMagic reports whether the info starts with the protocol magic.
func (c *WireFormatInfo) ValidMagic() bool {
	return bytes.Equal(c.Magic, Magic)
}

// Properties decodes the advertised property map.
func (c *WireFormatInfo) Properties() (map[string]any, error) {
	m, err := UnmarshalPrimitiveMap(c.MarshalledProperties)
	if err != nil {
		return nil, protocolError(err)
	}
	return m, nil
}

// Options returns the preferences the info advertises. Absent properties
// read as disabled or zero.
func (c *WireFormatInfo) Options() (Options, error) {
	props, err := c.Properties()
	if err != nil {
		return Options{}, err
	}
	flag := func(key string) (bool, error) {
		switch v := props[key].(type) {
		case nil:
			return false, nil
		case bool:
			return v, nil
		default:
			return false, fmt.Errorf("%w: property %s has type %T", ErrProtocol, key, v)
		}
	}
	number := func(key string) (int64, error) {
		switch v := props[key].(type) {
		case nil:
			return 0, nil
		case int64:
			return v, nil
		case int32:
			return int64(v), nil
		default:
			return 0, fmt.Errorf("%w: property %s has type %T", ErrProtocol, key, v)
		}
	}

	opts := Options{Version: int(c.Version), MinimumVersion: MinSupportedVersion}
	for key, dst := range map[string]*bool{
		propTightEncoding:      &opts.TightEncodingEnabled,
		propSizePrefixDisabled: &opts.SizePrefixDisabled,
		propStackTrace:         &opts.StackTraceEnabled,
		propTCPNoDelay:         &opts.TCPNoDelayEnabled,
	} {
		if *dst, err = flag(key); err != nil {
			return Options{}, err
		}
	}
	inactivity, err := number(propMaxInactivity)
	if err != nil {
		return Options{}, err
	}
	delay, err := number(propMaxInactivityDelay)
	if err != nil {
		return Options{}, err
	}
	if opts.MaxFrameSize, err = number(propMaxFrameSize); err != nil {
		return Options{}, err
	}
	opts.MaxInactivityDuration = time.Duration(inactivity) * time.Millisecond
	opts.MaxInactivityInitialDelay = time.Duration(delay) * time.Millisecond
	return opts, nil
}
