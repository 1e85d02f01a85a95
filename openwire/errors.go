// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"errors"
	"fmt"
)

// ErrProtocol is the root of every error that leaves the byte stream in an
// unknown state. The connection that produced it must not be reused.
var ErrProtocol = errors.New("openwire protocol error")

// Protocol errors.
var (
	ErrUnknownDataType    = fmt.Errorf("%w: unknown data structure type", ErrProtocol)
	ErrUnexpectedType     = fmt.Errorf("%w: unexpected data structure type", ErrProtocol)
	ErrInvalidFrameSize   = fmt.Errorf("%w: invalid frame size", ErrProtocol)
	ErrFrameTooLarge      = fmt.Errorf("%w: frame exceeds maximum size", ErrProtocol)
	ErrTrailingBytes      = fmt.Errorf("%w: frame has unread trailing bytes", ErrProtocol)
	ErrSizeMismatch       = fmt.Errorf("%w: marshalled size does not match computed size", ErrProtocol)
	ErrFixedSize          = fmt.Errorf("%w: fixed size byte array has wrong length", ErrProtocol)
	ErrNegativeCount      = fmt.Errorf("%w: negative element count", ErrProtocol)
	ErrInvalidMagic       = fmt.Errorf("%w: invalid wire format magic", ErrProtocol)
	ErrVersionTooLow      = fmt.Errorf("%w: remote wire format version below minimum", ErrProtocol)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported wire format version", ErrProtocol)
	ErrUnknownPrimitive   = fmt.Errorf("%w: unknown primitive type code", ErrProtocol)
)

// Usage errors.
var (
	ErrAlreadyNegotiated  = errors.New("wire format already negotiated")
	ErrUnsupportedValue   = errors.New("value type cannot be encoded as a primitive")
	ErrInvalidDestination = errors.New("invalid destination")
	ErrInvalidMessageBody = errors.New("message body is malformed")
	ErrUnsupportedCommand = errors.New("data structure does not declare its fields")
	ErrArrayTooLong       = errors.New("array has too many elements to encode")
	ErrInvalidWireOptions = errors.New("invalid wire format options")
)

// protocolError marks err as a stream desynchronisation unless it already is one.
func protocolError(err error) error {
	if err == nil || errors.Is(err, ErrProtocol) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProtocol, err)
}
