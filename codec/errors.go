// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import "errors"

// Codec errors.
var (
	ErrMalformedString        = errors.New("malformed modified UTF-8 string")
	ErrStringTooLong          = errors.New("string value too long to encode")
	ErrBytesTooLong           = errors.New("byte array too long to encode")
	ErrNegativeLength         = errors.New("negative length prefix")
	ErrBooleanStreamUnderflow = errors.New("boolean stream read past written bits")
	ErrBooleanStreamTooLarge  = errors.New("boolean stream too large to encode")
)
