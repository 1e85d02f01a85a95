// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire

import (
	"errors"
	"strings"
)

// BrokerError is an exception raised by the broker and carried inside
// ExceptionResponse, ConnectionError and poison acks.
type BrokerError struct {
	ExceptionClass string
	Message        string
	StackTrace     []StackTraceElement
	Cause          *BrokerError
}

type StackTraceElement struct {
	ClassName  string
	MethodName string
	FileName   string
	LineNumber int32
}

func (e *StackTraceElement) fields() []field {
	return []field{
		stringField{&e.ClassName},
		stringField{&e.MethodName},
		stringField{&e.FileName},
		int32Field{&e.LineNumber},
	}
}

// NewBrokerError converts err into a BrokerError, keeping an existing one.
func NewBrokerError(err error) *BrokerError {
	if err == nil {
		return nil
	}
	var be *BrokerError
	if errors.As(err, &be) {
		return be
	}
	return &BrokerError{ExceptionClass: "java.lang.Throwable", Message: err.Error()}
}

func (e *BrokerError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.ExceptionClass)
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	return sb.String()
}

func (e *BrokerError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}
