/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package mercury implements a pluggable network abstraction layer (NAL)
// and its reference shared-memory transport plugin.
package mercury

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Kind enumerates the NA error taxonomy. Every synchronous failure and
// every completion carries one of these.
type Kind int

const (
	Success Kind = iota
	Timeout
	Again
	InvalidArg
	NoMem
	Overflow
	MsgSize
	ProtoNotSupport
	OpNotSupported
	ProtocolError
	Busy
	Canceled
	Permission
	Fault
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "SUCCESS"
	case Timeout:
		return "TIMEOUT"
	case Again:
		return "AGAIN"
	case InvalidArg:
		return "INVALID_ARG"
	case NoMem:
		return "NOMEM"
	case Overflow:
		return "OVERFLOW"
	case MsgSize:
		return "MSGSIZE"
	case ProtoNotSupport:
		return "PROTONOSUPPORT"
	case OpNotSupported:
		return "OPNOTSUPPORTED"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case Busy:
		return "BUSY"
	case Canceled:
		return "CANCELED"
	case Permission:
		return "PERMISSION"
	case Fault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Kind as a plain error so it composes with errors.Is/As.
type Error struct {
	K Kind
}

func (e *Error) Error() string { return e.K.String() }

// NewError returns an error carrying the given kind.
func NewError(k Kind) error { return &Error{K: k} }

// KindOf extracts the Kind from err, defaulting to Fault if err does not
// carry one (e.g. it came from an unrelated package such as the OS).
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.K
	}
	return Fault
}

// ContextualError attaches structured fields and a human description to a
// wrapped error, following the fields-carrying error shape used throughout
// this codebase's logging call sites.
type ContextualError struct {
	RealError error
	Fields    logrus.Fields
	Context   string
}

// Wrap turns err into a *ContextualError, tagging it with msg and fields.
// If err is already contextual, msg/fields are layered on top rather than
// discarded, so repeated wrapping accumulates context instead of losing it.
func Wrap(msg string, fields logrus.Fields, err error) error {
	if err == nil {
		return nil
	}
	return &ContextualError{Context: msg, Fields: fields, RealError: err}
}

func (ce *ContextualError) Error() string {
	if ce.RealError == nil {
		return ce.Context
	}
	return fmt.Errorf("%s (%v): %w", ce.Context, ce.Fields, ce.RealError).Error()
}

func (ce *ContextualError) Unwrap() error {
	if ce.RealError == nil {
		return errors.New(ce.Context)
	}
	return ce.RealError
}

// Log emits this error through l with its fields attached.
func (ce *ContextualError) Log(l *logrus.Logger) {
	if ce.RealError != nil {
		l.WithFields(ce.Fields).WithError(ce.RealError).Error(ce.Context)
	} else {
		l.WithFields(ce.Fields).Error(ce.Context)
	}
}
