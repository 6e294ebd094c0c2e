// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fault classifies errors of the data builder into a small closed set
// of kinds, so that callers can decide on a policy (abort, skip, retry)
// without inspecting error messages.
package fault

import (
	"github.com/stockparfait/errors"
)

// Kind of a fault.
type Kind int

const (
	Unknown Kind = iota
	// Config is invalid configuration or arguments; never retried.
	Config
	// Network is a connection failure, timeout or HTTP error status.
	Network
	// Parse means the response body does not match the expected format.
	Parse
	// Persistence is a file system read or write failure.
	Persistence
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration error"
	case Network:
		return "network error"
	case Parse:
		return "parse error"
	case Persistence:
		return "persistence error"
	}
	return "unknown error"
}

// Error is an error annotated with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

var _ error = &Error{}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to see through the classification.
func (e *Error) Unwrap() error { return e.Err }

// New creates a new error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: errors.Reason(format, args...)}
}

// Wrap annotates err and classifies the result as kind. It returns nil for a
// nil err. The new kind replaces any kind err may already have.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Annotate(err, format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain, or
// Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is checks whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
