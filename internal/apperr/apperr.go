// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apperr gives the error taxonomy in spec.md section 7 explicit
// Go types instead of string-matching on provider response bodies, per the
// "exception-based control flow -> explicit result kinds" design note.
package apperr

import "fmt"

// Code identifies which branch of the taxonomy an error belongs to.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeUpstreamTransient  Code = "upstream_transient"
	CodeUpstreamPermanent  Code = "upstream_permanent"
	CodeCursorPoisoned     Code = "cursor_poisoned"
	CodeStoreFailure       Code = "store_failure"
	CodeOracleUnknown      Code = "oracle_unknown"
	CodeMetadataUnknown    Code = "metadata_unknown"
	CodePreconditionFailed Code = "precondition_failed"
)

// Error is the user-facing failure shape: a code, a human message, and an
// optional diagnostic hint ("check your API key", "will reset and retry").
type Error struct {
	Code    Code
	Message string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func InvalidInput(message string) *Error {
	return New(CodeInvalidInput, message)
}

func UpstreamTransient(message string, cause error) *Error {
	return Wrap(CodeUpstreamTransient, message, cause)
}

func UpstreamPermanent(message string, cause error) *Error {
	return Wrap(CodeUpstreamPermanent, message, cause)
}

// CursorPoisoned signals the provider rejected the `before` cursor. Callers
// self-heal once per backfill run; a second occurrence is promoted to
// UpstreamPermanent by the caller.
func CursorPoisoned(message string) *Error {
	return New(CodeCursorPoisoned, message)
}

func StoreFailure(message string, cause error) *Error {
	return Wrap(CodeStoreFailure, message, cause)
}

func PreconditionFailed(message string) *Error {
	return New(CodePreconditionFailed, message)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *Error
	if e, ok := err.(*Error); ok {
		ae = e
	} else {
		return false
	}
	return ae.Code == code
}
