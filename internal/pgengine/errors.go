// Copyright 2024 Google LLC
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

// Package pgengine implements the version-aware PostgreSQL analysis engine:
// the capability probe, pooled driver, restricted-mode gatekeeper, EXPLAIN
// wrapper, index advisor, top-query collector, and health calculators.
package pgengine

import "fmt"

// Kind enumerates the structured error categories a tool invocation can
// fail with. Errors built by this package are *Error values, so callers can
// branch on their Kind field instead of matching message text.
type Kind string

const (
	KindConfigurationError                 Kind = "ConfigurationError"
	KindConnectionError                    Kind = "ConnectionError"
	KindSqlSyntaxError                     Kind = "SqlSyntaxError"
	KindStatementNotAllowed                Kind = "StatementNotAllowed"
	KindUnsupportedOption                  Kind = "UnsupportedOption"
	KindUnsupportedSyntaxForRestrictedMode Kind = "UnsupportedSyntaxForRestrictedMode"
	KindQueryTimeout                       Kind = "QueryTimeout"
	KindExtensionUnavailable               Kind = "ExtensionUnavailable"
	KindObjectNotFound                     Kind = "ObjectNotFound"
	KindInternalError                      Kind = "InternalError"
)

// Error is a structured engine failure. Msg is the human-readable message
// that surfaces verbatim in the MCP error envelope; Detail carries the
// kind-specific payload (an offending AST node name, an extension name, a
// trace id, ...) for kinds whose spec calls one out.
type Error struct {
	Kind   Kind
	Msg    string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// ConfigurationErrorf builds a KindConfigurationError.
func ConfigurationErrorf(format string, args ...any) *Error {
	return newErr(KindConfigurationError, fmt.Sprintf(format, args...))
}

// ConnectionError wraps a transport/auth failure reaching the server.
func ConnectionError(cause error) *Error {
	return &Error{Kind: KindConnectionError, Msg: "unable to reach PostgreSQL server", Cause: cause}
}

// SqlSyntaxError wraps a parser rejection.
func SqlSyntaxError(cause error) *Error {
	return &Error{Kind: KindSqlSyntaxError, Msg: "SQL failed to parse", Cause: cause}
}

// StatementNotAllowed reports a restricted-mode rejection naming the
// offending AST node kind.
func StatementNotAllowed(node string) *Error {
	return &Error{Kind: KindStatementNotAllowed, Msg: "statement not allowed in restricted mode", Detail: node}
}

// UnsupportedOption reports a feature gated on a newer PostgreSQL major
// version than the connected server.
func UnsupportedOption(option string, requiresMajor int) *Error {
	return &Error{
		Kind:   KindUnsupportedOption,
		Msg:    fmt.Sprintf("requires PostgreSQL %d or newer", requiresMajor),
		Detail: option,
	}
}

// UnsupportedSyntaxForRestrictedMode reports that the parser library trails
// the connected server's syntax; the engine fails closed rather than
// allowing the construct through unchecked.
func UnsupportedSyntaxForRestrictedMode(construct string) *Error {
	return &Error{Kind: KindUnsupportedSyntaxForRestrictedMode, Msg: "construct not recognized by the restricted-mode parser", Detail: construct}
}

// QueryTimeout reports that statement_timeout fired.
func QueryTimeout(cause error) *Error {
	return &Error{Kind: KindQueryTimeout, Msg: "statement timed out", Cause: cause}
}

// ExtensionUnavailable reports a missing required extension.
func ExtensionUnavailable(name string) *Error {
	return &Error{Kind: KindExtensionUnavailable, Msg: "required extension is not installed", Detail: name}
}

// ObjectNotFound reports a missing schema/table/index/sequence.
func ObjectNotFound(object string) *Error {
	return &Error{Kind: KindObjectNotFound, Msg: "object not found", Detail: object}
}

// InternalErrorf wraps an unexpected failure with a trace id for
// correlation against server logs.
func InternalErrorf(traceID string, cause error) *Error {
	return &Error{Kind: KindInternalError, Msg: "internal error", Detail: traceID, Cause: cause}
}
