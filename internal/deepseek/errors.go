// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepseek

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ClientError by where the failure happened.
type ErrorKind int

const (
	// KindTransport covers network-level failures: connection refused, DNS,
	// timeouts, cancelled requests. No HTTP response was fully received.
	KindTransport ErrorKind = iota

	// KindStatus covers non-200 HTTP responses from the API.
	KindStatus

	// KindProtocol covers responses that arrived but could not be used:
	// invalid JSON, an empty choices list, empty content, an oversized body.
	KindProtocol

	// KindConfig covers requests that were never attempted because the
	// client has no API key.
	KindConfig
)

// String returns the kind's name for logs and error text.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindProtocol:
		return "protocol"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// ClientError is the error type for all DeepSeek client failures. The Kind
// tells callers whether the request never made it (transport), was rejected
// (status), returned something unusable (protocol), or was never attempted
// for lack of an API key (config).
type ClientError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, set for KindStatus
	Body    string // raw response body, set for KindStatus
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("deepseek: HTTP %d: %s", e.Status, e.Message)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("deepseek: %s: %v", e.Message, e.Cause)
		}
		return "deepseek: " + e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches client errors by kind, so callers can write
// errors.Is(err, &ClientError{Kind: KindTransport}).
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a ClientError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		return false
	}
	return cerr.Kind == kind
}
