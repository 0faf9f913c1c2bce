// Package perrors defines pleezer's error taxonomy: auth, network,
// protocol, media, device and internal failures, each carrying whether
// it is safe to retry.
package perrors

import (
	"fmt"
	"net/http"
)

// Type categorizes a pleezer error per the propagation policy in spec.md §7.
type Type string

const (
	// TypeAuth covers bad credentials, expired ARL, insufficient subscription tier.
	TypeAuth Type = "auth"
	// TypeNetwork covers DNS, connect, TLS, timeout and non-2xx/WebSocket-close failures.
	TypeNetwork Type = "network"
	// TypeProtocol covers malformed JSON/protobuf, unknown commands, excessive nesting.
	TypeProtocol Type = "protocol"
	// TypeMedia covers unavailable tracks, 0-byte downloads, decode failure, bad seeks.
	TypeMedia Type = "media"
	// TypeDevice covers audio device open failure, unsupported format, device loss.
	TypeDevice Type = "device"
	// TypeInternal covers invariant violations. Always fatal.
	TypeInternal Type = "internal"
)

// Error is pleezer's application error: a category, a message, whether
// the caller may retry, and an optional wrapped cause.
type Error struct {
	Type      Type
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

func newErr(t Type, retryable bool, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Retryable: retryable, Cause: cause}
}

// NewAuth builds a non-retryable auth failure (bad credentials, tier too low).
func NewAuth(message string, cause error) *Error {
	return newErr(TypeAuth, false, message, cause)
}

// NewAuthExpired builds a retryable auth failure: a token that a refresh can fix.
func NewAuthExpired(message string, cause error) *Error {
	return newErr(TypeAuth, true, message, cause)
}

// NewNetwork builds a retryable network failure.
func NewNetwork(message string, cause error) *Error {
	return newErr(TypeNetwork, true, message, cause)
}

// NewProtocol builds a non-retryable protocol failure.
func NewProtocol(message string, cause error) *Error {
	return newErr(TypeProtocol, false, message, cause)
}

// NewMedia builds a media failure. Track-unavailable and decode failures
// are not retryable; callers that want a bounded retry cap track it themselves
// (spec.md §4.2: finite retry cap of 1 for unavailable tracks).
func NewMedia(message string, cause error) *Error {
	return newErr(TypeMedia, false, message, cause)
}

// NewDevice builds a non-retryable device failure; the player stops rather
// than auto-reopening (spec.md §4.6).
func NewDevice(message string, cause error) *Error {
	return newErr(TypeDevice, false, message, cause)
}

// NewInternal builds a fatal invariant-violation error.
func NewInternal(message string, cause error) *Error {
	return newErr(TypeInternal, false, message, cause)
}

// IsRetryable reports whether err (if it is, or wraps, an *Error) permits retry.
func IsRetryable(err error) bool {
	if e, ok := asError(err); ok {
		return e.Retryable
	}
	return false
}

// TypeOf returns the Type carried by err, or "" if err isn't a pleezer error.
func TypeOf(err error) Type {
	if e, ok := asError(err); ok {
		return e.Type
	}
	return ""
}

func asError(err error) (*Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// HTTPStatusFor maps a Type to a representative HTTP status. No package in
// this module calls it; the metrics endpoint labels errors by category.
func HTTPStatusFor(t Type) int {
	switch t {
	case TypeAuth:
		return http.StatusUnauthorized
	case TypeNetwork:
		return http.StatusServiceUnavailable
	case TypeProtocol:
		return http.StatusBadRequest
	case TypeMedia:
		return http.StatusNotFound
	case TypeDevice:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
