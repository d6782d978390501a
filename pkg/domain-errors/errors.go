// Package domainerrors defines the coded error taxonomy surfaced to API
// callers. Services create these; the transport layer translates them into
// the JSON envelope and an HTTP status. Infrastructure facts (missing key,
// expired record) use pkg/platform/sentinel instead and are wrapped here at
// the service boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error category.
type Code string

const (
	// CodeInvalidData marks malformed input, rejected before any state mutation.
	CodeInvalidData Code = "INVALID_DATA"
	// CodeSequenceViolation marks a registration step attempted out of order.
	CodeSequenceViolation Code = "SEQUENCE_VIOLATION"
	// CodeRateLimit marks a fixed-window limit being exceeded.
	CodeRateLimit Code = "RATE_LIMIT"
	// CodeMaxAttemptsExceeded marks an exhausted OTP attempt budget.
	CodeMaxAttemptsExceeded Code = "MAX_ATTEMPTS_EXCEEDED"
	// CodeUpstreamError marks an identity or notification gateway failure.
	CodeUpstreamError Code = "UPSTREAM_ERROR"
	// CodeTimeout marks a bounded external call exceeding its deadline.
	CodeTimeout Code = "TIMEOUT"
	// CodeDataNotFound marks a lookup miss where presence was required.
	CodeDataNotFound Code = "DATA_NOT_FOUND"
	// CodeSystemError is the unclassified internal fault.
	CodeSystemError Code = "SYSTEM_ERROR"
)

// Error carries a code and a caller-safe message. The wrapped cause is kept
// for logs only and never serialized.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a caller-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted caller-safe message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a coded error. The cause is for logging; the
// message is what callers see.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err is (or wraps) a domain error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, falling back to CodeSystemError.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeSystemError
}

// MessageOf extracts the caller-safe message, hiding internal detail for
// unclassified errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "an unexpected error occurred"
}

// ToHTTPStatus maps a code to the HTTP status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidData, CodeSequenceViolation:
		return http.StatusBadRequest
	case CodeRateLimit, CodeMaxAttemptsExceeded:
		return http.StatusTooManyRequests
	case CodeDataNotFound:
		return http.StatusNotFound
	case CodeUpstreamError:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
