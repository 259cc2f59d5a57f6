package providers

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of provider failures. The adapter never
// lets a raw transport or HTTP error escape; everything is reclassified
// into one of these kinds.
type ErrorKind string

const (
	// KindUnavailable covers network failures and 5xx responses. Transient;
	// the runner may retry once.
	KindUnavailable ErrorKind = "provider_unavailable"
	// KindRateLimited covers 429 responses. Transient; retry at the
	// runner's discretion, never silently forever.
	KindRateLimited ErrorKind = "provider_rate_limited"
	// KindInvalidRequest covers other 4xx responses. Deterministic; retry
	// is pointless.
	KindInvalidRequest ErrorKind = "provider_invalid_request"
)

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindRateLimited
}

// NewError builds a classified provider error.
func NewError(kind ErrorKind, statusCode int, message string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: statusCode, Message: message, cause: cause}
}

// ClassifyStatus maps an HTTP status to an error kind.
func ClassifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 429:
		return KindRateLimited
	case statusCode >= 500:
		return KindUnavailable
	default:
		return KindInvalidRequest
	}
}

// AsError extracts a classified provider error, if err is one.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
