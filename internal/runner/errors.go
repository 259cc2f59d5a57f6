package runner

import (
	"errors"
	"fmt"

	"careerpilot/internal/quota"
)

// Kind classifies run failures. The set is closed; every failed run records
// exactly one of these, and the HTTP layer maps them to status codes.
type Kind string

const (
	KindInvalidRequest  Kind = "invalid_request"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindTemplateError   Kind = "template_error"
	KindUnavailable     Kind = "provider_unavailable"
	KindRateLimited     Kind = "provider_rate_limited"
	KindProviderRequest Kind = "provider_invalid_request"
	KindCancelled       Kind = "cancelled"
	KindInternal        Kind = "internal"
)

// Error is a classified run failure. Quota rejections carry the decision so
// callers can report used/limit/remaining.
type Error struct {
	Kind     Kind
	Message  string
	Decision *quota.Decision
	cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// AsError extracts a classified run error, if err is one.
func AsError(err error) (*Error, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}
