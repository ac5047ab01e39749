package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels) for the use cases and HTTP layer.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrInternal        = errors.New("internal error")
)

// AI error kinds. Every error surfaced by the completion client matches
// exactly one of these through errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrAuth             = errors.New("authentication failed")
	ErrRateLimit        = errors.New("upstream rate limit")
	ErrNetwork          = errors.New("network error")
	ErrContentFilter    = errors.New("content filtered")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrTransport        = errors.New("transport error")
	ErrService          = errors.New("ai service error")
)

// AIError carries a classified completion failure. Kind is one of the AI
// error kinds above; Status and Body are set for HTTP failures and
// RetryAfter for throttling hints.
type AIError struct {
	Kind       error
	Message    string
	Status     int
	Body       string
	RetryAfter time.Duration
	Err        error
}

// NewAIError builds an AIError of the given kind.
func NewAIError(kind error, format string, args ...any) *AIError {
	return &AIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *AIError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *AIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether the failure may succeed on another attempt.
func (e *AIError) Retryable() bool {
	return e.Kind == ErrNetwork || e.Kind == ErrTransport
}

// AsAIError returns the AIError in err's chain, if any.
func AsAIError(err error) (*AIError, bool) {
	var ae *AIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// RateLimitedError is ErrRateLimited with the time after which a retry may
// succeed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

// Unwrap returns ErrRateLimited.
func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
