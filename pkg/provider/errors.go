package provider

import (
	"errors"
	"fmt"
	"strings"
)

// OpError is a classified provider operation failure. Transient errors are
// retried with backoff; permanent errors mark the node failed. Partial
// carries any attributes the provider managed to assign before failing, so
// real-world side effects never become untracked.
type OpError struct {
	Transient bool
	Partial   map[string]any
	Err       error
}

func (e *OpError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider error: %v", kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable failure.
func NewTransient(err error) *OpError {
	return &OpError{Transient: true, Err: err}
}

// NewPermanent wraps err as a non-retryable failure.
func NewPermanent(err error) *OpError {
	return &OpError{Err: err}
}

// WithPartial attaches partially-applied attributes to the error.
func (e *OpError) WithPartial(attrs map[string]any) *OpError {
	e.Partial = attrs
	return e
}

// IsTransient reports whether err should be retried. Classified OpErrors
// are authoritative; unclassified errors fall back to message patterns
// covering common cloud API throttling and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var op *OpError
	if errors.As(err, &op) {
		return op.Transient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// PartialState extracts partially-applied attributes from err, if any.
func PartialState(err error) map[string]any {
	var op *OpError
	if errors.As(err, &op) {
		return op.Partial
	}
	return nil
}

var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"tls handshake",
	"i/o timeout",
	"temporary failure",
}
