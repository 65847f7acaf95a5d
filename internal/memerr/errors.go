// Package memerr defines the typed error kinds the memory service returns,
// used to decide retry eligibility and to report stable error categories
// across the dispatch boundary.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch-level handling and retry policy.
type Kind string

const (
	NotFound            Kind = "NotFound"
	AlreadyExists       Kind = "AlreadyExists"
	InvalidArgument     Kind = "InvalidArgument"
	Conflict            Kind = "Conflict"
	ProviderUnavailable Kind = "ProviderUnavailable"
	ProviderInvalid     Kind = "ProviderInvalid"
	StorageUnavailable  Kind = "StorageUnavailable"
	Internal            Kind = "Internal"
	Cancelled           Kind = "Cancelled"
	DegradedMode        Kind = "DegradedMode"
)

// Error is the service's wrapped error type: a Kind plus a human message,
// optionally wrapping an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, defaulting to Internal for errors the
// service didn't classify itself.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether err's Kind is transient and worth retrying with
// backoff (embedding provider hiccups, storage blips).
func Retryable(err error) bool {
	switch KindOf(err) {
	case ProviderUnavailable, StorageUnavailable:
		return true
	default:
		return false
	}
}
