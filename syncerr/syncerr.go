// Package syncerr defines the error taxonomy shared by the service
// clients and the sync engine. Per-track failures are wrapped with a
// Kind so the engine can decide, at the call site, whether to count
// the failure and continue or to fail the whole cycle.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the engine's propagation policy.
type Kind string

const (
	// KindAuth is credentials rejected by a service after a refresh attempt.
	KindAuth Kind = "auth"
	// KindRateLimit is a server-requested back-off, retried automatically.
	KindRateLimit Kind = "rate_limit"
	// KindNetwork is a transport failure, retried with backoff on client A.
	KindNetwork Kind = "network"
	// KindNotFound means search found nothing; not an error, becomes Unmatched.
	KindNotFound Kind = "not_found"
	// KindMismatch means search found something the matcher rejected.
	KindMismatch Kind = "mismatch"
	// KindStore is a unique-constraint or foreign-key violation.
	KindStore Kind = "store"
	// KindFatal is anything else escaping a sync cycle.
	KindFatal Kind = "fatal"
)

// Error is a typed error carrying a Kind and, for auth errors, the
// config key an operator needs to fix.
type Error struct {
	Kind      Kind
	ConfigKey string
	Err       error
}

func (e *Error) Error() string {
	if e.ConfigKey != "" {
		return fmt.Sprintf("%s: %v (check %s)", e.Kind, e.Err, e.ConfigKey)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a Kind error from a format string.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Auth builds an actionable auth error naming the config key to fix.
func Auth(configKey string, err error) *Error {
	return &Error{Kind: KindAuth, ConfigKey: configKey, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindFatal when err
// isn't a *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindFatal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
