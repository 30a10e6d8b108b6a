// Package fault defines the small error taxonomy shared across the calai
// pipeline. Upstream failures are classified into a Kind so callers can
// branch on the category without string matching, and so a provider outage
// is always distinguishable from an empty result set.
//
// Only genuine failures live here. "Needs more info", "no hits above
// threshold", and "requested slot conflicts" are ordinary data outcomes and
// are modelled as values in their owning packages, never as errors.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// ProviderUnavailable means the calendar provider could not be reached
	// or rejected the call (network, timeout, auth). Surfaced to callers as
	// a structured error, never as an unhandled crash.
	ProviderUnavailable Kind = "provider_unavailable"

	// CacheCorrupt means the on-disk embedding cache failed validation.
	// It is recovered locally by a full rebuild and never escapes the kb
	// package except for logging.
	CacheCorrupt Kind = "cache_corrupt"

	// EmbedderUnavailable means the embedding backend failed for a single
	// request. Retrieval degrades to empty rather than failing the query.
	EmbedderUnavailable Kind = "embedder_unavailable"
)

// Error is a classified pipeline error. It wraps the underlying cause so
// errors.Is/As keep working through it.
type Error struct {
	// Kind is the failure category.
	Kind Kind
	// Message is a human-readable description safe to return to API callers.
	Message string
	// cause is the wrapped underlying error, may be nil.
	cause error
}

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error wrapping cause. A nil cause returns the same
// result as New.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the Kind of err if it is (or wraps) a *Error, or the empty
// string otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
