// Package faults defines the error kinds shared across the rendering and
// synchronization pipeline. Handlers map each kind to a refusal embed; the
// kinds therefore stay coarse and user-explainable.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// FetchFailed: a source URL yielded non-2xx or timed out.
	FetchFailed Kind = iota
	// DecodeFailed: bytes do not parse as a supported image.
	DecodeFailed
	// StoreConflict: the remote store rejected a PUT on a stale SHA.
	StoreConflict
	// StoreError: a non-conflict remote store failure.
	StoreError
	// RenderError: compositing or encoding failed.
	RenderError
	// PermissionDenied: the user lacks a configured permission.
	PermissionDenied
	// InvalidInput: a user-supplied value failed validation.
	InvalidInput
	// SessionExpired: the interaction targets a timed-out session.
	SessionExpired
)

func (k Kind) String() string {
	switch k {
	case FetchFailed:
		return "fetch-failed"
	case DecodeFailed:
		return "decode-failed"
	case StoreConflict:
		return "store-conflict"
	case StoreError:
		return "store-error"
	case RenderError:
		return "render-error"
	case PermissionDenied:
		return "permission-denied"
	case InvalidInput:
		return "invalid-input"
	case SessionExpired:
		return "session-expired"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind. A nil err still produces a non-nil *Error so
// callers can signal a bare kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err, if it is (or wraps) a classified error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
