// Package diag implements the error-kind model and the scope-guarded
// diagnostic record described in spec.md §7. Every fallible operation in
// this repository returns an error that either is, or wraps, a *diag.Error
// so the CLI's single top-level handler can format the uniform
// "<stream>: <severity>: <summary>" shape and pick an exit code from Kind.
package diag

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec.md §7's table does.
type Kind int

const (
	// KindUserInput: bad version string, unknown package, etc.
	KindUserInput Kind = iota
	// KindPrecondition: non-empty cfg dir without --wipe, etc.
	KindPrecondition
	// KindIO: missing file, unreadable stream.
	KindIO
	// KindSubprocess: non-zero exit of tar/openssl/git/build-system.
	KindSubprocess
	// KindIntegrity: checksum mismatch, broken manifest, invalid signature.
	KindIntegrity
	// KindState: broken package, schema too old/new, busy DB.
	KindState
	// KindTransient: network failure in non-offline mode.
	KindTransient
	// KindLogic: internal invariant violation.
	KindLogic
)

func (k Kind) String() string {
	switch k {
	case KindUserInput:
		return "user-input"
	case KindPrecondition:
		return "precondition"
	case KindIO:
		return "io"
	case KindSubprocess:
		return "subprocess"
	case KindIntegrity:
		return "integrity"
	case KindState:
		return "state"
	case KindTransient:
		return "transient"
	case KindLogic:
		return "logic"
	default:
		return "unknown"
	}
}

// ExitCode maps a Kind to the process exit code convention in spec.md §6:
// 0 success, 1 diagnosed failure, subprocess-owned codes are propagated
// only by the caller that spawned the subprocess (not derivable from Kind
// alone, so KindSubprocess still maps to 1 here; callers that need to
// propagate a subprocess's own code do so directly).
func (k Kind) ExitCode() int {
	if k == KindLogic {
		return 2
	}
	return 1
}

// Error is a diagnosed failure: a Kind plus a human summary and optional
// "info:" continuation lines, plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Summary string
	Info    []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Summary, e.Cause)
	}
	return e.Summary
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Summary: fmt.Sprintf(format, args...)}
}

// Wrap constructs a *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Summary: fmt.Sprintf(format, args...), Cause: cause}
}

// WithInfo appends an "info:" continuation line and returns e for
// chaining.
func (e *Error) WithInfo(format string, args ...any) *Error {
	e.Info = append(e.Info, fmt.Sprintf(format, args...))
	return e
}

// KindOf extracts the Kind from err if it is, or wraps, a *Error;
// otherwise returns KindLogic, treating an untyped error as an internal
// invariant violation (every operation in this repository is expected to
// return typed errors).
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindLogic
}
