// Package graphkberr defines the error taxonomy shared by every GraphKB
// component. The core never swallows an error: a failure is always either
// returned as a *Error with a Kind the HTTP boundary can switch on, or
// wrapped from a lower layer with errors.Join/fmt.Errorf %w so errors.As
// still recovers the original Kind.
package graphkberr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy of §7. The HTTP boundary maps each
// Kind to a status code; the core itself never maps to HTTP directly.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindPermission        Kind = "permission"
	KindAuthentication    Kind = "authentication"
	KindConnection        Kind = "connection"
	KindTimeout           Kind = "timeout"
	KindMigrationRequired Kind = "migration_required"
	KindNoMigrationPath   Kind = "no_migration_path"
	KindSchema            Kind = "schema"
	KindInternal          Kind = "internal"
)

// Error is the single error type every GraphKB component returns. Callers
// pattern-match on Kind rather than on error strings or sentinel values.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "subgraph.traverse"
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error around an existing cause, preserving it for
// errors.Is/errors.As.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is
// not a *Error (or wraps one).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
