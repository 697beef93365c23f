package domain

import "fmt"

// ErrorKind is the stable, machine-readable error taxonomy surfaced in the
// response envelope's error.code field (see Error). Kinds are part of the
// wire contract; renaming one is a breaking change.
type ErrorKind string

const (
	// KindValidation covers RQL parse failures, unknown fields, bad
	// operators, and invalid snapshot tokens.
	KindValidation ErrorKind = "validation_error"

	// KindLockBusy means the exclusive store lock was not acquired within
	// the configured busy timeout.
	KindLockBusy ErrorKind = "lock_busy"

	// KindSchemaTooNew means the on-disk schema version exceeds what this
	// build supports.
	KindSchemaTooNew ErrorKind = "schema_too_new"

	// KindMigrationFailed means a migration aborted; the store file is
	// left unchanged.
	KindMigrationFailed ErrorKind = "migration_failed"

	// KindIndexCorrupt means the lexical or vector index disagrees with
	// the chunk table; surfaced by doctor.
	KindIndexCorrupt ErrorKind = "index_corrupt"

	// KindNotFound means an rm or lookup found no matching row.
	KindNotFound ErrorKind = "not_found"

	// KindInvalidSnapshot means a supplied snapshot token could not be
	// parsed or resolved.
	KindInvalidSnapshot ErrorKind = "invalid_snapshot"

	// KindIO covers underlying storage engine errors not otherwise
	// classified.
	KindIO ErrorKind = "io_error"
)

// Error is the structured error type returned across core package
// boundaries and, at the outermost layer, translated verbatim into the
// response envelope's error object.
type Error struct {
	Kind    ErrorKind
	Message string
	Hint    string

	// Wrapped is the underlying cause, if any; Unwrap exposes it so
	// errors.Is/errors.As keep working across this boundary.
	Wrapped error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, &Error{Kind: KindNotFound}) style matching on
// kind alone, ignoring Message/Hint/Wrapped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError constructs an *Error with no wrapped cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error around an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}

// WithHint returns a copy of e carrying the given hint text.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

// ErrNotFound is a reusable sentinel for the common not-found case, kept
// plain (not wrapping a message) so callers can use errors.Is(err,
// domain.ErrNotFound) the same way the rest of the codebase compares
// sentinel errors.
var ErrNotFound = NewError(KindNotFound, "not found")
