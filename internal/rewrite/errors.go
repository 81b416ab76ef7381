package rewrite

import (
	"errors"
	"fmt"
)

// Error represents a failure during a rewrite or restack operation.
//
// The engine recovers nothing locally: every failure aborts the
// in-flight transaction, releases all locks, and surfaces as one of
// these with a code from the taxonomy below.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Changeset identifies the affected changeset, when known.
	Changeset string

	// Err is the underlying cause, when one exists.
	Err error
}

// ErrorCode categorizes rewrite errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedShape indicates the target changeset has a
	// shape the engine refuses to rewrite (a merge, i.e. two parents).
	// Raised before any lock is taken.
	ErrCodeUnsupportedShape ErrorCode = "UNSUPPORTED_SHAPE"

	// ErrCodeLookupFailed indicates a referenced changeset or bookmark
	// could not be resolved.
	ErrCodeLookupFailed ErrorCode = "LOOKUP_FAILED"

	// ErrCodeDelegationFailed indicates the rebase collaborator
	// reported a conflict or internal error; the failure is carried
	// through unchanged.
	ErrCodeDelegationFailed ErrorCode = "DELEGATION_FAILED"

	// ErrCodeResourceUnavailable indicates a lock or transaction could
	// not be obtained; no mutation was attempted.
	ErrCodeResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Changeset != "" {
		return fmt.Sprintf("%s: %s (changeset=%s)", e.Code, e.Message, e.Changeset)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnsupportedShape reports whether err is an unsupported-shape
// rejection. Uses errors.As to handle wrapped errors.
func IsUnsupportedShape(err error) bool {
	return hasCode(err, ErrCodeUnsupportedShape)
}

// IsLookupFailed reports whether err is a lookup failure.
func IsLookupFailed(err error) bool {
	return hasCode(err, ErrCodeLookupFailed)
}

// IsDelegationFailed reports whether err came from the rebase
// collaborator.
func IsDelegationFailed(err error) bool {
	return hasCode(err, ErrCodeDelegationFailed)
}

// IsResourceUnavailable reports whether err is a lock or transaction
// acquisition failure.
func IsResourceUnavailable(err error) bool {
	return hasCode(err, ErrCodeResourceUnavailable)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewUnsupportedShapeError rejects a merge changeset rewrite.
func NewUnsupportedShapeError(id string) *Error {
	return &Error{
		Code:      ErrCodeUnsupportedShape,
		Message:   "cannot rewrite merge changesets",
		Changeset: id,
	}
}

// NewLookupError wraps a failed changeset or bookmark resolution.
func NewLookupError(id string, err error) *Error {
	return &Error{
		Code:      ErrCodeLookupFailed,
		Message:   "reference could not be resolved",
		Changeset: id,
		Err:       err,
	}
}

// NewDelegationError wraps a rebase collaborator failure.
func NewDelegationError(err error) *Error {
	return &Error{
		Code:    ErrCodeDelegationFailed,
		Message: "rebase collaborator failed",
		Err:     err,
	}
}

// NewResourceError wraps a lock or transaction acquisition failure.
func NewResourceError(what string, err error) *Error {
	return &Error{
		Code:    ErrCodeResourceUnavailable,
		Message: fmt.Sprintf("could not acquire %s", what),
		Err:     err,
	}
}
