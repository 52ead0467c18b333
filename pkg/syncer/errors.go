package syncer

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure.
type Kind string

const (
	// KindValidation marks a request whose shape is wrong.
	KindValidation Kind = "validation"
	// KindReference marks an entry lacking an identifier or endpoint it needs,
	// or a parent relation that would form a cycle.
	KindReference Kind = "reference"
	// KindStore marks a failure of the graph store.
	KindStore Kind = "store"
)

// Error is returned by every Syncer operation that fails.
type Error struct {
	Kind Kind
	// Op names the operation, for example "tasks.update".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindStore for errors of unknown origin.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStore
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsReference reports whether err is a reference failure.
func IsReference(err error) bool {
	return err != nil && KindOf(err) == KindReference
}

func validationErrorf(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func referenceErrorf(op, format string, args ...any) error {
	return &Error{Kind: KindReference, Op: op, Err: fmt.Errorf(format, args...)}
}

// storeError wraps a store failure, keeping errors that already carry a kind.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: KindStore, Op: op, Err: err}
}
