package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by the domain and the store adapters. Callers match them
// with errors.Is.
var (
	// ErrNotFound: the collection or entry does not exist, or the entry does
	// not belong to the stated collection. Never retried.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument: malformed input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransientStore: lock contention, timeout or connectivity loss. Retryable.
	ErrTransientStore = errors.New("transient store error")
	// ErrConsistencyViolation: the position invariant was found broken. Fatal
	// and never repaired silently.
	ErrConsistencyViolation = errors.New("consistency violation")
)

// Error carries the failing operation, its kind and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns an error of kind raised by op with cause attached.
func WrapKind(op string, kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Wrap annotates err with op, keeping whatever kind it already carries.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Invalid returns an ErrInvalidArgument error with a human message.
func Invalid(op, msg string) error {
	return WrapKind(op, ErrInvalidArgument, errors.New(msg))
}

// KindOf classifies err into one of the taxonomy labels, "" for nil and
// "internal" for anything unclassified.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTransientStore):
		return "transient"
	case errors.Is(err, ErrConsistencyViolation):
		return "consistency_violation"
	default:
		return "internal"
	}
}
