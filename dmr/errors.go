package dmr

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned when a node is read as a kind it cannot be converted to.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnsupportedValue is returned when a Go value has no model representation.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrIndexOutOfRange is returned when a list index does not exist.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidAddress is returned for malformed resource addresses.
	ErrInvalidAddress = errors.New("invalid resource address")

	// ErrInvalidOperation is returned for operations that cannot be built or rendered.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNilStep is returned when an absent step is given to a composite.
	ErrNilStep = errors.New("composite step is nil")

	// ErrCyclicComposite is returned when a composite would contain itself.
	ErrCyclicComposite = errors.New("composite contains itself")

	// ErrOperationFailed is the base error of every failed management outcome.
	ErrOperationFailed = errors.New("operation failed")
)

// TypeError describes a node that was used as a kind it does not have.
type TypeError struct {
	Op   string    // accessor or mutator that was called
	Want ModelType // kind required by Op
	Got  ModelType // actual kind of the node
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("dmr: %s: cannot use %s node as %s", e.Op, e.Got, e.Want)
}

// Unwrap returns ErrTypeMismatch so callers can match with errors.Is.
func (e *TypeError) Unwrap() error {
	return ErrTypeMismatch
}

func mismatch(op string, want, got ModelType) error {
	return &TypeError{Op: op, Want: want, Got: got}
}

// FailureError is the error form of a response whose outcome is failed.
type FailureError struct {
	// Description is the textual failure description reported by the server.
	Description string
	// RolledBack reports whether the server rolled back the changes of the request.
	RolledBack bool
}

// Error implements the error interface.
func (e *FailureError) Error() string {
	if e.Description == "" {
		return "management operation failed"
	}

	return "management operation failed: " + e.Description
}

// Unwrap returns ErrOperationFailed.
func (e *FailureError) Unwrap() error {
	return ErrOperationFailed
}
