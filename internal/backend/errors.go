package backend

import (
	"errors"
	"fmt"
)

// alreadyInitializedError is returned by Init while the backend is live.
type alreadyInitializedError struct{ backend string }

func (e alreadyInitializedError) Error() string {
	return e.backend + " is already initialized"
}

// IsAlreadyInitialized reports whether err rejects a double init (return 409).
func IsAlreadyInitialized(err error) bool {
	var e alreadyInitializedError
	return errors.As(err, &e)
}

// notReadyError signals an operation on a STOPPED or ERR backend, or a missing
// prerequisite such as an uploaded image.
type notReadyError struct {
	backend string
	state   State
	reason  string
}

func (e notReadyError) Error() string {
	if e.reason != "" {
		return e.backend + " is not ready: " + e.reason
	}
	return fmt.Sprintf("%s is not ready (state %s)", e.backend, e.state)
}

// IsNotReady reports whether err indicates a backend that is not initialized (return 503).
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// busyError signals that the backend is RUNNING.
type busyError struct{ backend string }

func (e busyError) Error() string { return e.backend + " is busy" }

// IsBusy reports whether err indicates backpressure (return 429).
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

// IsAdmission reports whether err was an admission rejection (not ready or busy).
func IsAdmission(err error) bool { return IsBusy(err) || IsNotReady(err) }

// dimensionMismatchError rejects store/retrieve calls with inconsistent arrays.
type dimensionMismatchError struct{ msg string }

func (e dimensionMismatchError) Error() string { return "dimension mismatch: " + e.msg }

// IsDimensionMismatch reports whether err indicates mismatched inputs (return 400).
func IsDimensionMismatch(err error) bool {
	var e dimensionMismatchError
	return errors.As(err, &e)
}

// connectionError wraps a vector store connect failure.
type connectionError struct {
	dsn string
	err error
}

func (e connectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.dsn, e.err)
}

func (e connectionError) Unwrap() error { return e.err }

// IsConnection reports whether err is a vector store connection failure.
func IsConnection(err error) bool {
	var e connectionError
	return errors.As(err, &e)
}

// encodeError wraps an embedding failure reported by the engine.
type encodeError struct {
	backend string
	err     error
}

func (e encodeError) Error() string { return e.backend + " encode: " + e.err.Error() }

func (e encodeError) Unwrap() error { return e.err }

// IsEncode reports whether err is an embedding failure.
func IsEncode(err error) bool {
	var e encodeError
	return errors.As(err, &e)
}

// rerankError wraps a reranking failure or an invalid top-k.
type rerankError struct{ err error }

func (e rerankError) Error() string { return "rerank: " + e.err.Error() }

func (e rerankError) Unwrap() error { return e.err }

// IsRerank reports whether err is a reranking failure.
func IsRerank(err error) bool {
	var e rerankError
	return errors.As(err, &e)
}

// ErrAlreadyInitialized constructs the error Init returns for a live backend.
func ErrAlreadyInitialized(backend string) error { return alreadyInitializedError{backend: backend} }
