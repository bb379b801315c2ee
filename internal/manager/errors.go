package manager

import (
	"errors"

	"ragd/internal/backend"
	"ragd/internal/engine"
)

// opError carries the plain-text body reported for a rejected operation.
type opError struct {
	msg string
	err error
}

func (e opError) Error() string { return e.msg }

func (e opError) Unwrap() error { return e.err }

// reject attaches msg to admission and double-init failures; other errors
// pass through unchanged.
func reject(msg string, err error) error {
	if err == nil {
		return nil
	}
	if backend.IsAdmission(err) || backend.IsAlreadyInitialized(err) {
		return opError{msg: msg, err: err}
	}
	return err
}

// UserMessage renders err as the plain-text response body.
func UserMessage(err error) string {
	var oe opError
	if errors.As(err, &oe) {
		return oe.msg
	}
	return "ERROR: " + err.Error()
}

// badRequestError signals malformed request input (return 400).
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

// IsBadRequest reports whether err indicates malformed input.
func IsBadRequest(err error) bool {
	var e badRequestError
	return errors.As(err, &e)
}

// IsAlreadyInitialized reports a double init (return 409).
func IsAlreadyInitialized(err error) bool { return backend.IsAlreadyInitialized(err) }

// IsBusy reports backpressure (return 429).
func IsBusy(err error) bool { return backend.IsBusy(err) }

// IsNotReady reports a backend that is not initialized (return 503).
func IsNotReady(err error) bool { return backend.IsNotReady(err) }

// IsDimensionMismatch reports mismatched store/retrieve inputs (return 400).
func IsDimensionMismatch(err error) bool { return backend.IsDimensionMismatch(err) }

// IsDependencyUnavailable reports an engine this build cannot serve (return 503).
func IsDependencyUnavailable(err error) bool { return engine.IsDependencyUnavailable(err) }

// ErrBadRequest constructs an error for malformed request input.
func ErrBadRequest(msg string) error { return badRequestError{msg: msg} }
