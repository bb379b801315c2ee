package httpapi

import (
	"encoding/json"
	"net/http"

	"ragd/internal/manager"
	"ragd/pkg/types"
)

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case manager.IsAlreadyInitialized(err):
		return http.StatusConflict
	case manager.IsBusy(err):
		return http.StatusTooManyRequests
	case manager.IsNotReady(err), manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case manager.IsBadRequest(err), manager.IsDimensionMismatch(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeText writes a plain-text body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeError renders err as a plain-text body with the mapped status and
// counts the failure against operation.
func writeError(w http.ResponseWriter, operation string, err error) int {
	status := statusFor(err)
	recordFailure(operation, err)
	writeText(w, status, manager.UserMessage(err))
	return status
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func badRequest(msg string) error { return manager.ErrBadRequest(msg) }
