package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/autoglm/autoglm-core/internal/adb"
	"github.com/autoglm/autoglm-core/internal/autoglm"
	"github.com/autoglm/autoglm-core/internal/schedule"
	"github.com/autoglm/autoglm-core/internal/task"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps sentinel errors from the domain packages onto
// HTTP statuses. Anything unrecognised is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, schedule.ErrScheduleNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, task.ErrInvalidTask),
		errors.Is(err, task.ErrInvalidStep),
		errors.Is(err, schedule.ErrInvalidCron),
		errors.Is(err, adb.ErrInvalidKeyEvent),
		errors.Is(err, adb.ErrInvalidComponent),
		errors.Is(err, autoglm.ErrAPIKeyMissing):
		writeBadRequest(w, err.Error())
	case errors.Is(err, autoglm.ErrAlreadyRunning),
		errors.Is(err, autoglm.ErrNotRunning),
		errors.Is(err, autoglm.ErrHandleUnavailable),
		errors.Is(err, adb.ErrNoDevice),
		errors.Is(err, adb.ErrAmbiguousDevice),
		errors.Is(err, adb.ErrDeviceOffline):
		writeConflict(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
