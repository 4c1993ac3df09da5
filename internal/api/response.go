package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

// Result is the uniform response envelope. Domain outcomes come back as data
// with success=true, failures as an error message with success=false; domain
// errors never surface as anything but a JSON result.
type Result struct {
	IsSuccess    bool        `json:"is_success"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Data         interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Result{IsSuccess: true, Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForError(err))
	json.NewEncoder(w).Encode(Result{IsSuccess: false, ErrorMessage: err.Error()})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(Result{IsSuccess: false, ErrorMessage: message})
}

// statusForError maps the domain error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientPosition),
		errors.Is(err, ledger.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
