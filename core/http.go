package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // 不转义HTML字符，保持原样
	if err := enc.Encode(v); err != nil {
		slog.Error("write json failed", "error", err)
	}
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// StatusFor maps an error from the taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoActiveContext):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrContextMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteFailure translates err into the JSON envelope. Server-side failures
// carry the error text in details; client errors carry it in error.
func WriteFailure(w http.ResponseWriter, summary string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		WriteJSON(w, status, ErrorResponse{Error: summary, Details: err.Error()})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}
