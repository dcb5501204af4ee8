package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps core errors to statuses. Persistence failures are
// retryable; the in-memory state already reflects the command.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, chargehunt.ErrInvalidPosition), errors.Is(err, session.ErrInvalidPlayer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chargehunt.ErrUnknownStation), errors.Is(err, chargehunt.ErrUnknownLoot):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chargehunt.ErrNotDiscoverable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chargehunt.ErrPersistence):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "could not save progress, retry")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
