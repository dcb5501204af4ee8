package server

import (
	"log/slog"
	"net/http"
)

func handlePlayerState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, playerSession(r).State())
	}
}

// handleFlush persists writes left pending by an earlier failure.
func handleFlush(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := playerSession(r)
		if err := sess.Flush(r.Context()); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.State())
	}
}
