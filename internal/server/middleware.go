package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/chargehunt/internal/session"
)

type ctxKey int

const ctxKeySession ctxKey = iota

// playerMiddleware resolves {playerID} to its session.
func playerMiddleware(sessions *session.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Get(r.Context(), chi.URLParam(r, "playerID"))
			if err != nil {
				if errors.Is(err, session.ErrInvalidPlayer) {
					writeError(w, http.StatusBadRequest, "invalid player id")
					return
				}
				logger.Error("loading player session", "error", err)
				writeError(w, http.StatusServiceUnavailable, "player state unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func playerSession(r *http.Request) *session.Session {
	return r.Context().Value(ctxKeySession).(*session.Session)
}
