package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

type FixRequest struct {
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Accuracy   float64    `json:"accuracy"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
}

// handleFix is the location-source adapter: it validates the raw fix and
// feeds it to the player's session. A missing capture time means "now".
func handleFix(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FixRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		fix := chargehunt.Position{
			Latitude:   req.Lat,
			Longitude:  req.Lng,
			Accuracy:   req.Accuracy,
			CapturedAt: time.Now().UTC(),
		}
		if req.CapturedAt != nil {
			fix.CapturedAt = *req.CapturedAt
		}

		sess := playerSession(r)
		res, err := sess.ReportFix(r.Context(), fix)
		switch {
		case errors.Is(err, chargehunt.ErrPersistence):
			// The fix was processed; only saving failed. POST .../flush retries.
			logger.Warn("fix processed but not saved", "player_id", sess.PlayerID(), "error", err)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusAccepted, res)
		case err != nil:
			writeDomainError(w, logger, err)
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}
