package server

import (
	"log/slog"
	"net/http"
	"strings"
)

type ClaimRequest struct {
	StationID string `json:"stationId"`
}

func handleClaim(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClaimRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.StationID = strings.TrimSpace(req.StationID)
		if req.StationID == "" {
			writeError(w, http.StatusBadRequest, "stationId is required")
			return
		}

		res, err := playerSession(r).RequestClaim(r.Context(), req.StationID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
