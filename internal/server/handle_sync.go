package server

import (
	"context"
	"net/http"

	"github.com/playperu/chargehunt/internal/stationsync"
)

// Syncer runs one station sync pass.
type Syncer interface {
	Run(ctx context.Context) (stationsync.Report, error)
}

// handleSync triggers a pass and returns its report. A degraded pass is not
// an HTTP error: the catalog keeps its last-known-good data and the report
// carries the provider failure.
func handleSync(syncer Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncer == nil {
			writeError(w, http.StatusServiceUnavailable, "station sync is not configured")
			return
		}
		rep, _ := syncer.Run(r.Context())
		writeJSON(w, http.StatusOK, rep)
	}
}
