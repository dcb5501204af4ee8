package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/session"
	"github.com/playperu/chargehunt/internal/stationsync"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse map[string]struct {
	Status string `json:"status"`
	Detail any    `json:"detail,omitempty"`
}

type playerPath struct {
	PlayerID string `path:"playerID" description:"Player identifier, [A-Za-z0-9_-]{1,128}."`
}

type lootPath struct {
	PlayerID string `path:"playerID"`
	LootID   string `path:"lootID"`
}

type stationsQuery struct {
	BBox   string  `query:"bbox" description:"minLat,minLng,maxLat,maxLng"`
	Lat    float64 `query:"lat"`
	Lng    float64 `query:"lng"`
	Radius float64 `query:"radius" description:"Meters, default 1000."`
	Format string  `query:"format" enum:"json,geojson"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "ChargeHunt API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Location game backend: discover and claim charging stations.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Checks the storage backend and reports catalog size.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/stations
	getStations, _ := r.NewOperationContext(http.MethodGet, "/api/stations")
	getStations.SetSummary("List stations")
	getStations.SetDescription("Returns catalog stations inside a bounding box or radius.")
	getStations.AddReqStructure(stationsQuery{})
	getStations.AddRespStructure(StationsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getStations.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getStations)

	// POST /api/sync
	postSync, _ := r.NewOperationContext(http.MethodPost, "/api/sync")
	postSync.SetSummary("Sync stations")
	postSync.SetDescription("Runs one station sync pass. Provider failures are reported in the body; the catalog keeps its data.")
	postSync.AddRespStructure(stationsync.Report{}, openapi.WithHTTPStatus(http.StatusOK))
	postSync.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postSync)

	// POST /api/players/{playerID}/fixes
	postFix, _ := r.NewOperationContext(http.MethodPost, "/api/players/{playerID}/fixes")
	postFix.SetSummary("Report location")
	postFix.SetDescription("Submits a raw GPS fix. Returns whether it was accepted, the advised poll interval, and proximity events.")
	postFix.AddReqStructure(playerPath{})
	postFix.AddReqStructure(FixRequest{})
	postFix.AddRespStructure(session.FixResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postFix.AddRespStructure(session.FixResult{}, openapi.WithHTTPStatus(http.StatusAccepted))
	postFix.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postFix.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postFix)

	// POST /api/players/{playerID}/claims
	postClaim, _ := r.NewOperationContext(http.MethodPost, "/api/players/{playerID}/claims")
	postClaim.SetSummary("Claim station")
	postClaim.SetDescription("Claims a discoverable station. Claiming twice succeeds with alreadyClaimed set.")
	postClaim.AddReqStructure(playerPath{})
	postClaim.AddReqStructure(ClaimRequest{})
	postClaim.AddRespStructure(session.ClaimResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postClaim.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postClaim.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postClaim.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postClaim)

	// POST /api/players/{playerID}/loot/{lootID}/collect
	postCollect, _ := r.NewOperationContext(http.MethodPost, "/api/players/{playerID}/loot/{lootID}/collect")
	postCollect.SetSummary("Collect loot")
	postCollect.SetDescription("Collects a loot reward and awards its experience bonus once.")
	postCollect.AddReqStructure(lootPath{})
	postCollect.AddRespStructure(session.CollectResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postCollect.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postCollect.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postCollect)

	// POST /api/players/{playerID}/flush
	postFlush, _ := r.NewOperationContext(http.MethodPost, "/api/players/{playerID}/flush")
	postFlush.SetSummary("Retry pending writes")
	postFlush.SetDescription("Persists player state left pending by an earlier storage failure.")
	postFlush.AddReqStructure(playerPath{})
	postFlush.AddRespStructure(session.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postFlush.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postFlush)

	// GET /api/players/{playerID}/state
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/players/{playerID}/state")
	getState.SetSummary("Player state")
	getState.SetDescription("Returns progression, per-station progress and loot.")
	getState.AddReqStructure(playerPath{})
	getState.AddRespStructure(session.State{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getState)

	// GET /api/players/{playerID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/players/{playerID}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events: station_discoverable, station_lost, station_claimed, level_up, loot_collected.")
	getEvents.AddReqStructure(playerPath{})
	getEvents.AddRespStructure(chargehunt.Event{}, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/players/{playerID}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/players/{playerID}/ws")
	getWS.SetSummary("WebSocket event stream")
	getWS.SetDescription("Upgrades to a WebSocket that receives the same events as the SSE stream, one JSON text message each.")
	getWS.AddReqStructure(playerPath{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
