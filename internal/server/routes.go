package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("ChargeHunt API", "/openapi.json", "/docs"))

	r.Get("/api/stations", handleStations(deps.Catalog))
	r.Post("/api/sync", handleSync(deps.Sync))

	// Player routes: {playerID} is resolved to a session by playerMiddleware.
	r.Route("/api/players/{playerID}", func(r chi.Router) {
		r.Use(playerMiddleware(deps.Sessions, logger))
		r.Post("/fixes", handleFix(logger))
		r.Post("/claims", handleClaim(logger))
		r.Post("/loot/{lootID}/collect", handleCollectLoot(logger))
		r.Post("/flush", handleFlush(logger))
		r.Get("/state", handlePlayerState())
		r.Get("/events", handleEvents(deps.Broker))
		r.Get("/ws", handleStream(deps.Broker, logger))
	})
}
