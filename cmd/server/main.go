package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/chargehunt/internal/catalog"
	"github.com/playperu/chargehunt/internal/config"
	"github.com/playperu/chargehunt/internal/database"
	"github.com/playperu/chargehunt/internal/handler/health"
	"github.com/playperu/chargehunt/internal/migrations"
	"github.com/playperu/chargehunt/internal/provider"
	"github.com/playperu/chargehunt/internal/rules"
	"github.com/playperu/chargehunt/internal/server"
	"github.com/playperu/chargehunt/internal/session"
	"github.com/playperu/chargehunt/internal/stationsync"
	"github.com/playperu/chargehunt/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Rules ---
	gameRules, err := loadRules(cfg.RulesPath)
	if err != nil {
		return err
	}
	logger.Info("game rules loaded",
		"activation_radius_m", gameRules.ActivationRadius,
		"epoch_policy", gameRules.Epoch.Policy,
		"levels", len(gameRules.Levels),
	)

	// --- Storage ---
	kv, storageCheck, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()
	repo := storage.NewRepository(kv)

	// --- Catalog ---
	cat := catalog.New()
	stations, err := repo.LoadStations(ctx)
	if err != nil {
		return fmt.Errorf("loading stations: %w", err)
	}
	cat.Merge(stations)
	logger.Info("station catalog loaded", "stations", cat.Len())

	// --- Sessions ---
	broker := server.NewBroker()
	sessions, err := session.NewManager(gameRules, cat, repo, broker, logger)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	// --- Station sync ---
	pipeline, err := newPipeline(cfg, cat, repo, logger)
	if err != nil {
		return err
	}

	deps := server.Deps{Sessions: sessions, Catalog: cat, Broker: broker}
	if pipeline != nil {
		deps.Sync = pipeline
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, deps, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, map[string]health.Checker{
			cfg.StorageDriver: storageCheck,
			"catalog":         catalogChecker{cat: cat, sync: pipeline},
		}).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		err := srv.Shutdown(context.Background())

		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := sessions.FlushAll(fctx); ferr != nil {
			logger.Error("flushing player state", "error", ferr)
		}
		return err
	})

	g.Go(func() error {
		return sessions.EvictLoop(gctx, time.Minute, cfg.SessionIdleTimeout)
	})

	if pipeline != nil {
		g.Go(func() error {
			logger.Info("starting station sync", "interval", cfg.SyncInterval.String())
			return pipeline.Loop(gctx, cfg.SyncInterval)
		})
	}

	return g.Wait()
}

func loadRules(path string) (*rules.Rules, error) {
	if path == "" {
		r, err := rules.Default()
		if err != nil {
			return nil, fmt.Errorf("loading default rules: %w", err)
		}
		return r, nil
	}
	r, err := rules.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading rules from %s: %w", path, err)
	}
	return r, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.KV, health.Checker, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("connected to redis", "prefix", cfg.RedisPrefix)
		return storage.NewRedisKV(rdb, cfg.RedisPrefix), redisChecker{rdb}, func() { rdb.Close() }, nil

	case config.StorageMemory:
		logger.Warn("using in-memory storage, state is lost on restart")
		return storage.NewMemoryKV(), health.CheckFunc(func(context.Context) error { return nil }), func() {}, nil

	default:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
		}
		applied, err := migrations.Run(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath, "migrations_applied", applied)
		return storage.NewSQLiteKV(db), dbChecker{db}, func() { db.Close() }, nil
	}
}

// newPipeline returns nil when no provider or no sync area is configured.
func newPipeline(cfg *config.Config, cat *catalog.Catalog, repo *storage.Repository, logger *slog.Logger) (*stationsync.Pipeline, error) {
	var p provider.Provider
	switch {
	case cfg.ProviderURL != "":
		hp, err := provider.NewHTTPProvider(cfg.ProviderURL, nil)
		if err != nil {
			return nil, err
		}
		p = hp
	case cfg.ProviderSeedPath != "":
		sp, err := provider.LoadStaticProvider(cfg.ProviderSeedPath)
		if err != nil {
			return nil, err
		}
		p = sp
	default:
		logger.Warn("no station provider configured, catalog will not be refreshed")
		return nil, nil
	}

	sc := cfg.Sync()
	if len(sc.Centers) == 0 {
		logger.Warn("no sync centers configured, set SYNC_CENTERS or SYNC_BBOX")
		return nil, nil
	}
	logger.Info("station sync configured", "centers", len(sc.Centers), "radius_m", sc.Radius)
	return stationsync.New(p, cat, repo, sc, logger), nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// catalogChecker reports catalog size and the last sync pass. A degraded
// sync does not fail the check; stale stations are still served.
type catalogChecker struct {
	cat  *catalog.Catalog
	sync *stationsync.Pipeline
}

func (c catalogChecker) Check(context.Context) error { return nil }

func (c catalogChecker) Detail() any {
	d := map[string]any{"stations": c.cat.Len()}
	if c.sync != nil {
		if rep, ok := c.sync.LastReport(); ok {
			d["lastSync"] = rep
		}
	}
	return d
}
