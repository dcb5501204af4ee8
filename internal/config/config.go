package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/playperu/chargehunt/internal/geomath"
	"github.com/playperu/chargehunt/internal/stationsync"
)

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH" envDefault:"data/chargehunt.db"`
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"chargehunt:"`

	RulesPath string `env:"RULES_PATH"`

	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	ProviderURL      string `env:"PROVIDER_URL"`
	ProviderSeedPath string `env:"PROVIDER_SEED_PATH"`

	SyncInterval    time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`
	SyncTimeout     time.Duration `env:"SYNC_TIMEOUT" envDefault:"10s"`
	SyncCenters     []Center      `env:"SYNC_CENTERS"`
	SyncBBox        *BBox         `env:"SYNC_BBOX"`
	SyncRadius      float64       `env:"SYNC_RADIUS_M" envDefault:"5000"`
	SyncPageSize    int           `env:"SYNC_PAGE_SIZE" envDefault:"50"`
	SyncMaxPages    int           `env:"SYNC_MAX_PAGES" envDefault:"20"`
	SyncConcurrency int           `env:"SYNC_CONCURRENCY" envDefault:"4"`
	SyncRetries     uint64        `env:"SYNC_RETRY_MAX" envDefault:"3"`
	SyncRetryBase   time.Duration `env:"SYNC_RETRY_BASE" envDefault:"500ms"`
	SyncRetryCap    time.Duration `env:"SYNC_RETRY_CAP" envDefault:"10s"`
	SyncRatePerSec  float64       `env:"SYNC_RATE_PER_SEC" envDefault:"5"`
}

// Center is a sync search center written as lat:lng.
type Center geomath.Center

func (c *Center) UnmarshalText(text []byte) error {
	lat, lng, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("center %q: want lat:lng", text)
	}
	var err error
	if c.Lat, err = parseCoord(lat, 90); err != nil {
		return fmt.Errorf("center %q: %w", text, err)
	}
	if c.Lng, err = parseCoord(lng, 180); err != nil {
		return fmt.Errorf("center %q: %w", text, err)
	}
	return nil
}

// BBox is a sync area written as minLat:minLng:maxLat:maxLng. It is tiled
// into search centers of SYNC_RADIUS_M.
type BBox geomath.Bound

func (b *BBox) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ":")
	if len(parts) != 4 {
		return fmt.Errorf("bbox %q: want minLat:minLng:maxLat:maxLng", text)
	}
	limits := [4]float64{90, 180, 90, 180}
	var v [4]float64
	for i, p := range parts {
		f, err := parseCoord(p, limits[i])
		if err != nil {
			return fmt.Errorf("bbox %q: %w", text, err)
		}
		v[i] = f
	}
	*b = BBox{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if !geomath.Bound(*b).Valid() {
		return fmt.Errorf("bbox %q: min exceeds max", text)
	}
	return nil
}

func parseCoord(s string, limit float64) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	if f < -limit || f > limit {
		return 0, fmt.Errorf("coordinate %v out of range", f)
	}
	return f, nil
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.StorageDriver {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.SessionIdleTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive, got %s", cfg.SessionIdleTimeout)
	}
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("SYNC_INTERVAL must be positive, got %s", cfg.SyncInterval)
	}
	if cfg.ProviderURL != "" && cfg.ProviderSeedPath != "" {
		return nil, fmt.Errorf("PROVIDER_URL and PROVIDER_SEED_PATH are mutually exclusive")
	}
	return &cfg, nil
}

// Sync returns the pipeline settings. Explicit centers come first, then
// the tiling of SYNC_BBOX.
func (c *Config) Sync() stationsync.Config {
	centers := make([]geomath.Center, 0, len(c.SyncCenters))
	for _, sc := range c.SyncCenters {
		centers = append(centers, geomath.Center(sc))
	}
	if c.SyncBBox != nil {
		centers = append(centers, geomath.SearchCenters(geomath.Bound(*c.SyncBBox), c.SyncRadius)...)
	}
	return stationsync.Config{
		Centers:     centers,
		Radius:      c.SyncRadius,
		PageSize:    c.SyncPageSize,
		MaxPages:    c.SyncMaxPages,
		Concurrency: c.SyncConcurrency,
		Timeout:     c.SyncTimeout,
		Retries:     c.SyncRetries,
		BackoffBase: c.SyncRetryBase,
		BackoffCap:  c.SyncRetryCap,
		RatePerSec:  c.SyncRatePerSec,
	}
}
