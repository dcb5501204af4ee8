// Package stationsync refreshes the station catalog from a provider. A pass
// queries every search center page by page; each page is merged into the
// catalog on its own, so an abandoned pass leaves the catalog consistent.
package stationsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/playperu/chargehunt/internal/catalog"
	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
	"github.com/playperu/chargehunt/internal/provider"
)

type Config struct {
	Centers     []geomath.Center
	Radius      float64 // meters per center query
	PageSize    int
	MaxPages    int
	Concurrency int

	Timeout     time.Duration // per fetch attempt
	Retries     uint64
	BackoffBase time.Duration
	BackoffCap  time.Duration

	RatePerSec float64 // zero disables limiting
}

func DefaultConfig() Config {
	return Config{
		Radius:      5000,
		PageSize:    50,
		MaxPages:    20,
		Concurrency: 4,
		Timeout:     10 * time.Second,
		Retries:     3,
		BackoffBase: 500 * time.Millisecond,
		BackoffCap:  10 * time.Second,
		RatePerSec:  5,
	}
}

// Store persists stations that a merge added or changed.
type Store interface {
	SaveStations(ctx context.Context, stations []chargehunt.Station) error
}

// Report summarizes one pass.
type Report struct {
	StartedAt     time.Time `json:"startedAt"`
	DurationMs    int64     `json:"durationMs"`
	Centers       int       `json:"centers"`
	FailedCenters int       `json:"failedCenters"`
	Pages         int       `json:"pages"`
	Fetched       int       `json:"fetched"`
	Added         int       `json:"added"`
	Updated       int       `json:"updated"`
	Unchanged     int       `json:"unchanged"`
	CatalogSize   int       `json:"catalogSize"`
	Error         string    `json:"error,omitempty"`
}

type Pipeline struct {
	provider provider.Provider
	catalog  *catalog.Catalog
	store    Store
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time

	run sync.Mutex // one pass at a time

	mu   sync.Mutex
	last *Report
}

// New builds a pipeline. store may be nil when stations are not persisted.
func New(p provider.Provider, cat *catalog.Catalog, store Store, cfg Config, logger *slog.Logger) *Pipeline {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = cfg.BackoffBase
	}
	return &Pipeline{
		provider: p,
		catalog:  cat,
		store:    store,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		now:      time.Now,
	}
}

// LastReport returns the report of the most recent finished pass.
func (p *Pipeline) LastReport() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// Run performs one pass over all centers. When some centers exhaust their
// retries the error wraps chargehunt.ErrProviderUnavailable; whatever was
// merged before the failure stays in the catalog.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	p.run.Lock()
	defer p.run.Unlock()

	start := p.now()
	rep := Report{StartedAt: start, Centers: len(p.cfg.Centers)}

	var (
		mu       sync.Mutex
		failures []error
		saveErrs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, c := range p.cfg.Centers {
		g.Go(func() error {
			cr, err := p.syncCenter(gctx, c)

			mu.Lock()
			defer mu.Unlock()
			rep.Pages += cr.pages
			rep.Fetched += cr.fetched
			rep.Added += cr.added
			rep.Updated += cr.updated
			rep.Unchanged += cr.unchanged
			saveErrs = append(saveErrs, cr.saveErrs...)
			if err != nil && ctx.Err() == nil {
				rep.FailedCenters++
				failures = append(failures, fmt.Errorf("center %.5f,%.5f: %w", c.Lat, c.Lng, err))
			}
			return nil
		})
	}
	g.Wait()

	rep.CatalogSize = p.catalog.Len()
	rep.DurationMs = p.now().Sub(start).Milliseconds()

	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case len(failures) > 0:
		err = fmt.Errorf("%w: %d of %d centers failed: %w",
			chargehunt.ErrProviderUnavailable, len(failures), len(p.cfg.Centers), errors.Join(failures...))
	}
	if len(saveErrs) > 0 {
		err = errors.Join(err, errors.Join(saveErrs...))
	}
	if err != nil {
		rep.Error = err.Error()
	}

	p.mu.Lock()
	p.last = &rep
	p.mu.Unlock()

	attrs := []any{
		"centers", rep.Centers,
		"failed_centers", rep.FailedCenters,
		"pages", rep.Pages,
		"fetched", rep.Fetched,
		"added", rep.Added,
		"updated", rep.Updated,
		"catalog_size", rep.CatalogSize,
		"duration_ms", rep.DurationMs,
	}
	if err != nil {
		p.logger.Warn("station sync degraded", append(attrs, "error", err)...)
	} else {
		p.logger.Info("station sync finished", attrs...)
	}
	return rep, err
}

// Loop runs a pass immediately and then every interval until ctx is done.
// Failed passes are logged and the next tick tries again.
func (p *Pipeline) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.Run(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type centerResult struct {
	pages     int
	fetched   int
	added     int
	updated   int
	unchanged int
	saveErrs  []error
}

func (p *Pipeline) syncCenter(ctx context.Context, c geomath.Center) (centerResult, error) {
	var res centerResult
	seen := make(map[string]bool)

	for page := range p.cfg.MaxPages {
		q := provider.Query{
			Latitude:  c.Lat,
			Longitude: c.Lng,
			Radius:    p.cfg.Radius,
			Offset:    page * p.cfg.PageSize,
			Limit:     p.cfg.PageSize,
		}
		batch, err := p.fetch(ctx, q)
		if err != nil {
			return res, err
		}
		res.pages++
		res.fetched += len(batch)
		if len(batch) == 0 {
			break
		}

		m := p.catalog.Merge(batch)
		res.added += m.Added
		res.updated += m.Updated
		res.unchanged += m.Unchanged
		p.logger.Debug("station batch merged",
			"lat", c.Lat,
			"lng", c.Lng,
			"offset", q.Offset,
			"size", len(batch),
			"added", m.Added,
			"updated", m.Updated,
		)

		if p.store != nil && len(m.Changed) > 0 {
			if err := p.store.SaveStations(ctx, m.Changed); err != nil {
				p.logger.Error("persisting stations", "count", len(m.Changed), "error", err)
				res.saveErrs = append(res.saveErrs, err)
			}
		}

		if len(batch) < p.cfg.PageSize {
			break
		}
		// A page made only of stations this center already returned means
		// the provider is ignoring the offset.
		fresh := false
		for _, s := range batch {
			if !seen[s.ExternalID] {
				seen[s.ExternalID] = true
				fresh = true
			}
		}
		if !fresh {
			p.logger.Warn("provider repeated a page", "lat", c.Lat, "lng", c.Lng, "offset", q.Offset)
			break
		}
	}
	return res, nil
}

// fetch performs one rate-limited query with a per-attempt timeout and
// capped exponential backoff between attempts.
func (p *Pipeline) fetch(ctx context.Context, q provider.Query) ([]chargehunt.Station, error) {
	backoff := retry.WithMaxRetries(p.cfg.Retries,
		retry.WithCappedDuration(p.cfg.BackoffCap, retry.NewExponential(p.cfg.BackoffBase)))

	attempt := 0
	return retry.DoValue(ctx, backoff, func(ctx context.Context) ([]chargehunt.Station, error) {
		attempt++
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		actx := ctx
		if p.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()
		}

		batch, err := p.provider.FetchStations(actx, q)
		if err == nil {
			return batch, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *provider.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, err
		}
		p.logger.Warn("provider fetch failed",
			"lat", q.Latitude,
			"lng", q.Longitude,
			"offset", q.Offset,
			"attempt", attempt,
			"error", err,
		)
		return nil, retry.RetryableError(err)
	})
}
