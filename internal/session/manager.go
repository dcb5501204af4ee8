package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playperu/chargehunt/internal/catalog"
	"github.com/playperu/chargehunt/internal/discovery"
	"github.com/playperu/chargehunt/internal/loot"
	"github.com/playperu/chargehunt/internal/progression"
	"github.com/playperu/chargehunt/internal/proximity"
	"github.com/playperu/chargehunt/internal/rules"
	"github.com/playperu/chargehunt/internal/sampling"
)

var ErrInvalidPlayer = errors.New("invalid player id")

var validPlayerID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Manager lazily loads one Session per player and keeps it until it has
// been idle for long enough to be evicted.
type Manager struct {
	rules   *rules.Rules
	gen     *loot.Generator
	catalog *catalog.Catalog
	store   Store
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time

	loads    singleflight.Group
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(r *rules.Rules, cat *catalog.Catalog, store Store, sink Sink, logger *slog.Logger) (*Manager, error) {
	gen, err := r.Generator()
	if err != nil {
		return nil, err
	}
	return &Manager{
		rules:    r,
		gen:      gen,
		catalog:  cat,
		store:    store,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

func (m *Manager) Get(ctx context.Context, playerID string) (*Session, error) {
	if !validPlayerID.MatchString(playerID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlayer, playerID)
	}

	if s, ok := m.lookup(playerID); ok {
		return s, nil
	}

	// Loading runs outside the lock; concurrent loads of one player share a call.
	v, err, _ := m.loads.Do(playerID, func() (any, error) {
		if s, ok := m.lookup(playerID); ok {
			return s, nil
		}
		s, err := m.open(ctx, playerID)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		s.touch(m.now())
		m.sessions[playerID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(playerID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[playerID]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

func (m *Manager) open(ctx context.Context, playerID string) (*Session, error) {
	state, err := m.store.LoadPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player %q: %w", playerID, err)
	}

	ledger := progression.NewLedger(m.rules.Levels, state.Progression)
	vault := loot.NewVault(state.Loot...)
	machine := discovery.NewMachine(playerID, m.rules.ClaimExperience, state.Progress, ledger, vault, m.gen)

	m.logger.Info("player session opened",
		"player_id", playerID,
		"total_experience", ledger.Total(),
		"stations", len(state.Progress),
	)

	return &Session{
		playerID: playerID,
		rules:    m.rules,
		catalog:  m.catalog,
		store:    m.store,
		sink:     m.sink,
		logger:   m.logger,
		now:      m.now,
		filter:   sampling.NewFilter(m.rules.Sampling),
		engine:   proximity.NewEngine(machine.Discoverable()...),
		machine:  machine,
		ledger:   ledger,
		vault:    vault,
		dirty: dirtySet{
			progress: make(map[string]bool),
			loot:     make(map[string]bool),
		},
	}, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// FlushAll persists pending writes of every open session.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("player %q: %w", s.playerID, err))
		}
	}
	return errors.Join(errs...)
}

// EvictIdle drops sessions not used for longer than maxIdle and returns how
// many were dropped. Sessions with pending writes or a command in progress
// stay open.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, s := range m.sessions {
		if s.lastUsed().After(cutoff) || !s.mu.TryLock() {
			continue
		}
		pending := s.dirty.len()
		s.mu.Unlock()
		if pending > 0 {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	if n > 0 {
		m.logger.Info("idle player sessions evicted", "evicted", n, "open", len(m.sessions))
	}
	return n
}

// EvictLoop runs EvictIdle every interval until ctx is done.
func (m *Manager) EvictLoop(ctx context.Context, interval, maxIdle time.Duration) error {
	if interval <= 0 || maxIdle <= 0 {
		return fmt.Errorf("eviction interval and idle timeout must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.EvictIdle(maxIdle)
		}
	}
}
