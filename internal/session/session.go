// Package session serializes everything that touches one player's state:
// the fix pipeline (sampling, proximity, discovery) and the claim and
// collect commands. Each player has exactly one Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playperu/chargehunt/internal/catalog"
	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/discovery"
	"github.com/playperu/chargehunt/internal/geomath"
	"github.com/playperu/chargehunt/internal/loot"
	"github.com/playperu/chargehunt/internal/progression"
	"github.com/playperu/chargehunt/internal/proximity"
	"github.com/playperu/chargehunt/internal/rules"
	"github.com/playperu/chargehunt/internal/sampling"
	"github.com/playperu/chargehunt/internal/storage"
)

// Store is the persistence a session needs.
type Store interface {
	LoadPlayer(ctx context.Context, playerID string) (storage.PlayerState, error)
	SaveProgress(ctx context.Context, playerID string, p chargehunt.StationProgress) error
	SaveProgression(ctx context.Context, p chargehunt.PlayerProgression) error
	SaveLoot(ctx context.Context, l chargehunt.LootReward) error
}

// Sink receives UI-facing events.
type Sink interface {
	Publish(playerID string, ev chargehunt.Event)
}

type FixResult struct {
	Accepted   bool               `json:"accepted"`
	NextPollMs int                `json:"nextPollMs"`
	Mode       string             `json:"mode"`
	Events     []chargehunt.Event `json:"events"`
	// Unsaved is set when the fix was processed but its progress could not
	// be persisted yet.
	Unsaved bool `json:"unsaved,omitempty"`
}

type ClaimResult struct {
	StationID         string                 `json:"stationId"`
	AlreadyClaimed    bool                   `json:"alreadyClaimed"`
	ExperienceAwarded int                    `json:"experienceAwarded"`
	TotalExperience   int                    `json:"totalExperience"`
	Level             int                    `json:"level"`
	LeveledUp         bool                   `json:"leveledUp"`
	Reward            *chargehunt.LootReward `json:"reward,omitempty"`
}

type CollectResult struct {
	Reward           chargehunt.LootReward `json:"reward"`
	AlreadyCollected bool                  `json:"alreadyCollected"`
	TotalExperience  int                   `json:"totalExperience"`
	Level            int                   `json:"level"`
	LeveledUp        bool                  `json:"leveledUp"`
}

// State is a read-only view of a player's session.
type State struct {
	PlayerID    string                       `json:"playerId"`
	Progression chargehunt.PlayerProgression `json:"progression"`
	Stations    []chargehunt.StationProgress `json:"stations"`
	Loot        []chargehunt.LootReward      `json:"loot"`
	Mode        string                       `json:"mode"`
	Pending     int                          `json:"pendingWrites"`
}

type Session struct {
	mu   sync.Mutex
	used atomic.Int64 // unix nanoseconds of the last Manager.Get

	playerID string
	rules    *rules.Rules
	catalog  *catalog.Catalog
	store    Store
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time

	filter  *sampling.Filter
	engine  *proximity.Engine
	machine *discovery.Machine
	ledger  *progression.Ledger
	vault   *loot.Vault

	dirty dirtySet
}

// dirtySet tracks in-memory changes not yet persisted.
type dirtySet struct {
	progress    map[string]bool
	loot        map[string]bool
	progression bool
}

func (d *dirtySet) len() int {
	n := len(d.progress) + len(d.loot)
	if d.progression {
		n++
	}
	return n
}

func (s *Session) PlayerID() string { return s.playerID }

func (s *Session) touch(t time.Time) { s.used.Store(t.UnixNano()) }

func (s *Session) lastUsed() time.Time { return time.Unix(0, s.used.Load()) }

// ReportFix runs one raw fix through the pipeline. The result is valid even
// when a persistence error is returned.
func (s *Session) ReportFix(ctx context.Context, fix chargehunt.Position) (FixResult, error) {
	if err := fix.Validate(); err != nil {
		return FixResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accepted, poll := s.filter.Accept(fix)
	res := FixResult{Accepted: accepted, NextPollMs: poll, Mode: s.filter.Mode().String(), Events: []chargehunt.Event{}}
	if !accepted {
		return res, nil
	}

	for _, ev := range s.engine.Evaluate(fix, s.catalog, s.rules.ActivationRadius, s.machine.IsClaimed) {
		tr, changed := s.machine.Apply(ev)
		if !changed {
			continue
		}
		s.dirty.progress[tr.StationID] = true

		typ := chargehunt.EventStationDiscoverable
		if tr.To == chargehunt.StateUndiscovered {
			typ = chargehunt.EventStationLost
		}
		res.Events = append(res.Events, s.publish(chargehunt.Event{Type: typ, StationID: tr.StationID, At: tr.At}))
		s.logger.Debug("station transition",
			"player_id", s.playerID,
			"station_id", tr.StationID,
			"from", tr.From,
			"to", tr.To,
			"distance_m", ev.Distance,
		)
	}

	if err := s.flush(ctx); err != nil {
		res.Unsaved = true
		return res, err
	}
	return res, nil
}

// RequestClaim claims a discoverable station. Pending writes from an
// earlier failed command are persisted first; if that fails no new work
// is done.
func (s *Session) RequestClaim(ctx context.Context, stationID string) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(ctx); err != nil {
		return ClaimResult{}, err
	}

	station, ok := s.catalog.Get(stationID)
	if !ok {
		return ClaimResult{}, fmt.Errorf("%w: %s", chargehunt.ErrUnknownStation, stationID)
	}

	now := s.now()
	out, err := s.machine.Claim(stationID, now)
	if err != nil {
		return ClaimResult{}, err
	}

	res := ClaimResult{
		StationID:       stationID,
		AlreadyClaimed:  out.AlreadyClaimed,
		TotalExperience: s.ledger.Total(),
		Level:           s.ledger.Level(),
	}

	if out.AlreadyClaimed {
		if s.nearby(station) {
			if r, ok := s.machine.RefreshLoot(stationID, now); ok {
				s.dirty.loot[r.ID] = true
				res.Reward = &r
				s.logger.Info("loot refreshed", "player_id", s.playerID, "station_id", stationID, "epoch", r.Epoch)
			}
		}
		return res, s.flush(ctx)
	}

	s.engine.Forget(stationID)
	s.dirty.progress[stationID] = true
	s.dirty.progression = true
	res.ExperienceAwarded = out.Award.Amount
	res.TotalExperience = out.Award.Total
	res.Level = out.Award.Level
	res.LeveledUp = out.Award.LeveledUp
	if out.Reward != nil {
		s.dirty.loot[out.Reward.ID] = true
		res.Reward = out.Reward
	}

	s.publish(chargehunt.Event{Type: chargehunt.EventStationClaimed, StationID: stationID, Reward: out.Reward, At: now})
	if out.Award.LeveledUp {
		s.publish(chargehunt.Event{Type: chargehunt.EventLevelUp, Level: out.Award.Level, At: now})
	}
	s.logger.Info("station claimed",
		"player_id", s.playerID,
		"station_id", stationID,
		"total_experience", out.Award.Total,
		"level", out.Award.Level,
	)

	return res, s.flush(ctx)
}

// CollectLoot marks a reward collected and awards its experience bonus.
// Collecting twice is a successful no-op.
func (s *Session) CollectLoot(ctx context.Context, lootID string) (CollectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(ctx); err != nil {
		return CollectResult{}, err
	}

	r, ok := s.vault.Get(lootID)
	if !ok {
		return CollectResult{}, fmt.Errorf("%w: %s", chargehunt.ErrUnknownLoot, lootID)
	}
	if r.Collected {
		return CollectResult{
			Reward:           r,
			AlreadyCollected: true,
			TotalExperience:  s.ledger.Total(),
			Level:            s.ledger.Level(),
		}, nil
	}

	award, err := s.ledger.AwardExperience(r.ExperienceBonus)
	if err != nil {
		return CollectResult{}, fmt.Errorf("awarding loot bonus: %w", err)
	}
	r, _, err = s.vault.Collect(lootID)
	if err != nil {
		return CollectResult{}, err
	}
	s.dirty.loot[lootID] = true
	s.dirty.progression = true

	now := s.now()
	s.publish(chargehunt.Event{Type: chargehunt.EventLootCollected, StationID: r.StationID, Reward: &r, At: now})
	if award.LeveledUp {
		s.publish(chargehunt.Event{Type: chargehunt.EventLevelUp, Level: award.Level, At: now})
	}

	res := CollectResult{
		Reward:          r,
		TotalExperience: award.Total,
		Level:           award.Level,
		LeveledUp:       award.LeveledUp,
	}
	return res, s.flush(ctx)
}

// Flush persists pending writes left behind by a failed command.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		PlayerID:    s.playerID,
		Progression: s.ledger.Progression(),
		Stations:    s.machine.All(),
		Loot:        s.vault.All(),
		Mode:        s.filter.Mode().String(),
		Pending:     s.dirty.len(),
	}
}

// nearby reports whether the last accepted fix is within the activation
// radius of station.
func (s *Session) nearby(station chargehunt.Station) bool {
	fix, ok := s.filter.Last()
	if !ok {
		return false
	}
	d := geomath.Distance(fix.Latitude, fix.Longitude, station.Latitude, station.Longitude)
	return d <= s.rules.ActivationRadius
}

func (s *Session) publish(ev chargehunt.Event) chargehunt.Event {
	ev.PlayerID = s.playerID
	if s.sink != nil {
		s.sink.Publish(s.playerID, ev)
	}
	return ev
}

// flush writes station progress first, then loot, then the progression
// total. Entries stay dirty until their write succeeds.
func (s *Session) flush(ctx context.Context) error {
	for _, id := range sortedKeys(s.dirty.progress) {
		if err := s.store.SaveProgress(ctx, s.playerID, s.machine.Progress(id)); err != nil {
			return s.persistErr(err)
		}
		delete(s.dirty.progress, id)
	}
	for _, id := range sortedKeys(s.dirty.loot) {
		r, ok := s.vault.Get(id)
		if ok {
			if err := s.store.SaveLoot(ctx, r); err != nil {
				return s.persistErr(err)
			}
		}
		delete(s.dirty.loot, id)
	}
	if s.dirty.progression {
		if err := s.store.SaveProgression(ctx, s.ledger.Progression()); err != nil {
			return s.persistErr(err)
		}
		s.dirty.progression = false
	}
	return nil
}

func (s *Session) persistErr(err error) error {
	s.logger.Error("persisting player state", "player_id", s.playerID, "pending", s.dirty.len(), "error", err)
	if errors.Is(err, chargehunt.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", chargehunt.ErrPersistence, err)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
