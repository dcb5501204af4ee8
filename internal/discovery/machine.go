// Package discovery runs the per-player station lifecycle:
//
//	undiscovered --enter--> discoverable --claim--> claimed
//	             <--exit---
//
// Claimed is terminal. The claim transition awards the base experience and
// issues loot for the current epoch, both exactly once.
package discovery

import (
	"fmt"
	"sort"
	"time"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/loot"
	"github.com/playperu/chargehunt/internal/progression"
	"github.com/playperu/chargehunt/internal/proximity"
)

// DefaultClaimExperience is the base award for claiming a station.
const DefaultClaimExperience = 100

// Transition records one lifecycle change.
type Transition struct {
	StationID string
	From      chargehunt.LifecycleState
	To        chargehunt.LifecycleState
	At        time.Time
}

// ClaimOutcome describes the result of a claim command. AlreadyClaimed is
// a successful no-op, not an error.
type ClaimOutcome struct {
	StationID      string
	AlreadyClaimed bool
	Award          progression.Award
	Reward         *chargehunt.LootReward
	Progress       chargehunt.StationProgress
}

// Machine is owned by one player session and is not safe for concurrent use.
type Machine struct {
	playerID string
	claimXP  int
	progress map[string]chargehunt.StationProgress
	ledger   *progression.Ledger
	vault    *loot.Vault
	gen      *loot.Generator
}

func NewMachine(playerID string, claimXP int, progress []chargehunt.StationProgress, ledger *progression.Ledger, vault *loot.Vault, gen *loot.Generator) *Machine {
	m := &Machine{
		playerID: playerID,
		claimXP:  claimXP,
		progress: make(map[string]chargehunt.StationProgress, len(progress)),
		ledger:   ledger,
		vault:    vault,
		gen:      gen,
	}
	for _, p := range progress {
		m.progress[p.StationID] = p
	}
	return m
}

// Progress returns the lifecycle record for a station, creating an
// undiscovered one if the station has never been seen.
func (m *Machine) Progress(stationID string) chargehunt.StationProgress {
	p, ok := m.progress[stationID]
	if !ok {
		return chargehunt.StationProgress{StationID: stationID, State: chargehunt.StateUndiscovered}
	}
	return p
}

func (m *Machine) IsClaimed(stationID string) bool {
	return m.progress[stationID].State == chargehunt.StateClaimed
}

// Discoverable lists the stations currently discoverable.
func (m *Machine) Discoverable() []string {
	var ids []string
	for id, p := range m.progress {
		if p.State == chargehunt.StateDiscoverable {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// All returns every lifecycle record ordered by station ID.
func (m *Machine) All() []chargehunt.StationProgress {
	out := make([]chargehunt.StationProgress, 0, len(m.progress))
	for _, p := range m.progress {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

// Apply consumes a proximity event. It reports false when the event does
// not change the station's state.
func (m *Machine) Apply(ev proximity.Event) (Transition, bool) {
	p := m.Progress(ev.StationID)
	from := p.State

	switch {
	case ev.Kind == proximity.Enter && p.State == chargehunt.StateUndiscovered:
		at := ev.At
		p.State = chargehunt.StateDiscoverable
		p.EnteredDiscoverableAt = &at
	case ev.Kind == proximity.Exit && p.State == chargehunt.StateDiscoverable:
		p.State = chargehunt.StateUndiscovered
	default:
		return Transition{}, false
	}

	m.progress[ev.StationID] = p
	return Transition{StationID: ev.StationID, From: from, To: p.State, At: ev.At}, true
}

// Claim moves a discoverable station to claimed. Claiming an already
// claimed station succeeds without side effects; claiming any other
// station fails with chargehunt.ErrNotDiscoverable and changes nothing.
func (m *Machine) Claim(stationID string, at time.Time) (ClaimOutcome, error) {
	p := m.Progress(stationID)

	switch p.State {
	case chargehunt.StateClaimed:
		return ClaimOutcome{StationID: stationID, AlreadyClaimed: true, Progress: p}, nil
	case chargehunt.StateDiscoverable:
	default:
		return ClaimOutcome{}, fmt.Errorf("%w: %s is %s", chargehunt.ErrNotDiscoverable, stationID, p.State)
	}

	award, err := m.ledger.AwardExperience(m.claimXP)
	if err != nil {
		return ClaimOutcome{}, fmt.Errorf("awarding claim experience: %w", err)
	}

	claimedAt := at
	p.State = chargehunt.StateClaimed
	p.ClaimedAt = &claimedAt
	m.progress[stationID] = p
	m.ledger.MarkClaimed(stationID)

	out := ClaimOutcome{StationID: stationID, Award: award, Progress: p}
	if r, ok := m.issueLoot(stationID, at); ok {
		out.Reward = &r
	}
	return out, nil
}

// RefreshLoot issues loot for an already claimed station if none exists
// for the epoch containing at. No experience is awarded.
func (m *Machine) RefreshLoot(stationID string, at time.Time) (chargehunt.LootReward, bool) {
	if !m.IsClaimed(stationID) {
		return chargehunt.LootReward{}, false
	}
	return m.issueLoot(stationID, at)
}

func (m *Machine) issueLoot(stationID string, at time.Time) (chargehunt.LootReward, bool) {
	if _, ok := m.vault.Find(stationID, m.gen.Epoch(at)); ok {
		return chargehunt.LootReward{}, false
	}
	r := m.gen.Generate(m.playerID, stationID, at)
	m.vault.Add(r)
	return r, true
}
