// Package progression keeps a player's experience total and derives the
// level from it.
package progression

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

var ErrNegativeAward = errors.New("negative experience award")

// Threshold is the minimum experience needed for a level.
type Threshold struct {
	Level         int `yaml:"level" json:"level"`
	MinExperience int `yaml:"min_experience" json:"minExperience"`
}

// Table is an ascending list of thresholds starting at zero experience.
type Table []Threshold

// DefaultTable is used when no rules file overrides it.
var DefaultTable = Table{
	{1, 0},
	{2, 300},
	{3, 750},
	{4, 1500},
	{5, 2500},
	{6, 4000},
	{7, 6000},
	{8, 8500},
	{9, 11500},
	{10, 15000},
}

func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("level table is empty")
	}
	if t[0].MinExperience != 0 {
		return fmt.Errorf("first level requires %d experience, want 0", t[0].MinExperience)
	}
	for i := 1; i < len(t); i++ {
		if t[i].Level <= t[i-1].Level || t[i].MinExperience <= t[i-1].MinExperience {
			return fmt.Errorf("level table not strictly ascending at level %d", t[i].Level)
		}
	}
	return nil
}

// LevelFor returns the highest level whose threshold total reaches.
func (t Table) LevelFor(total int) int {
	i := sort.Search(len(t), func(i int) bool { return t[i].MinExperience > total })
	if i == 0 {
		return t[0].Level
	}
	return t[i-1].Level
}

// Award is the outcome of one experience award.
type Award struct {
	Amount    int  `json:"amount"`
	Total     int  `json:"total"`
	Level     int  `json:"level"`
	LeveledUp bool `json:"leveledUp"`
}

// Ledger does no deduplication: callers award at most once per genuine claim.
type Ledger struct {
	table    Table
	playerID string
	total    int
	level    int
	claimed  map[string]bool
}

// NewLedger restores a ledger from its persisted form. The stored level is
// ignored and recomputed from the total.
func NewLedger(table Table, p chargehunt.PlayerProgression) *Ledger {
	l := &Ledger{
		table:    table,
		playerID: p.PlayerID,
		total:    max(p.TotalExperience, 0),
		claimed:  make(map[string]bool, len(p.ClaimedStationIDs)),
	}
	l.level = table.LevelFor(l.total)
	for _, id := range p.ClaimedStationIDs {
		l.claimed[id] = true
	}
	return l
}

func (l *Ledger) AwardExperience(amount int) (Award, error) {
	if amount < 0 {
		return Award{}, fmt.Errorf("%w: %d", ErrNegativeAward, amount)
	}
	prev := l.level
	l.total += amount
	l.level = l.table.LevelFor(l.total)
	return Award{
		Amount:    amount,
		Total:     l.total,
		Level:     l.level,
		LeveledUp: l.level > prev,
	}, nil
}

// MarkClaimed records a station as claimed for this player.
func (l *Ledger) MarkClaimed(stationID string) {
	l.claimed[stationID] = true
}

func (l *Ledger) HasClaimed(stationID string) bool {
	return l.claimed[stationID]
}

func (l *Ledger) Total() int { return l.total }
func (l *Ledger) Level() int { return l.level }

// Progression returns the persisted form of the ledger.
func (l *Ledger) Progression() chargehunt.PlayerProgression {
	ids := make([]string, 0, len(l.claimed))
	for id := range l.claimed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return chargehunt.PlayerProgression{
		PlayerID:          l.playerID,
		TotalExperience:   l.total,
		Level:             l.level,
		ClaimedStationIDs: ids,
	}
}
