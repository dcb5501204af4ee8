// Package loot generates and tracks per-station loot rewards. At most one
// reward exists per (player, station, epoch).
package loot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

// namespace scopes loot IDs so that the same (player, station, epoch)
// always yields the same ID.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://chargehunt.playperu.dev/loot"))

type Tier struct {
	Rarity          chargehunt.Rarity `yaml:"rarity" json:"rarity"`
	Weight          int               `yaml:"weight" json:"weight"`
	ExperienceBonus int               `yaml:"experience_bonus" json:"experienceBonus"`
}

var DefaultTiers = []Tier{
	{chargehunt.RarityCommon, 60, 10},
	{chargehunt.RarityUncommon, 25, 25},
	{chargehunt.RarityRare, 10, 50},
	{chargehunt.RarityEpic, 4, 100},
	{chargehunt.RarityLegendary, 1, 250},
}

func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return errors.New("no rarity tiers")
	}
	for _, t := range tiers {
		if t.Weight <= 0 {
			return fmt.Errorf("tier %q has non-positive weight", t.Rarity)
		}
		if t.ExperienceBonus < 0 {
			return fmt.Errorf("tier %q has negative experience bonus", t.Rarity)
		}
	}
	return nil
}

// Generator rolls loot. Rolls are seeded from the loot ID, so regenerating
// the same reward always yields the same rarity.
type Generator struct {
	policy Policy
	tiers  []Tier
	total  int
}

func NewGenerator(policy Policy, tiers []Tier) *Generator {
	g := &Generator{policy: policy, tiers: tiers}
	for _, t := range tiers {
		g.total += t.Weight
	}
	return g
}

func (g *Generator) Epoch(at time.Time) int64 {
	return g.policy.EpochOf(at)
}

// ID returns the deterministic loot ID for a player, station and epoch.
func ID(playerID, stationID string, epoch int64) string {
	return lootUUID(playerID, stationID, epoch).String()
}

func lootUUID(playerID, stationID string, epoch int64) uuid.UUID {
	name := playerID + "\x00" + stationID + "\x00" + strconv.FormatInt(epoch, 10)
	return uuid.NewSHA1(namespace, []byte(name))
}

func (g *Generator) Generate(playerID, stationID string, at time.Time) chargehunt.LootReward {
	epoch := g.policy.EpochOf(at)
	id := lootUUID(playerID, stationID, epoch)
	tier := g.roll(id)
	return chargehunt.LootReward{
		ID:              id.String(),
		PlayerID:        playerID,
		StationID:       stationID,
		Epoch:           epoch,
		Rarity:          tier.Rarity,
		ExperienceBonus: tier.ExperienceBonus,
		IssuedAt:        at,
	}
}

func (g *Generator) roll(id uuid.UUID) Tier {
	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(id[:8]), binary.BigEndian.Uint64(id[8:])))
	n := rng.IntN(g.total)
	for _, t := range g.tiers {
		if n < t.Weight {
			return t
		}
		n -= t.Weight
	}
	return g.tiers[len(g.tiers)-1]
}

// Vault holds one player's rewards. Not safe for concurrent use.
type Vault struct {
	byID  map[string]chargehunt.LootReward
	byKey map[string]string
}

func NewVault(rewards ...chargehunt.LootReward) *Vault {
	v := &Vault{
		byID:  make(map[string]chargehunt.LootReward, len(rewards)),
		byKey: make(map[string]string, len(rewards)),
	}
	for _, r := range rewards {
		v.Add(r)
	}
	return v
}

func key(stationID string, epoch int64) string {
	return stationID + "@" + strconv.FormatInt(epoch, 10)
}

// Find returns the reward for a station in an epoch, if one was issued.
func (v *Vault) Find(stationID string, epoch int64) (chargehunt.LootReward, bool) {
	id, ok := v.byKey[key(stationID, epoch)]
	if !ok {
		return chargehunt.LootReward{}, false
	}
	return v.byID[id], true
}

func (v *Vault) Get(id string) (chargehunt.LootReward, bool) {
	r, ok := v.byID[id]
	return r, ok
}

// Add stores r unless a reward for its station and epoch already exists.
// It reports whether r was stored.
func (v *Vault) Add(r chargehunt.LootReward) bool {
	k := key(r.StationID, r.Epoch)
	if _, ok := v.byKey[k]; ok {
		return false
	}
	v.byKey[k] = r.ID
	v.byID[r.ID] = r
	return true
}

// Collect marks a reward collected. The second return value is true when
// it had already been collected.
func (v *Vault) Collect(id string) (chargehunt.LootReward, bool, error) {
	r, ok := v.byID[id]
	if !ok {
		return chargehunt.LootReward{}, false, fmt.Errorf("%w: %s", chargehunt.ErrUnknownLoot, id)
	}
	if r.Collected {
		return r, true, nil
	}
	r.Collected = true
	v.byID[id] = r
	return r, false, nil
}

// All returns every reward, oldest first.
func (v *Vault) All() []chargehunt.LootReward {
	out := make([]chargehunt.LootReward, 0, len(v.byID))
	for _, r := range v.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
