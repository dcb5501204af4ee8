// Package chargehunt defines the core domain types and errors.
// It has no external dependencies.
package chargehunt

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotDiscoverable     = errors.New("station is not discoverable")
	ErrUnknownStation      = errors.New("unknown station")
	ErrUnknownLoot         = errors.New("unknown loot")
	ErrProviderUnavailable = errors.New("station provider unavailable")
	ErrPersistence         = errors.New("persistence failure")
	ErrInvalidPosition     = errors.New("invalid position")
)

// Position is a single raw GPS fix. Accuracy is in meters; zero means unknown.
type Position struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Validate rejects fixes the core must never see. It is called by
// location-source adapters, never by the pipeline itself.
func (p Position) Validate() error {
	switch {
	case math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude):
		return fmt.Errorf("%w: NaN coordinate", ErrInvalidPosition)
	case math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0):
		return fmt.Errorf("%w: infinite coordinate", ErrInvalidPosition)
	case p.Latitude < -90 || p.Latitude > 90:
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidPosition, p.Latitude)
	case p.Longitude < -180 || p.Longitude > 180:
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidPosition, p.Longitude)
	case math.IsNaN(p.Accuracy) || p.Accuracy < 0:
		return fmt.Errorf("%w: negative accuracy", ErrInvalidPosition)
	case p.CapturedAt.IsZero():
		return fmt.Errorf("%w: missing capture time", ErrInvalidPosition)
	}
	return nil
}

type Station struct {
	ExternalID  string            `json:"externalId"`
	Latitude    float64           `json:"lat"`
	Longitude   float64           `json:"lng"`
	DisplayName string            `json:"displayName"`
	Operator    string            `json:"operator"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type LifecycleState string

const (
	StateUndiscovered LifecycleState = "undiscovered"
	StateDiscoverable LifecycleState = "discoverable"
	StateClaimed      LifecycleState = "claimed"
)

// StationProgress is one player's lifecycle record for one station.
// ClaimedAt is set if and only if State is StateClaimed.
type StationProgress struct {
	StationID             string         `json:"stationId"`
	State                 LifecycleState `json:"state"`
	EnteredDiscoverableAt *time.Time     `json:"enteredDiscoverableAt,omitempty"`
	ClaimedAt             *time.Time     `json:"claimedAt,omitempty"`
}

// PlayerProgression is the persisted form of a player's ledger. Level is
// derived from TotalExperience on load and never trusted from storage.
type PlayerProgression struct {
	PlayerID          string   `json:"playerId"`
	TotalExperience   int      `json:"totalExperience"`
	Level             int      `json:"level"`
	ClaimedStationIDs []string `json:"claimedStationIds"`
}

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type LootReward struct {
	ID              string    `json:"id"`
	PlayerID        string    `json:"playerId"`
	StationID       string    `json:"stationId"`
	Epoch           int64     `json:"epoch"`
	Rarity          Rarity    `json:"rarity"`
	ExperienceBonus int       `json:"experienceBonus"`
	Collected       bool      `json:"collected"`
	IssuedAt        time.Time `json:"issuedAt"`
}

// EventType names a UI-facing notification.
type EventType string

const (
	EventStationDiscoverable EventType = "station_discoverable"
	EventStationLost         EventType = "station_lost"
	EventStationClaimed      EventType = "station_claimed"
	EventLevelUp             EventType = "level_up"
	EventLootCollected       EventType = "loot_collected"
)

// Event is emitted to the presentation layer.
type Event struct {
	Type      EventType   `json:"type"`
	PlayerID  string      `json:"playerId"`
	StationID string      `json:"stationId,omitempty"`
	Level     int         `json:"level,omitempty"`
	Reward    *LootReward `json:"reward,omitempty"`
	At        time.Time   `json:"at"`
}
