package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

const (
	bucketStations    = "stations"
	bucketProgression = "progression"
)

func progressBucket(playerID string) string { return "progress/" + playerID }
func lootBucket(playerID string) string     { return "loot/" + playerID }

// PlayerState is everything persisted for one player.
type PlayerState struct {
	Progression chargehunt.PlayerProgression
	Progress    []chargehunt.StationProgress
	Loot        []chargehunt.LootReward
}

// Repository maps domain records onto a KV backend. Every write failure
// wraps chargehunt.ErrPersistence.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

func (r *Repository) LoadStations(ctx context.Context) ([]chargehunt.Station, error) {
	return list[chargehunt.Station](ctx, r.kv, bucketStations)
}

func (r *Repository) SaveStations(ctx context.Context, stations []chargehunt.Station) error {
	for _, s := range stations {
		if err := put(ctx, r.kv, bucketStations, s.ExternalID, s); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlayer returns the stored state for a player. A player with nothing
// stored gets a zero progression: no experience, level derived later, no
// claims, no progress and no loot.
func (r *Repository) LoadPlayer(ctx context.Context, playerID string) (PlayerState, error) {
	st := PlayerState{Progression: chargehunt.PlayerProgression{PlayerID: playerID}}

	data, err := r.kv.Get(ctx, bucketProgression, playerID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return st, fmt.Errorf("loading progression for %s: %w", playerID, err)
	default:
		if err := json.Unmarshal(data, &st.Progression); err != nil {
			return st, fmt.Errorf("decoding progression for %s: %w", playerID, err)
		}
	}

	if st.Progress, err = list[chargehunt.StationProgress](ctx, r.kv, progressBucket(playerID)); err != nil {
		return st, err
	}
	if st.Loot, err = list[chargehunt.LootReward](ctx, r.kv, lootBucket(playerID)); err != nil {
		return st, err
	}
	return st, nil
}

func (r *Repository) SaveProgress(ctx context.Context, playerID string, p chargehunt.StationProgress) error {
	return put(ctx, r.kv, progressBucket(playerID), p.StationID, p)
}

func (r *Repository) SaveProgression(ctx context.Context, p chargehunt.PlayerProgression) error {
	return put(ctx, r.kv, bucketProgression, p.PlayerID, p)
}

func (r *Repository) SaveLoot(ctx context.Context, l chargehunt.LootReward) error {
	return put(ctx, r.kv, lootBucket(l.PlayerID), l.ID, l)
}

func put(ctx context.Context, kv KV, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s/%s: %w", chargehunt.ErrPersistence, bucket, key, err)
	}
	if err := kv.Put(ctx, bucket, key, data); err != nil {
		return fmt.Errorf("%w: %w", chargehunt.ErrPersistence, err)
	}
	return nil
}

func list[T any](ctx context.Context, kv KV, bucket string) ([]T, error) {
	raw, err := kv.List(ctx, bucket)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", bucket, err)
		}
		out = append(out, v)
	}
	return out, nil
}
