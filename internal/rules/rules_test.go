package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/playperu/chargehunt/internal/discovery"
	"github.com/playperu/chargehunt/internal/loot"
	"github.com/playperu/chargehunt/internal/progression"
	"github.com/playperu/chargehunt/internal/proximity"
	"github.com/playperu/chargehunt/internal/sampling"
)

func TestDefaultMatchesPackageDefaults(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	if r.ActivationRadius != proximity.DefaultRadius {
		t.Errorf("activation radius = %f, want %f", r.ActivationRadius, proximity.DefaultRadius)
	}
	if r.ClaimExperience != discovery.DefaultClaimExperience {
		t.Errorf("claim experience = %d, want %d", r.ClaimExperience, discovery.DefaultClaimExperience)
	}
	if len(r.Levels) != len(progression.DefaultTable) {
		t.Fatalf("levels = %d, want %d", len(r.Levels), len(progression.DefaultTable))
	}
	for i := range r.Levels {
		if r.Levels[i] != progression.DefaultTable[i] {
			t.Errorf("level %d = %+v, want %+v", i, r.Levels[i], progression.DefaultTable[i])
		}
	}
	for i := range r.Rarity {
		if r.Rarity[i] != loot.DefaultTiers[i] {
			t.Errorf("rarity %d = %+v, want %+v", i, r.Rarity[i], loot.DefaultTiers[i])
		}
	}
	if r.Sampling != sampling.DefaultConfig() {
		t.Errorf("sampling = %+v, want %+v", r.Sampling, sampling.DefaultConfig())
	}
	if r.Epoch.Policy != loot.PolicyCalendarWeek {
		t.Errorf("epoch policy = %q", r.Epoch.Policy)
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	override := `
activation_radius_m: 40
epoch:
  policy: rolling
  length: 72h
  anchor: 2026-01-01T00:00:00Z
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.ActivationRadius != 40 {
		t.Errorf("activation radius = %f, want 40", r.ActivationRadius)
	}
	if r.ClaimExperience != 100 {
		t.Errorf("claim experience = %d, want default 100", r.ClaimExperience)
	}
	if r.Epoch.Length != 72*time.Hour {
		t.Errorf("epoch length = %s", r.Epoch.Length)
	}

	p, err := r.Policy()
	if err != nil {
		t.Fatal(err)
	}
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := p.EpochOf(anchor.Add(73 * time.Hour)); got != 1 {
		t.Errorf("epoch = %d, want 1", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative radius", "activation_radius_m: -1"},
		{"bad levels", "levels:\n  - { level: 1, min_experience: 5 }"},
		{"unknown policy", "epoch:\n  policy: lunar"},
		{"malformed", "levels: [oops"},
		{"stationary after zero", "sampling:\n  stationary_after: 0"},
		{"zero moving poll", "sampling:\n  moving_poll: 0s"},
		{"zero min movement", "sampling:\n  min_movement_m: 0"},
		{"negative rate cap", "sampling:\n  stationary_min_interval: -5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded for a missing file")
	}
}
