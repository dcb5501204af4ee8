// Package rules loads the tunable game rules: activation radius, claim
// experience, level thresholds, loot rarity and the reward epoch policy.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/playperu/chargehunt/internal/loot"
	"github.com/playperu/chargehunt/internal/progression"
	"github.com/playperu/chargehunt/internal/sampling"
)

//go:embed rules.yaml
var defaults []byte

type Epoch struct {
	Policy string        `yaml:"policy"`
	Length time.Duration `yaml:"length"`
	Anchor time.Time     `yaml:"anchor"`
}

type Rules struct {
	ActivationRadius float64           `yaml:"activation_radius_m"`
	ClaimExperience  int               `yaml:"claim_experience"`
	Epoch            Epoch             `yaml:"epoch"`
	Levels           progression.Table `yaml:"levels"`
	Rarity           []loot.Tier       `yaml:"rarity"`
	Sampling         sampling.Config   `yaml:"sampling"`
}

// Default returns the embedded rules.
func Default() (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(defaults, &r); err != nil {
		return nil, fmt.Errorf("parsing default rules: %w", err)
	}
	return &r, r.Validate()
}

// Load returns the embedded rules overridden by the YAML file at path.
// An empty path yields the defaults.
func Load(path string) (*Rules, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return r, nil
}

func (r *Rules) Validate() error {
	if r.ActivationRadius <= 0 {
		return errors.New("activation radius must be positive")
	}
	if r.ClaimExperience < 0 {
		return errors.New("claim experience must not be negative")
	}
	if err := r.Levels.Validate(); err != nil {
		return err
	}
	if err := loot.ValidateTiers(r.Rarity); err != nil {
		return err
	}
	if _, err := r.Policy(); err != nil {
		return err
	}
	return r.Sampling.Validate()
}

func (r *Rules) Policy() (loot.Policy, error) {
	return loot.NewPolicy(r.Epoch.Policy, r.Epoch.Length, r.Epoch.Anchor)
}

// Generator builds the loot generator for these rules.
func (r *Rules) Generator() (*loot.Generator, error) {
	p, err := r.Policy()
	if err != nil {
		return nil, err
	}
	return loot.NewGenerator(p, r.Rarity), nil
}
