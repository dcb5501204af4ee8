// Package sampling decides which raw GPS fixes are worth acting on and how
// often the location source should poll next.
package sampling

import (
	"errors"
	"math"
	"time"

	"github.com/playperu/chargehunt/internal/chargehunt"
	"github.com/playperu/chargehunt/internal/geomath"
)

type Mode int

const (
	ModeMoving Mode = iota
	ModeStationary
)

func (m Mode) String() string {
	if m == ModeStationary {
		return "stationary"
	}
	return "moving"
}

// Config holds the filter tuning. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	MinMovement        float64       `yaml:"min_movement_m"`          // floor of the noise threshold
	AccuracyFactor     float64       `yaml:"accuracy_factor"`         // share of reported accuracy treated as noise
	WakeDistance       float64       `yaml:"wake_distance_m"`         // movement that ends stationary mode
	StationaryAfter    int           `yaml:"stationary_after"`        // consecutive noise fixes before going stationary
	MovingMinInterval  time.Duration `yaml:"moving_min_interval"`     // rate cap while moving
	StationaryInterval time.Duration `yaml:"stationary_min_interval"` // rate cap while stationary
	MovingPoll         time.Duration `yaml:"moving_poll"`
	StationaryPoll     time.Duration `yaml:"stationary_poll"`
}

func DefaultConfig() Config {
	return Config{
		MinMovement:        1,
		AccuracyFactor:     0.5,
		WakeDistance:       10,
		StationaryAfter:    3,
		MovingMinInterval:  5 * time.Second,
		StationaryInterval: 15 * time.Second,
		MovingPoll:         10 * time.Second,
		StationaryPoll:     30 * time.Second,
	}
}

// Validate rejects tunings that would never accept movement or would
// advise polling without a delay.
func (c Config) Validate() error {
	switch {
	case c.MinMovement <= 0:
		return errors.New("sampling: min_movement_m must be positive")
	case c.AccuracyFactor < 0:
		return errors.New("sampling: accuracy_factor must not be negative")
	case c.WakeDistance <= 0:
		return errors.New("sampling: wake_distance_m must be positive")
	case c.StationaryAfter <= 0:
		return errors.New("sampling: stationary_after must be positive")
	case c.MovingMinInterval <= 0, c.StationaryInterval <= 0:
		return errors.New("sampling: minimum intervals must be positive")
	case c.MovingPoll <= 0, c.StationaryPoll <= 0:
		return errors.New("sampling: poll intervals must be positive")
	}
	return nil
}

// Filter is not safe for concurrent use; one position stream feeds it.
type Filter struct {
	cfg Config

	mode       Mode
	last       chargehunt.Position
	hasLast    bool
	smallMoves int
}

func NewFilter(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

func (f *Filter) Mode() Mode { return f.mode }

// Last returns the most recently accepted fix.
func (f *Filter) Last() (chargehunt.Position, bool) {
	return f.last, f.hasLast
}

// Accept reports whether raw should be acted on and the advisory interval,
// in milliseconds, before the next poll.
func (f *Filter) Accept(raw chargehunt.Position) (bool, int) {
	if !f.hasLast {
		f.accept(raw)
		return true, f.pollMs()
	}

	dist := geomath.Distance(f.last.Latitude, f.last.Longitude, raw.Latitude, raw.Longitude)

	woke := f.mode == ModeStationary && dist >= f.cfg.WakeDistance
	if woke {
		f.mode = ModeMoving
		f.smallMoves = 0
	}

	// Rate cap applies regardless of distance and does not count as noise.
	if raw.CapturedAt.Sub(f.last.CapturedAt) < f.minInterval() {
		return false, f.pollMs()
	}

	// A wake move is accepted even when poor accuracy would make it noise
	// under the moving threshold.
	if woke {
		f.accept(raw)
		return true, f.pollMs()
	}

	if geomath.ClassifyMovement(dist, f.threshold(raw)) == geomath.MovementNoise {
		f.smallMoves++
		if f.smallMoves >= f.cfg.StationaryAfter {
			f.mode = ModeStationary
		}
		return false, f.pollMs()
	}

	f.accept(raw)
	return true, f.pollMs()
}

func (f *Filter) accept(raw chargehunt.Position) {
	f.last = raw
	f.hasLast = true
	f.smallMoves = 0
}

func (f *Filter) threshold(raw chargehunt.Position) float64 {
	t := math.Max(f.cfg.MinMovement, f.cfg.AccuracyFactor*raw.Accuracy)
	if f.mode == ModeStationary {
		t = math.Max(t, f.cfg.WakeDistance)
	}
	return t
}

func (f *Filter) minInterval() time.Duration {
	if f.mode == ModeStationary {
		return f.cfg.StationaryInterval
	}
	return f.cfg.MovingMinInterval
}

func (f *Filter) pollMs() int {
	if f.mode == ModeStationary {
		return int(f.cfg.StationaryPoll.Milliseconds())
	}
	return int(f.cfg.MovingPoll.Milliseconds())
}
