package loot

import (
	"fmt"
	"time"
)

// Policy maps instants to reward epochs. Epochs are half-open intervals
// [start, end): an instant exactly on a boundary belongs to the later epoch.
type Policy interface {
	EpochOf(t time.Time) int64
	Bounds(epoch int64) (start, end time.Time)
}

const (
	PolicyCalendarWeek = "calendar_week"
	PolicyRolling      = "rolling"
)

const week = 7 * 24 * time.Hour

// firstMonday is the first Monday 00:00 UTC after the Unix epoch.
var firstMonday = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)

// NewPolicy builds the named policy. length and anchor are only used by the
// rolling policy; a zero anchor means the Unix epoch.
func NewPolicy(kind string, length time.Duration, anchor time.Time) (Policy, error) {
	switch kind {
	case PolicyCalendarWeek, "":
		return periodic{anchor: firstMonday, length: week}, nil
	case PolicyRolling:
		if length <= 0 {
			return nil, fmt.Errorf("rolling epoch length must be positive, got %s", length)
		}
		if anchor.IsZero() {
			anchor = time.Unix(0, 0).UTC()
		}
		return periodic{anchor: anchor.UTC(), length: length}, nil
	default:
		return nil, fmt.Errorf("unknown epoch policy %q", kind)
	}
}

// periodic covers both policies: ISO calendar weeks are the periodic policy
// anchored on a Monday with a one week length.
type periodic struct {
	anchor time.Time
	length time.Duration
}

func (p periodic) EpochOf(t time.Time) int64 {
	d := t.Sub(p.anchor)
	n := int64(d / p.length)
	if d%p.length < 0 {
		n--
	}
	return n
}

func (p periodic) Bounds(epoch int64) (time.Time, time.Time) {
	start := p.anchor.Add(time.Duration(epoch) * p.length)
	return start, start.Add(p.length)
}
