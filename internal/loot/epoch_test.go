package loot

import (
	"testing"
	"time"
)

func TestCalendarWeek(t *testing.T) {
	p, err := NewPolicy(PolicyCalendarWeek, 0, time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b time.Time
		same bool
	}{
		{"monday morning and sunday night", monday.Add(time.Hour), monday.Add(6*24*time.Hour + 23*time.Hour), true},
		{"sunday last second and monday midnight", monday.Add(-time.Second), monday, false},
		{"one week apart", monday, monday.Add(week), false},
		{"non-UTC zone", monday.In(time.FixedZone("CEST", 2*3600)), monday.Add(time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.EpochOf(tt.a) == p.EpochOf(tt.b); got != tt.same {
				t.Errorf("same epoch = %v, want %v", got, tt.same)
			}
		})
	}

	start, end := p.Bounds(p.EpochOf(monday.Add(3 * 24 * time.Hour)))
	if !start.Equal(monday) || !end.Equal(monday.Add(week)) {
		t.Errorf("bounds = [%s, %s), want [%s, %s)", start, end, monday, monday.Add(week))
	}
	if start.Weekday() != time.Monday {
		t.Errorf("epoch starts on %s", start.Weekday())
	}
}

func TestBoundaryBelongsToNewEpoch(t *testing.T) {
	p, _ := NewPolicy(PolicyCalendarWeek, 0, time.Time{})
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

	before := p.EpochOf(monday.Add(-time.Nanosecond))
	at := p.EpochOf(monday)
	if at != before+1 {
		t.Errorf("epoch at boundary = %d, want %d", at, before+1)
	}
}

func TestRolling(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p, err := NewPolicy(PolicyRolling, 72*time.Hour, anchor)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		at   time.Time
		want int64
	}{
		{anchor, 0},
		{anchor.Add(71 * time.Hour), 0},
		{anchor.Add(72 * time.Hour), 1},
		{anchor.Add(-time.Second), -1},
		{anchor.Add(-72 * time.Hour), -1},
		{anchor.Add(-72*time.Hour - time.Second), -2},
	}
	for _, tt := range tests {
		if got := p.EpochOf(tt.at); got != tt.want {
			t.Errorf("EpochOf(%s) = %d, want %d", tt.at, got, tt.want)
		}
	}
}

func TestNewPolicyErrors(t *testing.T) {
	if _, err := NewPolicy(PolicyRolling, 0, time.Time{}); err == nil {
		t.Error("rolling policy with zero length accepted")
	}
	if _, err := NewPolicy("fortnightly", week, time.Time{}); err == nil {
		t.Error("unknown policy accepted")
	}
}
