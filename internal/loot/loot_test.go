package loot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/playperu/chargehunt/internal/chargehunt"
)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	p, err := NewPolicy(PolicyCalendarWeek, 0, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	return NewGenerator(p, DefaultTiers)
}

func TestGenerateDeterministic(t *testing.T) {
	g := newGenerator(t)
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	a := g.Generate("p1", "SE_1", at)
	b := g.Generate("p1", "SE_1", at.Add(2*time.Hour))
	if a.ID != b.ID || a.Rarity != b.Rarity || a.ExperienceBonus != b.ExperienceBonus {
		t.Errorf("same epoch rolls differ: %+v vs %+v", a, b)
	}
	if a.ID != ID("p1", "SE_1", a.Epoch) {
		t.Error("Generate and ID disagree")
	}

	next := g.Generate("p1", "SE_1", at.Add(week))
	if next.ID == a.ID || next.Epoch != a.Epoch+1 {
		t.Errorf("next epoch reward = %+v", next)
	}
	other := g.Generate("p2", "SE_1", at)
	if other.ID == a.ID {
		t.Error("different players share a loot id")
	}
}

func TestGenerateRarityDistribution(t *testing.T) {
	g := newGenerator(t)
	at := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	counts := make(map[chargehunt.Rarity]int)
	for i := range 2000 {
		r := g.Generate("p1", fmt.Sprintf("SE_%d", i), at)
		counts[r.Rarity]++
		if r.Collected {
			t.Fatal("fresh reward already collected")
		}
	}
	if counts[chargehunt.RarityCommon] < counts[chargehunt.RarityRare] {
		t.Errorf("common (%d) rarer than rare (%d)", counts[chargehunt.RarityCommon], counts[chargehunt.RarityRare])
	}
	if counts[chargehunt.RarityCommon] == 2000 {
		t.Error("every roll was common")
	}
}

func TestValidateTiers(t *testing.T) {
	if err := ValidateTiers(DefaultTiers); err != nil {
		t.Errorf("default tiers invalid: %v", err)
	}
	if err := ValidateTiers(nil); err == nil {
		t.Error("empty tiers accepted")
	}
	if err := ValidateTiers([]Tier{{chargehunt.RarityCommon, 0, 10}}); err == nil {
		t.Error("zero weight accepted")
	}
}

func TestVault(t *testing.T) {
	g := newGenerator(t)
	at := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	r := g.Generate("p1", "SE_1", at)

	v := NewVault()
	if !v.Add(r) {
		t.Fatal("first add rejected")
	}
	if v.Add(g.Generate("p1", "SE_1", at.Add(time.Hour))) {
		t.Error("second reward for the same station and epoch stored")
	}
	if _, ok := v.Find("SE_1", r.Epoch); !ok {
		t.Error("Find missed stored reward")
	}
	if _, ok := v.Find("SE_1", r.Epoch+1); ok {
		t.Error("Find matched another epoch")
	}

	got, already, err := v.Collect(r.ID)
	if err != nil || already || !got.Collected {
		t.Fatalf("collect = %+v, %v, %v", got, already, err)
	}
	_, already, _ = v.Collect(r.ID)
	if !already {
		t.Error("second collect not flagged")
	}

	_, _, err = v.Collect("missing")
	if !errors.Is(err, chargehunt.ErrUnknownLoot) {
		t.Errorf("err = %v, want ErrUnknownLoot", err)
	}
}

func TestVaultAllOrdered(t *testing.T) {
	g := newGenerator(t)
	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	v := NewVault(
		g.Generate("p1", "SE_2", base.Add(time.Hour)),
		g.Generate("p1", "SE_1", base),
	)
	all := v.All()
	if len(all) != 2 || all[0].StationID != "SE_1" {
		t.Errorf("all = %+v, want SE_1 first", all)
	}
}
