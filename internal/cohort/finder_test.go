package cohort

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

func seedStore(ratings map[string]float64) *skills.MemoryStore {
	store := skills.NewMemoryStore(1000)
	for id, r := range ratings {
		store.Put(domain.NewSkillProfile(id, r))
	}
	return store
}

func newFinder(store skills.Store) *Finder {
	return NewFinder(store, config.DefaultLocalConfig().Cohort, nil)
}

func TestFinder_SeededBand(t *testing.T) {
	store := seedStore(map[string]float64{
		"target": 1000,
		"u950":   950,
		"u1000":  1000,
		"u1050":  1050,
		"u980":   980,
		"u1020":  1020,
		"far":    1500,
	})

	c, err := newFinder(store).Find(context.Background(), "target", 100)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	want := []string{"u1000", "u1020", "u1050", "u950", "u980"}
	got := slices.Clone(c.Members)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("Members = %v; want %v", got, want)
	}
	if c.BandWidth != 100 {
		t.Errorf("BandWidth = %v; want 100 (no widening)", c.BandWidth)
	}
	if slices.Contains(c.Members, "target") {
		t.Error("cohort must exclude the target user")
	}
}

func TestFinder_Widening(t *testing.T) {
	store := seedStore(map[string]float64{
		"target": 1000,
		"u1350":  1350,
	})

	c, err := newFinder(store).Find(context.Background(), "target", 100)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if c.BandWidth != 400 {
		t.Errorf("BandWidth = %v; want widened to 400", c.BandWidth)
	}
	if len(c.Members) != 1 || c.Members[0] != "u1350" {
		t.Errorf("Members = %v; want [u1350]", c.Members)
	}
}

func TestFinder_NoCohort(t *testing.T) {
	store := seedStore(map[string]float64{
		"target": 1000,
		"far":    1900,
	})

	_, err := newFinder(store).Find(context.Background(), "target", 0)
	if !errors.Is(err, domain.ErrNoCohortAvailable) {
		t.Errorf("Find() error = %v; want ErrNoCohortAvailable", err)
	}
}

func TestFinder_ColdStartUser(t *testing.T) {
	store := seedStore(map[string]float64{"peer": 1040})

	c, err := newFinder(store).Find(context.Background(), "unknown", 0)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if c.Center != 1000 {
		t.Errorf("Center = %v; want cold start 1000", c.Center)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d; want 1", c.Size())
	}
}

func TestFinder_EmptyUser(t *testing.T) {
	_, err := newFinder(seedStore(nil)).Find(context.Background(), "", 100)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Find() error = %v; want ErrInvalidInput", err)
	}
}

func TestPopularity(t *testing.T) {
	members := []string{"a", "b", "c", "d"}
	purchases := []domain.PurchaseSignal{
		{UserID: "a", MaterialID: "m1"},
		{UserID: "a", MaterialID: "m1"}, // repeat buyer counts once
		{UserID: "b", MaterialID: "m1"},
		{UserID: "c", MaterialID: "m2"},
		{UserID: "outsider", MaterialID: "m3"},
	}

	pop := Popularity(members, purchases)

	if pop["m1"] != 0.5 {
		t.Errorf("pop[m1] = %v; want 0.5", pop["m1"])
	}
	if pop["m2"] != 0.25 {
		t.Errorf("pop[m2] = %v; want 0.25", pop["m2"])
	}
	if _, ok := pop["m3"]; ok {
		t.Error("purchases outside the cohort must be ignored")
	}
	if len(Popularity(nil, purchases)) != 0 {
		t.Error("empty cohort should have no popularity")
	}
}
