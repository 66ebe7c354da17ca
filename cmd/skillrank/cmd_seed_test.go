package main

import (
	"context"
	"strings"
	"testing"

	"github.com/felixgeelhaar/skillrank/internal/app"
	"github.com/felixgeelhaar/skillrank/internal/config"
)

const testSeed = `
materials:
  - id: m1
    topic: 미적분
    subject: math
    difficulty_label: 3
    attributes:
      grade: "3"
  - id: m2
    topic: 미적분
    subject: math
    difficulty_label: 5
    difficulty_rating: 1450
purchases:
  - user_id: u1
    material_id: m1
feedback:
  - user_id: u1
    topic: 미적분
    material_id: m2
    outcome: 1
    key: f1
  - user_id: u2
    topic: 기하
    difficulty_label: 2
    outcome: 0
`

func TestParseSeed(t *testing.T) {
	f, err := parseSeed([]byte(testSeed))
	if err != nil {
		t.Fatalf("parseSeed() error = %v", err)
	}
	if len(f.Materials) != 2 || len(f.Purchases) != 1 || len(f.Feedback) != 2 {
		t.Fatalf("parseSeed() = %d/%d/%d; want 2/1/2", len(f.Materials), len(f.Purchases), len(f.Feedback))
	}
	if f.Materials[0].Attributes["grade"] != "3" {
		t.Errorf("attributes = %v; want grade=3", f.Materials[0].Attributes)
	}
	if r := f.Materials[1].DifficultyRating; r == nil || *r != 1450 {
		t.Errorf("difficulty_rating = %v; want 1450", r)
	}
	if o := f.Feedback[1].Outcome; o == nil || *o != 0 {
		t.Errorf("outcome = %v; want explicit 0", o)
	}
}

func TestParseSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "materials: [", "parse seed file"},
		{"missing topic", "materials:\n  - id: m1\n", "id and topic are required"},
		{"duplicate id", "materials:\n  - {id: m1, topic: a}\n  - {id: m1, topic: b}\n", "duplicate id"},
		{"purchase without material", "purchases:\n  - user_id: u1\n", "user_id and material_id are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("parseSeed() error = %v; want containing %q", err, tt.want)
			}
		})
	}
}

func newMemoryApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Driver = "memory"
	core, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { core.Close() })
	return core
}

func TestSeedFile_Apply(t *testing.T) {
	ctx := context.Background()
	core := newMemoryApp(t)

	f, err := parseSeed([]byte(testSeed))
	if err != nil {
		t.Fatalf("parseSeed() error = %v", err)
	}

	stats, err := f.apply(ctx, core)
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if stats.Materials != 2 || stats.Purchases != 1 {
		t.Errorf("stats = %+v; want 2 materials, 1 purchase", stats)
	}
	// one purchase signal plus two feedback rows
	if stats.Applied != 3 || stats.Skipped != 0 {
		t.Errorf("stats = %+v; want 3 applied, 0 skipped", stats)
	}

	materials, err := core.Catalog.ListMaterials(ctx)
	if err != nil {
		t.Fatalf("ListMaterials() error = %v", err)
	}
	if len(materials) != 2 {
		t.Errorf("len(materials) = %d; want 2", len(materials))
	}

	purchases, err := core.Ledger.PurchasesByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("PurchasesByUser() error = %v", err)
	}
	if len(purchases) != 1 || purchases[0].DifficultyRating != 1000 {
		t.Errorf("purchases = %+v; want one at rating 1000", purchases)
	}

	u1, err := core.Store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get(u1) error = %v", err)
	}
	skill := u1.TopicSkills["미적분"]
	if skill.Attempts != 1 || skill.Correct != 1 {
		t.Errorf("u1 attempts/correct = %d/%d; want 1/1 (purchase is not an attempt)", skill.Attempts, skill.Correct)
	}
	if skill.Rating <= 1000 {
		t.Errorf("u1 rating = %.2f; want above cold start", skill.Rating)
	}

	u2, err := core.Store.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("Get(u2) error = %v", err)
	}
	if r := u2.TopicSkills["기하"].Rating; r >= 1000 {
		t.Errorf("u2 rating = %.2f; want below cold start after a miss", r)
	}

	again, err := f.apply(ctx, core)
	if err != nil {
		t.Fatalf("second apply() error = %v", err)
	}
	if again.Applied != 0 || again.Skipped != 3 {
		t.Errorf("second run stats = %+v; want 0 applied, 3 skipped", again)
	}

	purchases, err = core.Ledger.PurchasesByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("PurchasesByUser() error = %v", err)
	}
	if len(purchases) != 1 {
		t.Errorf("len(purchases) after second run = %d; want 1", len(purchases))
	}
}

func TestSeedFile_UnknownMaterial(t *testing.T) {
	core := newMemoryApp(t)

	f, err := parseSeed([]byte("purchases:\n  - {user_id: u1, material_id: missing}\n"))
	if err != nil {
		t.Fatalf("parseSeed() error = %v", err)
	}
	if _, err := f.apply(context.Background(), core); err == nil {
		t.Error("apply() should fail for a purchase of an unknown material")
	}
}

func TestRenderRatingBar(t *testing.T) {
	tests := []struct {
		r    float64
		want string
	}{
		{100, "[" + strings.Repeat("░", 10) + "]"},
		{2000, "[" + strings.Repeat("█", 10) + "]"},
		{1050, "[" + strings.Repeat("█", 5) + strings.Repeat("░", 5) + "]"},
		{5000, "[" + strings.Repeat("█", 10) + "]"},
	}
	for _, tt := range tests {
		if got := renderRatingBar(tt.r, 100, 2000, 10); got != tt.want {
			t.Errorf("renderRatingBar(%v) = %q; want %q", tt.r, got, tt.want)
		}
	}
}
