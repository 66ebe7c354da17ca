package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew_Drivers(t *testing.T) {
	tests := []struct {
		name   string
		driver string
	}{
		{"memory", "memory"},
		{"sqlite", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultLocalConfig()
			cfg.Storage.Driver = tt.driver
			cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "skillrank.db")

			ctx := context.Background()
			a, err := New(ctx, cfg, testLogger)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer a.Close()

			if err := a.Writer.PutMaterial(ctx, domain.Material{ID: "m1", Topic: "미적분", DifficultyLabel: 3}); err != nil {
				t.Fatalf("PutMaterial() error = %v", err)
			}

			res, err := a.Engine.Apply(ctx, domain.FeedbackEvent{
				UserID:         "u1",
				Topic:          "미적분",
				MaterialID:     "m1",
				MaterialRating: 1200,
				Signal:         domain.Correct(),
				IdempotencyKey: "k1",
			})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if res.Duplicate {
				t.Error("first apply should not be a duplicate")
			}

			ranking, err := a.Recommender.Recommend(ctx, "u1", 5)
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			if ranking.Len() != 1 {
				t.Errorf("ranking length = %d; want 1", ranking.Len())
			}
		})
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Driver = "cassandra"

	if _, err := New(context.Background(), cfg, testLogger); err == nil {
		t.Error("New() with unknown driver should fail")
	}
}

func TestClose_Idempotent(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Driver = "memory"

	a, err := New(context.Background(), cfg, testLogger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
