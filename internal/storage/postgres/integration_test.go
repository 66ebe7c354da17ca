//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/storage/postgres"
)

// setupPostgres starts a Postgres container and returns its DSN
func setupPostgres(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "skillrank",
				"POSTGRES_PASSWORD": "skillrank",
				"POSTGRES_DB":       "skillrank",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://skillrank:skillrank@%s:%s/skillrank?sslmode=disable", host, port.Port())

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return dsn, cleanup
}

func TestIntegration_SkillStore(t *testing.T) {
	dsn, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store := postgres.NewSkillStore(pool, 1000, nil)

	t.Run("cold start for unknown user", func(t *testing.T) {
		p, err := store.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if p.OverallRating != 1000 || p.Version != 0 {
			t.Errorf("Get() = rating %f version %d; want 1000 and 0", p.OverallRating, p.Version)
		}
	})

	t.Run("update persists topic and history", func(t *testing.T) {
		_, err := store.ApplyUpdate(ctx, "u1", func(cur *domain.SkillProfile) (domain.TopicUpdate, error) {
			return domain.TopicUpdate{
				Topic:     "미적분",
				NewRating: 1027.17,
				Counted:   true,
				Correct:   true,
				Entry: domain.FeedbackEntry{
					IdempotencyKey: "k1",
					Kind:           domain.FeedbackAttempt,
					Topic:          "미적분",
					MaterialRating: 1200,
					Outcome:        1,
					RatingBefore:   1000,
					RatingAfter:    1027.17,
					Delta:          27.17,
				},
			}, nil
		})
		if err != nil {
			t.Fatalf("ApplyUpdate() error = %v", err)
		}

		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.TopicSkills["미적분"].Rating != 1027.17 {
			t.Errorf("Rating = %f; want 1027.17", got.TopicSkills["미적분"].Rating)
		}
		if len(got.FeedbackHistory) != 1 || !got.HasFeedback("k1") {
			t.Errorf("FeedbackHistory = %+v; want one entry with key k1", got.FeedbackHistory)
		}
		if got.Version != 1 {
			t.Errorf("Version = %d; want 1", got.Version)
		}
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.ApplyUpdate(ctx, "u2", func(cur *domain.SkillProfile) (domain.TopicUpdate, error) {
					skill := cur.Skill("기하", 1000)
					return domain.TopicUpdate{
						Topic:     "기하",
						NewRating: skill.Rating + 1,
						Counted:   true,
						Entry: domain.FeedbackEntry{
							IdempotencyKey: fmt.Sprintf("c%d", i),
							Kind:           domain.FeedbackAttempt,
							Topic:          "기하",
						},
					}, nil
				})
				if err != nil {
					t.Errorf("ApplyUpdate() error = %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, err := store.Get(ctx, "u2")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if skill := got.TopicSkills["기하"]; skill.Attempts != 20 || skill.Rating != 1020 {
			t.Errorf("skill = %+v; want 20 attempts at 1020", skill)
		}
	})

	t.Run("users in range", func(t *testing.T) {
		users, err := store.UsersInRange(ctx, 1010, 1030)
		if err != nil {
			t.Fatalf("UsersInRange() error = %v", err)
		}
		if len(users) != 2 {
			t.Errorf("UsersInRange() = %+v; want u1 and u2", users)
		}
	})
}

func TestIntegration_CatalogStore(t *testing.T) {
	dsn, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	store, err := postgres.OpenCatalog(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenCatalog() error = %v", err)
	}
	defer store.Close()

	override := 1450.0
	m := domain.Material{
		ID:               "m1",
		Topic:            "미적분",
		Subject:          "수학",
		DifficultyLabel:  4,
		DifficultyRating: &override,
		Attributes:       map[string]string{"format": "pdf"},
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := store.PutMaterial(ctx, m); err != nil {
		t.Fatalf("PutMaterial() error = %v", err)
	}

	got, err := store.GetMaterial(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMaterial() error = %v", err)
	}
	if got.DifficultyRating == nil || *got.DifficultyRating != override {
		t.Errorf("DifficultyRating = %v; want %f", got.DifficultyRating, override)
	}
	if got.Attributes["format"] != "pdf" {
		t.Errorf("Attributes = %v; want format=pdf", got.Attributes)
	}

	if _, err := store.GetMaterial(ctx, "missing"); err == nil {
		t.Error("GetMaterial(missing) error = nil; want not found")
	}

	boughtAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, user := range []string{"a", "b", "c", "a"} {
		err := store.RecordPurchase(ctx, domain.PurchaseSignal{
			UserID: user, MaterialID: "m1", Topic: "미적분", DifficultyRating: 1450, PurchasedAt: boughtAt,
		})
		if err != nil {
			t.Fatalf("RecordPurchase() error = %v", err)
		}
	}

	purchases, err := store.PurchasesByUsers(ctx, []string{"a", "c"})
	if err != nil {
		t.Fatalf("PurchasesByUsers() error = %v", err)
	}
	if len(purchases) != 2 {
		t.Errorf("PurchasesByUsers() returned %d; want 2 (repeat purchase ignored)", len(purchases))
	}
}
