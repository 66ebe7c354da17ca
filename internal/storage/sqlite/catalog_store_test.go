package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/domain"
)

func TestCatalogStore_Materials(t *testing.T) {
	store := NewCatalogStore(openTestDB(t))
	ctx := context.Background()
	override := 1750.0
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	if err := store.PutMaterial(ctx, domain.Material{ID: "m1", Topic: "미적분", Subject: "수학", DifficultyLabel: 4, Attributes: map[string]string{"grade": "고3"}, CreatedAt: created}); err != nil {
		t.Fatalf("PutMaterial() error = %v", err)
	}
	if err := store.PutMaterial(ctx, domain.Material{ID: "m2", Topic: "기하", DifficultyLabel: 2, DifficultyRating: &override, CreatedAt: created}); err != nil {
		t.Fatalf("PutMaterial() error = %v", err)
	}

	list, err := store.ListMaterials(ctx)
	if err != nil {
		t.Fatalf("ListMaterials() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListMaterials() = %d; want 2", len(list))
	}
	if list[0].HasOverride() {
		t.Error("m1 should have no override")
	}
	if !list[1].HasOverride() || *list[1].DifficultyRating != 1750 {
		t.Errorf("m2 override = %v; want 1750", list[1].DifficultyRating)
	}
	if !list[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v; want %v", list[0].CreatedAt, created)
	}

	got, err := store.GetMaterial(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMaterial() error = %v", err)
	}
	if got.Subject != "수학" {
		t.Errorf("Subject = %q; want 수학", got.Subject)
	}
	if got.Attributes["grade"] != "고3" {
		t.Errorf("Attributes = %v; want grade=고3", got.Attributes)
	}

	if _, err := store.GetMaterial(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetMaterial(missing) error = %v; want ErrNotFound", err)
	}
}

func TestCatalogStore_Purchases(t *testing.T) {
	store := NewCatalogStore(openTestDB(t))
	ctx := context.Background()
	now := time.Now()

	purchases := []domain.PurchaseSignal{
		{UserID: "a", MaterialID: "m1", Topic: "t", DifficultyRating: 1000, PurchasedAt: now},
		{UserID: "a", MaterialID: "m2", Topic: "t", DifficultyRating: 1300, PurchasedAt: now.Add(time.Minute)},
		{UserID: "b", MaterialID: "m1", Topic: "t", DifficultyRating: 1000, PurchasedAt: now},
	}
	for _, p := range purchases {
		if err := store.RecordPurchase(ctx, p); err != nil {
			t.Fatalf("RecordPurchase() error = %v", err)
		}
	}

	own, err := store.PurchasesByUser(ctx, "a")
	if err != nil {
		t.Fatalf("PurchasesByUser() error = %v", err)
	}
	if len(own) != 2 || own[0].MaterialID != "m1" {
		t.Errorf("PurchasesByUser(a) = %v", own)
	}

	all, err := store.PurchasesByUsers(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("PurchasesByUsers() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("PurchasesByUsers() = %d; want 3", len(all))
	}

	none, err := store.PurchasesByUsers(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("PurchasesByUsers(nil) = %v, %v; want empty", none, err)
	}
}

func TestCatalogStore_RecordPurchaseIsIdempotent(t *testing.T) {
	store := NewCatalogStore(openTestDB(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := domain.PurchaseSignal{UserID: "a", MaterialID: "m1", Topic: "t", DifficultyRating: 1000, PurchasedAt: at}
	for i := 0; i < 3; i++ {
		if err := store.RecordPurchase(ctx, p); err != nil {
			t.Fatalf("RecordPurchase() run %d error = %v", i, err)
		}
	}

	// A later purchase of the same material is a separate ledger row
	p.PurchasedAt = at.Add(24 * time.Hour)
	if err := store.RecordPurchase(ctx, p); err != nil {
		t.Fatalf("RecordPurchase() error = %v", err)
	}

	own, err := store.PurchasesByUser(ctx, "a")
	if err != nil {
		t.Fatalf("PurchasesByUser() error = %v", err)
	}
	if len(own) != 2 {
		t.Errorf("len(PurchasesByUser(a)) = %d; want 2", len(own))
	}
}
