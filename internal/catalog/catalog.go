// Package catalog defines the read-only collaborators the recommendation
// core consumes: the material catalog and the purchase ledger.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Catalog reads material metadata
type Catalog interface {
	ListMaterials(ctx context.Context) ([]domain.Material, error)
	GetMaterial(ctx context.Context, id string) (*domain.Material, error)
}

// Ledger reads completed purchases
type Ledger interface {
	PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseSignal, error)
	PurchasesByUsers(ctx context.Context, userIDs []string) ([]domain.PurchaseSignal, error)
}

// Writer seeds materials and purchases. The recommendation core never
// writes through it.
type Writer interface {
	PutMaterial(ctx context.Context, m domain.Material) error
	RecordPurchase(ctx context.Context, p domain.PurchaseSignal) error
}

// Ensure Memory implements all collaborators
var (
	_ Catalog = (*Memory)(nil)
	_ Ledger  = (*Memory)(nil)
	_ Writer  = (*Memory)(nil)
)

// Memory is an in-process catalog and ledger used by tests, the CLI seed
// command and the memory storage driver.
type Memory struct {
	mu        sync.RWMutex
	materials map[string]domain.Material
	purchases map[string][]domain.PurchaseSignal
}

// NewMemory creates an empty catalog and ledger
func NewMemory() *Memory {
	return &Memory{
		materials: make(map[string]domain.Material),
		purchases: make(map[string][]domain.PurchaseSignal),
	}
}

// PutMaterial adds or replaces a material
func (m *Memory) PutMaterial(ctx context.Context, mat domain.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials[mat.ID] = mat
	return nil
}

// RecordPurchase appends a purchase to the ledger. A repeat of the same
// user, material and time is ignored.
func (m *Memory) RecordPurchase(ctx context.Context, p domain.PurchaseSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.purchases[p.UserID] {
		if existing.MaterialID == p.MaterialID && existing.PurchasedAt.Equal(p.PurchasedAt) {
			return nil
		}
	}
	m.purchases[p.UserID] = append(m.purchases[p.UserID], p)
	return nil
}

func (m *Memory) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Material, 0, len(m.materials))
	for _, mat := range m.materials {
		out = append(out, mat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mat, ok := m.materials[id]
	if !ok {
		return nil, fmt.Errorf("material %s: %w", id, domain.ErrNotFound)
	}
	return &mat, nil
}

func (m *Memory) PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.PurchaseSignal(nil), m.purchases[userID]...), nil
}

func (m *Memory) PurchasesByUsers(ctx context.Context, userIDs []string) ([]domain.PurchaseSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PurchaseSignal
	for _, id := range userIDs {
		out = append(out, m.purchases[id]...)
	}
	return out, nil
}
