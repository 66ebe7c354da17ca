package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/skillrank/internal/catalog"
	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Ensure CatalogStore implements the catalog collaborators
var (
	_ catalog.Catalog = (*CatalogStore)(nil)
	_ catalog.Ledger  = (*CatalogStore)(nil)
	_ catalog.Writer  = (*CatalogStore)(nil)
)

// CatalogStore keeps materials and the purchase ledger in SQLite. The core
// only reads from it; writes come from the seed command.
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a new SQLite-backed catalog and ledger.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// PutMaterial inserts or replaces a material.
func (s *CatalogStore) PutMaterial(ctx context.Context, m domain.Material) error {
	var rating sql.NullFloat64
	if m.DifficultyRating != nil {
		rating = sql.NullFloat64{Float64: *m.DifficultyRating, Valid: true}
	}

	var attributes sql.NullString
	if len(m.Attributes) > 0 {
		data, err := json.Marshal(m.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}
		attributes = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials (id, topic, subject, difficulty_label, difficulty_rating, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic,
			subject=excluded.subject,
			difficulty_label=excluded.difficulty_label,
			difficulty_rating=excluded.difficulty_rating,
			attributes=excluded.attributes`,
		m.ID, m.Topic, m.Subject, m.DifficultyLabel, rating, attributes, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert material: %w", err)
	}
	return nil
}

// RecordPurchase appends a completed purchase. Recording the same user,
// material and time again is a no-op.
func (s *CatalogStore) RecordPurchase(ctx context.Context, p domain.PurchaseSignal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO purchases (user_id, material_id, topic, difficulty_rating, purchased_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.MaterialID, p.Topic, p.DifficultyRating, p.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// ListMaterials returns every material ordered by id.
func (s *CatalogStore) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, subject, difficulty_label, difficulty_rating, attributes, created_at
		FROM materials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var out []domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetMaterial returns one material by id.
func (s *CatalogStore) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, subject, difficulty_label, difficulty_rating, attributes, created_at
		FROM materials WHERE id = ?`, id)

	m, err := scanMaterial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("material %s: %w", id, domain.ErrNotFound)
	}
	return m, err
}

// PurchasesByUser returns a user's purchases, oldest first.
func (s *CatalogStore) PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseSignal, error) {
	return s.PurchasesByUsers(ctx, []string{userID})
}

// PurchasesByUsers returns purchases for any of the given users.
func (s *CatalogStore) PurchasesByUsers(ctx context.Context, userIDs []string) ([]domain.PurchaseSignal, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, material_id, topic, difficulty_rating, purchased_at
		FROM purchases WHERE user_id IN (`+placeholders+`)
		ORDER BY purchased_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var out []domain.PurchaseSignal
	for rows.Next() {
		var p domain.PurchaseSignal
		if err := rows.Scan(&p.UserID, &p.MaterialID, &p.Topic, &p.DifficultyRating, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row scanner) (*domain.Material, error) {
	var m domain.Material
	var rating sql.NullFloat64
	var attributes sql.NullString
	if err := row.Scan(&m.ID, &m.Topic, &m.Subject, &m.DifficultyLabel, &rating, &attributes, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan material: %w", err)
	}
	if rating.Valid {
		r := rating.Float64
		m.DifficultyRating = &r
	}
	if attributes.Valid {
		if err := json.Unmarshal([]byte(attributes.String), &m.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &m, nil
}
