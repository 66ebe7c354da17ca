package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/skillrank/internal/catalog"
	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Ensure CatalogStore implements the catalog collaborators
var (
	_ catalog.Catalog = (*CatalogStore)(nil)
	_ catalog.Ledger  = (*CatalogStore)(nil)
	_ catalog.Writer  = (*CatalogStore)(nil)
)

// CatalogStore reads materials and purchases through database/sql with the
// lib/pq driver. The catalog is typically owned by another service and shared
// read-only, so it does not go through the pgx pool.
type CatalogStore struct {
	db *sql.DB
}

// OpenCatalog opens a database/sql handle for the catalog tables.
func OpenCatalog(ctx context.Context, dsn string) (*CatalogStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	return NewCatalogStore(db), nil
}

// NewCatalogStore wraps an existing handle.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// Close releases the underlying handle.
func (s *CatalogStore) Close() error {
	return s.db.Close()
}

// PutMaterial inserts or replaces a material.
func (s *CatalogStore) PutMaterial(ctx context.Context, m domain.Material) error {
	var rating sql.NullFloat64
	if m.DifficultyRating != nil {
		rating = sql.NullFloat64{Float64: *m.DifficultyRating, Valid: true}
	}

	var attributes pqtype.NullRawMessage
	if len(m.Attributes) > 0 {
		data, err := json.Marshal(m.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}
		attributes = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials (id, topic, subject, difficulty_label, difficulty_rating, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			topic = EXCLUDED.topic,
			subject = EXCLUDED.subject,
			difficulty_label = EXCLUDED.difficulty_label,
			difficulty_rating = EXCLUDED.difficulty_rating,
			attributes = EXCLUDED.attributes`,
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
		INSERT INTO purchases (user_id, material_id, topic, difficulty_rating, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, material_id, purchased_at) DO NOTHING`,
		p.UserID, p.MaterialID, p.Topic, p.DifficultyRating, p.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

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

func (s *CatalogStore) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, subject, difficulty_label, difficulty_rating, attributes, created_at
		FROM materials WHERE id = $1`, id)

	m, err := scanMaterial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("material %s: %w", id, domain.ErrNotFound)
	}
	return m, err
}

func (s *CatalogStore) PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseSignal, error) {
	return s.PurchasesByUsers(ctx, []string{userID})
}

func (s *CatalogStore) PurchasesByUsers(ctx context.Context, userIDs []string) ([]domain.PurchaseSignal, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, material_id, topic, difficulty_rating, purchased_at
		FROM purchases WHERE user_id = ANY($1)
		ORDER BY purchased_at, id`, pq.Array(userIDs))
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
	var attributes pqtype.NullRawMessage
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
		if err := json.Unmarshal(attributes.RawMessage, &m.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &m, nil
}
