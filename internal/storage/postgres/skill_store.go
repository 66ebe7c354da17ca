package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

// Ensure SkillStore implements skills.Store
var _ skills.Store = (*SkillStore)(nil)

// SkillStore implements skills.Store using PostgreSQL. Writers from any
// number of processes are linearized by the version column; a conflicting
// write is retried against the fresh row.
type SkillStore struct {
	pool      *pgxpool.Pool
	coldStart float64
	retrier   retry.Retry[*domain.SkillProfile]
	logger    *slog.Logger
}

// NewSkillStore creates a new PostgreSQL skill store
func NewSkillStore(pool *pgxpool.Pool, coldStart float64, logger *slog.Logger) *SkillStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SkillStore{
		pool:      pool,
		coldStart: coldStart,
		retrier: retry.New[*domain.SkillProfile](retry.Config{
			MaxAttempts:   32,
			InitialDelay:  5 * time.Millisecond,
			MaxDelay:      200 * time.Millisecond,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return errors.Is(err, domain.ErrVersionConflict)
			},
		}),
		logger: logger,
	}
}

// Get retrieves a profile, or a cold-start profile if none is stored
func (s *SkillStore) Get(ctx context.Context, userID string) (*domain.SkillProfile, error) {
	p, err := loadProfile(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return domain.NewSkillProfile(userID, s.coldStart), nil
	}
	return p, nil
}

// ApplyUpdate performs a version-checked read-modify-write, retrying on conflict
func (s *SkillStore) ApplyUpdate(ctx context.Context, userID string, fn skills.UpdateFunc) (*domain.SkillProfile, error) {
	return s.retrier.Do(ctx, func(ctx context.Context) (*domain.SkillProfile, error) {
		p, err := s.applyOnce(ctx, userID, fn)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Debug("version conflict, retrying", "user_id", userID)
		}
		return p, err
	})
}

func (s *SkillStore) applyOnce(ctx context.Context, userID string, fn skills.UpdateFunc) (*domain.SkillProfile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := loadProfile(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	exists := current != nil
	if !exists {
		current = domain.NewSkillProfile(userID, s.coldStart)
	}

	update, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	current.Apply(update, now)

	var tag pgconn.CommandTag
	if exists {
		tag, err = tx.Exec(ctx, `
			UPDATE skill_profiles
			SET overall_rating = $1, total_attempts = $2, total_correct = $3,
				version = version + 1, updated_at = $4
			WHERE user_id = $5 AND version = $6`,
			current.OverallRating, current.TotalAttempts, current.TotalCorrect,
			now, userID, current.Version,
		)
	} else {
		tag, err = tx.Exec(ctx, `
			INSERT INTO skill_profiles (user_id, overall_rating, total_attempts,
				total_correct, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $6)
			ON CONFLICT (user_id) DO NOTHING`,
			userID, current.OverallRating, current.TotalAttempts,
			current.TotalCorrect, current.CreatedAt, now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("write profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrVersionConflict)
	}
	current.Version++

	skill := current.TopicSkills[update.Topic]
	_, err = tx.Exec(ctx, `
		INSERT INTO topic_skills (user_id, topic, rating, attempts, correct, last_attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, topic) DO UPDATE SET
			rating = EXCLUDED.rating,
			attempts = EXCLUDED.attempts,
			correct = EXCLUDED.correct,
			last_attempted_at = EXCLUDED.last_attempted_at`,
		userID, update.Topic, skill.Rating, skill.Attempts, skill.Correct, skill.LastAttemptedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert topic skill: %w", err)
	}

	seq := len(current.FeedbackHistory)
	entry := current.FeedbackHistory[seq-1]
	_, err = tx.Exec(ctx, `
		INSERT INTO feedback_history (id, user_id, idempotency_key, kind, topic,
			material_id, material_rating, outcome, expected, rating_before,
			rating_after, delta, recorded_at, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, userID, entry.IdempotencyKey, string(entry.Kind), entry.Topic,
		entry.MaterialID, entry.MaterialRating, entry.Outcome, entry.Expected, entry.RatingBefore,
		entry.RatingAfter, entry.Delta, entry.RecordedAt, seq,
	)
	if err != nil {
		return nil, fmt.Errorf("insert feedback entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return current, nil
}

// UsersInRange returns users whose overall rating lies in [lo, hi]
func (s *SkillStore) UsersInRange(ctx context.Context, lo, hi float64) ([]skills.RatedUser, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid range [%f, %f]: %w", lo, hi, domain.ErrInvalidInput)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, overall_rating FROM skill_profiles
		WHERE overall_rating BETWEEN $1 AND $2
		ORDER BY user_id`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query users in range: %w", err)
	}
	defer rows.Close()

	var users []skills.RatedUser
	for rows.Next() {
		var u skills.RatedUser
		if err := rows.Scan(&u.UserID, &u.OverallRating); err != nil {
			return nil, fmt.Errorf("scan rated user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadProfile returns nil without error when the user has no stored profile
func loadProfile(ctx context.Context, q queryer, userID string) (*domain.SkillProfile, error) {
	p := &domain.SkillProfile{
		UserID:          userID,
		TopicSkills:     make(map[string]domain.TopicSkill),
		FeedbackHistory: []domain.FeedbackEntry{},
	}

	err := q.QueryRow(ctx, `
		SELECT overall_rating, total_attempts, total_correct, version, created_at, updated_at
		FROM skill_profiles WHERE user_id = $1`, userID,
	).Scan(&p.OverallRating, &p.TotalAttempts, &p.TotalCorrect, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT topic, rating, attempts, correct, last_attempted_at
		FROM topic_skills WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query topic skills: %w", err)
	}
	for rows.Next() {
		var topic string
		var skill domain.TopicSkill
		if err := rows.Scan(&topic, &skill.Rating, &skill.Attempts, &skill.Correct, &skill.LastAttemptedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan topic skill: %w", err)
		}
		p.TopicSkills[topic] = skill
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read topic skills: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, idempotency_key, kind, topic, material_id, material_rating,
			outcome, expected, rating_before, rating_after, delta, recorded_at
		FROM feedback_history WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("query feedback history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.FeedbackEntry
		var kind string
		err := rows.Scan(&e.ID, &e.IdempotencyKey, &kind, &e.Topic, &e.MaterialID, &e.MaterialRating,
			&e.Outcome, &e.Expected, &e.RatingBefore, &e.RatingAfter, &e.Delta, &e.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("scan feedback entry: %w", err)
		}
		e.Kind = domain.FeedbackKind(kind)
		p.FeedbackHistory = append(p.FeedbackHistory, e)
	}
	return p, rows.Err()
}
