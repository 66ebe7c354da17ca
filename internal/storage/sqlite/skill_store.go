package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

// Ensure SkillStore implements skills.Store
var _ skills.Store = (*SkillStore)(nil)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SkillStore implements skill profile persistence backed by SQLite.
// Other processes may hold the same file open; a busy database or a stale
// version is retried against the fresh row.
type SkillStore struct {
	db        *DB
	coldStart float64
	now       func() time.Time
	retrier   retry.Retry[*domain.SkillProfile]
}

// NewSkillStore creates a new SQLite-backed skill store.
func NewSkillStore(db *DB, coldStart float64) *SkillStore {
	return &SkillStore{
		db:        db,
		coldStart: coldStart,
		now:       time.Now,
		retrier: retry.New[*domain.SkillProfile](retry.Config{
			MaxAttempts:   32,
			InitialDelay:  5 * time.Millisecond,
			MaxDelay:      200 * time.Millisecond,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		}),
	}
}

// isRetryable reports whether a failed update can be attempted again
func isRetryable(err error) bool {
	if errors.Is(err, domain.ErrVersionConflict) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// Get retrieves a profile, or a cold-start profile if none is stored.
func (s *SkillStore) Get(ctx context.Context, userID string) (*domain.SkillProfile, error) {
	p, err := loadProfile(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return domain.NewSkillProfile(userID, s.coldStart), nil
	}
	return p, nil
}

// ApplyUpdate reads, updates and writes one profile inside a transaction.
// The version column guards against writers outside this process. fn may
// run more than once when the transaction is retried.
func (s *SkillStore) ApplyUpdate(ctx context.Context, userID string, fn skills.UpdateFunc) (*domain.SkillProfile, error) {
	return s.retrier.Do(ctx, func(ctx context.Context) (*domain.SkillProfile, error) {
		return s.applyOnce(ctx, userID, fn)
	})
}

func (s *SkillStore) applyOnce(ctx context.Context, userID string, fn skills.UpdateFunc) (*domain.SkillProfile, error) {
	var result *domain.SkillProfile

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := loadProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		exists := current != nil
		if !exists {
			current = domain.NewSkillProfile(userID, s.coldStart)
		}

		update, err := fn(current.Clone())
		if err != nil {
			return err
		}

		now := s.now()
		current.Apply(update, now)

		if exists {
			res, err := tx.ExecContext(ctx, `
				UPDATE skill_profiles
				SET overall_rating = ?, total_attempts = ?, total_correct = ?,
					version = version + 1, updated_at = ?
				WHERE user_id = ? AND version = ?`,
				current.OverallRating, current.TotalAttempts, current.TotalCorrect,
				now, userID, current.Version,
			)
			if err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("profile %s: %w", userID, domain.ErrVersionConflict)
			}
		} else {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO skill_profiles (user_id, overall_rating, total_attempts,
					total_correct, version, created_at, updated_at)
				VALUES (?, ?, ?, ?, 1, ?, ?)`,
				userID, current.OverallRating, current.TotalAttempts,
				current.TotalCorrect, current.CreatedAt, now,
			)
			if err != nil {
				return fmt.Errorf("insert profile: %w", err)
			}
		}
		current.Version++

		skill := current.TopicSkills[update.Topic]
		var lastAttempted sql.NullTime
		if skill.LastAttemptedAt != nil {
			lastAttempted = sql.NullTime{Time: *skill.LastAttemptedAt, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO topic_skills (user_id, topic, rating, attempts, correct, last_attempted_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, topic) DO UPDATE SET
				rating=excluded.rating,
				attempts=excluded.attempts,
				correct=excluded.correct,
				last_attempted_at=excluded.last_attempted_at`,
			userID, update.Topic, skill.Rating, skill.Attempts, skill.Correct, lastAttempted,
		)
		if err != nil {
			return fmt.Errorf("upsert topic skill: %w", err)
		}

		seq := len(current.FeedbackHistory)
		entry := current.FeedbackHistory[seq-1]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feedback_history (id, user_id, idempotency_key, kind, topic,
				material_id, material_rating, outcome, expected, rating_before,
				rating_after, delta, recorded_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID.String(), userID, entry.IdempotencyKey, string(entry.Kind), entry.Topic,
			entry.MaterialID, entry.MaterialRating, entry.Outcome, entry.Expected, entry.RatingBefore,
			entry.RatingAfter, entry.Delta, entry.RecordedAt, seq,
		)
		if err != nil {
			return fmt.Errorf("insert feedback entry: %w", err)
		}

		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UsersInRange returns users whose overall rating lies in [lo, hi].
func (s *SkillStore) UsersInRange(ctx context.Context, lo, hi float64) ([]skills.RatedUser, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid range [%f, %f]: %w", lo, hi, domain.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, overall_rating FROM skill_profiles
		WHERE overall_rating BETWEEN ? AND ?
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

// loadProfile returns nil without error when the user has no stored profile.
func loadProfile(ctx context.Context, q querier, userID string) (*domain.SkillProfile, error) {
	p := &domain.SkillProfile{
		UserID:          userID,
		TopicSkills:     make(map[string]domain.TopicSkill),
		FeedbackHistory: []domain.FeedbackEntry{},
	}

	err := q.QueryRowContext(ctx, `
		SELECT overall_rating, total_attempts, total_correct, version, created_at, updated_at
		FROM skill_profiles WHERE user_id = ?`, userID,
	).Scan(&p.OverallRating, &p.TotalAttempts, &p.TotalCorrect, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	if err := loadTopicSkills(ctx, q, p); err != nil {
		return nil, err
	}
	if err := loadHistory(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func loadTopicSkills(ctx context.Context, q querier, p *domain.SkillProfile) error {
	rows, err := q.QueryContext(ctx, `
		SELECT topic, rating, attempts, correct, last_attempted_at
		FROM topic_skills WHERE user_id = ?`, p.UserID)
	if err != nil {
		return fmt.Errorf("query topic skills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var topic string
		var skill domain.TopicSkill
		var last sql.NullTime
		if err := rows.Scan(&topic, &skill.Rating, &skill.Attempts, &skill.Correct, &last); err != nil {
			return fmt.Errorf("scan topic skill: %w", err)
		}
		if last.Valid {
			at := last.Time
			skill.LastAttemptedAt = &at
		}
		p.TopicSkills[topic] = skill
	}
	return rows.Err()
}

func loadHistory(ctx context.Context, q querier, p *domain.SkillProfile) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, idempotency_key, kind, topic, material_id, material_rating,
			outcome, expected, rating_before, rating_after, delta, recorded_at
		FROM feedback_history WHERE user_id = ? ORDER BY seq`, p.UserID)
	if err != nil {
		return fmt.Errorf("query feedback history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.FeedbackEntry
		var id, kind string
		err := rows.Scan(&id, &e.IdempotencyKey, &kind, &e.Topic, &e.MaterialID, &e.MaterialRating,
			&e.Outcome, &e.Expected, &e.RatingBefore, &e.RatingAfter, &e.Delta, &e.RecordedAt)
		if err != nil {
			return fmt.Errorf("scan feedback entry: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return fmt.Errorf("parse feedback id %q: %w", id, err)
		}
		e.Kind = domain.FeedbackKind(kind)
		p.FeedbackHistory = append(p.FeedbackHistory, e)
	}
	return rows.Err()
}
