// Package rating applies bounded Elo-style updates to per-topic skill ratings.
package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/metrics"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

// Result describes the outcome of one feedback event
type Result struct {
	Profile   *domain.SkillProfile `json:"profile"`
	Entry     domain.FeedbackEntry `json:"entry"`
	Duplicate bool                 `json:"duplicate"`
}

// Engine converts feedback events into new topic ratings and writes them
// through the skill store.
type Engine struct {
	store  skills.Store
	cfg    config.RatingConfig
	logger *slog.Logger
}

// NewEngine creates a rating engine
func NewEngine(store skills.Store, cfg config.RatingConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// Expected returns the Elo expected score of a user rated ru against a
// material rated rm.
func Expected(ru, rm, scale float64) float64 {
	return 1 / (1 + math.Pow(10, (rm-ru)/scale))
}

// StepSize returns K0 / sqrt(1 + attempts/decay)
func StepSize(k0 float64, attempts int, decay float64) float64 {
	return k0 / math.Sqrt(1+float64(attempts)/decay)
}

// Clamp bounds r to [lo, hi]
func Clamp(r, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, r))
}

// Apply validates and applies one feedback event. Replayed idempotency keys
// succeed without mutation and report Duplicate.
func (e *Engine) Apply(ctx context.Context, ev domain.FeedbackEvent) (*Result, error) {
	outcome, err := e.validate(ev)
	if err != nil {
		kind := "unknown"
		if ev.Signal != nil {
			kind = string(ev.Signal.Kind())
		}
		metrics.RecordFeedback(kind, "rejected", 0)
		return nil, err
	}

	kind := ev.Signal.Kind()

	var entry domain.FeedbackEntry
	profile, err := e.store.ApplyUpdate(ctx, ev.UserID, func(current *domain.SkillProfile) (domain.TopicUpdate, error) {
		if current.HasFeedback(ev.IdempotencyKey) {
			return domain.TopicUpdate{}, domain.ErrDuplicateFeedback
		}
		update := e.compute(current, ev, outcome)
		entry = update.Entry
		return update, nil
	})

	if errors.Is(err, domain.ErrDuplicateFeedback) {
		metrics.RecordFeedback(string(kind), "duplicate", 0)
		e.logger.Debug("duplicate feedback ignored",
			"user_id", ev.UserID,
			"idempotency_key", ev.IdempotencyKey)

		current, err := e.store.Get(ctx, ev.UserID)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		return &Result{Profile: current, Duplicate: true}, nil
	}
	if err != nil {
		metrics.RecordFeedback(string(kind), "error", 0)
		return nil, fmt.Errorf("apply update: %w", err)
	}

	metrics.RecordFeedback(string(kind), "applied", entry.Delta)
	e.logger.Debug("rating updated",
		"user_id", ev.UserID,
		"topic", ev.Topic,
		"kind", kind,
		"before", entry.RatingBefore,
		"after", entry.RatingAfter,
		"expected", entry.Expected)

	return &Result{Profile: profile, Entry: entry}, nil
}

// compute runs the Elo step for the event's topic. It does not mutate current.
func (e *Engine) compute(current *domain.SkillProfile, ev domain.FeedbackEvent, outcome float64) domain.TopicUpdate {
	skill := current.Skill(ev.Topic, e.cfg.ColdStart)

	expected := Expected(skill.Rating, ev.MaterialRating, e.cfg.Scale)
	k := StepSize(e.cfg.K0, skill.Attempts, e.cfg.KDecayAttempts)
	next := Clamp(skill.Rating+k*(outcome-expected), e.cfg.MinRating, e.cfg.MaxRating)

	recordedAt := ev.OccurredAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	return domain.TopicUpdate{
		Topic:     ev.Topic,
		NewRating: next,
		Counted:   ev.Signal.Kind() == domain.FeedbackAttempt,
		Correct:   outcome >= e.cfg.CorrectThreshold,
		Entry: domain.FeedbackEntry{
			IdempotencyKey: ev.IdempotencyKey,
			Kind:           ev.Signal.Kind(),
			Topic:          ev.Topic,
			MaterialID:     ev.MaterialID,
			MaterialRating: ev.MaterialRating,
			Outcome:        outcome,
			Expected:       expected,
			RatingBefore:   skill.Rating,
			RatingAfter:    next,
			Delta:          next - skill.Rating,
			RecordedAt:     recordedAt,
		},
	}
}

// validate rejects malformed events and returns the numeric outcome S
func (e *Engine) validate(ev domain.FeedbackEvent) (float64, error) {
	if ev.UserID == "" {
		return 0, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	if ev.Topic == "" {
		return 0, fmt.Errorf("topic is required: %w", domain.ErrInvalidInput)
	}
	if ev.IdempotencyKey == "" {
		return 0, fmt.Errorf("idempotency key is required: %w", domain.ErrInvalidInput)
	}

	r := ev.MaterialRating
	if math.IsNaN(r) || math.IsInf(r, 0) || r < e.cfg.MinRating || r > e.cfg.MaxRating {
		return 0, fmt.Errorf("material rating %v outside [%.0f, %.0f]: %w",
			r, e.cfg.MinRating, e.cfg.MaxRating, domain.ErrInvalidRating)
	}

	switch s := ev.Signal.(type) {
	case domain.AttemptFeedback:
		if math.IsNaN(s.Outcome) || s.Outcome < 0 || s.Outcome > 1 {
			return 0, fmt.Errorf("outcome %v outside [0, 1]: %w", s.Outcome, domain.ErrInvalidOutcome)
		}
		return s.Outcome, nil
	case domain.PurchaseFeedback:
		return e.cfg.PurchaseOutcome, nil
	default:
		return 0, fmt.Errorf("feedback signal is required: %w", domain.ErrInvalidOutcome)
	}
}
