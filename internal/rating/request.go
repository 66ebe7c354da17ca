package rating

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/calibration"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/validation"
)

// Request is the inbound form of a feedback event shared by the HTTP, MCP
// and CLI surfaces. A material's difficulty is given either as a rating or
// as a 1..5 label that is resolved through the calibrator.
type Request struct {
	UserID           string     `json:"user_id" validate:"required,max=128"`
	Kind             string     `json:"kind" validate:"required,oneof=attempt purchase"`
	Topic            string     `json:"topic" validate:"required,max=128"`
	MaterialID       string     `json:"material_id,omitempty" validate:"max=128"`
	DifficultyRating *float64   `json:"difficulty_rating,omitempty"`
	DifficultyLabel  int        `json:"difficulty_label,omitempty" validate:"omitempty,min=1,max=5"`
	Outcome          *float64   `json:"outcome,omitempty" validate:"omitempty,min=0,max=1"`
	IdempotencyKey   string     `json:"idempotency_key" validate:"required,max=256"`
	OccurredAt       *time.Time `json:"occurred_at,omitempty"`
}

// Event validates the request and converts it into a domain event
func (r *Request) Event(cal *calibration.Calibrator) (domain.FeedbackEvent, error) {
	if err := validation.Struct(r); err != nil {
		return domain.FeedbackEvent{}, err
	}

	var materialRating float64
	switch {
	case r.DifficultyRating != nil:
		if !cal.InRange(*r.DifficultyRating) {
			return domain.FeedbackEvent{}, fmt.Errorf("difficulty_rating %v out of range: %w", *r.DifficultyRating, domain.ErrInvalidRating)
		}
		materialRating = *r.DifficultyRating
	case r.DifficultyLabel != 0:
		rating, err := cal.RatingForLabel(r.DifficultyLabel)
		if err != nil {
			return domain.FeedbackEvent{}, err
		}
		materialRating = rating
	default:
		return domain.FeedbackEvent{}, fmt.Errorf("difficulty_rating or difficulty_label is required: %w", domain.ErrInvalidInput)
	}

	signal, err := domain.NewSignal(r.Kind, r.Outcome)
	if err != nil {
		return domain.FeedbackEvent{}, err
	}

	ev := domain.FeedbackEvent{
		UserID:         r.UserID,
		Topic:          r.Topic,
		MaterialID:     r.MaterialID,
		MaterialRating: materialRating,
		Signal:         signal,
		IdempotencyKey: r.IdempotencyKey,
		OccurredAt:     time.Now(),
	}
	if r.OccurredAt != nil {
		ev.OccurredAt = *r.OccurredAt
	}
	return ev, nil
}
