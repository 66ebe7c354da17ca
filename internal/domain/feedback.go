package domain

import (
	"fmt"
	"time"
)

// FeedbackKind identifies the variant of a feedback signal
type FeedbackKind string

const (
	FeedbackAttempt  FeedbackKind = "attempt"
	FeedbackPurchase FeedbackKind = "purchase"
)

// Signal is the tagged variant carried by a feedback event.
// Only AttemptFeedback and PurchaseFeedback implement it.
type Signal interface {
	Kind() FeedbackKind
	signal()
}

// AttemptFeedback is an explicit outcome: 0 incorrect, 1 correct, or partial credit in between.
type AttemptFeedback struct {
	Outcome float64 `json:"outcome"`
}

func (AttemptFeedback) Kind() FeedbackKind { return FeedbackAttempt }
func (AttemptFeedback) signal()            {}

// PurchaseFeedback is the implicit signal of a completed paid acquisition.
type PurchaseFeedback struct{}

func (PurchaseFeedback) Kind() FeedbackKind { return FeedbackPurchase }
func (PurchaseFeedback) signal()            {}

// Correct builds an attempt signal for a right answer.
func Correct() Signal { return AttemptFeedback{Outcome: 1} }

// Incorrect builds an attempt signal for a wrong answer.
func Incorrect() Signal { return AttemptFeedback{Outcome: 0} }

// FeedbackEvent is one observation of a user interacting with a material
type FeedbackEvent struct {
	UserID         string
	Topic          string
	MaterialID     string
	MaterialRating float64
	Signal         Signal
	IdempotencyKey string
	OccurredAt     time.Time
}

// ParseFeedbackKind maps a wire value to a FeedbackKind.
func ParseFeedbackKind(s string) (FeedbackKind, bool) {
	switch FeedbackKind(s) {
	case FeedbackAttempt:
		return FeedbackAttempt, true
	case FeedbackPurchase:
		return FeedbackPurchase, true
	default:
		return "", false
	}
}

// NewSignal builds the signal for a wire kind. Attempts require an outcome;
// purchases ignore it.
func NewSignal(kind string, outcome *float64) (Signal, error) {
	k, ok := ParseFeedbackKind(kind)
	if !ok {
		return nil, fmt.Errorf("feedback kind %q: %w", kind, ErrInvalidInput)
	}
	if k == FeedbackPurchase {
		return PurchaseFeedback{}, nil
	}
	if outcome == nil {
		return nil, fmt.Errorf("attempt without outcome: %w", ErrInvalidOutcome)
	}
	return AttemptFeedback{Outcome: *outcome}, nil
}
