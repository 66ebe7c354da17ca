package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// FeedbackMessage is the wire form of a feedback event
type FeedbackMessage struct {
	ID               uuid.UUID `json:"id"`
	Kind             string    `json:"kind"`
	UserID           string    `json:"user_id"`
	Topic            string    `json:"topic"`
	MaterialID       string    `json:"material_id,omitempty"`
	DifficultyRating float64   `json:"difficulty_rating"`
	Outcome          *float64  `json:"outcome,omitempty"`
	IdempotencyKey   string    `json:"idempotency_key"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewFeedbackMessage converts a domain event into its wire form
func NewFeedbackMessage(ev domain.FeedbackEvent) *FeedbackMessage {
	msg := &FeedbackMessage{
		ID:               uuid.New(),
		UserID:           ev.UserID,
		Topic:            ev.Topic,
		MaterialID:       ev.MaterialID,
		DifficultyRating: ev.MaterialRating,
		IdempotencyKey:   ev.IdempotencyKey,
		OccurredAt:       ev.OccurredAt,
	}
	if ev.Signal != nil {
		msg.Kind = string(ev.Signal.Kind())
	}
	if a, ok := ev.Signal.(domain.AttemptFeedback); ok {
		outcome := a.Outcome
		msg.Outcome = &outcome
	}
	return msg
}

// Event converts the message back into a domain event
func (m *FeedbackMessage) Event() (domain.FeedbackEvent, error) {
	signal, err := domain.NewSignal(m.Kind, m.Outcome)
	if err != nil {
		return domain.FeedbackEvent{}, err
	}
	return domain.FeedbackEvent{
		UserID:         m.UserID,
		Topic:          m.Topic,
		MaterialID:     m.MaterialID,
		MaterialRating: m.DifficultyRating,
		Signal:         signal,
		IdempotencyKey: m.IdempotencyKey,
		OccurredAt:     m.OccurredAt,
	}, nil
}

// Producer publishes feedback events to the queue
type Producer struct {
	conn   *Connection
	logger *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{conn: conn, logger: logger}
}

// PublishFeedback publishes one feedback event for asynchronous rating
func (p *Producer) PublishFeedback(ctx context.Context, msg *FeedbackMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, FeedbackQueueName, msg.ID.String(), msg); err != nil {
		return fmt.Errorf("failed to publish feedback: %w", err)
	}

	p.logger.Info("published feedback",
		"message_id", msg.ID,
		"user_id", msg.UserID,
		"topic", msg.Topic,
		"kind", msg.Kind,
	)

	return nil
}
