package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/metrics"
	"github.com/felixgeelhaar/skillrank/internal/rating"
)

// Applier applies one feedback event; *rating.Engine satisfies it
type Applier interface {
	Apply(ctx context.Context, ev domain.FeedbackEvent) (*rating.Result, error)
}

// Disposition is what the consumer does with a delivery
type Disposition int

const (
	// Ack removes the message: applied or duplicate.
	Ack Disposition = iota
	// Reject dead-letters the message: it can never succeed.
	Reject
	// Requeue returns the message for another attempt.
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Consumer feeds queued feedback into the rating engine
type Consumer struct {
	conn       *Connection
	applier    Applier
	workers    int
	prefetch   int
	timeout    time.Duration
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-message processing deadline
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1, // Process one at a time per worker for fairness
		Timeout:  10 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, applier Applier, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	defaults := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaults.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		applier:  applier,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch*c.workers, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		FeedbackQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting feedback consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single delivery and settles it
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	d := c.Handle(msgCtx, msg.Body)
	// A transient failure that already came back once is parked rather
	// than spun on forever.
	if d == Requeue && msg.Redelivered {
		d = Reject
	}

	var err error
	switch d {
	case Ack:
		err = msg.Ack(false)
	case Reject:
		err = msg.Reject(false)
	case Requeue:
		err = msg.Nack(false, true)
	}
	metrics.RecordQueueMessage(d.String())

	if err != nil {
		c.logger.Error("failed to settle message",
			"worker_id", workerID,
			"message_id", msg.MessageId,
			"disposition", d.String(),
			"error", err,
		)
	}
}

// Handle decodes and applies one message body and decides its disposition.
// Malformed and invalid messages are rejected; store failures are requeued.
func (c *Consumer) Handle(ctx context.Context, body []byte) Disposition {
	start := time.Now()

	var msg FeedbackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Warn("rejecting malformed feedback message", "error", err)
		return Reject
	}

	ev, err := msg.Event()
	if err != nil {
		c.logger.Warn("rejecting invalid feedback message",
			"message_id", msg.ID,
			"error", err,
		)
		return Reject
	}

	result, err := c.applier.Apply(ctx, ev)
	switch {
	case err == nil:
	case domain.IsValidationError(err):
		c.logger.Warn("rejecting feedback",
			"message_id", msg.ID,
			"user_id", msg.UserID,
			"error", err,
		)
		return Reject
	case errors.Is(err, context.Canceled):
		return Requeue
	default:
		c.logger.Error("feedback processing failed",
			"message_id", msg.ID,
			"user_id", msg.UserID,
			"error", err,
		)
		return Requeue
	}

	c.logger.Info("feedback applied",
		"message_id", msg.ID,
		"user_id", msg.UserID,
		"topic", msg.Topic,
		"duplicate", result.Duplicate,
		"duration", time.Since(start),
	)
	return Ack
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}
