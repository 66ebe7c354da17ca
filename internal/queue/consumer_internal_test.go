package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/rating"
)

type fakeApplier struct {
	err       error
	duplicate bool
	got       []domain.FeedbackEvent
}

func (f *fakeApplier) Apply(ctx context.Context, ev domain.FeedbackEvent) (*rating.Result, error) {
	f.got = append(f.got, ev)
	if f.err != nil {
		return nil, f.err
	}
	return &rating.Result{Duplicate: f.duplicate}, nil
}

func newTestConsumer(a Applier) *Consumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConsumer(nil, a, ConsumerConfig{}, logger)
}

func TestNewConsumer_AppliesDefaults(t *testing.T) {
	c := newTestConsumer(&fakeApplier{})

	if c.workers != 3 {
		t.Errorf("workers = %d; want 3", c.workers)
	}
	if c.prefetch != 1 {
		t.Errorf("prefetch = %d; want 1", c.prefetch)
	}
	if c.timeout != 10*time.Second {
		t.Errorf("timeout = %v; want 10s", c.timeout)
	}
}

func TestNewConsumer_PreservesCustomConfig(t *testing.T) {
	c := NewConsumer(nil, &fakeApplier{}, ConsumerConfig{Workers: 10, Prefetch: 5, Timeout: time.Second}, nil)

	if c.workers != 10 || c.prefetch != 5 || c.timeout != time.Second {
		t.Errorf("config = %d/%d/%v; want 10/5/1s", c.workers, c.prefetch, c.timeout)
	}
}

func TestConsumer_Handle(t *testing.T) {
	valid := `{"kind":"attempt","user_id":"u1","topic":"미적분","difficulty_rating":1200,"outcome":1,"idempotency_key":"k1"}`

	tests := []struct {
		name    string
		body    string
		applier *fakeApplier
		want    Disposition
		applied bool
	}{
		{"applied", valid, &fakeApplier{}, Ack, true},
		{"duplicate", valid, &fakeApplier{duplicate: true}, Ack, true},
		{"malformed json", `{"kind":`, &fakeApplier{}, Reject, false},
		{"unknown kind", `{"kind":"refund","user_id":"u1","topic":"t","idempotency_key":"k"}`, &fakeApplier{}, Reject, false},
		{"attempt without outcome", `{"kind":"attempt","user_id":"u1","topic":"t","difficulty_rating":1000,"idempotency_key":"k"}`, &fakeApplier{}, Reject, false},
		{"validation error", valid, &fakeApplier{err: fmt.Errorf("wrap: %w", domain.ErrInvalidRating)}, Reject, true},
		{"store failure", valid, &fakeApplier{err: errors.New("database is locked")}, Requeue, true},
		{"canceled", valid, &fakeApplier{err: context.Canceled}, Requeue, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConsumer(tt.applier)

			got := c.Handle(context.Background(), []byte(tt.body))
			if got != tt.want {
				t.Errorf("Handle() = %v; want %v", got, tt.want)
			}
			if applied := len(tt.applier.got) > 0; applied != tt.applied {
				t.Errorf("applier called = %v; want %v", applied, tt.applied)
			}
		})
	}
}

func TestConsumer_Handle_DecodesEvent(t *testing.T) {
	a := &fakeApplier{}
	c := newTestConsumer(a)

	body := `{"kind":"purchase","user_id":"u1","topic":"기하","material_id":"m9","difficulty_rating":1300,"idempotency_key":"order-7"}`
	if got := c.Handle(context.Background(), []byte(body)); got != Ack {
		t.Fatalf("Handle() = %v; want ack", got)
	}

	ev := a.got[0]
	if ev.UserID != "u1" || ev.Topic != "기하" || ev.MaterialID != "m9" {
		t.Errorf("event = %+v; want u1/기하/m9", ev)
	}
	if ev.MaterialRating != 1300 {
		t.Errorf("MaterialRating = %f; want 1300", ev.MaterialRating)
	}
	if _, ok := ev.Signal.(domain.PurchaseFeedback); !ok {
		t.Errorf("Signal = %#v; want PurchaseFeedback", ev.Signal)
	}
	if ev.IdempotencyKey != "order-7" {
		t.Errorf("IdempotencyKey = %q; want order-7", ev.IdempotencyKey)
	}
}

func TestDisposition_String(t *testing.T) {
	tests := map[Disposition]string{
		Ack:             "ack",
		Reject:          "reject",
		Requeue:         "requeue",
		Disposition(42): "unknown",
	}
	for d, want := range tests {
		if got := d.String(); got != want {
			t.Errorf("Disposition(%d).String() = %q; want %q", int(d), got, want)
		}
	}
}
