package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Ensure Resilient implements both collaborators
var (
	_ Catalog = (*Resilient)(nil)
	_ Ledger  = (*Resilient)(nil)
)

// Resilient wraps external catalog and ledger reads with a timeout, retry
// with backoff and a circuit breaker per collaborator.
type Resilient struct {
	catalog Catalog
	ledger  Ledger
	timeout time.Duration

	materialsBreaker circuitbreaker.CircuitBreaker[[]domain.Material]
	materialsRetry   retry.Retry[[]domain.Material]
	materialBreaker  circuitbreaker.CircuitBreaker[*domain.Material]
	materialRetry    retry.Retry[*domain.Material]
	purchasesBreaker circuitbreaker.CircuitBreaker[[]domain.PurchaseSignal]
	purchasesRetry   retry.Retry[[]domain.PurchaseSignal]

	logger *slog.Logger
}

// NewResilient wraps catalog and ledger with fortify policies
func NewResilient(c Catalog, l Ledger, cfg config.ResilienceConfig, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resilient{
		catalog: c,
		ledger:  l,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:  logger,
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}

	r.materialsBreaker = newBreaker[[]domain.Material]("catalog", cfg, logger)
	r.materialsRetry = newRetry[[]domain.Material](cfg)
	r.materialBreaker = newBreaker[*domain.Material]("catalog", cfg, logger)
	r.materialRetry = newRetry[*domain.Material](cfg)
	r.purchasesBreaker = newBreaker[[]domain.PurchaseSignal]("ledger", cfg, logger)
	r.purchasesRetry = newRetry[[]domain.PurchaseSignal](cfg)

	return r
}

func newBreaker[T any](name string, cfg config.ResilienceConfig, logger *slog.Logger) circuitbreaker.CircuitBreaker[T] {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return circuitbreaker.New[T](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= threshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				"collaborator", name,
				"from", from.String(),
				"to", to.String())
		},
	})
}

func newRetry[T any](cfg config.ResilienceConfig) retry.Retry[T] {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := time.Duration(cfg.InitialDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return retry.New[T](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		MaxDelay:      2 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})
}

// isRetryable treats missing records and cancellation as permanent
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!domain.IsValidationError(err)
}

func call[T any](ctx context.Context, timeout time.Duration, cb circuitbreaker.CircuitBreaker[T], rt retry.Retry[T], fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return cb.Execute(ctx, func(ctx context.Context) (T, error) {
		return rt.Do(ctx, fn)
	})
}

func (r *Resilient) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	return call(ctx, r.timeout, r.materialsBreaker, r.materialsRetry, r.catalog.ListMaterials)
}

func (r *Resilient) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	return call(ctx, r.timeout, r.materialBreaker, r.materialRetry, func(ctx context.Context) (*domain.Material, error) {
		return r.catalog.GetMaterial(ctx, id)
	})
}

func (r *Resilient) PurchasesByUser(ctx context.Context, userID string) ([]domain.PurchaseSignal, error) {
	return call(ctx, r.timeout, r.purchasesBreaker, r.purchasesRetry, func(ctx context.Context) ([]domain.PurchaseSignal, error) {
		return r.ledger.PurchasesByUser(ctx, userID)
	})
}

func (r *Resilient) PurchasesByUsers(ctx context.Context, userIDs []string) ([]domain.PurchaseSignal, error) {
	return call(ctx, r.timeout, r.purchasesBreaker, r.purchasesRetry, func(ctx context.Context) ([]domain.PurchaseSignal, error) {
		return r.ledger.PurchasesByUsers(ctx, userIDs)
	})
}
