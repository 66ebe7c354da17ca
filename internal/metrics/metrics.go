// Package metrics exposes Prometheus metrics for rating updates, cohort
// selection and recommendation scoring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedbackTotal counts feedback events by kind and result (applied, duplicate, rejected, error).
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillrank_feedback_total",
			Help: "Total number of feedback events processed",
		},
		[]string{"kind", "result"},
	)

	// RatingDelta tracks the size of applied rating changes.
	RatingDelta = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillrank_rating_delta",
			Help:    "Rating change applied per feedback event",
			Buckets: []float64{-32, -16, -8, -4, -1, 0, 1, 4, 8, 16, 32},
		},
		[]string{"kind"},
	)

	// CohortSize tracks cohort sizes at the band that produced them.
	CohortSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skillrank_cohort_size",
			Help:    "Number of peers selected per cohort lookup",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// CohortFallbackTotal counts recommendation requests scored without a cohort.
	CohortFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skillrank_cohort_fallback_total",
			Help: "Recommendation requests that fell back to content-only scoring",
		},
	)

	// RecommendationDuration tracks end-to-end recommendation latency.
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skillrank_recommendation_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// QueueMessagesTotal counts consumed queue messages by disposition (ack, reject, requeue).
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillrank_queue_messages_total",
			Help: "Total number of feedback queue messages consumed",
		},
		[]string{"outcome"},
	)

	// HTTPRequestsTotal counts daemon requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillrank_http_requests_total",
			Help: "Total number of HTTP requests handled by the daemon",
		},
		[]string{"route", "status"},
	)
)

// RecordFeedback records one processed feedback event.
func RecordFeedback(kind, result string, delta float64) {
	FeedbackTotal.WithLabelValues(kind, result).Inc()
	if result == "applied" {
		RatingDelta.WithLabelValues(kind).Observe(delta)
	}
}

// RecordRecommendation records a finished recommendation request.
func RecordRecommendation(start time.Time, cohortSize int, fallback bool) {
	RecommendationDuration.Observe(time.Since(start).Seconds())
	CohortSize.Observe(float64(cohortSize))
	if fallback {
		CohortFallbackTotal.Inc()
	}
}

// RecordQueueMessage records the disposition of one queue message.
func RecordQueueMessage(outcome string) {
	QueueMessagesTotal.WithLabelValues(outcome).Inc()
}
