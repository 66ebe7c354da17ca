// Package calibration maps editorial difficulty labels onto the skill rating scale.
package calibration

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Calibrator resolves material difficulty ratings. It is immutable after
// construction and safe for concurrent use.
type Calibrator struct {
	labels    [domain.MaxDifficultyLabel + 1]float64
	minRating float64
	maxRating float64
}

// New builds a calibrator from a label table and rating bounds. The table must
// cover every label and be non-decreasing.
func New(labels map[int]float64, minRating, maxRating float64) (*Calibrator, error) {
	c := &Calibrator{minRating: minRating, maxRating: maxRating}

	prev := math.Inf(-1)
	for label := domain.MinDifficultyLabel; label <= domain.MaxDifficultyLabel; label++ {
		rating, ok := labels[label]
		if !ok {
			return nil, fmt.Errorf("label %d has no rating: %w", label, domain.ErrInvalidLabel)
		}
		if rating < minRating || rating > maxRating {
			return nil, fmt.Errorf("label %d rating %.0f outside [%.0f, %.0f]: %w",
				label, rating, minRating, maxRating, domain.ErrInvalidRating)
		}
		if rating < prev {
			return nil, fmt.Errorf("label %d rating %.0f decreases: %w", label, rating, domain.ErrInvalidRating)
		}
		c.labels[label] = rating
		prev = rating
	}

	return c, nil
}

// FromConfig builds a calibrator from local configuration
func FromConfig(cfg *config.LocalConfig) (*Calibrator, error) {
	return New(cfg.Calibration.Labels, cfg.Rating.MinRating, cfg.Rating.MaxRating)
}

// Default returns the calibrator for the stock 600/800/1000/1300/1600 table
func Default() *Calibrator {
	cfg := config.DefaultLocalConfig()
	c, err := FromConfig(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// RatingForLabel returns the table rating for a 1..5 label
func (c *Calibrator) RatingForLabel(label int) (float64, error) {
	if label < domain.MinDifficultyLabel || label > domain.MaxDifficultyLabel {
		return 0, fmt.Errorf("label %d: %w", label, domain.ErrInvalidLabel)
	}
	return c.labels[label], nil
}

// Resolve returns the admin override when it is set and in range, otherwise
// the rating for the material's label. An override is never re-derived.
func (c *Calibrator) Resolve(m domain.Material) (float64, error) {
	if m.DifficultyRating != nil && c.InRange(*m.DifficultyRating) {
		return *m.DifficultyRating, nil
	}
	return c.RatingForLabel(m.DifficultyLabel)
}

// InRange reports whether r is a finite rating within the configured bounds
func (c *Calibrator) InRange(r float64) bool {
	return !math.IsNaN(r) && r >= c.minRating && r <= c.maxRating
}

// Table returns a copy of the label table
func (c *Calibrator) Table() map[int]float64 {
	out := make(map[int]float64, domain.MaxDifficultyLabel)
	for label := domain.MinDifficultyLabel; label <= domain.MaxDifficultyLabel; label++ {
		out[label] = c.labels[label]
	}
	return out
}
