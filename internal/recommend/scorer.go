// Package recommend ranks catalog materials for a user by blending rating
// distance with popularity among rating peers.
package recommend

import (
	"iter"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/calibration"
	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Input is everything one ranking depends on
type Input struct {
	Profile    *domain.SkillProfile
	Materials  []domain.Material
	Owned      map[string]struct{}
	Popularity map[string]float64
	CohortSize int
}

// Ranking is a finite, ordered result. Iterating it any number of times
// yields the same sequence.
type Ranking struct {
	UserID     string  `json:"user_id"`
	CohortSize int     `json:"cohort_size"`
	Fallback   bool    `json:"fallback"`
	Alpha      float64 `json:"alpha"`
	items      []domain.Recommendation
}

// All returns the ranked recommendations in order
func (r *Ranking) All() iter.Seq[domain.Recommendation] {
	return func(yield func(domain.Recommendation) bool) {
		for _, item := range r.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Len returns the number of recommendations
func (r *Ranking) Len() int { return len(r.items) }

// Items returns a copy of the recommendations
func (r *Ranking) Items() []domain.Recommendation {
	return append([]domain.Recommendation{}, r.items...)
}

// Scorer is a pure ranking function over already-loaded inputs
type Scorer struct {
	calibrator *calibration.Calibrator
	cfg        config.ScoringConfig
	coldStart  float64
	logger     *slog.Logger
}

// NewScorer creates a scorer
func NewScorer(cal *calibration.Calibrator, cfg config.ScoringConfig, coldStart float64, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{calibrator: cal, cfg: cfg, coldStart: coldStart, logger: logger}
}

// ContentScore is 1 / (1 + |ru + bias - rm| / scale)
func ContentScore(ru, rm, bias, scale float64) float64 {
	return 1 / (1 + math.Abs(ru+bias-rm)/scale)
}

type candidate struct {
	rec       domain.Recommendation
	createdAt time.Time
}

// Rank scores every unowned material and returns the top limit entries.
// Ordering is score descending, then newer CreatedAt, then material ID.
func (s *Scorer) Rank(in Input, limit int) *Ranking {
	alpha := s.cfg.Alpha
	fallback := in.CohortSize < max(s.cfg.MinCohortSize, 1)
	if fallback {
		alpha = 1
	}

	profile := in.Profile
	userID := ""
	if profile != nil {
		userID = profile.UserID
	}

	candidates := make([]candidate, 0, len(in.Materials))
	for _, m := range in.Materials {
		if _, owned := in.Owned[m.ID]; owned {
			continue
		}

		rm, err := s.calibrator.Resolve(m)
		if err != nil {
			s.logger.Warn("skipping material without usable difficulty",
				"material_id", m.ID,
				"label", m.DifficultyLabel,
				"error", err)
			continue
		}

		ru := s.coldStart
		if profile != nil {
			ru = profile.Skill(m.Topic, s.coldStart).Rating
		}

		content := ContentScore(ru, rm, s.cfg.StretchBias, s.cfg.ContentScale)
		var peer float64
		if !fallback {
			peer = in.Popularity[m.ID]
		}

		candidates = append(candidates, candidate{
			rec: domain.Recommendation{
				MaterialID:   m.ID,
				Topic:        m.Topic,
				Score:        alpha*content + (1-alpha)*peer,
				ContentScore: content,
				CohortScore:  peer,
				Difficulty:   rm,
			},
			createdAt: m.CreatedAt,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rec.Score != b.rec.Score {
			return a.rec.Score > b.rec.Score
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.After(b.createdAt)
		}
		return a.rec.MaterialID < b.rec.MaterialID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	items := make([]domain.Recommendation, len(candidates))
	for i, c := range candidates {
		items[i] = c.rec
	}

	return &Ranking{
		UserID:     userID,
		CohortSize: in.CohortSize,
		Fallback:   fallback,
		Alpha:      alpha,
		items:      items,
	}
}
