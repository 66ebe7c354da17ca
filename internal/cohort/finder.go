// Package cohort selects rating peers for collaborative scoring.
package cohort

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

// Cohort is the set of peers found around a target rating
type Cohort struct {
	Members   []string `json:"members"`
	Center    float64  `json:"center"`
	BandWidth float64  `json:"band_width"`
}

// Size returns the number of peers
func (c *Cohort) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Members)
}

// Finder selects users with a comparable overall rating. Membership is
// recomputed on every call.
type Finder struct {
	store  skills.Store
	cfg    config.CohortConfig
	logger *slog.Logger
}

// NewFinder creates a cohort finder
func NewFinder(store skills.Store, cfg config.CohortConfig, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{store: store, cfg: cfg, logger: logger}
}

// Find returns every other user whose overall rating lies within bandWidth of
// the target's. A non-positive bandWidth uses the configured default. An
// empty band is widened by the growth factor up to the cap; if the widest
// band is still empty, ErrNoCohortAvailable is returned.
func (f *Finder) Find(ctx context.Context, userID string, bandWidth float64) (*Cohort, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}

	target, err := f.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load target profile: %w", err)
	}

	return f.FindAround(ctx, userID, target.OverallRating, bandWidth)
}

// FindAround is Find with an explicit center rating
func (f *Finder) FindAround(ctx context.Context, userID string, center, bandWidth float64) (*Cohort, error) {
	if bandWidth <= 0 {
		bandWidth = f.cfg.BandWidth
	}
	maxBand := max(f.cfg.MaxBandWidth, bandWidth)
	growth := f.cfg.GrowthFactor
	if growth <= 1 {
		growth = 2
	}

	for band := bandWidth; ; band = min(band*growth, maxBand) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		users, err := f.store.UsersInRange(ctx, center-band, center+band)
		if err != nil {
			return nil, fmt.Errorf("scan band %.0f: %w", band, err)
		}

		members := make([]string, 0, len(users))
		for _, u := range users {
			if u.UserID != userID {
				members = append(members, u.UserID)
			}
		}

		if len(members) > 0 {
			if band > bandWidth {
				f.logger.Debug("cohort band widened",
					"user_id", userID,
					"from", bandWidth,
					"to", band,
					"size", len(members))
			}
			return &Cohort{Members: members, Center: center, BandWidth: band}, nil
		}

		if band >= maxBand {
			return nil, fmt.Errorf("no peers within %.0f of %.0f: %w", band, center, domain.ErrNoCohortAvailable)
		}
	}
}

// Popularity returns, per material, the fraction of cohort members holding
// at least one purchase of it. Purchases by non-members are ignored.
func Popularity(members []string, purchases []domain.PurchaseSignal) map[string]float64 {
	out := make(map[string]float64)
	if len(members) == 0 {
		return out
	}

	inCohort := make(map[string]struct{}, len(members))
	for _, m := range members {
		inCohort[m] = struct{}{}
	}

	buyers := make(map[string]map[string]struct{})
	for _, p := range purchases {
		if _, ok := inCohort[p.UserID]; !ok {
			continue
		}
		set, ok := buyers[p.MaterialID]
		if !ok {
			set = make(map[string]struct{})
			buyers[p.MaterialID] = set
		}
		set[p.UserID] = struct{}{}
	}

	for materialID, set := range buyers {
		out[materialID] = float64(len(set)) / float64(len(inCohort))
	}
	return out
}
