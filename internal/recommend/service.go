package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/skillrank/internal/catalog"
	"github.com/felixgeelhaar/skillrank/internal/cohort"
	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/metrics"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

// Service answers recommendation queries. It loads inputs from the skill
// store and external collaborators, then delegates to the Scorer.
type Service struct {
	store     skills.Store
	finder    *cohort.Finder
	catalog   catalog.Catalog
	ledger    catalog.Ledger
	scorer    *Scorer
	cfg       config.ScoringConfig
	coldStart float64
	bulkhead  bulkhead.Bulkhead[*Ranking]
	logger    *slog.Logger
}

// ServiceDeps groups the collaborators of a Service
type ServiceDeps struct {
	Store   skills.Store
	Finder  *cohort.Finder
	Catalog catalog.Catalog
	Ledger  catalog.Ledger
	Scorer  *Scorer
	Logger  *slog.Logger
}

// NewService creates a recommendation service
func NewService(deps ServiceDeps, cfg *config.LocalConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxConcurrent := cfg.Resilience.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}

	return &Service{
		store:     deps.Store,
		finder:    deps.Finder,
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		scorer:    deps.Scorer,
		cfg:       cfg.Scoring,
		coldStart: cfg.Rating.ColdStart,
		bulkhead: bulkhead.New[*Ranking](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 4,
			QueueTimeout:  10 * time.Second,
		}),
		logger: logger,
	}
}

// Recommend returns the top limit materials for a user. limit <= 0 uses the
// configured default; larger values are capped. Only a catalog failure is
// surfaced; every other missing input degrades the ranking instead.
func (s *Service) Recommend(ctx context.Context, userID string, limit int) (*Ranking, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.cfg.Limit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	return s.bulkhead.Execute(ctx, func(ctx context.Context) (*Ranking, error) {
		return s.recommend(ctx, userID, limit)
	})
}

func (s *Service) recommend(ctx context.Context, userID string, limit int) (*Ranking, error) {
	start := time.Now()

	var (
		profile   *domain.SkillProfile
		materials []domain.Material
		ownedList []domain.PurchaseSignal
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := s.store.Get(gctx, userID)
		if err != nil {
			s.logger.Warn("profile unavailable, using cold start", "user_id", userID, "error", err)
			p = domain.NewSkillProfile(userID, s.coldStart)
		}
		profile = p
		return nil
	})

	g.Go(func() error {
		list, err := s.catalog.ListMaterials(gctx)
		if err != nil {
			return fmt.Errorf("list materials: %w", err)
		}
		materials = list
		return nil
	})

	g.Go(func() error {
		list, err := s.ledger.PurchasesByUser(gctx, userID)
		if err != nil {
			s.logger.Warn("purchase ledger unavailable for user", "user_id", userID, "error", err)
			return nil
		}
		ownedList = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	owned := make(map[string]struct{}, len(ownedList))
	for _, p := range ownedList {
		owned[p.MaterialID] = struct{}{}
	}
	// Purchases recorded as feedback also count as owned
	for _, entry := range profile.FeedbackHistory {
		if entry.Kind == domain.FeedbackPurchase && entry.MaterialID != "" {
			owned[entry.MaterialID] = struct{}{}
		}
	}

	in := Input{
		Profile:   profile,
		Materials: materials,
		Owned:     owned,
	}

	members := s.cohortMembers(ctx, userID, profile.OverallRating)
	if len(members) > 0 {
		purchases, err := s.ledger.PurchasesByUsers(ctx, members)
		if err != nil {
			s.logger.Warn("cohort purchases unavailable, scoring by content only",
				"user_id", userID,
				"error", err)
		} else {
			in.CohortSize = len(members)
			in.Popularity = cohort.Popularity(members, purchases)
		}
	}

	ranking := s.scorer.Rank(in, limit)
	metrics.RecordRecommendation(start, ranking.CohortSize, ranking.Fallback)

	s.logger.Debug("recommendations ranked",
		"user_id", userID,
		"results", ranking.Len(),
		"cohort_size", ranking.CohortSize,
		"fallback", ranking.Fallback,
		"duration", time.Since(start))

	return ranking, nil
}

// cohortMembers returns the peers for userID, or nil when none are available
func (s *Service) cohortMembers(ctx context.Context, userID string, center float64) []string {
	c, err := s.finder.FindAround(ctx, userID, center, 0)
	switch {
	case errors.Is(err, domain.ErrNoCohortAvailable):
		s.logger.Debug("no cohort available", "user_id", userID, "rating", center)
		return nil
	case err != nil:
		s.logger.Warn("cohort lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return c.Members
}
