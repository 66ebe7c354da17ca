package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/skillrank/internal/calibration"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/rating"
	"github.com/felixgeelhaar/skillrank/internal/recommend"
	"github.com/felixgeelhaar/skillrank/internal/skills"
	"github.com/felixgeelhaar/skillrank/internal/validation"
)

// Server wraps the MCP server with skillrank functionality
type Server struct {
	mcpServer   *server.Server
	store       skills.Store
	engine      *rating.Engine
	recommender *recommend.Service
	calibrator  *calibration.Calibrator
	coldStart   float64
}

// Config contains configuration for the MCP server
type Config struct {
	Store       skills.Store
	Engine      *rating.Engine
	Recommender *recommend.Service
	Calibrator  *calibration.Calibrator
	ColdStart   float64
	Version     string
}

// NewServer creates a new MCP server for skillrank
func NewServer(cfg Config) *Server {
	s := &Server{
		store:       cfg.Store,
		engine:      cfg.Engine,
		recommender: cfg.Recommender,
		calibrator:  cfg.Calibrator,
		coldStart:   cfg.ColdStart,
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "skillrank",
		Version: version,
	}, server.WithInstructions(`
skillrank tracks per-topic skill ratings for learners and recommends study
materials near each learner's level.

Available tools:
- skillrank_recommend: Ranked materials for a user
- skillrank_feedback: Record an attempt outcome or a purchase
- skillrank_profile: A user's ratings with strongest and weakest topics
- skillrank_calibrate: Default rating for a 1-5 difficulty label

Ratings run from 100 to 2000; new learners start at 1000.
`))

	s.registerTools()

	return s
}

// registerTools registers all skillrank MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("skillrank_recommend").
		Description("Recommend study materials for a user, blending difficulty fit with what similar learners bought.").
		Handler(s.handleRecommend)

	s.mcpServer.Tool("skillrank_feedback").
		Description("Record an attempt outcome or a purchase. Replaying an idempotency key is a no-op.").
		Handler(s.handleFeedback)

	s.mcpServer.Tool("skillrank_profile").
		Description("Get a user's skill ratings and topic summary.").
		Handler(s.handleProfile)

	s.mcpServer.Tool("skillrank_calibrate").
		Description("Get the default rating for a difficulty label (1-5).").
		Handler(s.handleCalibrate)
}

// Input/Output types for tools

type RecommendInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner ID" validate:"required"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum results (default 10)" validate:"omitempty,min=1,max=50"`
}

type RecommendOutput struct {
	UserID          string                  `json:"user_id"`
	CohortSize      int                     `json:"cohort_size"`
	Fallback        bool                    `json:"fallback"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}

type FeedbackInput struct {
	UserID           string   `json:"user_id" jsonschema:"description=Learner ID"`
	Kind             string   `json:"kind" jsonschema:"description=Feedback kind,enum=attempt,enum=purchase"`
	Topic            string   `json:"topic" jsonschema:"description=Topic of the material"`
	MaterialID       string   `json:"material_id,omitempty" jsonschema:"description=Material ID"`
	DifficultyRating *float64 `json:"difficulty_rating,omitempty" jsonschema:"description=Material rating (100-2000)"`
	DifficultyLabel  int      `json:"difficulty_label,omitempty" jsonschema:"description=Difficulty label 1-5 when no rating is known"`
	Outcome          *float64 `json:"outcome,omitempty" jsonschema:"description=Attempt outcome: 1 correct or 0 incorrect or partial credit between"`
	IdempotencyKey   string   `json:"idempotency_key" jsonschema:"description=Unique key for this event"`
}

type FeedbackOutput struct {
	Applied       bool    `json:"applied"`
	Topic         string  `json:"topic"`
	RatingBefore  float64 `json:"rating_before"`
	RatingAfter   float64 `json:"rating_after"`
	OverallRating float64 `json:"overall_rating"`
}

type ProfileInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner ID" validate:"required"`
}

type CalibrateInput struct {
	Label int `json:"label" jsonschema:"description=Difficulty label 1-5"`
}

type CalibrateOutput struct {
	Label  int     `json:"label"`
	Rating float64 `json:"rating"`
}

// Tool handlers

func (s *Server) handleRecommend(ctx context.Context, input RecommendInput) (RecommendOutput, error) {
	if err := validation.Struct(&input); err != nil {
		return RecommendOutput{}, err
	}

	ranking, err := s.recommender.Recommend(ctx, input.UserID, input.Limit)
	if err != nil {
		return RecommendOutput{}, fmt.Errorf("recommend: %w", err)
	}

	return RecommendOutput{
		UserID:          ranking.UserID,
		CohortSize:      ranking.CohortSize,
		Fallback:        ranking.Fallback,
		Recommendations: ranking.Items(),
	}, nil
}

func (s *Server) handleFeedback(ctx context.Context, input FeedbackInput) (FeedbackOutput, error) {
	req := rating.Request{
		UserID:           input.UserID,
		Kind:             input.Kind,
		Topic:            input.Topic,
		MaterialID:       input.MaterialID,
		DifficultyRating: input.DifficultyRating,
		DifficultyLabel:  input.DifficultyLabel,
		Outcome:          input.Outcome,
		IdempotencyKey:   input.IdempotencyKey,
	}
	ev, err := req.Event(s.calibrator)
	if err != nil {
		return FeedbackOutput{}, err
	}

	result, err := s.engine.Apply(ctx, ev)
	if err != nil {
		return FeedbackOutput{}, fmt.Errorf("apply feedback: %w", err)
	}

	out := FeedbackOutput{
		Applied:       !result.Duplicate,
		Topic:         ev.Topic,
		OverallRating: result.Profile.OverallRating,
	}
	current := result.Profile.Skill(ev.Topic, s.coldStart).Rating
	out.RatingBefore, out.RatingAfter = current, current
	if !result.Duplicate {
		out.RatingBefore = result.Entry.RatingBefore
	}
	return out, nil
}

func (s *Server) handleProfile(ctx context.Context, input ProfileInput) (skills.Summary, error) {
	if err := validation.Struct(&input); err != nil {
		return skills.Summary{}, err
	}

	profile, err := s.store.Get(ctx, input.UserID)
	if err != nil {
		return skills.Summary{}, fmt.Errorf("load profile: %w", err)
	}
	return *skills.Summarize(profile, 3, time.Now()), nil
}

func (s *Server) handleCalibrate(ctx context.Context, input CalibrateInput) (CalibrateOutput, error) {
	r, err := s.calibrator.RatingForLabel(input.Label)
	if err != nil {
		return CalibrateOutput{}, err
	}
	return CalibrateOutput{Label: input.Label, Rating: r}, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
