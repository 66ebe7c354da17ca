package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/queue"
	"github.com/felixgeelhaar/skillrank/internal/rating"
	"github.com/felixgeelhaar/skillrank/internal/skills"
	"github.com/felixgeelhaar/skillrank/internal/validation"
)

// summaryTopics is how many strongest and weakest topics a profile reports
const summaryTopics = 3

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"storage":   s.cfg.Storage.Driver,
		"queue":     s.publisher != nil,
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req rating.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ev, err := req.Event(s.calibrator)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		s.publishFeedback(w, r, ev)
		return
	}

	result, err := s.engine.Apply(r.Context(), ev)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"applied":        !result.Duplicate,
		"user_id":        ev.UserID,
		"topic":          ev.Topic,
		"topic_skill":    result.Profile.Skill(ev.Topic, s.cfg.Rating.ColdStart),
		"overall_rating": result.Profile.OverallRating,
		"entry":          result.Entry,
	})
}

func (s *Server) publishFeedback(w http.ResponseWriter, r *http.Request, ev domain.FeedbackEvent) {
	if s.publisher == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "feedback queue is not configured", nil)
		return
	}

	msg := queue.NewFeedbackMessage(ev)
	if err := s.publisher.PublishFeedback(r.Context(), msg); err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, "failed to queue feedback", err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"queued":     true,
		"message_id": msg.ID,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	profile, err := s.store.Get(r.Context(), userID)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to load profile", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"profile": profile,
		"summary": skills.Summarize(profile, summaryTopics, time.Now()),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	ranking, err := s.recommender.Recommend(r.Context(), userID, limit)
	if err != nil {
		if domain.IsValidationError(err) {
			s.writeDomainError(w, err)
			return
		}
		s.jsonError(w, http.StatusServiceUnavailable, "recommendations unavailable", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"user_id":         ranking.UserID,
		"cohort_size":     ranking.CohortSize,
		"fallback":        ranking.Fallback,
		"alpha":           ranking.Alpha,
		"recommendations": ranking.Items(),
	})
}

func (s *Server) handleCalibrationTable(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"labels": s.calibrator.Table(),
	})
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	label, err := strconv.Atoi(r.PathValue("label"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "label must be an integer", nil)
		return
	}

	rating, err := s.calibrator.RatingForLabel(label)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"label":  label,
		"rating": rating,
	})
}

// writeDomainError maps core errors onto HTTP statuses
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		s.jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid request",
			"status": http.StatusBadRequest,
			"fields": verr.Fields,
		})
	case domain.IsValidationError(err):
		s.jsonError(w, http.StatusUnprocessableEntity, "feedback rejected", err)
	case errors.Is(err, domain.ErrNotFound):
		s.jsonError(w, http.StatusNotFound, "not found", err)
	default:
		s.logger.Error("request failed", "error", err)
		s.jsonError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
