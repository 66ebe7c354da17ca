package skills

import (
	"sort"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/domain"
)

// Summary provides aggregate statistics for one profile
type Summary struct {
	UserID        string      `json:"user_id"`
	OverallRating float64     `json:"overall_rating"`
	TotalAttempts int         `json:"total_attempts"`
	TotalCorrect  int         `json:"total_correct"`
	Accuracy      float64     `json:"accuracy"`
	Topics        []TopicStat `json:"topics"`
	Strongest     []TopicStat `json:"strongest"`
	Weakest       []TopicStat `json:"weakest"`
	Purchases     int         `json:"purchases"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TopicStat represents statistics for a single topic
type TopicStat struct {
	Topic    string  `json:"topic"`
	Rating   float64 `json:"rating"`
	Attempts int     `json:"attempts"`
	Accuracy float64 `json:"accuracy"`
	Trend    string  `json:"trend"` // "new", "improving", "stable", "declining", "inactive"
}

const (
	trendWindow   = 5
	inactiveAfter = 14 * 24 * time.Hour
)

// Summarize builds analytics for a profile. n bounds the strongest and
// weakest lists; only attempted topics are ranked.
func Summarize(p *domain.SkillProfile, n int, now time.Time) *Summary {
	s := &Summary{
		UserID:        p.UserID,
		OverallRating: p.OverallRating,
		TotalAttempts: p.TotalAttempts,
		TotalCorrect:  p.TotalCorrect,
		Topics:        []TopicStat{},
		Strongest:     []TopicStat{},
		Weakest:       []TopicStat{},
		UpdatedAt:     p.UpdatedAt,
	}

	if p.TotalAttempts > 0 {
		s.Accuracy = float64(p.TotalCorrect) / float64(p.TotalAttempts)
	}

	for _, entry := range p.FeedbackHistory {
		if entry.Kind == domain.FeedbackPurchase {
			s.Purchases++
		}
	}

	for topic, skill := range p.TopicSkills {
		s.Topics = append(s.Topics, TopicStat{
			Topic:    topic,
			Rating:   skill.Rating,
			Attempts: skill.Attempts,
			Accuracy: skill.Accuracy(),
			Trend:    determineTrend(p, topic, skill, now),
		})
	}

	sort.Slice(s.Topics, func(i, j int) bool {
		if s.Topics[i].Rating != s.Topics[j].Rating {
			return s.Topics[i].Rating > s.Topics[j].Rating
		}
		return s.Topics[i].Topic < s.Topics[j].Topic
	})

	var attempted []TopicStat
	for _, t := range s.Topics {
		if t.Attempts > 0 {
			attempted = append(attempted, t)
		}
	}

	if len(attempted) > 0 {
		k := min(n, len(attempted))
		s.Strongest = append(s.Strongest, attempted[:k]...)
		for i := len(attempted) - 1; i >= len(attempted)-k; i-- {
			s.Weakest = append(s.Weakest, attempted[i])
		}
	}

	return s
}

// determineTrend looks at the most recent rating deltas for a topic
func determineTrend(p *domain.SkillProfile, topic string, skill domain.TopicSkill, now time.Time) string {
	if skill.Attempts <= 2 {
		return "new"
	}

	if skill.LastAttemptedAt != nil && now.Sub(*skill.LastAttemptedAt) > inactiveAfter {
		return "inactive"
	}

	var sum float64
	seen := 0
	for i := len(p.FeedbackHistory) - 1; i >= 0 && seen < trendWindow; i-- {
		entry := p.FeedbackHistory[i]
		if entry.Topic != topic {
			continue
		}
		sum += entry.Delta
		seen++
	}

	switch {
	case sum > 5:
		return "improving"
	case sum < -5:
		return "declining"
	default:
		return "stable"
	}
}
