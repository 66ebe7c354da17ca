package domain

import (
	"time"

	"github.com/google/uuid"
)

// SkillProfile tracks a user's competency estimate per topic
type SkillProfile struct {
	UserID          string                `json:"user_id"`
	TopicSkills     map[string]TopicSkill `json:"topic_skills"` // "미적분" -> skill
	OverallRating   float64               `json:"overall_rating"`
	TotalAttempts   int                   `json:"total_attempts"`
	TotalCorrect    int                   `json:"total_correct"`
	FeedbackHistory []FeedbackEntry       `json:"feedback_history"`
	Version         int64                 `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// TopicSkill is the rating record for a single topic
type TopicSkill struct {
	Rating          float64    `json:"rating"`
	Attempts        int        `json:"attempts"`
	Correct         int        `json:"correct"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
}

// Accuracy returns correct/attempts, or 0 when nothing was attempted.
func (s TopicSkill) Accuracy() float64 {
	if s.Attempts == 0 {
		return 0.0
	}
	return float64(s.Correct) / float64(s.Attempts)
}

// FeedbackEntry is one line of the append-only audit log
type FeedbackEntry struct {
	ID             uuid.UUID    `json:"id"`
	IdempotencyKey string       `json:"idempotency_key"`
	Kind           FeedbackKind `json:"kind"`
	Topic          string       `json:"topic"`
	MaterialID     string       `json:"material_id,omitempty"`
	MaterialRating float64      `json:"material_rating"`
	Outcome        float64      `json:"outcome"`
	Expected       float64      `json:"expected"`
	RatingBefore   float64      `json:"rating_before"`
	RatingAfter    float64      `json:"rating_after"`
	Delta          float64      `json:"delta"`
	RecordedAt     time.Time    `json:"recorded_at"`
}

// TopicUpdate is the result of one rating computation, ready to be persisted
type TopicUpdate struct {
	Topic     string
	NewRating float64
	// Counted is false for implicit signals that must not bump attempt counters.
	Counted bool
	Correct bool
	Entry   FeedbackEntry
}

// NewSkillProfile creates a cold-start profile that is not yet persisted
func NewSkillProfile(userID string, coldStart float64) *SkillProfile {
	now := time.Now()
	return &SkillProfile{
		UserID:          userID,
		TopicSkills:     make(map[string]TopicSkill),
		OverallRating:   coldStart,
		FeedbackHistory: []FeedbackEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Skill returns the skill for a topic, defaulting unknown topics to coldStart.
func (p *SkillProfile) Skill(topic string, coldStart float64) TopicSkill {
	if skill, ok := p.TopicSkills[topic]; ok {
		return skill
	}
	return TopicSkill{Rating: coldStart}
}

// HasFeedback reports whether an idempotency key was already applied.
func (p *SkillProfile) HasFeedback(key string) bool {
	for i := len(p.FeedbackHistory) - 1; i >= 0; i-- {
		if p.FeedbackHistory[i].IdempotencyKey == key {
			return true
		}
	}
	return false
}

// Apply writes a computed topic update into the profile: topic rating,
// counters, overall rating, history and timestamps.
func (p *SkillProfile) Apply(u TopicUpdate, now time.Time) {
	if p.TopicSkills == nil {
		p.TopicSkills = make(map[string]TopicSkill)
	}

	skill := p.TopicSkills[u.Topic]
	skill.Rating = u.NewRating
	if u.Counted {
		skill.Attempts++
		p.TotalAttempts++
		if u.Correct {
			skill.Correct++
			p.TotalCorrect++
		}
		at := now
		skill.LastAttemptedAt = &at
	}
	p.TopicSkills[u.Topic] = skill

	p.RecomputeOverall()

	entry := u.Entry
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = now
	}
	p.FeedbackHistory = append(p.FeedbackHistory, entry)
	p.UpdatedAt = now
}

// RecomputeOverall sets OverallRating to the attempts-weighted mean of all
// attempted topics. With no attempts the current value is kept.
func (p *SkillProfile) RecomputeOverall() {
	var weighted float64
	var total int
	for _, skill := range p.TopicSkills {
		if skill.Attempts == 0 {
			continue
		}
		weighted += skill.Rating * float64(skill.Attempts)
		total += skill.Attempts
	}
	if total == 0 {
		return
	}
	p.OverallRating = weighted / float64(total)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (p *SkillProfile) Clone() *SkillProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.TopicSkills = make(map[string]TopicSkill, len(p.TopicSkills))
	for topic, skill := range p.TopicSkills {
		if skill.LastAttemptedAt != nil {
			at := *skill.LastAttemptedAt
			skill.LastAttemptedAt = &at
		}
		c.TopicSkills[topic] = skill
	}
	c.FeedbackHistory = append([]FeedbackEntry(nil), p.FeedbackHistory...)
	return &c
}
