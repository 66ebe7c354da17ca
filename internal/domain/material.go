package domain

import "time"

// Label bounds for editorial difficulty
const (
	MinDifficultyLabel = 1
	MaxDifficultyLabel = 5
)

// Material is a read-only catalog entry as seen by the recommendation core
type Material struct {
	ID              string `json:"material_id"`
	Topic           string `json:"topic"`
	Subject         string `json:"subject"`
	DifficultyLabel int    `json:"difficulty_label"`
	// DifficultyRating is set only when an admin overrides the calibrated value.
	DifficultyRating *float64 `json:"difficulty_rating,omitempty"`
	// Attributes carries free-form catalog metadata such as grade or publisher.
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// HasOverride reports whether an explicit difficulty rating is set.
func (m Material) HasOverride() bool {
	return m.DifficultyRating != nil
}

// PurchaseSignal is one completed paid acquisition from the purchase ledger
type PurchaseSignal struct {
	UserID           string    `json:"user_id"`
	MaterialID       string    `json:"material_id"`
	Topic            string    `json:"topic"`
	DifficultyRating float64   `json:"difficulty_rating"`
	PurchasedAt      time.Time `json:"purchased_at"`
}

// Recommendation is one ranked result
type Recommendation struct {
	MaterialID   string  `json:"material_id"`
	Topic        string  `json:"topic"`
	Score        float64 `json:"score"`
	ContentScore float64 `json:"content_score"`
	CohortScore  float64 `json:"cohort_score"`
	Difficulty   float64 `json:"difficulty_rating"`
}
