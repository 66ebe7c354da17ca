package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the daemon and CLI
type LocalConfig struct {
	Daemon      DaemonConfig      `yaml:"daemon"`
	Storage     StorageConfig     `yaml:"storage"`
	Queue       QueueConfig       `yaml:"queue"`
	Rating      RatingConfig      `yaml:"rating"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Cohort      CohortConfig      `yaml:"cohort"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port      int    `yaml:"port"`
	Bind      string `yaml:"bind"`
	LogLevel  string `yaml:"log_level"`
	RateLimit int    `yaml:"rate_limit_per_second"` // per client, 0 disables
}

// StorageConfig selects the skill store backend
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite, postgres, memory
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	DatabaseURL string `yaml:"-"` // Loaded from environment only
}

// QueueConfig holds feedback queue consumer settings
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"-"` // Loaded from environment only
	Workers  int    `yaml:"workers"`
	Prefetch int    `yaml:"prefetch"`
}

// RatingConfig holds the Elo update tunables
type RatingConfig struct {
	MinRating       float64 `yaml:"min_rating"`
	MaxRating       float64 `yaml:"max_rating"`
	ColdStart       float64 `yaml:"cold_start"`
	K0              float64 `yaml:"k0"`
	Scale           float64 `yaml:"scale"`
	KDecayAttempts  float64 `yaml:"k_decay_attempts"`
	PurchaseOutcome float64 `yaml:"purchase_outcome"`
	// CorrectThreshold is the graded outcome at or above which an attempt counts as correct.
	CorrectThreshold float64 `yaml:"correct_threshold"`
}

// CalibrationConfig holds the default label -> rating table
type CalibrationConfig struct {
	Labels map[int]float64 `yaml:"labels"`
}

// CohortConfig holds neighbor selection settings
type CohortConfig struct {
	BandWidth    float64 `yaml:"band_width"`
	MaxBandWidth float64 `yaml:"max_band_width"`
	GrowthFactor float64 `yaml:"growth_factor"`
}

// ScoringConfig holds recommendation blending settings
type ScoringConfig struct {
	Alpha         float64 `yaml:"alpha"`
	MinCohortSize int     `yaml:"min_cohort_size"`
	Limit         int     `yaml:"limit"`
	MaxLimit      int     `yaml:"max_limit"`
	ContentScale  float64 `yaml:"content_scale"`
	StretchBias   float64 `yaml:"stretch_bias"`
}

// ResilienceConfig holds settings for calls to external collaborators
type ResilienceConfig struct {
	TimeoutSeconds   int `yaml:"timeout_seconds"`
	MaxAttempts      int `yaml:"max_attempts"`
	InitialDelayMs   int `yaml:"initial_delay_ms"`
	FailureThreshold int `yaml:"failure_threshold"`
	MaxConcurrent    int `yaml:"max_concurrent"`
}

// SkillrankDir returns the path to ~/.skillrank
func SkillrankDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".skillrank"), nil
}

// EnsureSkillrankDir creates ~/.skillrank and subdirectories if they don't exist
func EnsureSkillrankDir() (string, error) {
	dir, err := SkillrankDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"data",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:      7433,
			Bind:      "127.0.0.1",
			LogLevel:  "info",
			RateLimit: 20,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Queue: QueueConfig{
			Enabled:  false,
			Workers:  3,
			Prefetch: 1,
		},
		Rating: RatingConfig{
			MinRating:        100,
			MaxRating:        2000,
			ColdStart:        1000,
			K0:               32,
			Scale:            400,
			KDecayAttempts:   10,
			PurchaseOutcome:  0.6,
			CorrectThreshold: 0.5,
		},
		Calibration: CalibrationConfig{
			Labels: map[int]float64{
				1: 600,
				2: 800,
				3: 1000,
				4: 1300,
				5: 1600,
			},
		},
		Cohort: CohortConfig{
			BandWidth:    100,
			MaxBandWidth: 400,
			GrowthFactor: 2,
		},
		Scoring: ScoringConfig{
			Alpha:         0.6,
			MinCohortSize: 3,
			Limit:         10,
			MaxLimit:      50,
			ContentScale:  100,
			StretchBias:   0,
		},
		Resilience: ResilienceConfig{
			TimeoutSeconds:   5,
			MaxAttempts:      3,
			InitialDelayMs:   100,
			FailureThreshold: 5,
			MaxConcurrent:    16,
		},
	}
}

// LoadLocalConfig loads configuration from ~/.skillrank/config.yaml,
// then applies environment overrides and validates the result.
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := SkillrankDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(filepath.Join(dir, "config.yaml"))
}

// LoadLocalConfigFrom loads configuration from an explicit path.
// A missing file yields the defaults.
func LoadLocalConfigFrom(configPath string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveLocalConfig saves configuration to ~/.skillrank/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureSkillrankDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks that tunables are mutually consistent
func (c *LocalConfig) Validate() error {
	r := c.Rating
	if r.MinRating <= 0 || r.MinRating >= r.MaxRating {
		return fmt.Errorf("rating: min_rating must be positive and below max_rating")
	}
	if r.ColdStart < r.MinRating || r.ColdStart > r.MaxRating {
		return fmt.Errorf("rating: cold_start %.0f outside [%.0f, %.0f]", r.ColdStart, r.MinRating, r.MaxRating)
	}
	if r.K0 <= 0 || r.Scale <= 0 || r.KDecayAttempts <= 0 {
		return fmt.Errorf("rating: k0, scale and k_decay_attempts must be positive")
	}
	if r.PurchaseOutcome < 0 || r.PurchaseOutcome > 1 {
		return fmt.Errorf("rating: purchase_outcome must be within [0, 1]")
	}
	if r.CorrectThreshold <= 0 || r.CorrectThreshold > 1 {
		return fmt.Errorf("rating: correct_threshold must be within (0, 1]")
	}

	prev := 0.0
	for label := 1; label <= 5; label++ {
		rating, ok := c.Calibration.Labels[label]
		if !ok {
			return fmt.Errorf("calibration: missing rating for label %d", label)
		}
		if rating < prev {
			return fmt.Errorf("calibration: label %d rating %.0f below label %d", label, rating, label-1)
		}
		prev = rating
	}

	if c.Cohort.BandWidth <= 0 || c.Cohort.MaxBandWidth < c.Cohort.BandWidth {
		return fmt.Errorf("cohort: band_width must be positive and not above max_band_width")
	}
	if c.Cohort.GrowthFactor <= 1 {
		return fmt.Errorf("cohort: growth_factor must be greater than 1")
	}

	s := c.Scoring
	if s.Alpha < 0 || s.Alpha > 1 {
		return fmt.Errorf("scoring: alpha must be within [0, 1]")
	}
	if s.Limit <= 0 || s.MaxLimit < s.Limit {
		return fmt.Errorf("scoring: limit must be positive and not above max_limit")
	}
	if s.ContentScale <= 0 {
		return fmt.Errorf("scoring: content_scale must be positive")
	}

	switch c.Storage.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage: postgres driver requires SKILLRANK_DATABASE_URL")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("queue: enabled but SKILLRANK_RABBITMQ_URL is not set")
	}

	return nil
}
