package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSkillrankDir(t *testing.T) {
	dir, err := SkillrankDir()
	if err != nil {
		t.Fatalf("SkillrankDir() error = %v", err)
	}

	if filepath.Base(dir) != ".skillrank" {
		t.Errorf("SkillrankDir() = %q, want ending with .skillrank", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("SkillrankDir() = %q, want absolute path", dir)
	}
}

func TestEnsureSkillrankDir(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := EnsureSkillrankDir()
	if err != nil {
		t.Fatalf("EnsureSkillrankDir() error = %v", err)
	}

	expectedDir := filepath.Join(tmpHome, ".skillrank")
	if dir != expectedDir {
		t.Errorf("EnsureSkillrankDir() = %q, want %q", dir, expectedDir)
	}

	for _, subdir := range []string{"logs", "data"} {
		path := filepath.Join(dir, subdir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("EnsureSkillrankDir() should create %s", subdir)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()
	if cfg == nil {
		t.Fatal("DefaultLocalConfig() returned nil")
	}

	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want 7433", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want 127.0.0.1", cfg.Daemon.Bind)
	}
	if cfg.Rating.ColdStart != 1000 {
		t.Errorf("Rating.ColdStart = %v, want 1000", cfg.Rating.ColdStart)
	}
	if cfg.Rating.MinRating != 100 || cfg.Rating.MaxRating != 2000 {
		t.Errorf("Rating bounds = [%v, %v], want [100, 2000]", cfg.Rating.MinRating, cfg.Rating.MaxRating)
	}
	if cfg.Rating.K0 != 32 || cfg.Rating.Scale != 400 {
		t.Errorf("K0/Scale = %v/%v, want 32/400", cfg.Rating.K0, cfg.Rating.Scale)
	}
	if cfg.Scoring.Alpha != 0.6 {
		t.Errorf("Scoring.Alpha = %v, want 0.6", cfg.Scoring.Alpha)
	}
	if cfg.Scoring.Limit != 10 {
		t.Errorf("Scoring.Limit = %d, want 10", cfg.Scoring.Limit)
	}
	if cfg.Cohort.BandWidth != 100 {
		t.Errorf("Cohort.BandWidth = %v, want 100", cfg.Cohort.BandWidth)
	}

	want := map[int]float64{1: 600, 2: 800, 3: 1000, 4: 1300, 5: 1600}
	for label, rating := range want {
		if got := cfg.Calibration.Labels[label]; got != rating {
			t.Errorf("Calibration.Labels[%d] = %v, want %v", label, got, rating)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadLocalConfig_NoFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want default 7433", cfg.Daemon.Port)
	}
}

func TestLoadLocalConfig_WithFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := EnsureSkillrankDir()
	if err != nil {
		t.Fatalf("EnsureSkillrankDir() error = %v", err)
	}

	content := `
daemon:
  port: 8080
  bind: 0.0.0.0
  log_level: debug
scoring:
  alpha: 0.8
  limit: 5
  max_limit: 20
  content_scale: 100
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}

	if cfg.Daemon.Port != 8080 {
		t.Errorf("Daemon.Port = %d, want 8080", cfg.Daemon.Port)
	}
	if cfg.Scoring.Alpha != 0.8 {
		t.Errorf("Scoring.Alpha = %v, want 0.8", cfg.Scoring.Alpha)
	}
	// Sections absent from the file keep their defaults
	if cfg.Rating.ColdStart != 1000 {
		t.Errorf("Rating.ColdStart = %v, want 1000", cfg.Rating.ColdStart)
	}
}

func TestLoadLocalConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("daemon: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadLocalConfigFrom(path); err == nil {
		t.Error("LoadLocalConfigFrom() should fail on invalid YAML")
	}
}

func TestSaveLocalConfig(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 9999
	cfg.Scoring.StretchBias = 50

	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpHome, ".skillrank", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var loaded LocalConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if loaded.Daemon.Port != 9999 {
		t.Errorf("saved Daemon.Port = %d, want 9999", loaded.Daemon.Port)
	}
	if loaded.Scoring.StretchBias != 50 {
		t.Errorf("saved Scoring.StretchBias = %v, want 50", loaded.Scoring.StretchBias)
	}
}

func TestLocalConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LocalConfig)
		wantErr string
	}{
		{"defaults", func(*LocalConfig) {}, ""},
		{"inverted bounds", func(c *LocalConfig) { c.Rating.MinRating = 3000 }, "min_rating"},
		{"cold start out of range", func(c *LocalConfig) { c.Rating.ColdStart = 50 }, "cold_start"},
		{"purchase outcome above one", func(c *LocalConfig) { c.Rating.PurchaseOutcome = 1.5 }, "purchase_outcome"},
		{"missing label", func(c *LocalConfig) { delete(c.Calibration.Labels, 3) }, "label 3"},
		{"non-monotonic labels", func(c *LocalConfig) { c.Calibration.Labels[4] = 900 }, "label 4"},
		{"alpha out of range", func(c *LocalConfig) { c.Scoring.Alpha = -0.1 }, "alpha"},
		{"band above cap", func(c *LocalConfig) { c.Cohort.BandWidth = 500 }, "band_width"},
		{"unknown driver", func(c *LocalConfig) { c.Storage.Driver = "mongo" }, "unknown driver"},
		{"postgres without url", func(c *LocalConfig) { c.Storage.Driver = "postgres" }, "SKILLRANK_DATABASE_URL"},
		{"queue without url", func(c *LocalConfig) { c.Queue.Enabled = true }, "SKILLRANK_RABBITMQ_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLocalConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
