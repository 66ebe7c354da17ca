package calibration

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/skillrank/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func TestCalibrator_RatingForLabel(t *testing.T) {
	c := Default()

	tests := []struct {
		label   int
		want    float64
		wantErr bool
	}{
		{1, 600, false},
		{2, 800, false},
		{3, 1000, false},
		{4, 1300, false},
		{5, 1600, false},
		{0, 0, true},
		{6, 0, true},
		{-1, 0, true},
	}

	for _, tt := range tests {
		got, err := c.RatingForLabel(tt.label)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrInvalidLabel) {
				t.Errorf("RatingForLabel(%d) error = %v; want ErrInvalidLabel", tt.label, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("RatingForLabel(%d) error = %v", tt.label, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RatingForLabel(%d) = %v; want %v", tt.label, got, tt.want)
		}
	}
}

func TestCalibrator_Resolve(t *testing.T) {
	c := Default()

	tests := []struct {
		name     string
		material domain.Material
		want     float64
		wantErr  error
	}{
		{"label only", domain.Material{DifficultyLabel: 4}, 1300, nil},
		{"override wins", domain.Material{DifficultyLabel: 4, DifficultyRating: ptr(950)}, 950, nil},
		{"non-monotonic override kept", domain.Material{DifficultyLabel: 1, DifficultyRating: ptr(1900)}, 1900, nil},
		{"override above max falls back", domain.Material{DifficultyLabel: 2, DifficultyRating: ptr(5000)}, 800, nil},
		{"override below min falls back", domain.Material{DifficultyLabel: 3, DifficultyRating: ptr(10)}, 1000, nil},
		{"bad label without override", domain.Material{DifficultyLabel: 9}, 0, domain.ErrInvalidLabel},
		{"bad label with override", domain.Material{DifficultyLabel: 9, DifficultyRating: ptr(700)}, 700, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Resolve(tt.material)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v; want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		labels  map[int]float64
		wantErr error
	}{
		{"missing label", map[int]float64{1: 600, 2: 800, 3: 1000, 4: 1300}, domain.ErrInvalidLabel},
		{"decreasing", map[int]float64{1: 600, 2: 500, 3: 1000, 4: 1300, 5: 1600}, domain.ErrInvalidRating},
		{"out of bounds", map[int]float64{1: 50, 2: 800, 3: 1000, 4: 1300, 5: 1600}, domain.ErrInvalidRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.labels, 100, 2000); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCalibrator_TableIsCopy(t *testing.T) {
	c := Default()
	table := c.Table()
	table[3] = 1

	if got, _ := c.RatingForLabel(3); got != 1000 {
		t.Errorf("RatingForLabel(3) = %v after mutating Table(); want 1000", got)
	}
}
