package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/app"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/rating"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout accepted by `skillrank seed`
type seedFile struct {
	Materials []seedMaterial `yaml:"materials"`
	Purchases []seedPurchase `yaml:"purchases"`
	Feedback  []seedFeedback `yaml:"feedback"`
}

type seedMaterial struct {
	ID               string            `yaml:"id"`
	Topic            string            `yaml:"topic"`
	Subject          string            `yaml:"subject"`
	DifficultyLabel  int               `yaml:"difficulty_label"`
	DifficultyRating *float64          `yaml:"difficulty_rating"`
	Attributes       map[string]string `yaml:"attributes"`
	CreatedAt        time.Time         `yaml:"created_at"`
}

type seedPurchase struct {
	UserID      string    `yaml:"user_id"`
	MaterialID  string    `yaml:"material_id"`
	PurchasedAt time.Time `yaml:"purchased_at"`
}

type seedFeedback struct {
	UserID           string   `yaml:"user_id"`
	Kind             string   `yaml:"kind"`
	Topic            string   `yaml:"topic"`
	MaterialID       string   `yaml:"material_id"`
	DifficultyLabel  int      `yaml:"difficulty_label"`
	DifficultyRating *float64 `yaml:"difficulty_rating"`
	Outcome          *float64 `yaml:"outcome"`
	Key              string   `yaml:"key"`
}

// seedStats counts what one seed run wrote
type seedStats struct {
	Materials int `json:"materials"`
	Purchases int `json:"purchases"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load materials, purchases and feedback from a YAML file",
		Long: `seed writes catalog materials and purchase ledger entries, then replays
feedback through the rating engine. Every purchase is also applied as
purchase feedback. Re-running a file is safe: feedback keys are
idempotent, materials are upserted and a purchase is recorded once per
user, material and time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSeedFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			core, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			stats, err := f.apply(ctx, core)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(stats)
			}
			fmt.Printf("Seeded %d materials, %d purchases\n", stats.Materials, stats.Purchases)
			fmt.Printf("Feedback: %d applied, %d already present\n", stats.Applied, stats.Skipped)
			return nil
		},
	}
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	ids := make(map[string]struct{}, len(f.Materials))
	for i, m := range f.Materials {
		if m.ID == "" || m.Topic == "" {
			return nil, fmt.Errorf("materials[%d]: id and topic are required", i)
		}
		if _, dup := ids[m.ID]; dup {
			return nil, fmt.Errorf("materials[%d]: duplicate id %q", i, m.ID)
		}
		ids[m.ID] = struct{}{}
	}
	for i, p := range f.Purchases {
		if p.UserID == "" || p.MaterialID == "" {
			return nil, fmt.Errorf("purchases[%d]: user_id and material_id are required", i)
		}
	}
	return &f, nil
}

func (f *seedFile) apply(ctx context.Context, core *app.App) (*seedStats, error) {
	stats := &seedStats{}
	now := time.Now()

	materials := make(map[string]domain.Material, len(f.Materials))
	for _, sm := range f.Materials {
		m := domain.Material{
			ID:               sm.ID,
			Topic:            sm.Topic,
			Subject:          sm.Subject,
			DifficultyLabel:  sm.DifficultyLabel,
			DifficultyRating: sm.DifficultyRating,
			Attributes:       sm.Attributes,
			CreatedAt:        sm.CreatedAt,
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if _, err := core.Calibrator.Resolve(m); err != nil {
			return stats, fmt.Errorf("material %s: %w", m.ID, err)
		}
		if err := core.Writer.PutMaterial(ctx, m); err != nil {
			return stats, fmt.Errorf("put material %s: %w", m.ID, err)
		}
		materials[m.ID] = m
		stats.Materials++
	}

	for _, sp := range f.Purchases {
		m, ok := materials[sp.MaterialID]
		if !ok {
			existing, err := core.Catalog.GetMaterial(ctx, sp.MaterialID)
			if err != nil {
				return stats, fmt.Errorf("purchase of %s: %w", sp.MaterialID, err)
			}
			m = *existing
		}
		difficulty, err := core.Calibrator.Resolve(m)
		if err != nil {
			return stats, fmt.Errorf("purchase of %s: %w", sp.MaterialID, err)
		}
		at := sp.PurchasedAt
		if at.IsZero() {
			// An undated purchase is recorded once per user and material
			prior, err := priorPurchase(ctx, core, sp.UserID, m.ID)
			if err != nil {
				return stats, err
			}
			at = now
			if prior != nil {
				at = prior.PurchasedAt
			}
		}

		if err := core.Writer.RecordPurchase(ctx, domain.PurchaseSignal{
			UserID:           sp.UserID,
			MaterialID:       m.ID,
			Topic:            m.Topic,
			DifficultyRating: difficulty,
			PurchasedAt:      at,
		}); err != nil {
			return stats, fmt.Errorf("record purchase: %w", err)
		}
		stats.Purchases++

		err = applySeedFeedback(ctx, core, rating.Request{
			UserID:           sp.UserID,
			Kind:             string(domain.FeedbackPurchase),
			Topic:            m.Topic,
			MaterialID:       m.ID,
			DifficultyRating: &difficulty,
			IdempotencyKey:   "purchase:" + sp.UserID + ":" + m.ID,
			OccurredAt:       &at,
		}, stats)
		if err != nil {
			return stats, err
		}
	}

	for i, sf := range f.Feedback {
		key := sf.Key
		if key == "" {
			key = fmt.Sprintf("seed:%s:%d", sf.UserID, i)
		}
		kind := sf.Kind
		if kind == "" {
			kind = string(domain.FeedbackAttempt)
		}
		req := rating.Request{
			UserID:           sf.UserID,
			Kind:             kind,
			Topic:            sf.Topic,
			MaterialID:       sf.MaterialID,
			DifficultyRating: sf.DifficultyRating,
			DifficultyLabel:  sf.DifficultyLabel,
			Outcome:          sf.Outcome,
			IdempotencyKey:   key,
		}
		if m, ok := materials[sf.MaterialID]; ok && req.DifficultyRating == nil && req.DifficultyLabel == 0 {
			difficulty, err := core.Calibrator.Resolve(m)
			if err != nil {
				return stats, fmt.Errorf("feedback[%d]: %w", i, err)
			}
			req.DifficultyRating = &difficulty
		}
		if err := applySeedFeedback(ctx, core, req, stats); err != nil {
			return stats, fmt.Errorf("feedback[%d]: %w", i, err)
		}
	}

	return stats, nil
}

// priorPurchase returns the user's existing ledger entry for a material, if any
func priorPurchase(ctx context.Context, core *app.App, userID, materialID string) (*domain.PurchaseSignal, error) {
	purchases, err := core.Ledger.PurchasesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read purchases of %s: %w", userID, err)
	}
	for i := range purchases {
		if purchases[i].MaterialID == materialID {
			return &purchases[i], nil
		}
	}
	return nil, nil
}

func applySeedFeedback(ctx context.Context, core *app.App, req rating.Request, stats *seedStats) error {
	ev, err := req.Event(core.Calibrator)
	if err != nil {
		return err
	}
	res, err := core.Engine.Apply(ctx, ev)
	if err != nil {
		return err
	}
	if res.Duplicate {
		stats.Skipped++
	} else {
		stats.Applied++
	}
	return nil
}
