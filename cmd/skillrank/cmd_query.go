package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/calibration"
	"github.com/felixgeelhaar/skillrank/internal/skills"
	"github.com/spf13/cobra"
)

func newRecommendCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recommend <user-id>",
		Short: "Rank study materials for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			ranking, err := core.Recommender.Recommend(ctx, args[0], limit)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(map[string]any{
					"user_id":         ranking.UserID,
					"cohort_size":     ranking.CohortSize,
					"fallback":        ranking.Fallback,
					"alpha":           ranking.Alpha,
					"recommendations": ranking.Items(),
				})
			}

			fmt.Printf("Recommendations for %s\n", ranking.UserID)
			fmt.Println(strings.Repeat("=", 20+len(ranking.UserID)))
			if ranking.Fallback {
				fmt.Printf("Cohort: none (content only)\n")
			} else {
				fmt.Printf("Cohort: %d users  alpha=%.2f\n", ranking.CohortSize, ranking.Alpha)
			}
			if ranking.Len() == 0 {
				fmt.Println("\nNo materials to recommend.")
				return nil
			}
			fmt.Println()
			fmt.Printf("%-4s %-20s %-16s %8s %8s %8s %8s\n", "#", "MATERIAL", "TOPIC", "RATING", "SCORE", "CONTENT", "COHORT")
			i := 1
			for rec := range ranking.All() {
				fmt.Printf("%-4d %-20s %-16s %8.0f %8.3f %8.3f %8.3f\n",
					i, rec.MaterialID, rec.Topic, rec.Difficulty, rec.Score, rec.ContentScore, rec.CohortScore)
				i++
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of results (default from config)")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "profile <user-id>",
		Short: "Show a user's topic ratings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			profile, err := core.Store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			summary := skills.Summarize(profile, top, time.Now())

			if jsonOutput(cmd) {
				return printJSON(map[string]any{"profile": profile, "summary": summary})
			}

			fmt.Printf("Skill Profile: %s\n", summary.UserID)
			fmt.Println("==================")
			fmt.Printf("Overall Rating:  %.0f\n", summary.OverallRating)
			fmt.Printf("Attempts:        %d (%.1f%% correct)\n", summary.TotalAttempts, summary.Accuracy*100)
			fmt.Printf("Purchases:       %d\n", summary.Purchases)

			if len(summary.Topics) > 0 {
				fmt.Println("\nTopics")
				fmt.Println("------")
				for _, t := range summary.Topics {
					bar := renderRatingBar(t.Rating, core.Config.Rating.MinRating, core.Config.Rating.MaxRating, 20)
					fmt.Printf("%-20s %s %5.0f (%d attempts) %s\n", t.Topic, bar, t.Rating, t.Attempts, t.Trend)
				}
			}
			if len(summary.Weakest) > 0 {
				names := make([]string, 0, len(summary.Weakest))
				for _, t := range summary.Weakest {
					names = append(names, t.Topic)
				}
				fmt.Printf("\nNeeds practice: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 3, "Size of the strongest and weakest lists")
	return cmd
}

func newCalibrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate [label]",
		Short: "Show the default rating for difficulty labels",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cal, err := calibration.FromConfig(cfg)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				label, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("label must be an integer: %w", err)
				}
				r, err := cal.RatingForLabel(label)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(map[string]any{"label": label, "rating": r})
				}
				fmt.Printf("%d -> %.0f\n", label, r)
				return nil
			}

			table := cal.Table()
			if jsonOutput(cmd) {
				return printJSON(table)
			}
			labels := make([]int, 0, len(table))
			for label := range table {
				labels = append(labels, label)
			}
			sort.Ints(labels)
			for _, label := range labels {
				fmt.Printf("%d -> %.0f\n", label, table[label])
			}
			return nil
		},
	}
}

// renderRatingBar draws r's position between lo and hi
func renderRatingBar(r, lo, hi float64, width int) string {
	level := (r - lo) / (hi - lo)
	filled := int(level * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
