package main

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/queue"
	"github.com/felixgeelhaar/skillrank/internal/rating"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newFeedbackCmd() *cobra.Command {
	var (
		req        rating.Request
		difficulty float64
		outcome    float64
		async      bool
	)

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record an attempt outcome or a purchase",
		Example: `  skillrank feedback --user u1 --topic 미적분 --label 3 --outcome 1
  skillrank feedback --user u1 --topic 미적분 --material m7 --kind purchase --rating 1200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rating") {
				req.DifficultyRating = &difficulty
			}
			if cmd.Flags().Changed("outcome") {
				req.Outcome = &outcome
			}
			if req.IdempotencyKey == "" {
				req.IdempotencyKey = uuid.NewString()
			}
			now := time.Now()
			req.OccurredAt = &now

			ctx := cmd.Context()
			core, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			ev, err := req.Event(core.Calibrator)
			if err != nil {
				return err
			}

			if async {
				if !core.Config.Queue.Enabled {
					return fmt.Errorf("--async needs the feedback queue (set SKILLRANK_QUEUE_ENABLED and SKILLRANK_RABBITMQ_URL)")
				}
				conn, err := queue.NewConnection(core.Config.Queue.URL, core.Logger)
				if err != nil {
					return err
				}
				defer conn.Close()

				msg := queue.NewFeedbackMessage(ev)
				if err := queue.NewProducer(conn, core.Logger).PublishFeedback(ctx, msg); err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(map[string]any{"queued": true, "message_id": msg.ID})
				}
				fmt.Printf("Queued feedback %s\n", msg.ID)
				return nil
			}

			res, err := core.Engine.Apply(ctx, ev)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return printJSON(res)
			}

			if res.Duplicate {
				fmt.Printf("Already applied: %s\n", req.IdempotencyKey)
				return nil
			}
			skill := res.Profile.TopicSkills[ev.Topic]
			fmt.Printf("%s / %s: %.2f -> %.2f (%+.2f)\n",
				ev.UserID, ev.Topic, res.Entry.RatingBefore, res.Entry.RatingAfter, res.Entry.Delta)
			fmt.Printf("Attempts: %d  Correct: %d  Overall: %.2f\n",
				skill.Attempts, skill.Correct, res.Profile.OverallRating)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.UserID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "Topic (required)")
	cmd.Flags().StringVar(&req.Kind, "kind", "attempt", "Feedback kind: attempt or purchase")
	cmd.Flags().StringVar(&req.MaterialID, "material", "", "Material ID")
	cmd.Flags().Float64Var(&difficulty, "rating", 0, "Material difficulty rating")
	cmd.Flags().IntVar(&req.DifficultyLabel, "label", 0, "Material difficulty label (1-5)")
	cmd.Flags().Float64Var(&outcome, "outcome", 0, "Attempt outcome in [0, 1]")
	cmd.Flags().StringVar(&req.IdempotencyKey, "key", "", "Idempotency key (default: random)")
	cmd.Flags().BoolVar(&async, "async", false, "Publish to the feedback queue instead of applying")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("topic")

	return cmd
}
