package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/skillrank/internal/app"
	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "skillrankd.pid"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "skillrank",
		Short: "Adaptive skill ratings and study material recommendations",
		Long: `skillrank keeps a per-topic Elo rating for each learner, updates it from
attempt outcomes and purchases, and recommends materials near the
learner's level that similar learners chose.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.skillrank/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(
		newVersionCmd(),
		newFeedbackCmd(),
		newRecommendCmd(),
		newProfileCmd(),
		newCalibrateCmd(),
		newSeedCmd(),
		newMCPCmd(),
		// Daemon control
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newLogsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput(cmd) {
				printJSON(map[string]string{"version": Version})
				return
			}
			fmt.Printf("skillrank %s\n", Version)
		},
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig reads the config named by --config, or the default location
func loadConfig(cmd *cobra.Command) (*config.LocalConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadLocalConfigFrom(path)
	}
	return config.LoadLocalConfig()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openApp loads configuration and opens the core against local storage
func openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	core, err := app.New(ctx, cfg, newLogger(cmd))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return core, nil
}
