package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/felixgeelhaar/skillrank/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server for editor and agent integration",
		Long: `mcp serves the skillrank tools over stdio, or over HTTP when --http is
given. Logs go to stderr so the stdio transport stays clean.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			core, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer core.Close()

			srv := mcpserver.NewServer(mcpserver.Config{
				Store:       core.Store,
				Engine:      core.Engine,
				Recommender: core.Recommender,
				Calibrator:  core.Calibrator,
				ColdStart:   core.Config.Rating.ColdStart,
				Version:     Version,
			})

			if addr != "" {
				core.Logger.Info("serving MCP over HTTP", "addr", addr)
				return ignoreCanceled(srv.ServeHTTP(ctx, addr))
			}
			return ignoreCanceled(srv.ServeStdio(ctx))
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "Serve over HTTP on this address instead of stdio")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
