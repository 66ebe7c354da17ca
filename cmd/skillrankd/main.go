package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/app"
	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/daemon"
	"github.com/felixgeelhaar/skillrank/internal/queue"
)

const (
	pidFileName = "skillrankd.pid"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	skillrankDir, err := config.EnsureSkillrankDir()
	if err != nil {
		return fmt.Errorf("ensure skillrank dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogging(skillrankDir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()
	logger := slog.Default()

	pidPath := filepath.Join(skillrankDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init core: %w", err)
	}
	defer core.Close()

	serverCfg := daemon.ServerConfig{
		Config:      cfg,
		Store:       core.Store,
		Engine:      core.Engine,
		Recommender: core.Recommender,
		Calibrator:  core.Calibrator,
		Logger:      logger,
	}

	var consumer *queue.Consumer
	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL, logger)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer conn.Close()

		serverCfg.Publisher = queue.NewProducer(conn, logger)

		consumer = queue.NewConsumer(conn, core.Engine, queue.ConsumerConfig{
			Workers:  cfg.Queue.Workers,
			Prefetch: cfg.Queue.Prefetch,
		}, logger)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
	}

	server, err := daemon.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		if consumer != nil {
			consumer.Stop()
		}
		close(done)
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("daemon stopped")
	return nil
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}
