// Package app assembles the rating and recommendation core over the
// configured storage backend. The daemon, the CLI and the MCP server all
// build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/felixgeelhaar/skillrank/internal/calibration"
	"github.com/felixgeelhaar/skillrank/internal/catalog"
	"github.com/felixgeelhaar/skillrank/internal/cohort"
	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/rating"
	"github.com/felixgeelhaar/skillrank/internal/recommend"
	"github.com/felixgeelhaar/skillrank/internal/skills"
	"github.com/felixgeelhaar/skillrank/internal/storage/postgres"
	"github.com/felixgeelhaar/skillrank/internal/storage/sqlite"
)

// App holds the wired core services
type App struct {
	Config      *config.LocalConfig
	Store       skills.Store
	Catalog     catalog.Catalog
	Ledger      catalog.Ledger
	Writer      catalog.Writer
	Calibrator  *calibration.Calibrator
	Engine      *rating.Engine
	Finder      *cohort.Finder
	Recommender *recommend.Service
	Logger      *slog.Logger

	closers []func() error
}

// New opens storage for cfg.Storage.Driver and wires the core on top of it
func New(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cal, err := calibration.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	a := &App{
		Config:     cfg,
		Calibrator: cal,
		Logger:     logger,
	}

	var (
		cat    catalog.Catalog
		ledger catalog.Ledger
	)

	switch cfg.Storage.Driver {
	case "memory":
		mem := catalog.NewMemory()
		a.Store = skills.NewMemoryStore(cfg.Rating.ColdStart)
		cat, ledger, a.Writer = mem, mem, mem

	case "sqlite":
		path, err := sqlitePath(cfg)
		if err != nil {
			return nil, err
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		store := sqlite.NewCatalogStore(db)
		a.Store = sqlite.NewSkillStore(db, cfg.Rating.ColdStart)
		cat, ledger, a.Writer = store, store, store
		logger.Debug("using sqlite storage", "path", path)

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		store, err := postgres.OpenCatalog(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.Store = postgres.NewSkillStore(pool, cfg.Rating.ColdStart, logger)
		cat, ledger, a.Writer = store, store, store
		logger.Debug("using postgres storage")

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	resilient := catalog.NewResilient(cat, ledger, cfg.Resilience, logger)
	a.Catalog = resilient
	a.Ledger = resilient

	a.Engine = rating.NewEngine(a.Store, cfg.Rating, logger)
	a.Finder = cohort.NewFinder(a.Store, cfg.Cohort, logger)
	a.Recommender = recommend.NewService(recommend.ServiceDeps{
		Store:   a.Store,
		Finder:  a.Finder,
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Scorer:  recommend.NewScorer(cal, cfg.Scoring, cfg.Rating.ColdStart, logger),
		Logger:  logger,
	}, cfg)

	return a, nil
}

// Close releases storage handles in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func sqlitePath(cfg *config.LocalConfig) (string, error) {
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath, nil
	}
	dir, err := config.EnsureSkillrankDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data", "skillrank.db"), nil
}
