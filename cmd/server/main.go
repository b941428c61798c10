// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Command server runs the recommendation API: it assembles the profile
// store, the engine, the optional model scorer and audit pipeline, and
// serves HTTP under a supervision tree until it receives SIGINT or
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/adaptivefit/coach/internal/api"
	"github.com/adaptivefit/coach/internal/audit"
	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/coach/scorers"
	"github.com/adaptivefit/coach/internal/config"
	"github.com/adaptivefit/coach/internal/logging"
	"github.com/adaptivefit/coach/internal/store"
	"github.com/adaptivefit/coach/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "adaptive-coach: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(cfg.Logging)
	log := logging.Logger()
	log.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("scorer_enabled", cfg.Scorer.Enabled).
		Bool("audit_enabled", cfg.Audit.Enabled).
		Msg("starting adaptive-coach server")

	st, err := store.Open(store.Options{
		Dir:      cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
	}, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}()

	var scorer coach.Scorer
	if cfg.Scorer.Enabled {
		ms, err := scorers.NewModelScorer(cfg.Scorer.Model, log)
		if err != nil {
			return fmt.Errorf("configuring model scorer: %w", err)
		}
		scorer = ms
	}

	var (
		sink     coach.AuditSink
		recorder *audit.Recorder
		archiver *audit.Archiver
	)
	if cfg.Audit.Enabled {
		recorder = audit.NewRecorder(log)
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Error().Err(err).Msg("audit recorder close failed")
			}
		}()
		archiver = audit.NewArchiver(recorder.Subscriber(), log)
		sink = recorder
	}

	engine, err := coach.New(cfg.Engine, st, st, scorer, sink, log)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	router := api.Router(engine, cfg.Server, log)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if archiver != nil {
		tree.AddDataService(archiver)
	}
	if cfg.Store.GCInterval > 0 && !cfg.Store.InMemory {
		tree.AddDataService(supervisor.NewGCService(cfg.Store.GCInterval, st.RunGC))
	}
	tree.AddAPIService(supervisor.NewHTTPService(&http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervision tree: %w", err)
	}
	log.Info().Msg("shutdown complete")
	return nil
}
