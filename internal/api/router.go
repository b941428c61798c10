// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package api exposes the engine over HTTP: recommendation and feedback
// operations, profile and insight reads, session completion logging,
// plus health and Prometheus endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/config"
	"github.com/adaptivefit/coach/internal/profile"
)

// Engine is the surface the API needs from the recommendation engine.
type Engine interface {
	Recommend(ctx context.Context, userKey string, ex coach.ExerciseSnapshot, raw coach.RawSignals) (*coach.Recommendation, error)
	SubmitFeedback(ctx context.Context, userKey string, event coach.FeedbackEvent) (profile.Summary, error)
	LogSessionCompletion(ctx context.Context, userKey, exercise string, ratio float64) error
	Profile(ctx context.Context, userKey string) (*profile.Profile, error)
	Insights(ctx context.Context, userKey string) (*coach.Insights, error)
}

// Router builds the chi router with the full middleware stack.
func Router(engine Engine, cfg config.ServerConfig, log zerolog.Logger) *chi.Mux {
	h := &handlers{
		engine: engine,
		log:    log.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(requestLogger(h.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if cfg.RateLimit > 0 {
		r.Use(httprate.Limit(cfg.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rateLimitExceeded),
		))
	}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metricsMiddleware)
		r.Get("/health", h.health)
		r.Post("/recommendations", h.recommend)
		r.Post("/feedback", h.feedback)
		r.Post("/sessions", h.logSession)
		r.Route("/users/{userKey}", func(r chi.Router) {
			r.Get("/profile", h.profile)
			r.Get("/insights", h.insights)
		})
	})

	return r
}
