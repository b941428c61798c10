// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package scorers provides Scorer implementations backed by external
// services. The engine treats any scorer failure as a soft signal and
// falls back to its rule-based path, so implementations here prefer
// failing fast over retrying.
package scorers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/metrics"
	"github.com/adaptivefit/coach/internal/profile"
)

// maxResponseBytes bounds scorer responses; a well-formed candidate is a
// few hundred bytes.
const maxResponseBytes = 64 << 10

// ModelConfig configures the HTTP model scorer.
type ModelConfig struct {
	// URL is the scoring endpoint, called with POST.
	URL string `koanf:"url"`

	// Timeout bounds a single HTTP call. The engine applies its own
	// scorer timeout on top; this one protects the shared transport.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond rate-limits calls to the scoring service.
	// Zero disables the limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Burst is the rate limiter burst size.
	Burst int `koanf:"burst"`
}

// DefaultModelConfig returns production defaults.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Timeout:           200 * time.Millisecond,
		RequestsPerSecond: 50,
		Burst:             10,
	}
}

// scoreRequest is the wire request to the scoring service.
type scoreRequest struct {
	UserKey  string                 `json:"user_key"`
	Profile  *profile.Profile       `json:"profile"`
	Context  coach.SessionContext   `json:"context"`
	Exercise coach.ExerciseSnapshot `json:"exercise"`
}

// ModelScorer calls an external scoring service over HTTP. A circuit
// breaker stops hammering a failing service, and a rate limiter bounds
// outbound pressure. Both trip into coach.ErrScorerUnavailable, which
// the engine absorbs via its rule fallback.
type ModelScorer struct {
	cfg     ModelConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*coach.RawCandidate]
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewModelScorer builds the scorer. The returned scorer is safe for
// concurrent use.
func NewModelScorer(cfg ModelConfig, log zerolog.Logger) (*ModelScorer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("model scorer url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultModelConfig().Timeout
	}
	log = log.With().Str("component", "model_scorer").Logger()

	settings := gobreaker.Settings{
		Name:        "model_scorer",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("scorer circuit breaker state change")
		},
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &ModelScorer{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*coach.RawCandidate](settings),
		limiter: limiter,
		log:     log,
	}, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Name implements coach.Scorer.
func (s *ModelScorer) Name() string { return "model" }

// Score implements coach.Scorer.
func (s *ModelScorer) Score(ctx context.Context, p *profile.Profile, sctx coach.SessionContext, ex coach.ExerciseSnapshot) (*coach.RawCandidate, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return nil, fmt.Errorf("%w: rate limit exceeded", coach.ErrScorerUnavailable)
	}

	cand, err := s.breaker.Execute(func() (*coach.RawCandidate, error) {
		return s.call(ctx, p, sctx, ex)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("%w: circuit breaker open", coach.ErrScorerUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return cand, nil
}

func (s *ModelScorer) call(ctx context.Context, p *profile.Profile, sctx coach.SessionContext, ex coach.ExerciseSnapshot) (*coach.RawCandidate, error) {
	body, err := json.Marshal(scoreRequest{
		UserKey:  p.UserKey,
		Profile:  p,
		Context:  sctx,
		Exercise: ex,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coach.ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: scoring service returned %d", coach.ErrScorerUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading score response: %v", coach.ErrScorerUnavailable, err)
	}

	var cand coach.RawCandidate
	if err := json.Unmarshal(data, &cand); err != nil {
		return nil, fmt.Errorf("decoding score response: %w", err)
	}
	return &cand, nil
}
