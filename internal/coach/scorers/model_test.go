// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package scorers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/profile"
)

func newScorerAgainst(t *testing.T, url string) *ModelScorer {
	t.Helper()
	cfg := DefaultModelConfig()
	cfg.URL = url
	cfg.RequestsPerSecond = 0
	s, err := NewModelScorer(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewModelScorer: %v", err)
	}
	return s
}

func TestModelScorerHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.UserKey != "user-1" || req.Exercise.Exercise != "Bench Press" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(coach.RawCandidate{
			Type:           coach.TypeIncreaseLoad,
			SuggestedValue: 84,
			Confidence:     0.85,
			Reasoning:      "model-driven progression",
		})
	}))
	defer srv.Close()

	s := newScorerAgainst(t, srv.URL)
	cand, err := s.Score(context.Background(), profile.Default("user-1"), coach.SessionContext{}, coach.ExerciseSnapshot{
		Exercise: "Bench Press", PlannedWeight: 80,
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if cand.Type != coach.TypeIncreaseLoad || cand.SuggestedValue != 84 {
		t.Errorf("candidate mismatch: %+v", cand)
	}
}

func TestModelScorerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newScorerAgainst(t, srv.URL)
	_, err := s.Score(context.Background(), profile.Default("user-1"), coach.SessionContext{}, coach.ExerciseSnapshot{Exercise: "Rows"})
	if !errors.Is(err, coach.ErrScorerUnavailable) {
		t.Fatalf("expected ErrScorerUnavailable, got %v", err)
	}
}

func TestModelScorerCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newScorerAgainst(t, srv.URL)
	ctx := context.Background()
	p := profile.Default("user-1")
	ex := coach.ExerciseSnapshot{Exercise: "Rows"}

	// Enough consecutive failures to trip the breaker.
	for i := 0; i < 15; i++ {
		s.Score(ctx, p, coach.SessionContext{}, ex)
	}
	tripped := calls.Load()

	// With the breaker open, further calls never reach the server.
	for i := 0; i < 5; i++ {
		if _, err := s.Score(ctx, p, coach.SessionContext{}, ex); !errors.Is(err, coach.ErrScorerUnavailable) {
			t.Fatalf("expected ErrScorerUnavailable with open breaker, got %v", err)
		}
	}
	if calls.Load() != tripped {
		t.Errorf("breaker did not stop traffic: %d calls after trip", calls.Load()-tripped)
	}
}

func TestModelScorerRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(coach.RawCandidate{Type: coach.TypeHold, Confidence: 0.5})
	}))
	defer srv.Close()

	cfg := DefaultModelConfig()
	cfg.URL = srv.URL
	cfg.RequestsPerSecond = 1
	cfg.Burst = 1
	s, err := NewModelScorer(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewModelScorer: %v", err)
	}

	ctx := context.Background()
	p := profile.Default("user-1")
	ex := coach.ExerciseSnapshot{Exercise: "Rows"}

	if _, err := s.Score(ctx, p, coach.SessionContext{}, ex); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := s.Score(ctx, p, coach.SessionContext{}, ex); !errors.Is(err, coach.ErrScorerUnavailable) {
		t.Fatalf("expected rate limit rejection, got %v", err)
	}
}

func TestModelScorerRequiresURL(t *testing.T) {
	if _, err := NewModelScorer(ModelConfig{}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestModelScorerMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	s := newScorerAgainst(t, srv.URL)
	if _, err := s.Score(context.Background(), profile.Default("user-1"), coach.SessionContext{}, coach.ExerciseSnapshot{Exercise: "Rows"}); err == nil {
		t.Error("expected error for malformed response")
	}
}
