// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/validation"
)

// maxBodyBytes bounds request bodies; the largest legitimate payload is
// a few KB of context signals.
const maxBodyBytes = 256 << 10

type handlers struct {
	engine Engine
	log    zerolog.Logger
}

type recommendationRequest struct {
	UserKey  string                 `json:"user_key" validate:"required"`
	Exercise coach.ExerciseSnapshot `json:"exercise" validate:"required"`
	Context  coach.RawSignals       `json:"context"`
}

type feedbackRequest struct {
	UserKey string              `json:"user_key" validate:"required"`
	Event   coach.FeedbackEvent `json:"event" validate:"required"`
}

type sessionRequest struct {
	UserKey         string  `json:"user_key" validate:"required"`
	Exercise        string  `json:"exercise" validate:"required"`
	CompletionRatio float64 `json:"completion_ratio" validate:"gte=0,lte=1"`
}

// decode reads and validates a JSON request body.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	if ve := validation.ValidateStruct(v); ve != nil {
		respondValidationError(w, ve)
		return false
	}
	return true
}

// recommend handles POST /api/v1/recommendations.
func (h *handlers) recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req recommendationRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.engine.Recommend(r.Context(), req.UserKey, req.Exercise, req.Context)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"recommendation": rec}, start)
}

// feedback handles POST /api/v1/feedback.
func (h *handlers) feedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req feedbackRequest
	if !decode(w, r, &req) {
		return
	}

	summary, err := h.engine.SubmitFeedback(r.Context(), req.UserKey, req.Event)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profile": summary}, start)
}

// logSession handles POST /api/v1/sessions.
func (h *handlers) logSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.engine.LogSessionCompletion(r.Context(), req.UserKey, req.Exercise, req.CompletionRatio); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"logged": true}, start)
}

// profile handles GET /api/v1/users/{userKey}/profile.
func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userKey := chi.URLParam(r, "userKey")

	p, err := h.engine.Profile(r.Context(), userKey)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profile": p}, start)
}

// insights handles GET /api/v1/users/{userKey}/insights.
func (h *handlers) insights(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userKey := chi.URLParam(r, "userKey")

	ins, err := h.engine.Insights(r.Context(), userKey)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"insights": ins}, start)
}

// health handles GET /health.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
