// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/config"
	"github.com/adaptivefit/coach/internal/models"
	"github.com/adaptivefit/coach/internal/profile"
)

// fakeEngine returns canned responses.
type fakeEngine struct {
	recommendErr error
	feedbackErr  error

	lastUserKey  string
	lastExercise coach.ExerciseSnapshot
	sessions     int
}

func (f *fakeEngine) Recommend(_ context.Context, userKey string, ex coach.ExerciseSnapshot, _ coach.RawSignals) (*coach.Recommendation, error) {
	if f.recommendErr != nil {
		return nil, f.recommendErr
	}
	f.lastUserKey = userKey
	f.lastExercise = ex
	return &coach.Recommendation{
		ID:             "rec-1",
		UserKey:        userKey,
		Exercise:       ex.Exercise,
		Type:           coach.TypeHold,
		Confidence:     0.8,
		Risk:           coach.RiskLow,
		Factors:        []string{"steady-state"},
		SuggestedValue: ex.PlannedWeight,
		OriginalValue:  ex.PlannedWeight,
	}, nil
}

func (f *fakeEngine) SubmitFeedback(_ context.Context, userKey string, event coach.FeedbackEvent) (profile.Summary, error) {
	if f.feedbackErr != nil {
		return profile.Summary{}, f.feedbackErr
	}
	return profile.Summary{UserKey: userKey, TotalInteractions: 1, ExperienceLevel: "beginner"}, nil
}

func (f *fakeEngine) LogSessionCompletion(_ context.Context, userKey, exercise string, ratio float64) error {
	f.sessions++
	return nil
}

func (f *fakeEngine) Profile(_ context.Context, userKey string) (*profile.Profile, error) {
	return profile.Default(userKey), nil
}

func (f *fakeEngine) Insights(_ context.Context, userKey string) (*coach.Insights, error) {
	return &coach.Insights{UserKey: userKey, ExperienceLevel: "beginner", ImprovementTrend: "insufficient-data"}, nil
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host: "127.0.0.1", Port: 8080,
		RateLimit: 0,
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestRecommendEndpoint(t *testing.T) {
	eng := &fakeEngine{}
	r := Router(eng, testServerConfig(), zerolog.Nop())

	w := doJSON(t, r, http.MethodPost, "/api/v1/recommendations", map[string]any{
		"user_key": "user-1",
		"exercise": map[string]any{
			"exercise":       "Bench Press",
			"planned_sets":   4,
			"planned_reps":   8,
			"planned_weight": 80,
		},
		"context": map[string]any{"energy": 7},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}
	if eng.lastUserKey != "user-1" || eng.lastExercise.Exercise != "Bench Press" {
		t.Errorf("engine got %q / %+v", eng.lastUserKey, eng.lastExercise)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRecommendValidation(t *testing.T) {
	r := Router(&fakeEngine{}, testServerConfig(), zerolog.Nop())

	tests := []struct {
		name string
		body any
	}{
		{"missing user key", map[string]any{"exercise": map[string]any{"exercise": "Rows"}}},
		{"missing exercise name", map[string]any{"user_key": "u", "exercise": map[string]any{"planned_reps": 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/v1/recommendations", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			resp := decodeResponse(t, w)
			if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestRecommendMalformedJSON(t *testing.T) {
	r := Router(&fakeEngine{}, testServerConfig(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	r := Router(&fakeEngine{}, testServerConfig(), zerolog.Nop())

	w := doJSON(t, r, http.MethodPost, "/api/v1/feedback", map[string]any{
		"user_key": "user-1",
		"event": map[string]any{
			"event_id":          "ev-1",
			"recommendation_id": "rec-1",
			"accepted":          true,
			"difficulty_rating": 6,
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestFeedbackErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown recommendation", fmt.Errorf("wrap: %w", coach.ErrUnknownRecommendation), http.StatusNotFound, "UNKNOWN_RECOMMENDATION"},
		{"store outage", fmt.Errorf("wrap: %w", coach.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"invalid feedback", fmt.Errorf("wrap: %w", coach.ErrInvalidFeedback), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Router(&fakeEngine{feedbackErr: tt.err}, testServerConfig(), zerolog.Nop())
			w := doJSON(t, r, http.MethodPost, "/api/v1/feedback", map[string]any{
				"user_key": "user-1",
				"event": map[string]any{
					"event_id":          "ev-1",
					"recommendation_id": "rec-1",
					"accepted":          true,
				},
			})
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeResponse(t, w)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestSessionEndpoint(t *testing.T) {
	eng := &fakeEngine{}
	r := Router(eng, testServerConfig(), zerolog.Nop())

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{
		"user_key":         "user-1",
		"exercise":         "Back Squat",
		"completion_ratio": 0.35,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if eng.sessions != 1 {
		t.Errorf("sessions logged = %d, want 1", eng.sessions)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{
		"user_key":         "user-1",
		"exercise":         "Back Squat",
		"completion_ratio": 1.5,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range ratio: status = %d, want 400", w.Code)
	}
}

func TestProfileAndInsightsEndpoints(t *testing.T) {
	r := Router(&fakeEngine{}, testServerConfig(), zerolog.Nop())

	w := doJSON(t, r, http.MethodGet, "/api/v1/users/user-1/profile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"user_key":"user-1"`) {
		t.Errorf("profile body missing user key: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/users/user-1/insights", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("insights status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"experience_level":"beginner"`) {
		t.Errorf("insights body: %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := Router(&fakeEngine{}, testServerConfig(), zerolog.Nop())
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := Router(&fakeEngine{}, testServerConfig(), zerolog.Nop())
	w := doJSON(t, r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output missing standard collectors")
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 3
	r := Router(&fakeEngine{}, cfg, zerolog.Nop())

	limited := false
	for i := 0; i < 10; i++ {
		w := doJSON(t, r, http.MethodGet, "/api/v1/users/user-1/profile", nil)
		if w.Code == http.StatusTooManyRequests {
			resp := decodeResponse(t, w)
			if resp.Error == nil || resp.Error.Code != "RATE_LIMIT_EXCEEDED" {
				t.Errorf("rate limit error = %+v", resp.Error)
			}
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limit never triggered")
	}
}
