// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/profile"
)

// fakeHistory is an in-memory HistoryStore for tests.
type fakeHistory struct {
	mu          sync.Mutex
	recs        map[string]*Recommendation
	processed   map[string]bool
	feedback    map[string][]FeedbackEvent
	byUser      map[string][]FeedbackEvent
	completions map[string][]float64
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		recs:        make(map[string]*Recommendation),
		processed:   make(map[string]bool),
		feedback:    make(map[string][]FeedbackEvent),
		byUser:      make(map[string][]FeedbackEvent),
		completions: make(map[string][]float64),
	}
}

func histKey(userKey, exercise string) string { return userKey + "\x00" + exercise }

func (f *fakeHistory) SaveRecommendation(_ context.Context, rec *Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *fakeHistory) GetRecommendation(_ context.Context, id string) (*Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecommendation, id)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeHistory) MarkEventProcessed(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processed[eventID] {
		return false, nil
	}
	f.processed[eventID] = true
	return true, nil
}

func (f *fakeHistory) UnmarkEventProcessed(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.processed, eventID)
	return nil
}

func (f *fakeHistory) AppendFeedback(_ context.Context, userKey, exercise string, event FeedbackEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := histKey(userKey, exercise)
	f.feedback[k] = append([]FeedbackEvent{event}, f.feedback[k]...)
	f.byUser[userKey] = append([]FeedbackEvent{event}, f.byUser[userKey]...)
	return nil
}

func (f *fakeHistory) RecentFeedback(_ context.Context, userKey, exercise string, n int) ([]FeedbackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.feedback[histKey(userKey, exercise)]
	if len(events) > n {
		events = events[:n]
	}
	return append([]FeedbackEvent(nil), events...), nil
}

func (f *fakeHistory) RecentFeedbackByUser(_ context.Context, userKey string, n int) ([]FeedbackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.byUser[userKey]
	if len(events) > n {
		events = events[:n]
	}
	return append([]FeedbackEvent(nil), events...), nil
}

func (f *fakeHistory) RecordSessionCompletion(_ context.Context, userKey, exercise string, ratio float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := histKey(userKey, exercise)
	f.completions[k] = append([]float64{ratio}, f.completions[k]...)
	return nil
}

func (f *fakeHistory) RecentCompletions(_ context.Context, userKey, exercise string, n int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ratios := f.completions[histKey(userKey, exercise)]
	if len(ratios) > n {
		ratios = ratios[:n]
	}
	return append([]float64(nil), ratios...), nil
}

// fakeScorer delegates to a function.
type fakeScorer struct {
	name string
	fn   func(ctx context.Context, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot) (*RawCandidate, error)
}

func (s *fakeScorer) Name() string { return s.name }

func (s *fakeScorer) Score(ctx context.Context, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot) (*RawCandidate, error) {
	return s.fn(ctx, p, sctx, ex)
}

// recordingAudit captures audit calls.
type recordingAudit struct {
	mu       sync.Mutex
	recs     []*Recommendation
	feedback []FeedbackEvent
}

func (a *recordingAudit) RecordRecommendation(rec *Recommendation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
}

func (a *recordingAudit) RecordFeedback(_ string, event FeedbackEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feedback = append(a.feedback, event)
}

func newTestEngine(t *testing.T, scorer Scorer) (*Engine, *profile.MemoryRepository, *fakeHistory) {
	t.Helper()
	repo := profile.NewMemoryRepository()
	hist := newFakeHistory()
	eng, err := New(DefaultConfig(), repo, hist, scorer, &recordingAudit{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, repo, hist
}

func benchSnapshot() ExerciseSnapshot {
	return ExerciseSnapshot{
		Exercise:           "Bench Press",
		PlannedSets:        4,
		PlannedReps:        8,
		PlannedWeight:      80,
		PlannedRestSeconds: 120,
		CurrentSet:         1,
	}
}

func TestRecommendAlwaysValid(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)

	rec, err := eng.Recommend(context.Background(), "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.ID == "" {
		t.Error("recommendation has no id")
	}
	if rec.Confidence < 0.3 || rec.Confidence > 1.0 {
		t.Errorf("confidence %v outside [0.3, 1.0]", rec.Confidence)
	}
	if rec.Reasoning == "" {
		t.Error("recommendation has no reasoning")
	}
	if len(rec.Factors) == 0 {
		t.Error("recommendation has no factors")
	}
}

func TestRecommendValidatesInput(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)

	if _, err := eng.Recommend(context.Background(), "", benchSnapshot(), RawSignals{}); err == nil {
		t.Error("expected error for empty user key")
	}
	if _, err := eng.Recommend(context.Background(), "user-1", ExerciseSnapshot{}, RawSignals{}); err == nil {
		t.Error("expected error for empty exercise")
	}
}

func TestRecommendDegradesOnStoreOutage(t *testing.T) {
	eng, repo, _ := newTestEngine(t, nil)
	repo.FailLoads = true

	rec, err := eng.Recommend(context.Background(), "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend during outage: %v", err)
	}
	if rec.Confidence < 0.3 || rec.Confidence > 1.0 {
		t.Errorf("degraded confidence %v outside [0.3, 1.0]", rec.Confidence)
	}
}

func TestSubmitFeedbackUnknownRecommendation(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)

	_, err := eng.SubmitFeedback(context.Background(), "user-1", FeedbackEvent{
		EventID:          "ev-1",
		RecommendationID: "no-such-id",
		Accepted:         true,
	})
	if !errors.Is(err, ErrUnknownRecommendation) {
		t.Fatalf("expected ErrUnknownRecommendation, got %v", err)
	}
}

func TestSubmitFeedbackWrongUser(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)

	rec, err := eng.Recommend(context.Background(), "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	_, err = eng.SubmitFeedback(context.Background(), "user-2", FeedbackEvent{
		EventID:          "ev-1",
		RecommendationID: rec.ID,
		Accepted:         true,
	})
	if !errors.Is(err, ErrUnknownRecommendation) {
		t.Fatalf("expected ErrUnknownRecommendation for wrong user, got %v", err)
	}
}

func TestSubmitFeedbackDuplicateIsNoOp(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	rec, err := eng.Recommend(ctx, "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	event := FeedbackEvent{
		EventID:          "ev-dup",
		RecommendationID: rec.ID,
		Accepted:         true,
		DifficultyRating: 7,
	}

	first, err := eng.SubmitFeedback(ctx, "user-1", event)
	if err != nil {
		t.Fatalf("first SubmitFeedback: %v", err)
	}
	if first.TotalInteractions != 1 {
		t.Fatalf("interactions after first event = %d, want 1", first.TotalInteractions)
	}

	second, err := eng.SubmitFeedback(ctx, "user-1", event)
	if err != nil {
		t.Fatalf("duplicate SubmitFeedback: %v", err)
	}
	if second.TotalInteractions != 1 {
		t.Errorf("interactions after duplicate = %d, want 1", second.TotalInteractions)
	}
	if second.PreferredIntensity != first.PreferredIntensity {
		t.Errorf("duplicate drifted intensity: %v != %v", second.PreferredIntensity, first.PreferredIntensity)
	}
}

func TestSubmitFeedbackStoreOutageFailsLoudly(t *testing.T) {
	eng, repo, hist := newTestEngine(t, nil)
	ctx := context.Background()

	rec, err := eng.Recommend(ctx, "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	repo.FailSaves = true

	event := FeedbackEvent{EventID: "ev-out", RecommendationID: rec.ID, Accepted: true}
	if _, err := eng.SubmitFeedback(ctx, "user-1", event); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	// The failed event must remain retryable.
	if hist.processed["ev-out"] {
		t.Error("failed event left marked as processed")
	}
	repo.FailSaves = false
	if _, err := eng.SubmitFeedback(ctx, "user-1", event); err != nil {
		t.Fatalf("retry after outage: %v", err)
	}
}

func TestSubmitFeedbackRejectsInvalidEvent(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)

	tests := []struct {
		name  string
		event FeedbackEvent
	}{
		{"no flags", FeedbackEvent{EventID: "e", RecommendationID: "r"}},
		{"two flags", FeedbackEvent{EventID: "e", RecommendationID: "r", Accepted: true, Skipped: true}},
		{"missing event id", FeedbackEvent{RecommendationID: "r", Accepted: true}},
		{"rating out of range", FeedbackEvent{EventID: "e", RecommendationID: "r", Accepted: true, DifficultyRating: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.SubmitFeedback(context.Background(), "user-1", tt.event); !errors.Is(err, ErrInvalidFeedback) {
				t.Errorf("expected ErrInvalidFeedback, got %v", err)
			}
		})
	}
}

func TestConcurrentFeedbackSameUser(t *testing.T) {
	eng, repo, _ := newTestEngine(t, nil)
	ctx := context.Background()

	const events = 20
	ids := make([]string, events)
	for i := range ids {
		rec, err := eng.Recommend(ctx, "user-1", benchSnapshot(), RawSignals{})
		if err != nil {
			t.Fatalf("Recommend %d: %v", i, err)
		}
		ids[i] = rec.ID
	}

	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.SubmitFeedback(ctx, "user-1", FeedbackEvent{
				EventID:          fmt.Sprintf("ev-%d", i),
				RecommendationID: ids[i],
				Accepted:         true,
			})
			if err != nil {
				t.Errorf("SubmitFeedback %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	p, err := repo.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.TotalInteractions != events {
		t.Errorf("interactions = %d, want %d (lost updates)", p.TotalInteractions, events)
	}
}

func TestLogSessionCompletionValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	if err := eng.LogSessionCompletion(ctx, "user-1", "Back Squat", 0.35); err != nil {
		t.Fatalf("LogSessionCompletion: %v", err)
	}
	if err := eng.LogSessionCompletion(ctx, "user-1", "Back Squat", 1.5); err == nil {
		t.Error("expected error for ratio > 1")
	}
	if err := eng.LogSessionCompletion(ctx, "", "Back Squat", 0.5); err == nil {
		t.Error("expected error for empty user key")
	}
}

func TestInsights(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	ins, err := eng.Insights(ctx, "user-1")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.ExperienceLevel != "beginner" {
		t.Errorf("experience = %q, want beginner", ins.ExperienceLevel)
	}
	if ins.ImprovementTrend != "insufficient-data" {
		t.Errorf("trend = %q, want insufficient-data", ins.ImprovementTrend)
	}
	if len(ins.CoachingNotes) == 0 {
		t.Error("expected coaching notes")
	}

	// Build up enough skipped feedback to surface in insights.
	for i := 0; i < 8; i++ {
		rec, err := eng.Recommend(ctx, "user-1", benchSnapshot(), RawSignals{})
		if err != nil {
			t.Fatalf("Recommend: %v", err)
		}
		_, err = eng.SubmitFeedback(ctx, "user-1", FeedbackEvent{
			EventID:          fmt.Sprintf("ev-%d", i),
			RecommendationID: rec.ID,
			Skipped:          true,
			Note:             "too heavy today",
		})
		if err != nil {
			t.Fatalf("SubmitFeedback: %v", err)
		}
	}

	ins, err = eng.Insights(ctx, "user-1")
	if err != nil {
		t.Fatalf("Insights after feedback: %v", err)
	}
	if ins.TotalInteractions != 8 {
		t.Errorf("interactions = %d, want 8", ins.TotalInteractions)
	}
	if len(ins.RecentRejections) == 0 {
		t.Error("expected recent rejection reasons")
	}
	if ins.PreferredTimeBucket == "" {
		t.Error("expected a preferred time bucket after sessions")
	}
}

func TestRecommendUsesScorerCandidate(t *testing.T) {
	scorer := &fakeScorer{
		name: "model",
		fn: func(_ context.Context, _ *profile.Profile, _ SessionContext, ex ExerciseSnapshot) (*RawCandidate, error) {
			return &RawCandidate{
				Type:            TypeAdjustReps,
				SuggestedValue:  float64(ex.PlannedReps - 1),
				Confidence:      0.9,
				Reasoning:       "model says fewer reps",
				ExpectedOutcome: "better quality sets",
				Risk:            RiskLow,
			}, nil
		},
	}
	eng, _, _ := newTestEngine(t, scorer)

	rec, err := eng.Recommend(context.Background(), "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Type != TypeAdjustReps {
		t.Errorf("type = %v, want adjust-reps", rec.Type)
	}
	if rec.HasFactor("fallback") {
		t.Error("healthy scorer path must not carry the fallback factor")
	}
	if rec.OriginalValue != 8 || rec.Unit != "reps" {
		t.Errorf("baseline = %v %s, want 8 reps", rec.OriginalValue, rec.Unit)
	}
}

func TestScorerTimeoutFallsBack(t *testing.T) {
	scorer := &fakeScorer{
		name: "slow",
		fn: func(ctx context.Context, _ *profile.Profile, _ SessionContext, _ ExerciseSnapshot) (*RawCandidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	repo := profile.NewMemoryRepository()
	cfg := DefaultConfig()
	cfg.ScorerTimeout = 10 * time.Millisecond
	eng, err := New(cfg, repo, newFakeHistory(), scorer, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	rec, err := eng.Recommend(context.Background(), "user-1", benchSnapshot(), RawSignals{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("recommendation blocked for %v despite scorer timeout", elapsed)
	}
	if !rec.HasFactor("fallback") {
		t.Error("timed-out scorer must produce a fallback recommendation")
	}
	if rec.Confidence > cfg.FallbackConfidenceCap {
		t.Errorf("fallback confidence %v exceeds cap %v", rec.Confidence, cfg.FallbackConfidenceCap)
	}
}
