// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/profile"
)

func TestComputeConfidence(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name  string
		setup func(p *profile.Profile, sctx *SessionContext)
		want  float64
	}{
		{
			name:  "fresh profile, neutral context",
			setup: func(p *profile.Profile, sctx *SessionContext) {},
			// 0.7 + 0 + 0 + 0.5*0.2
			want: 0.8,
		},
		{
			name: "experience bonus saturates at 0.2",
			setup: func(p *profile.Profile, sctx *SessionContext) {
				p.TotalInteractions = 1000
				p.AcceptanceRate = 1.0
			},
			// 0.7 + 0.2 + 0 + 0.2, clamped to 1.0
			want: 1.0,
		},
		{
			name: "low energy penalty",
			setup: func(p *profile.Profile, sctx *SessionContext) {
				sctx.Energy = 3
			},
			want: 0.7,
		},
		{
			name: "energy absent means no penalty",
			setup: func(p *profile.Profile, sctx *SessionContext) {
				sctx.Energy = 0
			},
			want: 0.8,
		},
		{
			name: "familiar time bonus",
			setup: func(p *profile.Profile, sctx *SessionContext) {
				sctx.TimeBucket = BucketMorning
				for i := int64(0); i < cfg.FamiliarTimeMinVisits; i++ {
					p.VisitTimeBucket("morning")
				}
			},
			want: 0.9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile.Default("user-1")
			sctx := SessionContext{TimeBucket: BucketAfternoon}
			tt.setup(p, &sctx)
			got := computeConfidence(cfg, p, sctx)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidenceMonotonicInInteractions(t *testing.T) {
	cfg := DefaultConfig()
	sctx := SessionContext{TimeBucket: BucketMorning}
	prev := 0.0
	for _, n := range []int64{0, 10, 50, 100, 200, 500, 1000} {
		p := profile.Default("user-1")
		p.TotalInteractions = n
		c := computeConfidence(cfg, p, sctx)
		if c < prev {
			t.Fatalf("confidence decreased: %v interactions -> %v, previous %v", n, c, prev)
		}
		if c < 0.3 || c > 1.0 {
			t.Fatalf("confidence %v outside [0.3, 1.0]", c)
		}
		prev = c
	}
}

func TestFallbackOnScorerError(t *testing.T) {
	scorer := &fakeScorer{
		name: "broken",
		fn: func(_ context.Context, _ *profile.Profile, _ SessionContext, _ ExerciseSnapshot) (*RawCandidate, error) {
			return nil, errors.New("backend down")
		},
	}
	g := newGenerator(DefaultConfig(), scorer, zerolog.Nop())

	for i := 0; i < 10; i++ {
		rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, benchSnapshot(), history{})
		if !rec.HasFactor("fallback") {
			t.Fatal("every recommendation from a dead scorer must carry the fallback factor")
		}
		if rec.Confidence > g.cfg.FallbackConfidenceCap {
			t.Fatalf("fallback confidence %v exceeds cap", rec.Confidence)
		}
	}
}

func TestFallbackOnMalformedCandidate(t *testing.T) {
	malformed := []*RawCandidate{
		nil,
		{Type: RecommendationType(99), Confidence: 0.5},
		{Type: TypeHold, Confidence: 1.5},
		{Type: TypeHold, Confidence: math.NaN()},
		{Type: TypeHold, Confidence: 0.5, SuggestedValue: -10},
		{Type: TypeHold, Confidence: 0.5, SuggestedValue: math.Inf(1)},
		{Type: TypeHold, Confidence: 0.5, Risk: RiskTier(7)},
	}
	for i, cand := range malformed {
		cand := cand
		scorer := &fakeScorer{
			name: "malformed",
			fn: func(_ context.Context, _ *profile.Profile, _ SessionContext, _ ExerciseSnapshot) (*RawCandidate, error) {
				return cand, nil
			},
		}
		g := newGenerator(DefaultConfig(), scorer, zerolog.Nop())
		rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, benchSnapshot(), history{})
		if !rec.HasFactor("fallback") {
			t.Errorf("case %d: malformed candidate did not trigger fallback", i)
		}
	}
}

func TestUnconfiguredScorerFallsBack(t *testing.T) {
	g := newGenerator(DefaultConfig(), nil, zerolog.Nop())
	rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, benchSnapshot(), history{})
	if !rec.HasFactor("fallback") {
		t.Error("nil scorer must take the fallback path")
	}
}

func TestLowCompletionForcesSubstitute(t *testing.T) {
	g := newGenerator(DefaultConfig(), nil, zerolog.Nop())

	// Back Squat at 35% average completion over the last 4 sessions.
	hist := history{completions: []float64{0.4, 0.3, 0.35, 0.35}}
	ex := benchSnapshot()
	ex.Exercise = "Back Squat"

	rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, ex, hist)
	if rec.Type != TypeSubstituteExercise {
		t.Fatalf("type = %v, want substitute-exercise", rec.Type)
	}
	if !rec.HasFactor("completion-history") {
		t.Error("missing completion-history factor")
	}
}

func TestCompletionWindowRequiresEnoughSessions(t *testing.T) {
	g := newGenerator(DefaultConfig(), nil, zerolog.Nop())

	// Only two logged sessions: not enough to condemn the exercise.
	hist := history{completions: []float64{0.2, 0.3}}
	rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, benchSnapshot(), hist)
	if rec.Type == TypeSubstituteExercise {
		t.Error("substitute-exercise forced with insufficient completion history")
	}
}

func TestConsistentEasePromotesIncrease(t *testing.T) {
	g := newGenerator(DefaultConfig(), nil, zerolog.Nop())

	// Profile that the rule scorer would hold steady.
	p := profile.Default("user-1")
	p.AcceptanceRate = 0.3
	p.FormFocus = 5

	hist := history{recent: []FeedbackEvent{
		{Accepted: true, ExertionRating: 3},
		{Accepted: true, ExertionRating: 2},
		{Accepted: true, ExertionRating: 4},
	}}
	rec := g.generate(context.Background(), p, SessionContext{}, benchSnapshot(), hist)
	if rec.Type != TypeIncreaseLoad {
		t.Errorf("type = %v, want increase-load after consistent ease", rec.Type)
	}
}

func TestAlternativesOmittedOnFallback(t *testing.T) {
	g := newGenerator(DefaultConfig(), nil, zerolog.Nop())
	rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, benchSnapshot(), history{})
	if len(rec.Alternatives) != 0 {
		t.Error("fallback recommendations must not duplicate the rules path as an alternative")
	}
}

func TestHoldAlternativeAccompaniesChanges(t *testing.T) {
	sc := &fakeScorer{name: "model", fn: func(context.Context, *profile.Profile, SessionContext, ExerciseSnapshot) (*RawCandidate, error) {
		return &RawCandidate{
			Type:           TypeAdjustReps,
			SuggestedValue: 9,
			Confidence:     0.8,
			Risk:           RiskLow,
			Reasoning:      "room for one more rep",
		}, nil
	}}
	g := newGenerator(DefaultConfig(), sc, zerolog.Nop())

	rec := g.generate(context.Background(), profile.Default("user-1"), SessionContext{}, benchSnapshot(), history{})
	var hold bool
	for _, alt := range rec.Alternatives {
		if alt.Type == TypeHold {
			hold = true
			if alt.SuggestedValue != benchSnapshot().PlannedWeight {
				t.Errorf("hold alternative value = %v, want planned weight", alt.SuggestedValue)
			}
		}
	}
	if !hold {
		t.Error("non-hold recommendation missing the keep-current-plan alternative")
	}
}

func TestAssembleContextBuckets(t *testing.T) {
	tests := []struct {
		hour int
		want TimeBucket
	}{
		{5, BucketMorning},
		{10, BucketMorning},
		{11, BucketAfternoon},
		{16, BucketAfternoon},
		{17, BucketEvening},
		{21, BucketEvening},
		{22, BucketNight},
		{3, BucketNight},
	}
	for _, tt := range tests {
		if got := bucketForHour(tt.hour); got != tt.want {
			t.Errorf("hour %d -> %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestAssembleContextDropsInvalidSignals(t *testing.T) {
	raw := RawSignals{
		Energy:           15, // out of range
		Motivation:       -2, // out of range
		AvailableMinutes: -5,
		Crowding:         "packed", // unrecognized
		Strain:           11,
		PriorPerformance: &PerformanceSummary{AvgCompletion: 1.4, Sessions: 3},
	}
	sctx := AssembleContext(raw, func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) })

	if sctx.HasEnergy() || sctx.Motivation != 0 || sctx.AvailableMinutes != 0 {
		t.Error("invalid scalar signals not dropped")
	}
	if sctx.Crowding != CrowdingUnknown {
		t.Errorf("crowding = %v, want unknown", sctx.Crowding)
	}
	if sctx.HasStrain() {
		t.Error("out-of-range strain not dropped")
	}
	if sctx.PriorPerformance != nil {
		t.Error("invalid prior performance not dropped")
	}
	if sctx.TimeBucket != BucketMorning || sctx.DayOfWeek != time.Monday {
		t.Errorf("time fields wrong: %v %v", sctx.TimeBucket, sctx.DayOfWeek)
	}
}

func TestAssembleContextMinimal(t *testing.T) {
	sctx := AssembleContext(RawSignals{}, time.Now)
	if sctx.TimeBucket < BucketMorning || sctx.TimeBucket > BucketNight {
		t.Errorf("time bucket %v not derivable from wall clock", sctx.TimeBucket)
	}
}
