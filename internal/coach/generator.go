// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/metrics"
	"github.com/adaptivefit/coach/internal/profile"
)

// generator produces one safety-unchecked Recommendation per request. It
// invokes the pluggable scorer under a timeout, falls back to the rule
// scorer on any failure, applies the type-priority overrides, and
// computes confidence from the profile and context.
type generator struct {
	cfg    Config
	scorer Scorer
	rules  *RuleScorer
	log    zerolog.Logger
	now    func() time.Time
}

func newGenerator(cfg Config, scorer Scorer, log zerolog.Logger) *generator {
	return &generator{
		cfg:    cfg,
		scorer: scorer,
		rules:  NewRuleScorer(),
		log:    log.With().Str("component", "generator").Logger(),
		now:    time.Now,
	}
}

// generate builds the pre-validation recommendation.
func (g *generator) generate(ctx context.Context, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot, hist history) *Recommendation {
	cand, fallback, cause := g.score(ctx, p, sctx, ex)

	g.applyTypePriority(cand, sctx, ex, hist)

	confidence := computeConfidence(g.cfg, p, sctx)

	rec := &Recommendation{
		ID:              uuid.NewString(),
		UserKey:         p.UserKey,
		Exercise:        ex.Exercise,
		Type:            cand.Type,
		SuggestedValue:  cand.SuggestedValue,
		Confidence:      confidence,
		Reasoning:       cand.Reasoning,
		Factors:         append([]string(nil), cand.Factors...),
		ExpectedOutcome: cand.ExpectedOutcome,
		Risk:            cand.Risk,
		CreatedAt:       g.now().UTC(),
	}
	rec.OriginalValue, rec.Unit = baseline(rec.Type, ex)

	if fallback {
		metrics.ScorerFallbacks.WithLabelValues(cause).Inc()
		rec.addFactor("fallback")
		if rec.Confidence > g.cfg.FallbackConfidenceCap {
			rec.Confidence = g.cfg.FallbackConfidenceCap
		}
		g.log.Debug().
			Str("cause", cause).
			Str("user_key", p.UserKey).
			Str("exercise", ex.Exercise).
			Msg("scorer fallback engaged")
	}

	g.attachAlternatives(ctx, rec, p, sctx, ex, fallback)
	return rec
}

// score runs the configured scorer with a timeout and sanity checks the
// result. It reports whether the rule fallback was used and why.
func (g *generator) score(ctx context.Context, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot) (cand *RawCandidate, fallback bool, cause string) {
	if g.scorer == nil {
		cand, _ = g.rules.Score(ctx, p, sctx, ex)
		return cand, true, "unconfigured"
	}

	scoreCtx, cancel := context.WithTimeout(ctx, g.cfg.ScorerTimeout)
	defer cancel()

	start := time.Now()
	cand, err := g.scorer.Score(scoreCtx, p, sctx, ex)
	metrics.ObserveScorerCall(start)

	switch {
	case err != nil && scoreCtx.Err() != nil:
		cause = "timeout"
	case err != nil:
		cause = "error"
	case !saneCandidate(cand):
		cause = "malformed"
	default:
		return cand, false, ""
	}

	g.log.Warn().
		Err(err).
		Str("scorer", g.scorer.Name()).
		Str("cause", cause).
		Msg("scorer failed, using rule fallback")
	cand, _ = g.rules.Score(ctx, p, sctx, ex)
	return cand, true, cause
}

// saneCandidate rejects structurally invalid scorer output.
func saneCandidate(c *RawCandidate) bool {
	if c == nil {
		return false
	}
	if c.Type < TypeHold || c.Type > TypeEmphasizeForm {
		return false
	}
	if math.IsNaN(c.Confidence) || math.IsInf(c.Confidence, 0) || c.Confidence < 0 || c.Confidence > 1 {
		return false
	}
	if math.IsNaN(c.SuggestedValue) || math.IsInf(c.SuggestedValue, 0) || c.SuggestedValue < 0 {
		return false
	}
	if c.Risk < RiskLow || c.Risk > RiskHigh {
		return false
	}
	return true
}

// applyTypePriority enforces the recommendation-type priority order on
// top of the scorer's proposal, in descending precedence:
//
//  1. chronically under-completed exercise -> substitute-exercise
//  2. elevated strain -> rest/load relief (unless already conservative)
//  3. consistent ease in recent feedback -> increase-load (from hold only)
//  4. declining form quality -> emphasize-form for load increases
func (g *generator) applyTypePriority(cand *RawCandidate, sctx SessionContext, ex ExerciseSnapshot, hist history) {
	if avg, n := averageCompletion(hist.completions, g.cfg.CompletionWindow); n >= g.cfg.CompletionWindow && avg < g.cfg.CompletionThreshold {
		if cand.Type != TypeSubstituteExercise {
			cand.Type = TypeSubstituteExercise
			cand.SuggestedValue = 0
			cand.Reasoning = "recent sessions completed well below plan; a better-fitting movement is likely"
			cand.ExpectedOutcome = "higher completion with an exercise that suits the user"
		}
		appendFactor(cand, "completion-history")
		return
	}

	if sctx.HasStrain() && sctx.Strain >= g.cfg.StrainHighThreshold {
		if cand.Type != TypeDecreaseLoad && cand.Type != TypeModifyRest && cand.Type != TypeSubstituteExercise {
			cand.Type = TypeModifyRest
			cand.SuggestedValue = float64(ex.PlannedRestSeconds) * 1.3
			cand.Reasoning = "elevated strain signal; prioritizing recovery over progression"
			cand.ExpectedOutcome = "reduced accumulated fatigue"
			if cand.Risk < RiskMedium {
				cand.Risk = RiskMedium
			}
		}
		appendFactor(cand, "high-strain")
		return
	}

	if cand.Type == TypeHold && recentEase(hist.recent) {
		cand.Type = TypeIncreaseLoad
		cand.SuggestedValue = ex.PlannedWeight * 1.05
		cand.Reasoning = "recent feedback shows consistent ease; a small load increase is warranted"
		cand.ExpectedOutcome = "appropriately challenging working sets"
		appendFactor(cand, "consistent-ease")
		return
	}

	if cand.Type.isIncrease() && formTrendLow(hist.recent, g.cfg.FormLowThreshold) {
		cand.Type = TypeEmphasizeForm
		cand.SuggestedValue = ex.PlannedWeight
		cand.Reasoning = "form quality ratings trending down; consolidating technique before adding load"
		cand.ExpectedOutcome = "form quality back above baseline"
		appendFactor(cand, "form-trend")
	}
}

// averageCompletion averages up to window latest completion ratios.
func averageCompletion(ratios []float64, window int) (float64, int) {
	if len(ratios) == 0 {
		return 0, 0
	}
	n := len(ratios)
	if n > window {
		n = window
	}
	var sum float64
	for _, r := range ratios[:n] {
		sum += r
	}
	return sum / float64(n), n
}

// recentEase reports whether the last few rated events show low exertion
// alongside acceptance.
func recentEase(events []FeedbackEvent) bool {
	rated, easy := 0, 0
	for _, e := range events {
		if e.ExertionRating == 0 {
			continue
		}
		rated++
		if e.ExertionRating <= 4 && !e.Skipped {
			easy++
		}
		if rated == 3 {
			break
		}
	}
	return rated >= 2 && easy == rated
}

// formTrendLow reports whether the most recent form ratings average at or
// below the threshold.
func formTrendLow(events []FeedbackEvent, threshold float64) bool {
	rated := 0
	var sum float64
	for _, e := range events {
		if e.FormQualityRating == 0 {
			continue
		}
		sum += float64(e.FormQualityRating)
		rated++
		if rated == 3 {
			break
		}
	}
	return rated >= 2 && sum/float64(rated) <= threshold
}

func appendFactor(c *RawCandidate, tag string) {
	for _, f := range c.Factors {
		if f == tag {
			return
		}
	}
	c.Factors = append(c.Factors, tag)
}

// computeConfidence is the engine's confidence contract. It saturates at
// [0.3, 1.0], grows with interactions and acceptance, rewards familiar
// training times, and penalizes explicitly low energy.
func computeConfidence(cfg Config, p *profile.Profile, sctx SessionContext) float64 {
	c := 0.7

	experience := float64(p.TotalInteractions) * 0.001
	if experience > 0.2 {
		experience = 0.2
	}
	c += experience

	if p.IsFamiliarTime(sctx.TimeBucket.String(), cfg.FamiliarTimeMinVisits) {
		c += 0.1
	}

	c += p.AcceptanceRate * 0.2

	energy := sctx.Energy
	if !sctx.HasEnergy() {
		energy = 5
	}
	if energy < 4 {
		c -= 0.1
	}

	if c < 0.3 {
		c = 0.3
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// baseline returns the prior value and unit the recommendation adjusts.
func baseline(t RecommendationType, ex ExerciseSnapshot) (float64, string) {
	switch t {
	case TypeAdjustReps:
		return float64(ex.PlannedReps), "reps"
	case TypeModifyRest:
		return float64(ex.PlannedRestSeconds), "seconds"
	case TypeSubstituteExercise:
		return 0, ""
	case TypeAddWarmup:
		return 0, "minutes"
	default:
		return ex.PlannedWeight, "kg"
	}
}

// attachAlternatives adds the rule scorer's view as a secondary option
// when the primary path produced something different.
func (g *generator) attachAlternatives(ctx context.Context, rec *Recommendation, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot, fallback bool) {
	if fallback {
		return
	}
	alt, err := g.rules.Score(ctx, p, sctx, ex)
	if err == nil && alt.Type != rec.Type {
		rec.Alternatives = append(rec.Alternatives, Alternative{
			Type:           alt.Type,
			SuggestedValue: alt.SuggestedValue,
			Reasoning:      alt.Reasoning,
		})
	}
	// Any non-hold primary gets the conservative option alongside it.
	if rec.Type != TypeHold && (err != nil || alt.Type != TypeHold) {
		v, _ := baseline(TypeHold, ex)
		rec.Alternatives = append(rec.Alternatives, Alternative{
			Type:           TypeHold,
			SuggestedValue: v,
			Reasoning:      "keep the current plan unchanged",
		})
	}
}
