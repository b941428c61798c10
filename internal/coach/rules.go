// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"context"

	"github.com/adaptivefit/coach/internal/profile"
)

// RuleScorer is the deterministic fallback generator. It consults only
// the profile, context, and exercise snapshot, so identical inputs
// always yield the identical candidate. It doubles as the engine's
// scorer of last resort when no external scorer is configured.
type RuleScorer struct{}

// NewRuleScorer returns the rule-based scorer.
func NewRuleScorer() *RuleScorer { return &RuleScorer{} }

// Name implements Scorer.
func (s *RuleScorer) Name() string { return "rules" }

// Score implements Scorer. Rules are evaluated in fixed order; the first
// matching rule wins.
func (s *RuleScorer) Score(_ context.Context, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot) (*RawCandidate, error) {
	// Depleted user: back the load off regardless of preferences.
	if sctx.HasEnergy() && sctx.Energy < 4 {
		return &RawCandidate{
			Type:            TypeDecreaseLoad,
			SuggestedValue:  ex.PlannedWeight * 0.92,
			Confidence:      0.55,
			Reasoning:       "low energy reported; reducing load to keep quality high",
			Factors:         []string{"low-energy"},
			ExpectedOutcome: "sustained form and completion despite fatigue",
			Risk:            RiskLow,
		}, nil
	}

	// Elevated strain with no energy signal reads the same way.
	if sctx.HasStrain() && sctx.Strain >= 7 {
		return &RawCandidate{
			Type:            TypeModifyRest,
			SuggestedValue:  float64(ex.PlannedRestSeconds) * 1.3,
			Confidence:      0.55,
			Reasoning:       "elevated strain; extending rest between sets",
			Factors:         []string{"high-strain"},
			ExpectedOutcome: "better recovery between sets",
			Risk:            RiskMedium,
		}, nil
	}

	// Time pressure: trim rest instead of cutting work.
	if sctx.AvailableMinutes > 0 && sctx.AvailableMinutes < 20 {
		return &RawCandidate{
			Type:            TypeModifyRest,
			SuggestedValue:  float64(ex.PlannedRestSeconds) * 0.75,
			Confidence:      0.5,
			Reasoning:       "limited session time; shortening rest intervals",
			Factors:         []string{"time-pressure"},
			ExpectedOutcome: "full planned volume within available time",
			Risk:            RiskLow,
		}, nil
	}

	// Crowded floor: equipment churn costs more than shorter rests save.
	if sctx.Crowding == CrowdingHigh {
		return &RawCandidate{
			Type:            TypeSubstituteExercise,
			SuggestedValue:  0,
			Confidence:      0.45,
			Reasoning:       "gym heavily crowded; suggesting an equivalent movement on free equipment",
			Factors:         []string{"crowding"},
			ExpectedOutcome: "continuous training without equipment waits",
			Risk:            RiskLow,
		}, nil
	}

	// Strong form focus dominates progression.
	if p.FormFocus >= 8 && p.TotalInteractions < 10 {
		return &RawCandidate{
			Type:            TypeEmphasizeForm,
			SuggestedValue:  ex.PlannedWeight,
			Confidence:      0.5,
			Reasoning:       "building movement quality before adding load",
			Factors:         []string{"form-focus"},
			ExpectedOutcome: "cleaner technique at current load",
			Risk:            RiskLow,
		}, nil
	}

	// Progression: a user who accepts suggestions and prefers intensity
	// gets a small load bump.
	if p.AcceptanceRate >= 0.6 && p.PreferredIntensity >= 6 && ex.PlannedWeight > 0 {
		return &RawCandidate{
			Type:            TypeIncreaseLoad,
			SuggestedValue:  ex.PlannedWeight * 1.05,
			Confidence:      0.55,
			Reasoning:       "consistent acceptance and intensity preference support progression",
			Factors:         []string{"progression", "acceptance-history"},
			ExpectedOutcome: "gradual strength gain at tolerable effort",
			Risk:            RiskLow,
		}, nil
	}

	return &RawCandidate{
		Type:            TypeHold,
		SuggestedValue:  ex.PlannedWeight,
		Confidence:      0.5,
		Reasoning:       "no adjustment signal; keeping the current plan",
		Factors:         []string{"steady-state"},
		ExpectedOutcome: "plan executed as written",
		Risk:            RiskLow,
	}, nil
}
