// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/metrics"
)

// Hard safety bounds. Fixed at compile time, never user- or
// profile-overridable.
const (
	// MaxLoadIncrease caps a single-step weight increase at 10% of the
	// prior value.
	MaxLoadIncrease = 0.10

	// MinRepRetention keeps rep reductions at or above 80% of plan.
	MinRepRetention = 0.80

	// RestFloorSeconds is the minimum rest interval ever recommended.
	RestFloorSeconds = 30

	// MaxVolumeIncrease caps a single-step rep/volume increase at 15%.
	MaxVolumeIncrease = 0.15

	// MaxSessionExtension caps added session time at 20% of the user's
	// declared time budget.
	MaxSessionExtension = 0.20
)

// validator enforces the hard bounds on every generated recommendation.
// It may only tighten: reduce magnitude, raise risk, or move the type
// toward a more conservative one. Every correction is recorded in the
// recommendation's factors and reasoning.
type validator struct {
	cfg Config
	log zerolog.Logger
}

func newValidator(cfg Config, log zerolog.Logger) *validator {
	return &validator{
		cfg: cfg,
		log: log.With().Str("component", "safety").Logger(),
	}
}

// validate corrects the recommendation in place.
func (v *validator) validate(rec *Recommendation, sctx SessionContext, ex ExerciseSnapshot, hist history) {
	v.checkStrainDowngrade(rec, sctx, ex)
	v.checkFormRetype(rec, ex, hist)

	switch rec.Type {
	case TypeIncreaseLoad, TypeDecreaseLoad:
		v.checkLoadBounds(rec)
	case TypeAdjustReps:
		v.checkRepBounds(rec, ex)
	case TypeModifyRest:
		v.checkRestBounds(rec, sctx, ex)
	case TypeAddWarmup:
		v.checkWarmupBounds(rec, sctx)
	}
}

// correct applies a bound correction and records it everywhere it must
// show up: factor tag, reasoning, metrics, log.
func (v *validator) correct(rec *Recommendation, bound, note string) {
	rec.addFactor("safety:" + bound)
	rec.Reasoning = rec.Reasoning + "; " + note
	rec.escalateRisk(RiskMedium)
	metrics.SafetyCorrections.WithLabelValues(bound).Inc()
	v.log.Info().
		Str("bound", bound).
		Str("recommendation_id", rec.ID).
		Str("user_key", rec.UserKey).
		Msg("safety correction applied")
}

// checkStrainDowngrade downgrades any increase under elevated strain.
func (v *validator) checkStrainDowngrade(rec *Recommendation, sctx SessionContext, ex ExerciseSnapshot) {
	if !sctx.HasStrain() || sctx.Strain < v.cfg.StrainHighThreshold {
		return
	}
	if !rec.Type.isIncrease() {
		if rec.HasFactor("high-strain") {
			rec.escalateRisk(RiskMedium)
		}
		return
	}
	rec.Type = TypeHold
	rec.OriginalValue, rec.Unit = baseline(TypeHold, ex)
	rec.SuggestedValue = rec.OriginalValue
	v.correct(rec, "strain_downgrade", "downgraded to hold due to elevated strain")
}

// checkFormRetype replaces load increases with form emphasis when recent
// form quality sits below the low threshold.
func (v *validator) checkFormRetype(rec *Recommendation, ex ExerciseSnapshot, hist history) {
	if rec.Type != TypeIncreaseLoad {
		return
	}
	if !formTrendLow(hist.recent, v.cfg.FormLowThreshold) {
		return
	}
	rec.Type = TypeEmphasizeForm
	rec.SuggestedValue = rec.OriginalValue
	v.correct(rec, "form_retype", "load increase replaced with form emphasis due to low recent form quality")
}

// checkLoadBounds caps increases at MaxLoadIncrease and keeps decreases
// from drifting upward.
func (v *validator) checkLoadBounds(rec *Recommendation) {
	if rec.OriginalValue <= 0 {
		return
	}
	if rec.Type == TypeIncreaseLoad {
		max := rec.OriginalValue * (1 + MaxLoadIncrease)
		if rec.SuggestedValue > max {
			rec.SuggestedValue = max
			v.correct(rec, "load_increase", fmt.Sprintf("load increase capped at %.0f%%", MaxLoadIncrease*100))
		}
		return
	}
	if rec.SuggestedValue > rec.OriginalValue {
		rec.SuggestedValue = rec.OriginalValue
		v.correct(rec, "load_increase", "decrease recommendation may not raise load")
	}
}

// checkRepBounds keeps rep adjustments within the retention floor and
// the volume-increase ceiling.
func (v *validator) checkRepBounds(rec *Recommendation, ex ExerciseSnapshot) {
	if ex.PlannedReps <= 0 {
		return
	}
	planned := float64(ex.PlannedReps)
	floor := math.Ceil(planned * MinRepRetention)
	ceiling := math.Floor(planned * (1 + MaxVolumeIncrease))
	if ceiling < planned {
		ceiling = planned
	}
	if rec.SuggestedValue < floor {
		rec.SuggestedValue = floor
		v.correct(rec, "rep_floor", fmt.Sprintf("rep reduction limited to retain %.0f%% of plan", MinRepRetention*100))
	}
	if rec.SuggestedValue > ceiling {
		rec.SuggestedValue = ceiling
		v.correct(rec, "volume_increase", fmt.Sprintf("volume increase capped at %.0f%%", MaxVolumeIncrease*100))
	}
}

// checkRestBounds enforces the rest floor and bounds added rest by the
// declared session time budget.
func (v *validator) checkRestBounds(rec *Recommendation, sctx SessionContext, ex ExerciseSnapshot) {
	if rec.SuggestedValue < RestFloorSeconds {
		rec.SuggestedValue = RestFloorSeconds
		v.correct(rec, "rest_floor", fmt.Sprintf("rest raised to the %ds floor", RestFloorSeconds))
	}
	if sctx.AvailableMinutes <= 0 || rec.SuggestedValue <= rec.OriginalValue {
		return
	}
	remaining := ex.PlannedSets - ex.CurrentSet
	if remaining < 1 {
		remaining = 1
	}
	budget := MaxSessionExtension * float64(sctx.AvailableMinutes) * 60
	max := rec.OriginalValue + budget/float64(remaining)
	if rec.SuggestedValue > max {
		rec.SuggestedValue = max
		v.correct(rec, "session_extension", fmt.Sprintf("added rest capped to %.0f%% of available time", MaxSessionExtension*100))
	}
}

// checkWarmupBounds bounds warmup minutes by the declared time budget.
func (v *validator) checkWarmupBounds(rec *Recommendation, sctx SessionContext) {
	if sctx.AvailableMinutes <= 0 {
		return
	}
	max := MaxSessionExtension * float64(sctx.AvailableMinutes)
	if rec.SuggestedValue > max {
		rec.SuggestedValue = max
		v.correct(rec, "session_extension", fmt.Sprintf("warmup capped to %.0f%% of available time", MaxSessionExtension*100))
	}
}
