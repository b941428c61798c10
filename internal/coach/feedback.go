// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/profile"
)

// Learning-rate adaptation constants. When the user keeps modifying or
// skipping suggestions the model is diverging and learns faster; when
// feedback is stable the rate decays toward its floor.
const (
	divergenceThreshold = 0.2
	learningRateGrowth  = 1.2
	learningRateDecay   = 0.95
	adaptEvery          = 10
)

// Confidence dynamics: slow growth per processed event, sharp penalty
// when an event contradicts the two most recent prior events for the
// same exercise. Oscillation lowers confidence much faster than
// consistency raises it.
const (
	confidenceGrowth  = 0.001
	contradictionDrop = 0.05
)

// processor applies one feedback event to a profile. It is a pure
// transformation over the loaded profile: no I/O, deterministic given
// its inputs. At-most-once delivery is the caller's responsibility.
type processor struct {
	cfg Config
	log zerolog.Logger
}

func newProcessor(cfg Config, log zerolog.Logger) *processor {
	return &processor{
		cfg: cfg,
		log: log.With().Str("component", "feedback").Logger(),
	}
}

// apply mutates p in place. prior holds earlier archived events for the
// same exercise, newest first, not including the current event.
func (pr *processor) apply(p *profile.Profile, rec *Recommendation, e FeedbackEvent, prior []FeedbackEvent, now time.Time) {
	pr.applyPreferenceSignals(p, rec, e)
	pr.applyBehavioralRates(p, e)
	pr.applyConfidence(p, e, prior)

	ts := e.Timestamp
	if ts.IsZero() {
		ts = now
	}
	p.VisitTimeBucket(bucketForHour(ts.Hour()).String())

	if e.Skipped && e.Note != "" {
		p.AddRejectionReason(e.Note)
	}

	p.TotalInteractions++
	p.LastUpdated = now.UTC()

	if p.TotalInteractions%adaptEvery == 0 {
		pr.adaptLearningRate(p)
	}
}

// ema moves old toward signal at the profile's learning rate.
func ema(old, signal, rate float64) float64 {
	return old + rate*(signal-old)
}

// applyPreferenceSignals extracts learning signals from the event's
// ratings and EMA-updates the affected scalar preferences, clamping
// after every step.
func (pr *processor) applyPreferenceSignals(p *profile.Profile, rec *Recommendation, e FeedbackEvent) {
	lr := p.LearningRate * p.AdaptationSpeed
	if lr > profile.LearningRateMax {
		lr = profile.LearningRateMax
	}

	// Difficulty vs the sweet spot: too easy pulls preferred intensity
	// up, too hard pulls it down.
	if e.DifficultyRating != 0 {
		delta := pr.cfg.DifficultySweetSpot - float64(e.DifficultyRating)
		signal := profile.ClampScale(p.PreferredIntensity + delta)
		p.PreferredIntensity = profile.ClampScale(ema(p.PreferredIntensity, signal, lr))
	}

	// Low exertion with a quick finish means the user can absorb more
	// volume.
	if e.ExertionRating != 0 && e.ExertionRating <= 4 && e.CompletionSeconds > 0 && !e.Skipped {
		signal := profile.ClampScale(p.VolumeTolerance + 1)
		p.VolumeTolerance = profile.ClampScale(ema(p.VolumeTolerance, signal, lr))
	}

	// Poor form quality shifts emphasis toward technique.
	if e.FormQualityRating != 0 && float64(e.FormQualityRating) <= pr.cfg.FormLowThreshold {
		signal := profile.ClampScale(p.FormFocus + 2)
		p.FormFocus = profile.ClampScale(ema(p.FormFocus, signal, lr))
	}

	// Outcome of progression suggestions tunes the progression appetite.
	if rec.Type.isIncrease() {
		switch {
		case e.Accepted:
			signal := profile.ClampScale(p.ProgressionRate + 1)
			p.ProgressionRate = profile.ClampScale(ema(p.ProgressionRate, signal, lr))
		case e.Skipped:
			signal := profile.ClampScale(p.ProgressionRate - 1)
			p.ProgressionRate = profile.ClampScale(ema(p.ProgressionRate, signal, lr))
		}
	}

	// Welcomed substitutions indicate appetite for variety.
	if rec.Type == TypeSubstituteExercise && e.EffectivenessRating >= 8 {
		signal := profile.ClampScale(p.ExerciseVariety + 1)
		p.ExerciseVariety = profile.ClampScale(ema(p.ExerciseVariety, signal, lr))
	}

	// A modified rest suggestion carries the user's actual preference.
	if rec.Type == TypeModifyRest && e.Modified && e.AppliedValue >= RestFloorSeconds {
		updated := ema(float64(p.RestPreferenceSeconds), e.AppliedValue, lr)
		if updated < RestFloorSeconds {
			updated = RestFloorSeconds
		}
		p.RestPreferenceSeconds = int(updated + 0.5)
	}
}

// applyBehavioralRates EMA-updates the acceptance, modification, and
// skip rates against the event's flags.
func (pr *processor) applyBehavioralRates(p *profile.Profile, e FeedbackEvent) {
	rate := pr.cfg.BehaviorRate
	p.AcceptanceRate = profile.ClampRate(ema(p.AcceptanceRate, boolSignal(e.Accepted), rate))
	p.ModificationRate = profile.ClampRate(ema(p.ModificationRate, boolSignal(e.Modified), rate))
	p.SkipRate = profile.ClampRate(ema(p.SkipRate, boolSignal(e.Skipped), rate))
}

func boolSignal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// applyConfidence grows confidence slowly with experience and drops it
// sharply when the event contradicts the two most recent prior events
// for the exercise.
func (pr *processor) applyConfidence(p *profile.Profile, e FeedbackEvent, prior []FeedbackEvent) {
	if contradicts(e, prior) {
		p.OverallConfidence = profile.ClampRate(p.OverallConfidence - contradictionDrop)
		p.ExerciseConfidence = profile.ClampRate(p.ExerciseConfidence - contradictionDrop)
		pr.log.Debug().
			Str("user_key", p.UserKey).
			Str("event_id", e.EventID).
			Msg("contradictory feedback, lowering confidence")
		return
	}
	p.OverallConfidence = profile.ClampRate(p.OverallConfidence + confidenceGrowth)
	p.ExerciseConfidence = profile.ClampRate(p.ExerciseConfidence + confidenceGrowth)
	if e.DifficultyRating != 0 {
		p.IntensityConfidence = profile.ClampRate(p.IntensityConfidence + confidenceGrowth)
	}
}

// outcomeSign maps accepted to +1, skipped to -1, modified to 0.
func outcomeSign(e FeedbackEvent) int {
	switch {
	case e.Accepted:
		return 1
	case e.Skipped:
		return -1
	default:
		return 0
	}
}

// contradicts reports whether the event reverses the last two prior
// events' consistent disposition.
func contradicts(e FeedbackEvent, prior []FeedbackEvent) bool {
	if len(prior) < 2 {
		return false
	}
	sign := outcomeSign(e)
	if sign == 0 {
		return false
	}
	return outcomeSign(prior[0]) == -sign && outcomeSign(prior[1]) == -sign
}

// adaptLearningRate speeds learning up while feedback diverges from
// suggestions and decays it once feedback stabilizes.
func (pr *processor) adaptLearningRate(p *profile.Profile) {
	divergence := p.ModificationRate + p.SkipRate
	if divergence > divergenceThreshold {
		p.LearningRate *= learningRateGrowth
		if p.LearningRate > profile.LearningRateMax {
			p.LearningRate = profile.LearningRateMax
		}
	} else {
		p.LearningRate *= learningRateDecay
		if p.LearningRate < profile.LearningRateMin {
			p.LearningRate = profile.LearningRateMin
		}
	}
}
