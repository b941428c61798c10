// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package profile defines the durable per-user preference model and its
// persistence contract.
//
// A Profile is created with documented defaults on first interaction, is
// mutated only by the feedback processor, and is never deleted by this
// subsystem. Every scalar preference field carries a declared bound that
// must hold after every update; Validate enforces the bounds as an internal
// invariant check.
package profile

import (
	"errors"
	"fmt"
	"time"
)

// Declared bounds for profile fields. Preference scalars live on a 1-10
// scale, behavioral and confidence fields on 0-1.
const (
	ScaleMin = 1.0
	ScaleMax = 10.0

	RateMin = 0.0
	RateMax = 1.0

	// LearningRateDefault is intentionally small so a single contradictory
	// event cannot swing a preference across its range.
	LearningRateDefault = 0.05
	LearningRateMin     = 0.05
	LearningRateMax     = 0.3

	// RestPreferenceDefault is the starting rest interval in seconds.
	RestPreferenceDefault = 90

	// RejectionReasonsMax caps the retained skip/rejection notes.
	RejectionReasonsMax = 20
)

// Default preference values. These mirror the initial coaching posture for
// a user the engine has never seen: moderately high intensity, high volume
// tolerance, strong form focus.
const (
	DefaultIntensity       = 7.0
	DefaultVolumeTolerance = 8.0
	DefaultVariety         = 6.0
	DefaultProgressionRate = 5.0
	DefaultFormFocus       = 8.0

	DefaultAcceptanceRate   = 0.5
	DefaultModificationRate = 0.3
	DefaultSkipRate         = 0.1

	DefaultConfidence = 0.5

	DefaultAdaptationSpeed = 1.0
)

// ErrInvariant indicates a computed profile value escaped its declared
// bound. This is a programming-logic error, never a runtime condition to
// recover from; callers must fail the request and log it.
var ErrInvariant = errors.New("profile invariant violation")

// Profile is the durable per-user learned preference state. Exactly one
// live instance exists per user key.
type Profile struct {
	// UserKey is the opaque user identity.
	UserKey string `json:"user_key" validate:"required"`

	// Scalar preferences, each on the 1-10 scale.
	PreferredIntensity float64 `json:"preferred_intensity" validate:"gte=1,lte=10"`
	VolumeTolerance    float64 `json:"volume_tolerance" validate:"gte=1,lte=10"`
	ExerciseVariety    float64 `json:"exercise_variety" validate:"gte=1,lte=10"`
	ProgressionRate    float64 `json:"progression_rate" validate:"gte=1,lte=10"`
	FormFocus          float64 `json:"form_focus" validate:"gte=1,lte=10"`

	// RestPreferenceSeconds is the preferred rest interval, positive.
	RestPreferenceSeconds int `json:"rest_preference_seconds" validate:"gt=0"`

	// Behavioral rates, each on 0-1.
	AcceptanceRate   float64 `json:"acceptance_rate" validate:"gte=0,lte=1"`
	ModificationRate float64 `json:"modification_rate" validate:"gte=0,lte=1"`
	SkipRate         float64 `json:"skip_rate" validate:"gte=0,lte=1"`

	// Confidence fields, each on 0-1. Non-decreasing in expectation as
	// interactions accumulate, but contradictory feedback drops them
	// faster than they rise.
	OverallConfidence   float64 `json:"overall_confidence" validate:"gte=0,lte=1"`
	ExerciseConfidence  float64 `json:"exercise_confidence" validate:"gte=0,lte=1"`
	IntensityConfidence float64 `json:"intensity_confidence" validate:"gte=0,lte=1"`

	// RejectionReasons holds the most recent skip/modification notes,
	// newest last, capped at RejectionReasonsMax.
	RejectionReasons []string `json:"rejection_reasons,omitempty"`

	// TimeBucketCounts tracks how often the user trains in each time-of-day
	// bucket. Buckets the user has visited repeatedly count as familiar
	// times for confidence scoring.
	TimeBucketCounts map[string]int64 `json:"time_bucket_counts,omitempty"`

	// TotalInteractions is monotonic non-decreasing.
	TotalInteractions int64 `json:"total_interactions" validate:"gte=0"`

	// LastUpdated is set on every feedback-driven mutation.
	LastUpdated time.Time `json:"last_updated"`

	// LearningRate blends old value and new signal in EMA updates.
	LearningRate float64 `json:"learning_rate" validate:"gte=0,lte=1"`

	// AdaptationSpeed scales how aggressively context shifts candidates.
	AdaptationSpeed float64 `json:"adaptation_speed" validate:"gt=0"`
}

// Default returns the documented default profile for a user key. It is
// deterministic: two calls with the same key produce identical profiles.
func Default(userKey string) *Profile {
	return &Profile{
		UserKey:               userKey,
		PreferredIntensity:    DefaultIntensity,
		VolumeTolerance:       DefaultVolumeTolerance,
		ExerciseVariety:       DefaultVariety,
		ProgressionRate:       DefaultProgressionRate,
		FormFocus:             DefaultFormFocus,
		RestPreferenceSeconds: RestPreferenceDefault,
		AcceptanceRate:        DefaultAcceptanceRate,
		ModificationRate:      DefaultModificationRate,
		SkipRate:              DefaultSkipRate,
		OverallConfidence:     DefaultConfidence,
		ExerciseConfidence:    DefaultConfidence,
		IntensityConfidence:   DefaultConfidence,
		LearningRate:          LearningRateDefault,
		AdaptationSpeed:       DefaultAdaptationSpeed,
	}
}

// ClampScale clamps v to the 1-10 preference scale.
func ClampScale(v float64) float64 {
	return clamp(v, ScaleMin, ScaleMax)
}

// ClampRate clamps v to the 0-1 rate scale.
func ClampRate(v float64) float64 {
	return clamp(v, RateMin, RateMax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate checks the profile's declared bounds. A non-nil result wraps
// ErrInvariant; it means an update escaped its clamp, which is a bug.
func (p *Profile) Validate() error {
	checks := []struct {
		name   string
		value  float64
		lo, hi float64
	}{
		{"preferred_intensity", p.PreferredIntensity, ScaleMin, ScaleMax},
		{"volume_tolerance", p.VolumeTolerance, ScaleMin, ScaleMax},
		{"exercise_variety", p.ExerciseVariety, ScaleMin, ScaleMax},
		{"progression_rate", p.ProgressionRate, ScaleMin, ScaleMax},
		{"form_focus", p.FormFocus, ScaleMin, ScaleMax},
		{"acceptance_rate", p.AcceptanceRate, RateMin, RateMax},
		{"modification_rate", p.ModificationRate, RateMin, RateMax},
		{"skip_rate", p.SkipRate, RateMin, RateMax},
		{"overall_confidence", p.OverallConfidence, RateMin, RateMax},
		{"exercise_confidence", p.ExerciseConfidence, RateMin, RateMax},
		{"intensity_confidence", p.IntensityConfidence, RateMin, RateMax},
		{"learning_rate", p.LearningRate, RateMin, RateMax},
	}

	for _, c := range checks {
		if c.value < c.lo || c.value > c.hi {
			return fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrInvariant, c.name, c.value, c.lo, c.hi)
		}
	}

	if p.UserKey == "" {
		return fmt.Errorf("%w: empty user key", ErrInvariant)
	}
	if p.RestPreferenceSeconds <= 0 {
		return fmt.Errorf("%w: rest_preference_seconds=%d must be positive", ErrInvariant, p.RestPreferenceSeconds)
	}
	if p.TotalInteractions < 0 {
		return fmt.Errorf("%w: total_interactions=%d negative", ErrInvariant, p.TotalInteractions)
	}
	if p.AdaptationSpeed <= 0 {
		return fmt.Errorf("%w: adaptation_speed=%v must be positive", ErrInvariant, p.AdaptationSpeed)
	}

	return nil
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	cp := *p
	if p.RejectionReasons != nil {
		cp.RejectionReasons = make([]string, len(p.RejectionReasons))
		copy(cp.RejectionReasons, p.RejectionReasons)
	}
	if p.TimeBucketCounts != nil {
		cp.TimeBucketCounts = make(map[string]int64, len(p.TimeBucketCounts))
		for k, v := range p.TimeBucketCounts {
			cp.TimeBucketCounts[k] = v
		}
	}
	return &cp
}

// VisitTimeBucket records a training interaction in the given bucket.
func (p *Profile) VisitTimeBucket(bucket string) {
	if bucket == "" {
		return
	}
	if p.TimeBucketCounts == nil {
		p.TimeBucketCounts = make(map[string]int64)
	}
	p.TimeBucketCounts[bucket]++
}

// IsFamiliarTime reports whether the user has trained in the bucket at
// least minVisits times.
func (p *Profile) IsFamiliarTime(bucket string, minVisits int64) bool {
	return p.TimeBucketCounts[bucket] >= minVisits
}

// AddRejectionReason appends a note, keeping only the most recent
// RejectionReasonsMax entries.
func (p *Profile) AddRejectionReason(reason string) {
	if reason == "" {
		return
	}
	p.RejectionReasons = append(p.RejectionReasons, reason)
	if len(p.RejectionReasons) > RejectionReasonsMax {
		p.RejectionReasons = p.RejectionReasons[len(p.RejectionReasons)-RejectionReasonsMax:]
	}
}

// ExperienceLevel buckets a user by interaction history.
func (p *Profile) ExperienceLevel() string {
	switch {
	case p.TotalInteractions < 10:
		return "beginner"
	case p.TotalInteractions < 50:
		return "intermediate"
	default:
		return "advanced"
	}
}

// Summary is the caller-facing digest returned after feedback processing.
type Summary struct {
	UserKey             string    `json:"user_key"`
	PreferredIntensity  float64   `json:"preferred_intensity"`
	VolumeTolerance     float64   `json:"volume_tolerance"`
	AcceptanceRate      float64   `json:"acceptance_rate"`
	OverallConfidence   float64   `json:"overall_confidence"`
	TotalInteractions   int64     `json:"total_interactions"`
	ExperienceLevel     string    `json:"experience_level"`
	LearningRate        float64   `json:"learning_rate"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Summary returns the caller-facing digest of the profile.
func (p *Profile) Summary() Summary {
	return Summary{
		UserKey:            p.UserKey,
		PreferredIntensity: p.PreferredIntensity,
		VolumeTolerance:    p.VolumeTolerance,
		AcceptanceRate:     p.AcceptanceRate,
		OverallConfidence:  p.OverallConfidence,
		TotalInteractions:  p.TotalInteractions,
		ExperienceLevel:    p.ExperienceLevel(),
		LearningRate:       p.LearningRate,
		LastUpdated:        p.LastUpdated,
	}
}
