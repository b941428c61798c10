// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"fmt"
	"time"
)

// Config controls engine behavior. All fields have safe defaults; use
// DefaultConfig and override selectively.
type Config struct {
	// ScorerTimeout bounds a single scorer invocation. On expiry the
	// rule-based fallback takes over.
	ScorerTimeout time.Duration `koanf:"scorer_timeout"`

	// FallbackConfidenceCap caps confidence on rule-based fallback
	// recommendations.
	FallbackConfidenceCap float64 `koanf:"fallback_confidence_cap"`

	// CompletionWindow is how many recent sessions the completion-rate
	// check considers when deciding an exercise is chronically
	// under-completed.
	CompletionWindow int `koanf:"completion_window"`

	// CompletionThreshold is the average completion ratio below which
	// substitute-exercise overrides the scorer's proposal.
	CompletionThreshold float64 `koanf:"completion_threshold"`

	// StrainHighThreshold is the strain signal level at which increase
	// recommendations are downgraded.
	StrainHighThreshold float64 `koanf:"strain_high_threshold"`

	// FormLowThreshold is the recent form-quality rating at or below
	// which load increases are retyped to emphasize-form.
	FormLowThreshold float64 `koanf:"form_low_threshold"`

	// DifficultySweetSpot is the difficulty rating treated as ideally
	// challenging; ratings below pull preferred intensity up, above
	// pull it down.
	DifficultySweetSpot float64 `koanf:"difficulty_sweet_spot"`

	// FamiliarTimeMinVisits is how many sessions in a time bucket make
	// it "familiar" for the confidence bonus.
	FamiliarTimeMinVisits int64 `koanf:"familiar_time_min_visits"`

	// BehaviorRate is the EMA rate for acceptance/modification/skip
	// tracking.
	BehaviorRate float64 `koanf:"behavior_rate"`

	// HistoryDepth is how many archived feedback events the engine
	// prefetches per request for contradiction and form checks.
	HistoryDepth int `koanf:"history_depth"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ScorerTimeout:         250 * time.Millisecond,
		FallbackConfidenceCap: 0.6,
		CompletionWindow:      4,
		CompletionThreshold:   0.5,
		StrainHighThreshold:   7.0,
		FormLowThreshold:      4.0,
		DifficultySweetSpot:   7.0,
		FamiliarTimeMinVisits: 3,
		BehaviorRate:          0.1,
		HistoryDepth:          10,
	}
}

// Validate checks configuration sanity.
func (c Config) Validate() error {
	if c.ScorerTimeout <= 0 {
		return fmt.Errorf("scorer_timeout must be positive, got %v", c.ScorerTimeout)
	}
	if c.FallbackConfidenceCap <= 0 || c.FallbackConfidenceCap > 1 {
		return fmt.Errorf("fallback_confidence_cap must be in (0, 1], got %v", c.FallbackConfidenceCap)
	}
	if c.CompletionWindow < 1 {
		return fmt.Errorf("completion_window must be at least 1, got %d", c.CompletionWindow)
	}
	if c.CompletionThreshold <= 0 || c.CompletionThreshold >= 1 {
		return fmt.Errorf("completion_threshold must be in (0, 1), got %v", c.CompletionThreshold)
	}
	if c.StrainHighThreshold <= 0 || c.StrainHighThreshold > 10 {
		return fmt.Errorf("strain_high_threshold must be in (0, 10], got %v", c.StrainHighThreshold)
	}
	if c.FormLowThreshold <= 0 || c.FormLowThreshold > 10 {
		return fmt.Errorf("form_low_threshold must be in (0, 10], got %v", c.FormLowThreshold)
	}
	if c.DifficultySweetSpot < 1 || c.DifficultySweetSpot > 10 {
		return fmt.Errorf("difficulty_sweet_spot must be in [1, 10], got %v", c.DifficultySweetSpot)
	}
	if c.FamiliarTimeMinVisits < 1 {
		return fmt.Errorf("familiar_time_min_visits must be at least 1, got %d", c.FamiliarTimeMinVisits)
	}
	if c.BehaviorRate <= 0 || c.BehaviorRate >= 1 {
		return fmt.Errorf("behavior_rate must be in (0, 1), got %v", c.BehaviorRate)
	}
	if c.HistoryDepth < 1 {
		return fmt.Errorf("history_depth must be at least 1, got %d", c.HistoryDepth)
	}
	return nil
}
