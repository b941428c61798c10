// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"context"
	"fmt"
	"time"

	"github.com/adaptivefit/coach/internal/profile"
)

// RecommendationType classifies coaching adjustments.
type RecommendationType int

const (
	// TypeHold keeps the current parameters unchanged. It is also the
	// conservative downgrade target for increase recommendations under
	// elevated strain.
	TypeHold RecommendationType = iota
	// TypeIncreaseLoad raises the working weight.
	TypeIncreaseLoad
	// TypeDecreaseLoad lowers the working weight.
	TypeDecreaseLoad
	// TypeAdjustReps changes the rep target for remaining sets.
	TypeAdjustReps
	// TypeModifyRest changes the rest interval between sets.
	TypeModifyRest
	// TypeSubstituteExercise swaps the exercise for an alternative.
	TypeSubstituteExercise
	// TypeAddWarmup prepends warmup work before the next set.
	TypeAddWarmup
	// TypeEmphasizeForm keeps parameters and shifts focus to technique.
	TypeEmphasizeForm
)

// String returns the wire name for the recommendation type.
func (t RecommendationType) String() string {
	switch t {
	case TypeHold:
		return "hold"
	case TypeIncreaseLoad:
		return "increase-load"
	case TypeDecreaseLoad:
		return "decrease-load"
	case TypeAdjustReps:
		return "adjust-reps"
	case TypeModifyRest:
		return "modify-rest"
	case TypeSubstituteExercise:
		return "substitute-exercise"
	case TypeAddWarmup:
		return "add-warmup"
	case TypeEmphasizeForm:
		return "emphasize-form"
	default:
		return "unknown"
	}
}

// ParseRecommendationType converts a wire name back to a type tag.
func ParseRecommendationType(s string) (RecommendationType, error) {
	for t := TypeHold; t <= TypeEmphasizeForm; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return TypeHold, fmt.Errorf("unknown recommendation type %q", s)
}

// MarshalJSON encodes the type as its wire name.
func (t RecommendationType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes the wire name.
func (t *RecommendationType) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("recommendation type must be a JSON string")
	}
	parsed, err := ParseRecommendationType(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// isIncrease reports whether the type raises training stress.
func (t RecommendationType) isIncrease() bool {
	return t == TypeIncreaseLoad || t == TypeAddWarmup
}

// RiskTier grades a recommendation's safety exposure. Ordered: escalation
// only ever moves toward RiskHigh.
type RiskTier int

const (
	// RiskLow is routine coaching within normal bounds.
	RiskLow RiskTier = iota
	// RiskMedium needs user attention (strain, clamped values).
	RiskMedium
	// RiskHigh was materially corrected by the safety validator.
	RiskHigh
)

// String returns the wire name for the risk tier.
func (r RiskTier) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the tier as its wire name.
func (r RiskTier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON decodes the wire name.
func (r *RiskTier) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"low"`:
		*r = RiskLow
	case `"medium"`:
		*r = RiskMedium
	case `"high"`:
		*r = RiskHigh
	default:
		return fmt.Errorf("unknown risk tier %s", data)
	}
	return nil
}

// TimeBucket buckets the hour of day for context-aware coaching.
type TimeBucket int

const (
	// BucketMorning covers 05:00-10:59.
	BucketMorning TimeBucket = iota
	// BucketAfternoon covers 11:00-16:59.
	BucketAfternoon
	// BucketEvening covers 17:00-21:59.
	BucketEvening
	// BucketNight covers 22:00-04:59.
	BucketNight
)

// String returns the bucket name.
func (b TimeBucket) String() string {
	switch b {
	case BucketMorning:
		return "morning"
	case BucketAfternoon:
		return "afternoon"
	case BucketEvening:
		return "evening"
	case BucketNight:
		return "night"
	default:
		return "unknown"
	}
}

// CrowdingLevel describes gym congestion.
type CrowdingLevel int

const (
	// CrowdingUnknown means no signal was provided.
	CrowdingUnknown CrowdingLevel = iota
	// CrowdingLow means equipment is freely available.
	CrowdingLow
	// CrowdingMedium means some waiting is likely.
	CrowdingMedium
	// CrowdingHigh means heavy congestion.
	CrowdingHigh
)

// String returns the crowding level name.
func (c CrowdingLevel) String() string {
	switch c {
	case CrowdingLow:
		return "low"
	case CrowdingMedium:
		return "medium"
	case CrowdingHigh:
		return "high"
	default:
		return "unknown"
	}
}

// PerformanceSummary condenses recent performance for one exercise.
type PerformanceSummary struct {
	// AvgCompletion is the mean completed/planned volume ratio (0-1).
	AvgCompletion float64 `json:"avg_completion"`

	// Sessions is how many sessions the summary covers.
	Sessions int `json:"sessions"`

	// LastExertion is the most recent perceived exertion rating (1-10).
	LastExertion float64 `json:"last_exertion,omitempty"`
}

// RawSignals carries heterogeneous situational inputs as supplied by the
// caller. Fields may be absent or out of range; the context assembler
// drops anything invalid rather than erroring.
type RawSignals struct {
	// Timestamp anchors time-of-day derivation; zero means "now".
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Energy is the user-declared energy level (1-10, 0 = absent).
	Energy float64 `json:"energy,omitempty"`

	// Motivation is the user-declared motivation (1-10, 0 = absent).
	Motivation float64 `json:"motivation,omitempty"`

	// AvailableMinutes is the remaining session time (0 = absent).
	AvailableMinutes int `json:"available_minutes,omitempty"`

	// Equipment is the set of available equipment names.
	Equipment []string `json:"equipment,omitempty"`

	// Crowding is the declared congestion level: low, medium, high.
	Crowding string `json:"crowding,omitempty"`

	// Strain is a normalized physiological strain signal (0-10,
	// 0 = absent), e.g. from a wearable.
	Strain float64 `json:"strain,omitempty"`

	// PriorPerformance summarizes recent sessions for the exercise.
	PriorPerformance *PerformanceSummary `json:"prior_performance,omitempty"`
}

// SessionContext is the fixed-shape context record consumed by the
// candidate generator. Time bucket and day of week are always present;
// everything else is optional (zero = absent).
type SessionContext struct {
	TimeBucket       TimeBucket          `json:"time_bucket"`
	Hour             int                 `json:"hour"`
	DayOfWeek        time.Weekday        `json:"day_of_week"`
	Energy           float64             `json:"energy,omitempty"`
	Motivation       float64             `json:"motivation,omitempty"`
	AvailableMinutes int                 `json:"available_minutes,omitempty"`
	Equipment        []string            `json:"equipment,omitempty"`
	Crowding         CrowdingLevel       `json:"crowding,omitempty"`
	Strain           float64             `json:"strain,omitempty"`
	PriorPerformance *PerformanceSummary `json:"prior_performance,omitempty"`
}

// HasEnergy reports whether an energy signal was declared.
func (c SessionContext) HasEnergy() bool { return c.Energy > 0 }

// HasStrain reports whether a strain signal was declared.
func (c SessionContext) HasStrain() bool { return c.Strain > 0 }

// ExerciseSnapshot captures the exercise in progress at request time.
type ExerciseSnapshot struct {
	Exercise           string  `json:"exercise" validate:"required"`
	PlannedSets        int     `json:"planned_sets" validate:"gte=0"`
	PlannedReps        int     `json:"planned_reps" validate:"gte=0"`
	PlannedWeight      float64 `json:"planned_weight" validate:"gte=0"`
	PlannedRestSeconds int     `json:"planned_rest_seconds" validate:"gte=0"`
	CurrentSet         int     `json:"current_set" validate:"gte=0"`
}

// Alternative is a secondary candidate delivered alongside the primary
// recommendation.
type Alternative struct {
	Type           RecommendationType `json:"type"`
	SuggestedValue float64            `json:"suggested_value"`
	Reasoning      string             `json:"reasoning"`
}

// Recommendation is the engine's output: a single safety-bounded coaching
// adjustment. It is immutable once emitted to the caller; the safety
// validator is the only component that mutates it in flight.
type Recommendation struct {
	ID              string             `json:"id"`
	UserKey         string             `json:"user_key"`
	Exercise        string             `json:"exercise"`
	Type            RecommendationType `json:"type"`
	OriginalValue   float64            `json:"original_value"`
	SuggestedValue  float64            `json:"suggested_value"`
	Unit            string             `json:"unit,omitempty"`
	Confidence      float64            `json:"confidence"`
	Reasoning       string             `json:"reasoning"`
	Factors         []string           `json:"factors"`
	ExpectedOutcome string             `json:"expected_outcome"`
	Risk            RiskTier           `json:"risk"`
	Alternatives    []Alternative      `json:"alternatives,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// HasFactor reports whether the factor tag is present.
func (r *Recommendation) HasFactor(tag string) bool {
	for _, f := range r.Factors {
		if f == tag {
			return true
		}
	}
	return false
}

// addFactor appends a factor tag once.
func (r *Recommendation) addFactor(tag string) {
	if !r.HasFactor(tag) {
		r.Factors = append(r.Factors, tag)
	}
}

// escalateRisk raises the risk tier to at least min. Risk never descends.
func (r *Recommendation) escalateRisk(min RiskTier) {
	if r.Risk < min {
		r.Risk = min
	}
}

// FeedbackEvent is the user's response to a delivered recommendation.
// Exactly one of Accepted, Modified, Skipped must be true.
type FeedbackEvent struct {
	EventID          string `json:"event_id" validate:"required"`
	RecommendationID string `json:"recommendation_id" validate:"required"`

	Accepted bool `json:"accepted"`
	Modified bool `json:"modified"`
	Skipped  bool `json:"skipped"`

	// Optional ratings, each 1-10 (0 = absent).
	DifficultyRating    int `json:"difficulty_rating,omitempty" validate:"omitempty,gte=1,lte=10"`
	EffectivenessRating int `json:"effectiveness_rating,omitempty" validate:"omitempty,gte=1,lte=10"`
	ExertionRating      int `json:"exertion_rating,omitempty" validate:"omitempty,gte=1,lte=10"`
	FormQualityRating   int `json:"form_quality_rating,omitempty" validate:"omitempty,gte=1,lte=10"`

	// AppliedValue is what the user actually applied (0 = absent).
	AppliedValue float64 `json:"applied_value,omitempty"`

	// CompletionSeconds is how long the adjusted work took (0 = absent).
	CompletionSeconds int `json:"completion_seconds,omitempty"`

	// Note is free-text commentary, retained on skips as a rejection
	// reason.
	Note string `json:"note,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`

	// RecommendationType is stamped by the engine when the event is
	// archived, so insights can group feedback by adjustment type.
	RecommendationType RecommendationType `json:"recommendation_type,omitempty"`
}

// Outcome returns the event's disposition name.
func (e FeedbackEvent) Outcome() string {
	switch {
	case e.Accepted:
		return "accepted"
	case e.Modified:
		return "modified"
	case e.Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Validate checks flag consistency and rating ranges.
func (e FeedbackEvent) Validate() error {
	flags := 0
	for _, f := range []bool{e.Accepted, e.Modified, e.Skipped} {
		if f {
			flags++
		}
	}
	if flags != 1 {
		return fmt.Errorf("%w: exactly one of accepted/modified/skipped must be set, got %d", ErrInvalidFeedback, flags)
	}
	if e.EventID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidFeedback)
	}
	if e.RecommendationID == "" {
		return fmt.Errorf("%w: missing recommendation id", ErrInvalidFeedback)
	}

	ratings := []struct {
		name  string
		value int
	}{
		{"difficulty_rating", e.DifficultyRating},
		{"effectiveness_rating", e.EffectivenessRating},
		{"exertion_rating", e.ExertionRating},
		{"form_quality_rating", e.FormQualityRating},
	}
	for _, r := range ratings {
		if r.value != 0 && (r.value < 1 || r.value > 10) {
			return fmt.Errorf("%w: %s=%d outside [1, 10]", ErrInvalidFeedback, r.name, r.value)
		}
	}

	return nil
}

// RawCandidate is an unconstrained scorer proposal, pre-safety-check.
type RawCandidate struct {
	Type            RecommendationType `json:"type"`
	SuggestedValue  float64            `json:"suggested_value"`
	Confidence      float64            `json:"confidence"`
	Reasoning       string             `json:"reasoning"`
	Factors         []string           `json:"factors,omitempty"`
	ExpectedOutcome string             `json:"expected_outcome,omitempty"`
	Risk            RiskTier           `json:"risk"`
}

// Scorer produces raw candidates from profile, context, and exercise.
// Implementations may be statistical, generative, or a static rule table;
// the engine functions correctly (degraded confidence, rule-based
// recommendations) if a scorer is permanently unavailable.
type Scorer interface {
	// Name identifies the scorer in logs and factor tags.
	Name() string

	// Score proposes a raw candidate. Returning an error that wraps
	// ErrScorerUnavailable (or any error, or a malformed candidate)
	// triggers the rule-based fallback.
	Score(ctx context.Context, p *profile.Profile, sctx SessionContext, ex ExerciseSnapshot) (*RawCandidate, error)
}

// HistoryStore persists recommendation records, archived feedback, and
// per-exercise session completion history. Implemented by the Badger
// store; an in-memory fake serves tests.
type HistoryStore interface {
	// SaveRecommendation persists a delivered recommendation for later
	// feedback reference.
	SaveRecommendation(ctx context.Context, rec *Recommendation) error

	// GetRecommendation returns a stored recommendation or
	// ErrUnknownRecommendation.
	GetRecommendation(ctx context.Context, id string) (*Recommendation, error)

	// MarkEventProcessed records a feedback event ID. Returns false if
	// the ID was already processed (duplicate delivery).
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)

	// UnmarkEventProcessed releases a dedup mark after a failed apply
	// so the event can be retried.
	UnmarkEventProcessed(ctx context.Context, eventID string) error

	// AppendFeedback archives a processed feedback event.
	AppendFeedback(ctx context.Context, userKey, exercise string, event FeedbackEvent) error

	// RecentFeedback returns up to n archived events for the exercise,
	// newest first.
	RecentFeedback(ctx context.Context, userKey, exercise string, n int) ([]FeedbackEvent, error)

	// RecentFeedbackByUser returns up to n archived events across all
	// exercises, newest first.
	RecentFeedbackByUser(ctx context.Context, userKey string, n int) ([]FeedbackEvent, error)

	// RecordSessionCompletion logs a completed/planned volume ratio for
	// an exercise session.
	RecordSessionCompletion(ctx context.Context, userKey, exercise string, ratio float64) error

	// RecentCompletions returns up to n completion ratios for the
	// exercise, newest first.
	RecentCompletions(ctx context.Context, userKey, exercise string, n int) ([]float64, error)
}

// AuditSink receives every delivered recommendation and processed
// feedback event for offline analysis. Implementations must be
// fire-and-forget: never block, never fail the request path.
type AuditSink interface {
	RecordRecommendation(rec *Recommendation)
	RecordFeedback(userKey string, event FeedbackEvent)
}

// history bundles the per-request history view prefetched by the engine.
type history struct {
	recent      []FeedbackEvent
	completions []float64
}
