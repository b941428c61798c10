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

// Trend thresholds for the acceptance-rate comparison between the older
// and newer halves of recent feedback.
const (
	trendImproving = 0.3
	trendDeclining = -0.3
	trendMinEvents = 6
)

// Insights is a human-readable digest of what the engine has learned
// about a user.
type Insights struct {
	UserKey             string    `json:"user_key"`
	ExperienceLevel     string    `json:"experience_level"`
	TotalInteractions   int64     `json:"total_interactions"`
	AcceptanceRate      float64   `json:"acceptance_rate"`
	ImprovementTrend    string    `json:"improvement_trend"` // "improving", "declining", "stable", "insufficient-data"
	PreferredTimeBucket string    `json:"preferred_time_bucket,omitempty"`
	CoachingNotes       []string  `json:"coaching_notes"`
	RecentRejections    []string  `json:"recent_rejections,omitempty"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Insights summarizes the user's learned preferences, feedback trend,
// and coaching guidance.
func (e *Engine) Insights(ctx context.Context, userKey string) (*Insights, error) {
	p, err := e.Profile(ctx, userKey)
	if err != nil {
		return nil, err
	}

	recent, err := e.history.RecentFeedbackByUser(ctx, userKey, 20)
	if err != nil {
		e.log.Debug().Err(err).Str("user_key", userKey).Msg("feedback history unavailable for insights")
		recent = nil
	}

	ins := &Insights{
		UserKey:           userKey,
		ExperienceLevel:   p.ExperienceLevel(),
		TotalInteractions: p.TotalInteractions,
		AcceptanceRate:    p.AcceptanceRate,
		ImprovementTrend:  acceptanceTrend(recent),
		GeneratedAt:       e.now().UTC(),
	}

	ins.PreferredTimeBucket = preferredBucket(p.TimeBucketCounts)

	if n := len(p.RejectionReasons); n > 0 {
		start := 0
		if n > 5 {
			start = n - 5
		}
		ins.RecentRejections = append([]string(nil), p.RejectionReasons[start:]...)
	}

	ins.CoachingNotes = coachingNotes(p, ins.ImprovementTrend)
	return ins, nil
}

// acceptanceTrend compares acceptance in the newer half of recent
// feedback against the older half. Events arrive newest first.
func acceptanceTrend(events []FeedbackEvent) string {
	if len(events) < trendMinEvents {
		return "insufficient-data"
	}
	mid := len(events) / 2
	newer := acceptanceFraction(events[:mid])
	older := acceptanceFraction(events[mid:])
	delta := newer - older
	switch {
	case delta >= trendImproving:
		return "improving"
	case delta <= trendDeclining:
		return "declining"
	default:
		return "stable"
	}
}

func acceptanceFraction(events []FeedbackEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	accepted := 0
	for _, e := range events {
		if e.Accepted {
			accepted++
		}
	}
	return float64(accepted) / float64(len(events))
}

// preferredBucket returns the most visited time bucket, empty when the
// user has no recorded sessions.
func preferredBucket(counts map[string]int64) string {
	var best string
	var max int64
	for bucket, n := range counts {
		if n > max || (n == max && bucket < best) {
			best, max = bucket, n
		}
	}
	return best
}

// coachingNotes derives short guidance strings from the learned profile.
func coachingNotes(p *profile.Profile, trend string) []string {
	var notes []string

	switch p.ExperienceLevel() {
	case "beginner":
		notes = append(notes, "still learning your preferences; expect conservative suggestions")
	case "advanced":
		notes = append(notes, "well-established preference model; suggestions are highly personalized")
	}

	if p.SkipRate > 0.4 {
		notes = append(notes, "many suggestions skipped recently; consider adjusting your stated goals")
	}
	if p.ModificationRate > 0.4 {
		notes = append(notes, "suggestions are frequently modified; the model is adapting to your edits")
	}
	if p.FormFocus >= 8 {
		notes = append(notes, "technique quality is a priority; load progression will be gradual")
	}
	if p.PreferredIntensity >= 8 {
		notes = append(notes, fmt.Sprintf("high intensity preference (%.1f/10); recovery signals are weighted heavily", p.PreferredIntensity))
	}
	if trend == "declining" {
		notes = append(notes, "recent suggestions have landed poorly; the learning rate has been increased")
	}

	if len(notes) == 0 {
		notes = append(notes, "training preferences are stable; keep the feedback coming")
	}
	return notes
}
