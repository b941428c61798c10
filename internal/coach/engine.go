// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package coach implements the adaptive recommendation engine: it turns
// a user's feedback history and current session context into a single
// safety-bounded coaching adjustment, and learns the user's preferences
// from every feedback event.
package coach

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/metrics"
	"github.com/adaptivefit/coach/internal/profile"
)

// Engine is the recommendation engine facade. It exposes Recommend and
// SubmitFeedback; everything else is plumbing. Safe for concurrent use:
// requests for different users proceed independently, while profile
// writes for the same user are serialized through a per-key lock.
type Engine struct {
	cfg      Config
	profiles profile.Repository
	history  HistoryStore
	audit    AuditSink
	gen      *generator
	val      *validator
	proc     *processor
	locks    *profile.KeyedMutex
	log      zerolog.Logger
	now      func() time.Time
}

// New builds an engine. scorer and audit may be nil: without a scorer
// every recommendation takes the rule-based path, and without an audit
// sink nothing is recorded for offline analysis.
func New(cfg Config, profiles profile.Repository, hist HistoryStore, scorer Scorer, audit AuditSink, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if hist == nil {
		return nil, fmt.Errorf("history store is required")
	}
	log = log.With().Str("component", "engine").Logger()
	return &Engine{
		cfg:      cfg,
		profiles: profiles,
		history:  hist,
		audit:    audit,
		gen:      newGenerator(cfg, scorer, log),
		val:      newValidator(cfg, log),
		proc:     newProcessor(cfg, log),
		locks:    profile.NewKeyedMutex(),
		log:      log,
		now:      time.Now,
	}, nil
}

// Recommend produces one safety-bounded coaching adjustment for the
// exercise in progress. It never fails on internal degradation: a dead
// scorer falls back to rules, and a profile store outage degrades to an
// ephemeral default profile. The recommendation is persisted for later
// feedback reference and mirrored to the audit sink before returning.
func (e *Engine) Recommend(ctx context.Context, userKey string, ex ExerciseSnapshot, raw RawSignals) (*Recommendation, error) {
	if userKey == "" {
		return nil, fmt.Errorf("user key is required")
	}
	if ex.Exercise == "" {
		return nil, fmt.Errorf("exercise is required")
	}
	start := time.Now()
	defer func() {
		metrics.RecommendationDuration.Observe(time.Since(start).Seconds())
	}()

	sctx := AssembleContext(raw, e.now)
	p := e.loadProfileDegraded(ctx, userKey)
	hist := e.fetchHistory(ctx, userKey, ex.Exercise)

	rec := e.gen.generate(ctx, p, sctx, ex, hist)
	e.val.validate(rec, sctx, ex, hist)

	if err := e.history.SaveRecommendation(ctx, rec); err != nil {
		// The caller still gets a valid recommendation; only the later
		// feedback reference is at risk.
		e.log.Error().Err(err).
			Str("recommendation_id", rec.ID).
			Msg("failed to persist recommendation")
	}
	if e.audit != nil {
		e.audit.RecordRecommendation(rec)
	}

	source := "scorer"
	if rec.HasFactor("fallback") {
		source = "fallback"
	}
	metrics.RecommendationsTotal.WithLabelValues(rec.Type.String(), rec.Risk.String(), source).Inc()

	e.log.Info().
		Str("user_key", userKey).
		Str("exercise", ex.Exercise).
		Str("type", rec.Type.String()).
		Str("risk", rec.Risk.String()).
		Float64("confidence", rec.Confidence).
		Str("source", source).
		Msg("recommendation generated")
	return rec, nil
}

// SubmitFeedback applies one feedback event to the user's preference
// profile and archives the event. Duplicate event IDs are detected and
// become no-ops. A profile store outage fails loudly: dropping learning
// data silently is worse than an error the caller can retry.
func (e *Engine) SubmitFeedback(ctx context.Context, userKey string, event FeedbackEvent) (profile.Summary, error) {
	if userKey == "" {
		return profile.Summary{}, fmt.Errorf("user key is required")
	}
	if err := event.Validate(); err != nil {
		metrics.FeedbackEventsTotal.WithLabelValues("rejected").Inc()
		return profile.Summary{}, err
	}
	start := time.Now()
	defer func() {
		metrics.FeedbackDuration.Observe(time.Since(start).Seconds())
	}()

	rec, err := e.history.GetRecommendation(ctx, event.RecommendationID)
	if err != nil {
		metrics.FeedbackEventsTotal.WithLabelValues("rejected").Inc()
		return profile.Summary{}, err
	}
	if rec.UserKey != userKey {
		metrics.FeedbackEventsTotal.WithLabelValues("rejected").Inc()
		return profile.Summary{}, fmt.Errorf("%w: %s", ErrUnknownRecommendation, event.RecommendationID)
	}

	// Serialize the read-modify-write per user, or concurrent EMA
	// updates lose each other's writes.
	unlock := e.locks.Lock(userKey)
	defer unlock()

	// Once accepted, feedback processing runs to completion even if the
	// caller walks away.
	ctx = context.WithoutCancel(ctx)

	fresh, err := e.history.MarkEventProcessed(ctx, event.EventID)
	if err != nil {
		return profile.Summary{}, fmt.Errorf("feedback dedup check: %w", err)
	}
	if !fresh {
		metrics.FeedbackEventsTotal.WithLabelValues("duplicate").Inc()
		e.log.Warn().
			Str("event_id", event.EventID).
			Str("user_key", userKey).
			Msg("duplicate feedback event ignored")
		p, loadErr := e.profiles.Load(ctx, userKey)
		if loadErr != nil {
			return profile.Summary{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, loadErr)
		}
		return p.Summary(), nil
	}

	p, err := e.profiles.Load(ctx, userKey)
	if err != nil {
		e.unmarkEvent(ctx, event.EventID)
		return profile.Summary{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	prior, err := e.history.RecentFeedback(ctx, userKey, rec.Exercise, e.cfg.HistoryDepth)
	if err != nil {
		e.log.Debug().Err(err).Msg("feedback history unavailable, skipping contradiction check")
		prior = nil
	}

	now := e.now()
	e.proc.apply(p, rec, event, prior, now)

	// A computed preference outside its bound is a logic error, not a
	// runtime condition. Fatal to this request, logged for
	// investigation, never silently clamped.
	if err := p.Validate(); err != nil {
		e.unmarkEvent(ctx, event.EventID)
		e.log.Error().Err(err).
			Str("user_key", userKey).
			Str("event_id", event.EventID).
			Msg("profile invariant violation after feedback processing")
		return profile.Summary{}, err
	}

	if err := e.profiles.Save(ctx, p); err != nil {
		e.unmarkEvent(ctx, event.EventID)
		return profile.Summary{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	event.RecommendationType = rec.Type
	if event.Timestamp.IsZero() {
		event.Timestamp = now.UTC()
	}
	if err := e.history.AppendFeedback(ctx, userKey, rec.Exercise, event); err != nil {
		// Profile already updated; the archive gap only weakens future
		// contradiction checks.
		e.log.Error().Err(err).
			Str("event_id", event.EventID).
			Msg("failed to archive feedback event")
	}
	if e.audit != nil {
		e.audit.RecordFeedback(userKey, event)
	}

	metrics.FeedbackEventsTotal.WithLabelValues(event.Outcome()).Inc()
	e.log.Info().
		Str("user_key", userKey).
		Str("event_id", event.EventID).
		Str("outcome", event.Outcome()).
		Int64("total_interactions", p.TotalInteractions).
		Msg("feedback processed")
	return p.Summary(), nil
}

// LogSessionCompletion records how much of the planned volume the user
// completed for one exercise session. The rolling completion history
// drives the substitute-exercise override.
func (e *Engine) LogSessionCompletion(ctx context.Context, userKey, exercise string, ratio float64) error {
	if userKey == "" || exercise == "" {
		return fmt.Errorf("user key and exercise are required")
	}
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("completion ratio %v outside [0, 1]", ratio)
	}
	return e.history.RecordSessionCompletion(ctx, userKey, exercise, ratio)
}

// Profile returns the user's current preference profile, materializing
// the documented defaults for never-seen users.
func (e *Engine) Profile(ctx context.Context, userKey string) (*profile.Profile, error) {
	if userKey == "" {
		return nil, fmt.Errorf("user key is required")
	}
	p, err := e.profiles.Load(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return p, nil
}

// loadProfileDegraded loads the profile, degrading to an ephemeral
// default on store outage so the recommendation path never fails.
func (e *Engine) loadProfileDegraded(ctx context.Context, userKey string) *profile.Profile {
	start := time.Now()
	p, err := e.profiles.Load(ctx, userKey)
	if err != nil {
		metrics.ObserveStoreOp("load", "default", start)
		e.log.Warn().Err(err).
			Str("user_key", userKey).
			Msg("profile store unavailable, using ephemeral default profile")
		return profile.Default(userKey)
	}
	metrics.ObserveStoreOp("load", "ok", start)
	return p
}

// fetchHistory prefetches the per-request history view. Failures leave
// the view empty; history only sharpens recommendations, it never gates
// them.
func (e *Engine) fetchHistory(ctx context.Context, userKey, exercise string) history {
	var h history
	recent, err := e.history.RecentFeedback(ctx, userKey, exercise, e.cfg.HistoryDepth)
	if err != nil {
		e.log.Debug().Err(err).Str("exercise", exercise).Msg("recent feedback unavailable")
	} else {
		h.recent = recent
	}
	completions, err := e.history.RecentCompletions(ctx, userKey, exercise, e.cfg.CompletionWindow)
	if err != nil {
		e.log.Debug().Err(err).Str("exercise", exercise).Msg("completion history unavailable")
	} else {
		h.completions = completions
	}
	return h
}

// unmarkEvent releases a dedup mark after a failed apply so the caller
// can retry the event.
func (e *Engine) unmarkEvent(ctx context.Context, eventID string) {
	if err := e.history.UnmarkEventProcessed(ctx, eventID); err != nil {
		e.log.Error().Err(err).
			Str("event_id", eventID).
			Msg("failed to release feedback dedup mark")
	}
}
