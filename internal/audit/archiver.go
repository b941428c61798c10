// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/metrics"
)

// maxPending bounds how many unpaired recommendations the archiver keeps
// waiting for their feedback.
const maxPending = 10000

// Archiver consumes the audit bus and writes (recommendation, feedback)
// pairs to a structured audit log. Recommendations without feedback stay
// pending until evicted; feedback referencing an evicted or unseen
// recommendation is logged unpaired.
type Archiver struct {
	sub message.Subscriber
	log zerolog.Logger

	mu      sync.Mutex
	pending map[string]*coach.Recommendation
	order   []string
}

// NewArchiver builds an archiver reading from sub and writing pairs to
// out.
func NewArchiver(sub message.Subscriber, out zerolog.Logger) *Archiver {
	return &Archiver{
		sub:     sub,
		log:     out.With().Str("component", "audit_archiver").Logger(),
		pending: make(map[string]*coach.Recommendation),
	}
}

// Serve consumes both audit topics until the context is canceled. It
// satisfies the supervisor service contract.
func (a *Archiver) Serve(ctx context.Context) error {
	recs, err := a.sub.Subscribe(ctx, TopicRecommendations)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicRecommendations, err)
	}
	fb, err := a.sub.Subscribe(ctx, TopicFeedback)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicFeedback, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-recs:
			if !ok {
				return nil
			}
			a.handleRecommendation(msg)
		case msg, ok := <-fb:
			if !ok {
				return nil
			}
			a.handleFeedback(msg)
		}
	}
}

func (a *Archiver) handleRecommendation(msg *message.Message) {
	defer msg.Ack()

	var rec coach.Recommendation
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		a.log.Error().Err(err).Str("message_id", msg.UUID).Msg("decoding audited recommendation")
		return
	}

	a.mu.Lock()
	if _, exists := a.pending[rec.ID]; !exists {
		a.pending[rec.ID] = &rec
		a.order = append(a.order, rec.ID)
		for len(a.order) > maxPending {
			evict := a.order[0]
			a.order = a.order[1:]
			delete(a.pending, evict)
		}
	}
	a.mu.Unlock()
}

func (a *Archiver) handleFeedback(msg *message.Message) {
	defer msg.Ack()

	var record FeedbackRecord
	if err := json.Unmarshal(msg.Payload, &record); err != nil {
		a.log.Error().Err(err).Str("message_id", msg.UUID).Msg("decoding audited feedback")
		return
	}

	a.mu.Lock()
	rec := a.pending[record.Event.RecommendationID]
	delete(a.pending, record.Event.RecommendationID)
	a.mu.Unlock()

	entry := a.log.Info().
		Str("user_key", record.UserKey).
		Str("event_id", record.Event.EventID).
		Str("recommendation_id", record.Event.RecommendationID).
		Str("outcome", record.Event.Outcome())
	if rec != nil {
		entry = entry.
			Str("type", rec.Type.String()).
			Str("risk", rec.Risk.String()).
			Float64("confidence", rec.Confidence).
			Float64("suggested_value", rec.SuggestedValue).
			Strs("factors", rec.Factors)
	} else {
		entry = entry.Bool("unpaired", true)
	}
	entry.Msg("audit pair")
	metrics.AuditEventsTotal.WithLabelValues("persisted").Inc()
}

// PendingCount reports the number of recommendations awaiting feedback.
func (a *Archiver) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
