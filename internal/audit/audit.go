// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package audit streams every delivered recommendation and processed
// feedback event to an in-process message bus for offline analysis.
// Recording is fire-and-forget: the request path never blocks on audit,
// and a full pipeline drops events rather than slowing requests down.
package audit

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/metrics"
)

// Topics carried on the audit bus.
const (
	TopicRecommendations = "audit.recommendations"
	TopicFeedback        = "audit.feedback"
)

// defaultBuffer is the recorder's internal queue depth. Events past it
// are dropped and counted.
const defaultBuffer = 1024

// FeedbackRecord is the wire form of a feedback audit event.
type FeedbackRecord struct {
	UserKey string              `json:"user_key"`
	Event   coach.FeedbackEvent `json:"event"`
}

type envelope struct {
	topic   string
	payload []byte
}

// Recorder implements coach.AuditSink over a watermill gochannel bus.
// A single worker goroutine drains the internal queue and publishes.
type Recorder struct {
	bus    *gochannel.GoChannel
	events chan envelope
	log    zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder builds a recorder and starts its publish worker.
func NewRecorder(log zerolog.Logger) *Recorder {
	log = log.With().Str("component", "audit").Logger()
	bus := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermillAdapter{log})

	r := &Recorder{
		bus:    bus,
		events: make(chan envelope, defaultBuffer),
		log:    log,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Subscriber exposes the bus for archivers and analysis consumers.
func (r *Recorder) Subscriber() message.Subscriber { return r.bus }

// RecordRecommendation implements coach.AuditSink.
func (r *Recorder) RecordRecommendation(rec *coach.Recommendation) {
	payload, err := json.Marshal(rec)
	if err != nil {
		r.log.Error().Err(err).Str("recommendation_id", rec.ID).Msg("encoding audit recommendation")
		return
	}
	r.enqueue(TopicRecommendations, payload)
}

// RecordFeedback implements coach.AuditSink.
func (r *Recorder) RecordFeedback(userKey string, event coach.FeedbackEvent) {
	payload, err := json.Marshal(FeedbackRecord{UserKey: userKey, Event: event})
	if err != nil {
		r.log.Error().Err(err).Str("event_id", event.EventID).Msg("encoding audit feedback")
		return
	}
	r.enqueue(TopicFeedback, payload)
}

func (r *Recorder) enqueue(topic string, payload []byte) {
	select {
	case r.events <- envelope{topic: topic, payload: payload}:
	default:
		metrics.AuditEventsTotal.WithLabelValues("dropped").Inc()
		r.log.Warn().Str("topic", topic).Msg("audit queue full, event dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for env := range r.events {
		msg := message.NewMessage(uuid.NewString(), env.payload)
		if err := r.bus.Publish(env.topic, msg); err != nil {
			metrics.AuditEventsTotal.WithLabelValues("dropped").Inc()
			r.log.Error().Err(err).Str("topic", env.topic).Msg("publishing audit event")
			continue
		}
		metrics.AuditEventsTotal.WithLabelValues("published").Inc()
	}
}

// Close drains the queue, stops the worker, and closes the bus.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.events)
		<-r.done
		err = r.bus.Close()
	})
	return err
}

// watermillAdapter routes watermill's logging through zerolog.
type watermillAdapter struct {
	log zerolog.Logger
}

func (a watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.log.Error().Err(err), msg, fields)
}

func (a watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.log.Debug(), msg, fields)
}

func (a watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.log.Debug(), msg, fields)
}

func (a watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.log.Trace(), msg, fields)
}

func (a watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return watermillAdapter{ctx.Logger()}
}

func (a watermillAdapter) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Str(k, fmt.Sprintf("%v", v))
	}
	ev.Msg(msg)
}
