// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package store persists profiles, recommendations, and feedback history
// in BadgerDB. One Store serves as both the profile repository and the
// engine's history store.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/metrics"
	"github.com/adaptivefit/coach/internal/profile"
)

// Key prefixes. Profiles and dedup marks are point lookups; history
// lists are stored as capped JSON arrays, newest first, so reads never
// need prefix scans.
const (
	prefixProfile     = "profile:"
	prefixRec         = "rec:"
	prefixEvent       = "event:"
	prefixFeedback    = "fb:"
	prefixUserEvents  = "fbuser:"
	prefixCompletions = "done:"
)

// History list caps keep value sizes bounded.
const (
	maxFeedbackPerExercise = 100
	maxFeedbackPerUser     = 200
	maxCompletions         = 50
)

// recommendationTTL bounds how long a recommendation stays referencable
// by feedback.
const recommendationTTL = 30 * 24 * time.Hour

// Store is a Badger-backed persistence layer.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Options configures the store.
type Options struct {
	// Dir is the Badger data directory. Empty plus InMemory runs
	// without disk.
	Dir string

	// InMemory keeps everything in RAM. For tests and ephemeral runs.
	InMemory bool
}

// Open opens or creates the database.
func Open(opts Options, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "store").Logger()

	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{log})
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", opts.Dir, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs Badger value-log garbage collection until it reports
// nothing left to collect. Call periodically from a background service.
func (s *Store) RunGC() {
	if s.db.Opts().InMemory {
		return
	}
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

// Load implements profile.Repository. A never-seen key returns the
// documented default profile.
func (s *Store) Load(_ context.Context, key string) (*profile.Profile, error) {
	start := time.Now()
	var p *profile.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixProfile + key))
		if err == badger.ErrKeyNotFound {
			p = profile.Default(key)
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p = &profile.Profile{}
			return json.Unmarshal(val, p)
		})
	})
	if err != nil {
		metrics.ObserveStoreOp("load", "error", start)
		return nil, fmt.Errorf("%w: loading profile %q: %v", profile.ErrUnavailable, key, err)
	}
	metrics.ObserveStoreOp("load", "ok", start)
	return p, nil
}

// Save implements profile.Repository. The write replaces the stored
// profile atomically.
func (s *Store) Save(_ context.Context, p *profile.Profile) error {
	start := time.Now()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile %q: %w", p.UserKey, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixProfile+p.UserKey), data)
	})
	if err != nil {
		metrics.ObserveStoreOp("save", "error", start)
		return fmt.Errorf("%w: saving profile %q: %v", profile.ErrUnavailable, p.UserKey, err)
	}
	metrics.ObserveStoreOp("save", "ok", start)
	return nil
}

// SaveRecommendation implements coach.HistoryStore.
func (s *Store) SaveRecommendation(_ context.Context, rec *coach.Recommendation) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding recommendation %q: %w", rec.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(prefixRec+rec.ID), data).WithTTL(recommendationTTL)
		return txn.SetEntry(entry)
	})
}

// GetRecommendation implements coach.HistoryStore.
func (s *Store) GetRecommendation(_ context.Context, id string) (*coach.Recommendation, error) {
	var rec coach.Recommendation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRec + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %s", coach.ErrUnknownRecommendation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading recommendation %q: %w", id, err)
	}
	return &rec, nil
}

// MarkEventProcessed implements coach.HistoryStore. The check-and-set
// runs inside one transaction, so concurrent duplicates cannot both win.
func (s *Store) MarkEventProcessed(_ context.Context, eventID string) (bool, error) {
	fresh := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixEvent + eventID)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		fresh = true
		entry := badger.NewEntry(key, []byte{1}).WithTTL(recommendationTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return false, fmt.Errorf("marking event %q: %w", eventID, err)
	}
	return fresh, nil
}

// UnmarkEventProcessed implements coach.HistoryStore.
func (s *Store) UnmarkEventProcessed(_ context.Context, eventID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixEvent + eventID))
	})
	if err != nil {
		return fmt.Errorf("unmarking event %q: %w", eventID, err)
	}
	return nil
}

// AppendFeedback implements coach.HistoryStore.
func (s *Store) AppendFeedback(_ context.Context, userKey, exercise string, event coach.FeedbackEvent) error {
	if err := s.prependToList(prefixFeedback+userKey+":"+normalizeExercise(exercise), event, maxFeedbackPerExercise); err != nil {
		return fmt.Errorf("archiving feedback for %q/%q: %w", userKey, exercise, err)
	}
	if err := s.prependToList(prefixUserEvents+userKey, event, maxFeedbackPerUser); err != nil {
		return fmt.Errorf("archiving feedback for %q: %w", userKey, err)
	}
	return nil
}

// RecentFeedback implements coach.HistoryStore.
func (s *Store) RecentFeedback(_ context.Context, userKey, exercise string, n int) ([]coach.FeedbackEvent, error) {
	var events []coach.FeedbackEvent
	if err := s.readList(prefixFeedback+userKey+":"+normalizeExercise(exercise), &events); err != nil {
		return nil, fmt.Errorf("reading feedback for %q/%q: %w", userKey, exercise, err)
	}
	if len(events) > n {
		events = events[:n]
	}
	return events, nil
}

// RecentFeedbackByUser implements coach.HistoryStore.
func (s *Store) RecentFeedbackByUser(_ context.Context, userKey string, n int) ([]coach.FeedbackEvent, error) {
	var events []coach.FeedbackEvent
	if err := s.readList(prefixUserEvents+userKey, &events); err != nil {
		return nil, fmt.Errorf("reading feedback for %q: %w", userKey, err)
	}
	if len(events) > n {
		events = events[:n]
	}
	return events, nil
}

// RecordSessionCompletion implements coach.HistoryStore.
func (s *Store) RecordSessionCompletion(_ context.Context, userKey, exercise string, ratio float64) error {
	if err := s.prependToList(prefixCompletions+userKey+":"+normalizeExercise(exercise), ratio, maxCompletions); err != nil {
		return fmt.Errorf("recording completion for %q/%q: %w", userKey, exercise, err)
	}
	return nil
}

// RecentCompletions implements coach.HistoryStore.
func (s *Store) RecentCompletions(_ context.Context, userKey, exercise string, n int) ([]float64, error) {
	var ratios []float64
	if err := s.readList(prefixCompletions+userKey+":"+normalizeExercise(exercise), &ratios); err != nil {
		return nil, fmt.Errorf("reading completions for %q/%q: %w", userKey, exercise, err)
	}
	if len(ratios) > n {
		ratios = ratios[:n]
	}
	return ratios, nil
}

// prependToList inserts v at the head of the JSON array stored at key,
// truncating to max entries. Read-modify-write runs inside one Badger
// transaction.
func (s *Store) prependToList(key string, v any, max int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var raw []json.RawMessage
		item, err := txn.Get([]byte(key))
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &raw)
			}); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		head, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = append([]json.RawMessage{head}, raw...)
		if len(raw) > max {
			raw = raw[:max]
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), data)
	})
}

// readList decodes the JSON array stored at key into out. A missing key
// leaves out empty.
func (s *Store) readList(key string, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil
	}
	return err
}

// normalizeExercise keeps exercise names from colliding with the key
// separator.
func normalizeExercise(exercise string) string {
	return strings.ReplaceAll(strings.ToLower(exercise), ":", "_")
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}
