// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package profile

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the underlying persistence layer is down.
// Load callers may degrade to an ephemeral default profile; Save callers
// must surface the error so learning data is never silently dropped.
var ErrUnavailable = errors.New("profile store unavailable")

// Repository is the load/save contract for durable profiles.
//
// Load never fails with "not found": a never-seen key yields the documented
// default profile, deterministically. Save is an atomic replace with
// last-write-wins semantics at profile granularity. Neither call provides
// cross-event serialization for a single user; callers that read-modify-write
// must hold the per-key lock (see KeyedMutex).
type Repository interface {
	// Load returns the stored profile for key, or Default(key) if none
	// exists. Returns ErrUnavailable (possibly wrapped) on store outage.
	Load(ctx context.Context, key string) (*Profile, error)

	// Save atomically replaces the stored profile.
	Save(ctx context.Context, p *Profile) error
}
