// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"errors"

	"github.com/adaptivefit/coach/internal/profile"
)

var (
	// ErrScorerUnavailable signals that the configured scorer cannot
	// serve (timeout, transport failure, open circuit). The generator
	// responds by falling back to the rule scorer.
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrUnknownRecommendation is returned when feedback references a
	// recommendation ID the store has never seen.
	ErrUnknownRecommendation = errors.New("unknown recommendation")

	// ErrStoreUnavailable signals a profile store outage. Reads degrade
	// to ephemeral defaults; feedback writes fail loudly with this.
	ErrStoreUnavailable = profile.ErrUnavailable

	// ErrInvalidFeedback rejects malformed feedback events.
	ErrInvalidFeedback = errors.New("invalid feedback event")
)
