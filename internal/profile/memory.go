// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package profile

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository for tests and ephemeral
// deployments. Profiles are deep-copied on both load and save so callers
// never share mutable state with the store.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile

	// FailLoads and FailSaves force ErrUnavailable, for outage tests.
	FailLoads bool
	FailSaves bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: make(map[string]*Profile)}
}

// Load returns the stored profile or the documented default.
func (r *MemoryRepository) Load(_ context.Context, key string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.FailLoads {
		return nil, ErrUnavailable
	}

	if p, ok := r.profiles[key]; ok {
		return p.Clone(), nil
	}
	return Default(key), nil
}

// Save atomically replaces the stored profile.
func (r *MemoryRepository) Save(_ context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailSaves {
		return ErrUnavailable
	}

	r.profiles[p.UserKey] = p.Clone()
	return nil
}

// Len reports the number of stored profiles.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

var _ Repository = (*MemoryRepository)(nil)
