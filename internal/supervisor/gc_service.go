// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package supervisor

import (
	"context"
	"time"
)

// GCService runs a maintenance function on a fixed interval, used for
// the store's value-log garbage collection.
type GCService struct {
	interval time.Duration
	run      func()
}

// NewGCService builds the service. interval must be positive.
func NewGCService(interval time.Duration, run func()) *GCService {
	return &GCService{interval: interval, run: run}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run()
		}
	}
}

// String identifies the service in supervision logs.
func (s *GCService) String() string { return "store-gc" }
