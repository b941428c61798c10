// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

package coach

import (
	"time"
)

// bucketForHour maps an hour of day to its time bucket.
func bucketForHour(hour int) TimeBucket {
	switch {
	case hour >= 5 && hour < 11:
		return BucketMorning
	case hour >= 11 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 22:
		return BucketEvening
	default:
		return BucketNight
	}
}

// parseCrowding maps a declared crowding string to its level. Anything
// unrecognized is treated as absent.
func parseCrowding(s string) CrowdingLevel {
	switch s {
	case "low":
		return CrowdingLow
	case "medium":
		return CrowdingMedium
	case "high":
		return CrowdingHigh
	default:
		return CrowdingUnknown
	}
}

// AssembleContext normalizes raw situational signals into the fixed-shape
// record the generator consumes. It never fails: invalid optional signals
// are dropped, and only the time-derived fields are guaranteed present.
// The function is pure apart from reading the clock when no timestamp is
// supplied.
func AssembleContext(raw RawSignals, now func() time.Time) SessionContext {
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = now()
	}

	sctx := SessionContext{
		TimeBucket: bucketForHour(ts.Hour()),
		Hour:       ts.Hour(),
		DayOfWeek:  ts.Weekday(),
	}

	if raw.Energy >= 1 && raw.Energy <= 10 {
		sctx.Energy = raw.Energy
	}
	if raw.Motivation >= 1 && raw.Motivation <= 10 {
		sctx.Motivation = raw.Motivation
	}
	if raw.AvailableMinutes > 0 {
		sctx.AvailableMinutes = raw.AvailableMinutes
	}
	if len(raw.Equipment) > 0 {
		sctx.Equipment = make([]string, 0, len(raw.Equipment))
		for _, eq := range raw.Equipment {
			if eq != "" {
				sctx.Equipment = append(sctx.Equipment, eq)
			}
		}
	}
	sctx.Crowding = parseCrowding(raw.Crowding)
	if raw.Strain > 0 && raw.Strain <= 10 {
		sctx.Strain = raw.Strain
	}
	if raw.PriorPerformance != nil && raw.PriorPerformance.Sessions > 0 &&
		raw.PriorPerformance.AvgCompletion >= 0 && raw.PriorPerformance.AvgCompletion <= 1 {
		perf := *raw.PriorPerformance
		sctx.PriorPerformance = &perf
	}

	return sctx
}
