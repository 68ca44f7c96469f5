// Package pacing spreads a fixed population of sends across a time window.
//
// The planner targets cumulative sends against the elapsed fraction of the
// window, measured on the population snapshotted at the first tick inside the
// window. A skipped tick therefore allows more catch-up on the next one, and
// the quota is only exceeded by the final flush at or after the window end.
package pacing

import (
	"math"
	"time"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

// Unbounded is the allowance used when neither pacing nor a limit applies.
const Unbounded = math.MaxInt32

// Decision is the result of planning one tick.
type Decision struct {
	Allowed     int
	State       domain.PacingState
	Snapshotted bool
	Flushed     bool
}

// Plan computes how many sends the current tick may make. It never mutates
// the given state; the returned Decision.State is what callers persist.
func Plan(now time.Time, state domain.PacingState, remaining int) Decision {
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{State: state.Clone()}

	if now.Before(d.State.StartAt) {
		return d
	}

	if d.State.InitialTotal == nil {
		total := remaining
		d.State.InitialTotal = &total
		d.Snapshotted = true
	}

	if !now.Before(d.State.EndAt) {
		d.Allowed = remaining
		d.Flushed = true
		d.State.Completed = true
		return d
	}

	target := Target(now, d.State)
	allowed := target - d.State.Sent
	if allowed < 0 {
		allowed = 0
	}
	if allowed > remaining {
		allowed = remaining
	}
	d.Allowed = allowed
	return d
}

// Target is the cumulative number of sends due by now.
func Target(now time.Time, state domain.PacingState) int {
	if state.InitialTotal == nil {
		return 0
	}
	return int(math.Floor(float64(*state.InitialTotal) * Progress(now, state.StartAt, state.EndAt)))
}

// Progress is the elapsed fraction of [start, end), clamped to [0, 1].
func Progress(now, start, end time.Time) float64 {
	window := end.Sub(start)
	if window <= 0 {
		return 1
	}
	p := float64(now.Sub(start)) / float64(window)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Unpaced returns the allowance for a broadcast without a pacing window.
func Unpaced(limit *int) int {
	if limit == nil || *limit <= 0 {
		return Unbounded
	}
	return *limit
}

// NewState opens a pacing window of the given length starting at startAt.
func NewState(startAt time.Time, duration time.Duration) *domain.PacingState {
	return &domain.PacingState{
		StartAt: startAt,
		EndAt:   startAt.Add(duration),
	}
}
