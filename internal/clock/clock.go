// Package clock provides the time capability the core consumes instead of
// calling time.Now directly, so call-state and rate-limiter logic stays
// free of wall-clock dependencies in tests (spec: "State machine purity").
package clock

import "time"

// Clock exposes monotonic and wall-clock time. Exactly two implementations
// exist: Real (below) and a test Mock.
type Clock interface {
	// Now returns the current monotonic instant, suitable for measuring
	// durations (rate limiting, timeouts, RTT).
	Now() time.Time
	// Wall returns the current wall-clock time, suitable for timestamps
	// persisted or sent on the wire (first_seen, last_seen, message
	// timestamp).
	Wall() time.Time
}

// Real is the production Clock backed by the standard library.
type Real struct{}

// Now returns time.Now(); Go's time.Time already carries a monotonic
// reading, so duration math (Sub, After) stays monotonic even though the
// same value is also a wall-clock timestamp.
func (Real) Now() time.Time { return time.Now() }

// Wall returns time.Now(), used where the caller needs a value safe to
// serialize and compare across processes.
func (Real) Wall() time.Time { return time.Now() }
