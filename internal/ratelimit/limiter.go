// Package ratelimit implements the per-peer sliding-window admission
// control for incoming invites (spec §4.3).
package ratelimit

import (
	"sync"
	"time"

	"github.com/kc1awv/lxst-phone/internal/clock"
)

// Default caps, matching spec §4.3.
const (
	DefaultMaxPerMinute = 5
	DefaultMaxPerHour   = 20
)

// pruneWindow is how far back entries are retained; anything older is
// pruned on every access regardless of the configured caps (spec §3:
// "Entries older than one hour are pruned on any access").
const pruneWindow = time.Hour

// Limiter is a single-writer, mutex-guarded sliding-window rate limiter
// keyed by peer ID.
type Limiter struct {
	mu           sync.Mutex
	clock        clock.Clock
	maxPerMinute int
	maxPerHour   int
	history      map[string][]time.Time
}

// New returns a Limiter with the given per-minute/per-hour caps. A
// zero value for either falls back to its default.
func New(c clock.Clock, maxPerMinute, maxPerHour int) *Limiter {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultMaxPerMinute
	}
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}
	return &Limiter{
		clock:        c,
		maxPerMinute: maxPerMinute,
		maxPerHour:   maxPerHour,
		history:      make(map[string][]time.Time),
	}
}

// IsAllowed prunes timestamps older than one hour for peerID, checks both
// windows, and — only if both are within cap — records now and returns
// true. A rejected call is never recorded (spec §4.3).
func (l *Limiter) IsAllowed(peerID string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := pruneOlderThan(l.history[peerID], now, pruneWindow)

	withinMinute := countNewerThan(entries, now, time.Minute)
	withinHour := len(entries) // already pruned to the hour window

	if withinMinute >= l.maxPerMinute || withinHour >= l.maxPerHour {
		l.history[peerID] = entries
		return false
	}

	entries = append(entries, now)
	l.history[peerID] = entries
	return true
}

// Reset clears all recorded history for peerID. Exposed for tests and for
// administrative unblocking; not part of the admission check itself.
func (l *Limiter) Reset(peerID string) {
	l.mu.Lock()
	delete(l.history, peerID)
	l.mu.Unlock()
}

func pruneOlderThan(entries []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := entries[:0:0]
	for _, t := range entries {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func countNewerThan(entries []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range entries {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
