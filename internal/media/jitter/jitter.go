// Package jitter implements the single-stream playout buffer of spec
// §4.7: capacity derived from a target latency and frame duration,
// late/overflow drop rules, and silence-on-starvation release so the
// playback callback never blocks.
package jitter

import (
	"time"

	"github.com/kc1awv/lxst-phone/internal/clock"
)

// Capacity computes C = clamp(round(targetMS/frameMS), 2, 32).
func Capacity(targetMS, frameMS int) int {
	if frameMS <= 0 {
		frameMS = 1
	}
	c := (targetMS + frameMS/2) / frameMS
	if c < 2 {
		c = 2
	}
	if c > 32 {
		c = 32
	}
	return c
}

// entry is one buffered decoded frame awaiting release.
type entry struct {
	seq      uint32
	pcm      []byte
	arrived  time.Time
	occupied bool
}

// Stats holds the running counters spec §4.7 requires.
type Stats struct {
	Received        uint64
	Released        uint64
	DroppedLate     uint64
	DroppedOverflow uint64
	SilenceEmitted  uint64
}

// PacketLoss returns dropped / (received + dropped), or 0 if nothing has
// arrived yet.
func (s Stats) PacketLoss() float64 {
	dropped := s.DroppedLate + s.DroppedOverflow
	total := s.Received + dropped
	if total == 0 {
		return 0
	}
	return float64(dropped) / float64(total)
}

// Buffer is a single-stream jitter buffer. Not safe for concurrent use by
// more than one inserter and one releaser at a time; the pipeline holds a
// short-lived mutex around calls into it (spec §5).
type Buffer struct {
	clock    clock.Clock
	capacity int
	targetMS int
	frameMS  int

	entries  []entry // slice of length capacity, unordered scratch slots
	lastSeq  uint32
	hasLast  bool

	stats Stats
}

// New returns a Buffer with capacity derived from targetMS/frameMS.
func New(c clock.Clock, targetMS, frameMS int) *Buffer {
	cap := Capacity(targetMS, frameMS)
	return &Buffer{
		clock:    c,
		capacity: cap,
		targetMS: targetMS,
		frameMS:  frameMS,
		entries:  make([]entry, cap),
	}
}

// Capacity returns the buffer's entry capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Stats returns a snapshot of the running counters.
func (b *Buffer) Stats() Stats { return b.stats }

// Push inserts a decoded frame at seq. Frames older than the last
// released seq by more than capacity (accounting for wrap) are dropped
// as late; if the buffer is full, the oldest entry is evicted to make
// room (spec §4.7: "Insertion").
func (b *Buffer) Push(seq uint32, pcm []byte) {
	b.stats.Received++
	now := b.clock.Now()

	if b.hasLast {
		dist := int32(seq - b.lastSeq)
		if dist < 0 && -dist > int32(b.capacity) {
			b.stats.DroppedLate++
			return
		}
	}

	if idx, ok := b.findSlot(seq); ok {
		b.entries[idx] = entry{seq: seq, pcm: pcm, arrived: now, occupied: true}
		return
	}

	if freeIdx, ok := b.firstFree(); ok {
		b.entries[freeIdx] = entry{seq: seq, pcm: pcm, arrived: now, occupied: true}
		return
	}

	// Buffer full: evict the oldest entry by arrival time.
	oldest := 0
	for i := 1; i < len(b.entries); i++ {
		if b.entries[i].arrived.Before(b.entries[oldest].arrived) {
			oldest = i
		}
	}
	b.stats.DroppedOverflow++
	b.entries[oldest] = entry{seq: seq, pcm: pcm, arrived: now, occupied: true}
}

// Pop releases the lowest-seq entry if the buffer holds at least
// capacity/2 entries, or the oldest entry has waited targetMS. If
// nothing is ready, it returns (nil, false) and bumps SilenceEmitted —
// the caller is expected to play F ms of silence (spec §4.7: "Release").
func (b *Buffer) Pop() ([]byte, bool) {
	now := b.clock.Now()
	filled := 0
	lowest := -1
	var oldestArrival time.Time
	oldestIdx := -1

	for i := range b.entries {
		if !b.entries[i].occupied {
			continue
		}
		filled++
		if lowest == -1 || seqLess(b.entries[i].seq, b.entries[lowest].seq) {
			lowest = i
		}
		if oldestIdx == -1 || b.entries[i].arrived.Before(oldestArrival) {
			oldestIdx = i
			oldestArrival = b.entries[i].arrived
		}
	}

	if filled == 0 {
		b.stats.SilenceEmitted++
		return nil, false
	}

	waited := now.Sub(oldestArrival)
	if filled >= (b.capacity+1)/2 || waited >= time.Duration(b.targetMS)*time.Millisecond {
		e := b.entries[lowest]
		b.entries[lowest] = entry{}
		b.lastSeq = e.seq
		b.hasLast = true
		b.stats.Released++
		return e.pcm, true
	}

	b.stats.SilenceEmitted++
	return nil, false
}

// Reset clears all buffered state, e.g. at session teardown.
func (b *Buffer) Reset() {
	for i := range b.entries {
		b.entries[i] = entry{}
	}
	b.hasLast = false
	b.lastSeq = 0
}

func (b *Buffer) findSlot(seq uint32) (int, bool) {
	for i := range b.entries {
		if b.entries[i].occupied && b.entries[i].seq == seq {
			return i, true
		}
	}
	return 0, false
}

func (b *Buffer) firstFree() (int, bool) {
	for i := range b.entries {
		if !b.entries[i].occupied {
			return i, true
		}
	}
	return 0, false
}

// seqLess reports whether a precedes b under sequence-number wraparound.
func seqLess(a, bv uint32) bool {
	return int32(a-bv) < 0
}
