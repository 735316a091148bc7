package jitter

import (
	"testing"
	"time"

	"github.com/kc1awv/lxst-phone/internal/clock"
)

func TestCapacityClamp(t *testing.T) {
	cases := []struct {
		targetMS, frameMS, want int
	}{
		{40, 20, 2},
		{10, 20, 2},  // round(0.5)=1 clamps to 2
		{200, 20, 10},
		{2000, 20, 32}, // round(100) clamps to 32
	}
	for _, c := range cases {
		if got := Capacity(c.targetMS, c.frameMS); got != c.want {
			t.Errorf("Capacity(%d,%d) = %d, want %d", c.targetMS, c.frameMS, got, c.want)
		}
	}
}

func TestPopEmitsSilenceWhenEmpty(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 60, 20) // capacity 3

	pcm, ok := b.Pop()
	if ok || pcm != nil {
		t.Fatalf("expected silence on empty buffer, got (%v, %v)", pcm, ok)
	}
	if b.Stats().SilenceEmitted != 1 {
		t.Fatalf("SilenceEmitted = %d, want 1", b.Stats().SilenceEmitted)
	}
}

func TestReleaseOrderAfterHalfCapacity(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 60, 20) // capacity 3, half = 2

	b.Push(10, []byte{10})
	if _, ok := b.Pop(); ok {
		t.Fatal("should not release with only 1/3 entries buffered before target latency elapses")
	}

	b.Push(11, []byte{11})
	pcm, ok := b.Pop()
	if !ok {
		t.Fatal("expected release once half capacity reached")
	}
	if pcm[0] != 10 {
		t.Fatalf("released seq payload = %v, want [10]", pcm)
	}
}

func TestReleaseAfterWaitingTargetLatency(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 60, 20) // capacity 3

	b.Push(5, []byte{5})
	if _, ok := b.Pop(); ok {
		t.Fatal("should not release immediately with 1 entry")
	}

	mc.Advance(60 * time.Millisecond)
	pcm, ok := b.Pop()
	if !ok {
		t.Fatal("expected release once the oldest entry waited targetMS")
	}
	if pcm[0] != 5 {
		t.Fatalf("released payload = %v, want [5]", pcm)
	}
}

func TestLateArrivalDropped(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 40, 20) // capacity 2

	b.Push(100, []byte{100})
	b.Push(101, []byte{101})
	if _, ok := b.Pop(); !ok {
		t.Fatal("expected a release to advance lastSeq")
	}

	// Now lastSeq == 100. A frame more than capacity (2) behind is late.
	b.Push(50, []byte{50})
	if b.Stats().DroppedLate != 1 {
		t.Fatalf("DroppedLate = %d, want 1", b.Stats().DroppedLate)
	}
}

func TestOverflowEvictsOldest(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 40, 20) // capacity 2

	b.Push(1, []byte{1})
	mc.Advance(time.Millisecond)
	b.Push(2, []byte{2})
	mc.Advance(time.Millisecond)
	b.Push(3, []byte{3}) // buffer full at capacity 2, evicts oldest (seq 1)

	if b.Stats().DroppedOverflow != 1 {
		t.Fatalf("DroppedOverflow = %d, want 1", b.Stats().DroppedOverflow)
	}
}

func TestPacketLossEstimate(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 40, 20)

	b.Push(100, []byte{1})
	b.Push(101, []byte{2})
	b.Pop()
	b.Push(1, []byte{3}) // dropped late

	loss := b.Stats().PacketLoss()
	if loss <= 0 || loss >= 1 {
		t.Fatalf("PacketLoss = %f, want in (0,1)", loss)
	}
}

func TestResetClearsState(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	b := New(mc, 40, 20)
	b.Push(1, []byte{1})
	b.Reset()

	if _, ok := b.Pop(); ok {
		t.Fatal("expected empty buffer after Reset")
	}
}
