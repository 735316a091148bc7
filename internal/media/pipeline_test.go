package media

import (
	"errors"
	"testing"
	"time"

	"github.com/kc1awv/lxst-phone/internal/clock"
	"github.com/kc1awv/lxst-phone/internal/media/jitter"
	"github.com/kc1awv/lxst-phone/internal/transport"
)

// fakeEncoder/fakeDecoder are pass-through codec stubs for pipeline
// tests, matching how client/audio_test.go stubs opusEncoder/opusDecoder
// with narrow test doubles instead of a real Opus codec.
type fakeEncoder struct {
	sampleRate, channels, frameMillis int
	failNext                          bool
}

var errEncodeRejected = errors.New("fake encoder rejected window")

func (e *fakeEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.failNext {
		e.failNext = false
		return nil, errEncodeRejected
	}
	return int16sToBytes(pcm), nil
}
func (e *fakeEncoder) SampleRate() int  { return e.sampleRate }
func (e *fakeEncoder) Channels() int    { return e.channels }
func (e *fakeEncoder) FrameMillis() int { return e.frameMillis }
func (e *fakeEncoder) Close() error     { return nil }

type fakeDecoder struct {
	sampleRate, channels int
}

func (d *fakeDecoder) Decode(data []byte, frameSize int) ([]int16, error) {
	return bytesToInt16s(data), nil
}
func (d *fakeDecoder) SampleRate() int { return d.sampleRate }
func (d *fakeDecoder) Channels() int   { return d.channels }
func (d *fakeDecoder) Close() error    { return nil }

// newLinkedSessions wires two Sessions over a transport.Mock pair, the
// way two peers' pipelines connect after a link reaches ESTABLISHED.
func newLinkedSessions(t *testing.T, nowA, nowB func() int64) (a, b *Session) {
	t.Helper()
	mc := clock.NewMock(time.Unix(0, 0))

	mockA := transport.NewMock("dest-a")
	mockB := transport.NewMock("dest-b")
	transport.Connect(mockA, mockB)

	var sessB *Session
	mockB.AcceptLink(func(link transport.Link) {
		sessB = NewSession(
			&fakeEncoder{sampleRate: 48000, channels: 1, frameMillis: 20},
			&fakeDecoder{sampleRate: 48000, channels: 1},
			jitter.New(mc, 60, 20),
			link,
			nowB,
		)
		link.OnFrame(sessB.HandleInboundFrame)
	})

	linkA, err := mockA.OpenLink(nil, "dest-b")
	if err != nil {
		t.Fatalf("OpenLink: %v", err)
	}
	sessA := NewSession(
		&fakeEncoder{sampleRate: 48000, channels: 1, frameMillis: 20},
		&fakeDecoder{sampleRate: 48000, channels: 1},
		jitter.New(mc, 60, 20),
		linkA,
		nowA,
	)
	linkA.OnFrame(sessA.HandleInboundFrame)

	if sessB == nil {
		t.Fatal("expected peer AcceptLink callback to fire synchronously")
	}
	return sessA, sessB
}

func TestEncodeAndSendDeliversToPeer(t *testing.T) {
	sessA, sessB := newLinkedSessions(t, func() int64 { return 0 }, func() int64 { return 0 })

	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(i)
	}
	if err := sessA.EncodeAndSend(pcm); err != nil {
		t.Fatalf("EncodeAndSend: %v", err)
	}
	if n := sessB.Stats().Jitter.Received; n != 1 {
		t.Fatalf("peer jitter buffer received %d frames, want 1", n)
	}

	got := sessB.PullPlayback()
	// Capacity(60,20)=3, half=2: a single pushed frame does not release
	// until it has waited the target latency, so the first pull is nil.
	if got != nil {
		t.Fatalf("expected no release yet, got %v", got)
	}
}

func TestEncodeFailureIsDroppedNotFatal(t *testing.T) {
	sessA, _ := newLinkedSessions(t, func() int64 { return 0 }, func() int64 { return 0 })

	enc := sessA.encoder.(*fakeEncoder)
	enc.failNext = true

	pcm := make([]int16, 960)
	if err := sessA.EncodeAndSend(pcm); err != nil {
		t.Fatalf("EncodeAndSend should not fail the session on encoder rejection: %v", err)
	}
	if sessA.Stats().CaptureDropped != 1 {
		t.Fatalf("CaptureDropped = %d, want 1", sessA.Stats().CaptureDropped)
	}
}

func TestPingReceivedRepliesWithPong(t *testing.T) {
	sessA, sessB := newLinkedSessions(t, func() int64 { return 0 }, func() int64 { return 0 })

	// A real ping would be registered in pendingPing by StartPinger before
	// sending; register it directly here since the test sends by hand.
	const seq = uint32(5)
	sessA.mu.Lock()
	sessA.pendingPing[seq] = 0
	sessA.mu.Unlock()

	if err := sessA.link.Send(EncodePing(seq)); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	// sessB's frame callback (HandleInboundFrame) ran synchronously
	// inside Send, saw FrameTypePing, and replied with a pong on linkB,
	// which sessA's own frame callback received synchronously in turn.
	_ = sessB
	if !sessA.rttSeeded.Load() {
		t.Fatal("expected sessB's pong to reach sessA and seed its RTT estimate")
	}
	if sessA.Stats().RTTMillis != 0 {
		t.Fatalf("RTTMillis = %f, want 0 (seeded with a zero round trip since nowMillis is constant)", sessA.Stats().RTTMillis)
	}
}

func TestPongFoldsIntoRTTEstimate(t *testing.T) {
	nowMillis := int64(1040)
	sessA := NewSession(
		&fakeEncoder{sampleRate: 48000, channels: 1, frameMillis: 20},
		&fakeDecoder{sampleRate: 48000, channels: 1},
		jitter.New(clock.NewMock(time.Unix(0, 0)), 60, 20),
		&discardLink{},
		func() int64 { return nowMillis },
	)

	sessA.pendingPing[1] = 1000
	sessA.HandleInboundFrame(EncodePong(1, 0))
	if sessA.Stats().RTTMillis != 40 {
		t.Fatalf("RTTMillis = %f, want 40 (seeded on first sample)", sessA.Stats().RTTMillis)
	}

	nowMillis = 1020
	sessA.pendingPing[2] = 1000
	sessA.HandleInboundFrame(EncodePong(2, 0))
	want := rttAlpha*20 + (1-rttAlpha)*40
	if got := sessA.Stats().RTTMillis; got != want {
		t.Fatalf("RTTMillis = %f, want %f (EWMA blend)", got, want)
	}
}

func TestPongWithUnknownSeqIsIgnored(t *testing.T) {
	sessA := NewSession(
		&fakeEncoder{sampleRate: 48000, channels: 1, frameMillis: 20},
		&fakeDecoder{sampleRate: 48000, channels: 1},
		jitter.New(clock.NewMock(time.Unix(0, 0)), 60, 20),
		&discardLink{},
		func() int64 { return 1000 },
	)

	sessA.HandleInboundFrame(EncodePong(99, 0))
	if sessA.Stats().RTTMillis != 0 {
		t.Fatalf("RTTMillis = %f, want 0 (unmatched pong must not seed RTT)", sessA.Stats().RTTMillis)
	}
}

// discardLink is a transport.Link that accepts sends and never delivers
// anything back, for tests that only exercise the inbound path.
type discardLink struct{}

func (discardLink) ID() []byte                       { return []byte("discard") }
func (discardLink) Send(frame []byte) error          { return nil }
func (discardLink) OnFrame(cb transport.LinkCallback) {}
func (discardLink) Close() error                     { return nil }

func TestCloseTearsDownLinkAndJitter(t *testing.T) {
	sessA, _ := newLinkedSessions(t, func() int64 { return 0 }, func() int64 { return 0 })
	if err := sessA.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sessA.link.Send([]byte{FrameTypePing}); err == nil {
		t.Fatal("expected send on closed link to fail")
	}
}
