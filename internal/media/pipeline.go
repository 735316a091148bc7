package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kc1awv/lxst-phone/internal/media/codec"
	"github.com/kc1awv/lxst-phone/internal/media/jitter"
	"github.com/kc1awv/lxst-phone/internal/transport"
)

// pingInterval is how often a ping is emitted for RTT measurement (spec
// §4.8: "A ping is emitted every 2s").
const pingInterval = 2 * time.Second

// rttAlpha is the EWMA smoothing factor for RTT (spec §4.8: "α=0.2").
const rttAlpha = 0.2

// Stats are the running session counters spec §4.8 calls for ("counters
// for RTT/loss/bitrate").
type Stats struct {
	RTTMillis       float64
	CaptureDropped  uint64
	PlaybackDropped uint64
	Jitter          jitter.Stats
}

// Session owns one call's encoder, decoder, jitter buffer, and link (spec
// §4.8: "A media session owns: one encoder, one decoder, one jitter
// buffer, the transport link..."). EncodeAndSend and PullPlayback are
// called from the audio device's own capture/playback threads; they must
// never block on a lock held by the control or transport contexts (spec
// §5), so the only synchronization here is the jitter buffer's own
// short-held mutex and atomics for the RTT/drop counters.
type Session struct {
	encoder   codec.Encoder
	decoder   codec.Decoder
	jb        *jitter.Buffer
	link      transport.Link
	nowMillis func() int64

	mu          sync.Mutex
	sendSeq     uint32
	pingSeq     uint32
	pendingPing map[uint32]int64 // ping seq -> local send time (millis), awaiting a matching pong

	rttBits     atomic.Uint64 // math.Float64bits(rtt), valid once rttSeeded
	rttSeeded   atomic.Bool
	captureDrp  atomic.Uint64
	playbackDrp atomic.Uint64

	cancelPinger context.CancelFunc
	pingerDone   chan struct{}
}

// NewSession wires a Session from its already-constructed collaborators.
// nowMillis supplies wall-clock milliseconds for RTT measurement; inject
// a fake in tests the way the callstate/ratelimit packages inject Clock.
func NewSession(enc codec.Encoder, dec codec.Decoder, jb *jitter.Buffer, link transport.Link, nowMillis func() int64) *Session {
	return &Session{encoder: enc, decoder: dec, jb: jb, link: link, nowMillis: nowMillis, pendingPing: make(map[uint32]int64)}
}

// EncodeAndSend is the capture path: PCM in, encode, frame, send (spec
// §4.8: "Capture path"). If the encoder rejects the window, the window
// is dropped and a counter bumped rather than aborting the session.
func (s *Session) EncodeAndSend(pcm []int16) error {
	encoded, err := s.encoder.Encode(pcm)
	if err != nil {
		s.captureDrp.Add(1)
		return nil
	}

	s.mu.Lock()
	seq := s.sendSeq
	s.sendSeq++
	s.mu.Unlock()

	if err := s.link.Send(EncodeAudioFrame(seq, encoded)); err != nil {
		return fmt.Errorf("media: send: %w", err)
	}
	return nil
}

// HandleInboundFrame is the playback path's entry point from the
// transport link callback: split type/seq/payload, decode audio into the
// jitter buffer, reply to pings, and fold pongs into the RTT estimate
// (spec §4.8: "Playback path").
func (s *Session) HandleInboundFrame(frame []byte) {
	df, err := DecodeFrame(frame)
	if err != nil {
		return
	}

	switch df.Type {
	case FrameTypeAudio:
		frameSize := frameSizeFor(s.decoder.SampleRate())
		pcm, err := s.decoder.Decode(df.Payload, frameSize)
		if err != nil {
			s.playbackDrp.Add(1)
			return
		}
		s.jb.Push(df.Seq, int16sToBytes(pcm))
	case FrameTypePing:
		_ = s.link.Send(EncodePong(df.Seq, s.nowMillis()))
	case FrameTypePong:
		s.mu.Lock()
		sentAt, ok := s.pendingPing[df.Seq]
		if ok {
			delete(s.pendingPing, df.Seq)
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		rtt := float64(s.nowMillis() - sentAt)
		if rtt < 0 {
			rtt = 0
		}
		s.recordRTT(rtt)
	}
}

// PullPlayback is the playback device's pull tick: it returns the next
// frame of PCM, or nil if the jitter buffer has nothing ready — in which
// case the caller must emit F ms of silence rather than block (spec
// §4.7: "Release").
func (s *Session) PullPlayback() []int16 {
	raw, ok := s.jb.Pop()
	if !ok {
		return nil
	}
	return bytesToInt16s(raw)
}

// StartPinger launches the 2s ping cadence used for RTT measurement.
// Stop with Close.
func (s *Session) StartPinger(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelPinger = cancel
	s.pingerDone = make(chan struct{})

	go func() {
		defer close(s.pingerDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				seq := s.pingSeq
				s.pingSeq++
				s.pendingPing[seq] = s.nowMillis()
				s.mu.Unlock()
				_ = s.link.Send(EncodePing(seq))
			}
		}
	}()
}

// recordRTT folds one RTT sample (milliseconds) into the running EWMA.
func (s *Session) recordRTT(rttMillis float64) {
	for {
		old := s.rttBits.Load()
		oldVal := rttMillis
		if s.rttSeeded.Load() {
			oldVal = math.Float64frombits(old)
		}
		newVal := rttAlpha*rttMillis + (1-rttAlpha)*oldVal
		if s.rttBits.CompareAndSwap(old, math.Float64bits(newVal)) {
			s.rttSeeded.Store(true)
			return
		}
	}
}

// Stats returns a snapshot of the session's running counters.
func (s *Session) Stats() Stats {
	return Stats{
		RTTMillis:       math.Float64frombits(s.rttBits.Load()),
		CaptureDropped:  s.captureDrp.Load(),
		PlaybackDropped: s.playbackDrp.Load(),
		Jitter:          s.jb.Stats(),
	}
}

// Close tears the session down: stop the pinger, close the link, then
// clear jitter-buffer state and close codec resources. The link is
// closed before the jitter buffer and codecs are released so no further
// frames arrive mid-teardown (spec §4.8: "Session teardown").
func (s *Session) Close() error {
	if s.cancelPinger != nil {
		s.cancelPinger()
		<-s.pingerDone
	}
	err := s.link.Close()
	s.jb.Reset()
	_ = s.encoder.Close()
	_ = s.decoder.Close()
	return err
}

func frameSizeFor(sampleRateHz int) int {
	if sampleRateHz == codec.OpusSampleRate {
		return sampleRateHz * codec.OpusFrameMillis / 1000
	}
	return sampleRateHz * codec.Codec2FrameMillis / 1000
}

func int16sToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func bytesToInt16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
