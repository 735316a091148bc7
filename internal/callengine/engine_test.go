package callengine

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kc1awv/lxst-phone/internal/callstate"
	"github.com/kc1awv/lxst-phone/internal/clock"
	"github.com/kc1awv/lxst-phone/internal/config"
	"github.com/kc1awv/lxst-phone/internal/directory"
	"github.com/kc1awv/lxst-phone/internal/history"
	"github.com/kc1awv/lxst-phone/internal/ratelimit"
	"github.com/kc1awv/lxst-phone/internal/signaling"
	"github.com/kc1awv/lxst-phone/internal/transport"
)

// memHistory is an in-memory history.Store stub for tests.
type memHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (m *memHistory) Append(r history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memHistory) List() ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memHistory) Close() error { return nil }

func (m *memHistory) last() (history.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return history.Record{}, false
	}
	return m.records[len(m.records)-1], true
}

// fixture bundles one side's engine with its collaborators for tests.
type fixture struct {
	engine  *Engine
	mock    *transport.Mock
	dir     *directory.Directory
	limiter *ratelimit.Limiter
	hist    *memHistory
	nodeID  string
}

func newFixture(t *testing.T, mc *clock.Mock, nodeID, destHash string, cfg config.Config) *fixture {
	t.Helper()
	mock := transport.NewMock(destHash)
	dir := directory.New(mc, nil)
	limiter := ratelimit.New(mc, ratelimit.DefaultMaxPerMinute, ratelimit.DefaultMaxPerHour)
	hist := &memHistory{}
	eng := New(mock, mc, dir, limiter, hist, nodeID, cfg)
	return &fixture{engine: eng, mock: mock, dir: dir, limiter: limiter, hist: hist, nodeID: nodeID}
}

// waitFor polls cond every millisecond for up to a second, for
// synchronizing with the engine's internal link-establishment goroutine
// (which, against transport.Mock, completes almost immediately since
// OpenLink/AcceptLink run synchronously).
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func defaultCfg() config.Config {
	cfg := config.Default()
	cfg.Codec = signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 24000}
	return cfg
}

func TestOutgoingHappyPath(t *testing.T) {
	mc := clock.NewMock(time.Unix(1000, 0))
	a := newFixture(t, mc, "node-a", "dest-a", defaultCfg())
	bCfg := defaultCfg()
	bCfg.Codec = signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 16000}
	b := newFixture(t, mc, "node-b", "dest-b", bCfg)
	transport.Connect(a.mock, b.mock)

	a.dir.Upsert("node-b", "Bob", "dest-b", "pub-b")
	b.dir.Upsert("node-a", "Alice", "dest-a", "pub-a")

	if err := a.engine.StartOutgoing("node-b"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}
	// B's CALL_RINGING reply is delivered synchronously by the mock
	// before StartOutgoing returns, moving A from OUTGOING_CALL on.
	if a.engine.Phase() != callstate.PhaseRinging {
		t.Fatalf("A phase = %s, want RINGING", a.engine.Phase())
	}
	if b.engine.Phase() != callstate.PhaseIncomingCall {
		t.Fatalf("B phase = %s, want INCOMING_CALL", b.engine.Phase())
	}

	if err := b.engine.AcceptIncoming(); err != nil {
		t.Fatalf("AcceptIncoming: %v", err)
	}
	if b.engine.Phase() != callstate.PhaseInCall {
		t.Fatalf("B phase = %s, want IN_CALL", b.engine.Phase())
	}
	if a.engine.Phase() != callstate.PhaseInCall {
		t.Fatalf("A phase = %s, want IN_CALL", a.engine.Phase())
	}

	call := a.engine.CurrentCall()
	if call == nil || call.NegotiatedCodec.Bitrate != 16000 {
		t.Fatalf("A negotiated codec = %+v, want bitrate 16000", call)
	}

	waitFor(t, func() bool {
		a.engine.mu.Lock()
		defer a.engine.mu.Unlock()
		return a.engine.session != nil
	})
	waitFor(t, func() bool {
		b.engine.mu.Lock()
		defer b.engine.mu.Unlock()
		return b.engine.session != nil
	})

	if err := a.engine.Hangup(); err != nil {
		t.Fatalf("Hangup: %v", err)
	}
	if a.engine.Phase() != callstate.PhaseIdle {
		t.Fatalf("A phase after hangup = %s, want IDLE", a.engine.Phase())
	}
	if b.engine.Phase() != callstate.PhaseIdle {
		t.Fatalf("B phase after remote END = %s, want IDLE", b.engine.Phase())
	}

	rec, ok := a.hist.last()
	if !ok || rec.Outcome != string(callstate.OutcomeCompleted) {
		t.Fatalf("A history record = %+v, want outcome completed", rec)
	}
	recB, ok := b.hist.last()
	if !ok || recB.Outcome != string(callstate.OutcomeCompleted) {
		t.Fatalf("B history record = %+v, want outcome completed", recB)
	}
}

func TestCodec2Wins(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	cfg := defaultCfg()
	cfg.Codec = signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 48000}
	a := newFixture(t, mc, "node-a", "dest-a", cfg)
	a.dir.Upsert("node-p", "Peer", "dest-p", "pub-p")

	msg, err := signaling.BuildInvite(signaling.InviteParams{
		From: "node-p", To: "node-a", CallID: "call-c2",
		CallDest: "dest-p",
		Codec:    signaling.CodecPreference{Type: signaling.CodecCodec2, Bitrate: 1600},
	})
	if err != nil {
		t.Fatalf("BuildInvite: %v", err)
	}
	payload, err := signaling.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	a.engine.handlePacket(transport.Packet{FromDestHash: "dest-p", Payload: payload})

	call := a.engine.CurrentCall()
	if call == nil {
		t.Fatal("expected an incoming call")
	}
	if call.NegotiatedCodec.Type != signaling.CodecCodec2 || call.NegotiatedCodec.Bitrate != 1600 {
		t.Fatalf("negotiated codec = %+v, want (codec2, 1600)", call.NegotiatedCodec)
	}
}

func TestBlockOverridesAll(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	a := newFixture(t, mc, "node-a", "dest-a", defaultCfg())
	p := newFixture(t, mc, "node-p", "dest-p", defaultCfg())
	transport.Connect(a.mock, p.mock)

	a.dir.Upsert("node-p", "Peer", "dest-p", "pub-p")
	if err := a.dir.SetBlocked("node-p", true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}

	var gotReject signaling.Message
	received := false
	p.mock.RegisterPacketCallback(func(pkt transport.Packet) {
		msg, err := signaling.Parse(pkt.Payload)
		if err != nil {
			t.Fatalf("peer parse: %v", err)
		}
		gotReject = msg
		received = true
	})

	msg, err := signaling.BuildInvite(signaling.InviteParams{
		From: "node-p", To: "node-a", CallID: "call-blocked",
		CallDest: "dest-p",
		Codec:    signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 24000},
	})
	if err != nil {
		t.Fatalf("BuildInvite: %v", err)
	}
	payload, err := signaling.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := p.mock.SendPacket(nil, "dest-a", payload); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	if a.engine.Phase() != callstate.PhaseIdle {
		t.Fatalf("A phase = %s, want IDLE (blocked invite must never reach the state machine)", a.engine.Phase())
	}
	if !received {
		t.Fatal("expected peer to receive a CALL_REJECT")
	}
	if gotReject.Type != signaling.TypeReject {
		t.Fatalf("peer received %s, want CALL_REJECT", gotReject.Type)
	}
	// A full minute's quota must still be available: had the gate
	// consulted the limiter, the last of these calls would be rejected.
	for i := 0; i < ratelimit.DefaultMaxPerMinute; i++ {
		if !a.limiter.IsAllowed("node-p") {
			t.Fatal("blocked check must short-circuit before the rate limiter is ever consulted")
		}
	}
}

func TestRateLimitSixthInviteAutoRejectedWithNoStateEvent(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	a := newFixture(t, mc, "node-a", "dest-a", defaultCfg())
	p := newFixture(t, mc, "node-p", "dest-p", defaultCfg())
	transport.Connect(a.mock, p.mock)
	a.dir.Upsert("node-p", "Peer", "dest-p", "pub-p")

	var rejects int
	p.mock.RegisterPacketCallback(func(pkt transport.Packet) {
		msg, err := signaling.Parse(pkt.Payload)
		if err != nil {
			t.Fatalf("peer parse: %v", err)
		}
		if msg.Type == signaling.TypeReject {
			rejects++
		}
	})

	sendInvite := func(callID string) {
		msg, err := signaling.BuildInvite(signaling.InviteParams{
			From: "node-p", To: "node-a", CallID: callID,
			CallDest: "dest-p",
			Codec:    signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 24000},
		})
		if err != nil {
			t.Fatalf("BuildInvite: %v", err)
		}
		payload, err := signaling.Encode(msg)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if err := p.mock.SendPacket(nil, "dest-a", payload); err != nil {
			t.Fatalf("SendPacket: %v", err)
		}
	}

	for i := 0; i < ratelimit.DefaultMaxPerMinute; i++ {
		sendInvite(fmt.Sprintf("call-%d", i))
	}
	if a.engine.Phase() != callstate.PhaseIncomingCall {
		t.Fatalf("phase after first invite = %s, want INCOMING_CALL (invites 2-5 auto-rejected for busy)", a.engine.Phase())
	}
	if rejects != ratelimit.DefaultMaxPerMinute-1 {
		t.Fatalf("rejects after first %d invites = %d, want %d (invite #1 was admitted, not rejected)", ratelimit.DefaultMaxPerMinute, rejects, ratelimit.DefaultMaxPerMinute-1)
	}

	sendInvite("call-sixth")
	if rejects != ratelimit.DefaultMaxPerMinute {
		t.Fatalf("rejects after sixth invite = %d, want %d", rejects, ratelimit.DefaultMaxPerMinute)
	}
	if a.engine.Phase() != callstate.PhaseIncomingCall {
		t.Fatalf("phase after sixth invite = %s, want unchanged INCOMING_CALL", a.engine.Phase())
	}
}

func TestBusyRejectsSecondCallerByDefaultWithoutHistory(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	a := newFixture(t, mc, "node-a", "dest-a", defaultCfg())
	a.dir.Upsert("node-x", "X", "dest-x", "pub-x")
	a.dir.Upsert("node-y", "Y", "dest-y", "pub-y")

	if _, err := a.engine.machine.StartOutgoing("call-with-x", "node-a", "node-x", 0); err != nil {
		t.Fatalf("StartOutgoing (direct): %v", err)
	}

	msg, err := signaling.BuildInvite(signaling.InviteParams{
		From: "node-y", To: "node-a", CallID: "call-from-y",
		CallDest: "dest-y",
		Codec:    signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 24000},
	})
	if err != nil {
		t.Fatalf("BuildInvite: %v", err)
	}
	payload, err := signaling.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	a.engine.handlePacket(transport.Packet{FromDestHash: "dest-y", Payload: payload})

	call := a.engine.CurrentCall()
	if call == nil || call.RemoteID != "node-x" {
		t.Fatalf("CurrentCall = %+v, want call with node-x unaffected", call)
	}
	if recs, _ := a.hist.List(); len(recs) != 0 {
		t.Fatalf("history = %+v, want empty (record_missed_calls defaults to false)", recs)
	}
}

func TestBusyRejectsSecondCallerRecordedWhenConfigured(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	cfg := defaultCfg()
	cfg.RecordMissedCalls = true
	a := newFixture(t, mc, "node-a", "dest-a", cfg)
	a.dir.Upsert("node-x", "X", "dest-x", "pub-x")
	a.dir.Upsert("node-y", "Y", "dest-y", "pub-y")

	if _, err := a.engine.machine.StartOutgoing("call-with-x", "node-a", "node-x", 0); err != nil {
		t.Fatalf("StartOutgoing (direct): %v", err)
	}

	msg, err := signaling.BuildInvite(signaling.InviteParams{
		From: "node-y", To: "node-a", CallID: "call-from-y",
		CallDest: "dest-y",
		Codec:    signaling.CodecPreference{Type: signaling.CodecOpus, Bitrate: 24000},
	})
	if err != nil {
		t.Fatalf("BuildInvite: %v", err)
	}
	payload, err := signaling.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	a.engine.handlePacket(transport.Packet{FromDestHash: "dest-y", Payload: payload})

	recs, _ := a.hist.List()
	if len(recs) != 1 || recs[0].Outcome != string(callstate.OutcomeMissed) || recs[0].RemoteID != "node-y" {
		t.Fatalf("history = %+v, want one missed record for node-y", recs)
	}
}

func TestOversizeInviteRefusedOnConstruction(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	cfg := defaultCfg()
	cfg.DisplayName = strings.Repeat("x", 400)
	a := newFixture(t, mc, "node-a", "dest-a", cfg)
	p := newFixture(t, mc, "node-p", "dest-p", defaultCfg())
	transport.Connect(a.mock, p.mock)
	a.dir.Upsert("node-p", "Peer", "dest-p", "pub-p")

	received := false
	p.mock.RegisterPacketCallback(func(pkt transport.Packet) { received = true })

	if err := a.engine.StartOutgoing("node-p"); err == nil {
		t.Fatal("expected StartOutgoing to fail with an oversize INVITE")
	}
	if a.engine.Phase() != callstate.PhaseIdle {
		t.Fatalf("phase = %s, want IDLE (no call allocated on construction failure)", a.engine.Phase())
	}
	if received {
		t.Fatal("expected no packet to be transmitted")
	}
}
