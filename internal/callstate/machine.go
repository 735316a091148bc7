package callstate

import (
	"sync"

	"github.com/kc1awv/lxst-phone/internal/signaling"
)

// OnStateChanged is invoked synchronously after each successful
// transition (spec §4.4). It runs with the call mutex released, so a
// callback that re-enters the Machine (e.g. to finalize after notifying
// the UI) does not deadlock — matching the teacher's channel_state.go
// discipline of never holding its mutex while invoking caller-supplied
// code.
type OnStateChanged func(phase Phase, call *Call)

// Machine is the call-phase state machine. At most one call is active at
// a time: CurrentCall is non-nil iff Phase != PhaseIdle (spec §3, §8).
// Safe for concurrent use: every exported method takes the call mutex
// spec §5 describes ("single-writer discipline via a coarse mutex").
type Machine struct {
	mu      sync.Mutex
	phase   Phase
	current *Call
	onState OnStateChanged
}

// NewMachine returns a Machine in PhaseIdle.
func NewMachine(onState OnStateChanged) *Machine {
	if onState == nil {
		onState = func(Phase, *Call) {}
	}
	return &Machine{phase: PhaseIdle, onState: onState}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// CurrentCall returns a copy of the active call record, or nil if idle.
func (m *Machine) CurrentCall() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCall(m.current)
}

// StartOutgoing transitions IDLE -> OUTGOING_CALL. callID is allocated by
// the caller (a UUID v4) so the machine itself remains free of any
// randomness dependency (spec §8: "no wall-clock or I/O dependency").
func (m *Machine) StartOutgoing(callID, localID, remoteID string, startTS int64) (*Call, error) {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		return nil, invalidTransitionErr("start_outgoing", m.phase)
	}

	m.current = &Call{
		CallID:           callID,
		LocalID:          localID,
		RemoteID:         remoteID,
		InitiatedByLocal: true,
		StartTS:          startTS,
	}
	return m.commit(PhaseOutgoingCall), nil
}

// RemoteRinging transitions OUTGOING_CALL -> RINGING. Optional in
// practice: a peer may jump straight to accept/reject.
func (m *Machine) RemoteRinging(callID string) (*Call, error) {
	m.mu.Lock()
	if !m.matchesCurrent(callID) {
		cur := copyCall(m.current)
		m.mu.Unlock()
		return cur, nil // mismatched call_id: ignored, not an error
	}
	if m.phase != PhaseOutgoingCall {
		m.mu.Unlock()
		return nil, invalidTransitionErr("remote_ringing", m.phase)
	}
	return m.commit(PhaseRinging), nil
}

// RemoteAccepted transitions {OUTGOING_CALL,RINGING} -> IN_CALL, recording
// the negotiated codec and the callee's media destination.
func (m *Machine) RemoteAccepted(callID string, codec signaling.CodecPreference, remoteCallDest string) (*Call, error) {
	m.mu.Lock()
	if !m.matchesCurrent(callID) {
		cur := copyCall(m.current)
		m.mu.Unlock()
		return cur, nil
	}
	if m.phase != PhaseOutgoingCall && m.phase != PhaseRinging {
		m.mu.Unlock()
		return nil, invalidTransitionErr("remote_accepted", m.phase)
	}

	m.current.NegotiatedCodec = codec
	m.current.RemoteCallDest = remoteCallDest
	return m.commit(PhaseInCall), nil
}

// RemoteRejected transitions {OUTGOING_CALL,RINGING} -> ENDED.
func (m *Machine) RemoteRejected(callID string, endTS int64) (*Call, error) {
	m.mu.Lock()
	if !m.matchesCurrent(callID) {
		cur := copyCall(m.current)
		m.mu.Unlock()
		return cur, nil
	}
	if m.phase != PhaseOutgoingCall && m.phase != PhaseRinging {
		m.mu.Unlock()
		return nil, invalidTransitionErr("remote_rejected", m.phase)
	}

	m.current.EndTS = endTS
	m.current.Outcome = OutcomeRejected
	return m.commit(PhaseEnded), nil
}

// IncomingInvite transitions IDLE -> INCOMING_CALL, installing call as the
// current call record.
func (m *Machine) IncomingInvite(call *Call) (*Call, error) {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		return nil, invalidTransitionErr("incoming_invite", m.phase)
	}
	m.current = copyCall(call)
	return m.commit(PhaseIncomingCall), nil
}

// AcceptLocal transitions INCOMING_CALL -> IN_CALL.
func (m *Machine) AcceptLocal(codec signaling.CodecPreference) (*Call, error) {
	m.mu.Lock()
	if m.phase != PhaseIncomingCall {
		m.mu.Unlock()
		return nil, invalidTransitionErr("accept_local", m.phase)
	}
	m.current.NegotiatedCodec = codec
	return m.commit(PhaseInCall), nil
}

// RejectLocal transitions INCOMING_CALL -> ENDED.
func (m *Machine) RejectLocal(endTS int64) (*Call, error) {
	m.mu.Lock()
	if m.phase != PhaseIncomingCall {
		m.mu.Unlock()
		return nil, invalidTransitionErr("reject_local", m.phase)
	}
	m.current.EndTS = endTS
	m.current.Outcome = OutcomeRejected
	return m.commit(PhaseEnded), nil
}

// LocalHangup transitions IN_CALL -> ENDED with OutcomeCompleted.
func (m *Machine) LocalHangup(endTS int64) (*Call, error) {
	return m.endInCall(endTS, OutcomeCompleted, "local_hangup")
}

// RemoteEnded transitions IN_CALL -> ENDED with OutcomeCompleted (the
// remote side hanging up cleanly is still a completed call).
func (m *Machine) RemoteEnded(callID string, endTS int64) (*Call, error) {
	m.mu.Lock()
	if !m.matchesCurrent(callID) {
		cur := copyCall(m.current)
		m.mu.Unlock()
		return cur, nil
	}
	m.mu.Unlock()
	return m.endInCall(endTS, OutcomeCompleted, "remote_ended")
}

// LinkFailed transitions IN_CALL -> ENDED with OutcomeLinkFailed (spec
// §7: "Link Failure ... write outcome = link_failed").
func (m *Machine) LinkFailed(endTS int64) (*Call, error) {
	return m.endInCall(endTS, OutcomeLinkFailed, "link_failed")
}

// Timeout transitions {OUTGOING_CALL,RINGING} -> ENDED with
// OutcomeTimedOut (spec §5: "Outbound call has a 30s invite timeout ...
// the state machine auto-transitions to ENDED").
func (m *Machine) Timeout(callID string, endTS int64) (*Call, error) {
	m.mu.Lock()
	if !m.matchesCurrent(callID) {
		cur := copyCall(m.current)
		m.mu.Unlock()
		return cur, nil
	}
	if m.phase != PhaseOutgoingCall && m.phase != PhaseRinging {
		m.mu.Unlock()
		return nil, invalidTransitionErr("timeout", m.phase)
	}
	m.current.EndTS = endTS
	m.current.Outcome = OutcomeTimedOut
	return m.commit(PhaseEnded), nil
}

// CodecFailed transitions any phase with an active call
// (INCOMING_CALL, OUTGOING_CALL, RINGING, IN_CALL) -> ENDED with
// OutcomeCodecError (spec §7: "Codec Failure ... initialisation failure
// is fatal to the session").
func (m *Machine) CodecFailed(endTS int64) (*Call, error) {
	m.mu.Lock()
	switch m.phase {
	case PhaseIncomingCall, PhaseOutgoingCall, PhaseRinging, PhaseInCall:
	default:
		m.mu.Unlock()
		return nil, invalidTransitionErr("codec_failed", m.phase)
	}
	m.current.EndTS = endTS
	m.current.Outcome = OutcomeCodecError
	return m.commit(PhaseEnded), nil
}

func (m *Machine) endInCall(endTS int64, outcome Outcome, event string) (*Call, error) {
	m.mu.Lock()
	if m.phase != PhaseInCall {
		m.mu.Unlock()
		return nil, invalidTransitionErr(event, m.phase)
	}
	m.current.EndTS = endTS
	m.current.Outcome = outcome
	return m.commit(PhaseEnded), nil
}

// Finalize transitions ENDED -> IDLE, clearing CurrentCall. The caller is
// expected to have already appended a history record for the just-ended
// call (spec §3: "Lifecycle").
func (m *Machine) Finalize() error {
	m.mu.Lock()
	if m.phase != PhaseEnded {
		m.mu.Unlock()
		return invalidTransitionErr("finalize", m.phase)
	}
	m.current = nil
	m.commit(PhaseIdle)
	return nil
}

func (m *Machine) matchesCurrent(callID string) bool {
	return m.current != nil && m.current.CallID == callID
}

// commit applies phase, releases the lock, and invokes onState with a
// snapshot of the (possibly nil) current call. Caller must hold m.mu on
// entry; it is released on return.
func (m *Machine) commit(phase Phase) *Call {
	m.phase = phase
	cb := copyCall(m.current)
	m.mu.Unlock()
	m.onState(phase, cb)
	return cb
}

func copyCall(c *Call) *Call {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
