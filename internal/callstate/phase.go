// Package callstate implements the pure call-phase state machine of spec
// §4.4: no I/O, no wall-clock dependency, total ordering of events per
// call (spec §5, §8: "State machine purity").
package callstate

// Phase is one of the six call lifecycle states.
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseOutgoingCall Phase = "OUTGOING_CALL"
	PhaseRinging      Phase = "RINGING"
	PhaseIncomingCall Phase = "INCOMING_CALL"
	PhaseInCall       Phase = "IN_CALL"
	PhaseEnded        Phase = "ENDED"
)
