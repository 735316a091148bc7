package callengine

import "github.com/kc1awv/lxst-phone/internal/callstate"

// EventType names the kinds of notification the engine pushes to the UI
// context (spec §9: "Cross-thread UI notification ... maps to a
// message-passing channel from core to UI; the UI consumes on its own
// loop. The core never calls UI code directly.").
type EventType string

const (
	// EventStateChanged fires after every successful call-state
	// transition, mirroring Machine.OnStateChanged.
	EventStateChanged EventType = "state_changed"
	// EventIncomingInvite fires once an inbound invite has cleared
	// admission and been handed to the state machine.
	EventIncomingInvite EventType = "incoming_invite"
	// EventSASReady fires once a media link is established and a SAS
	// code is available for the user to read aloud.
	EventSASReady EventType = "sas_ready"
	// EventWarning surfaces a non-fatal problem the UI should toast. The
	// engine emits it only when sending a signaling message fails;
	// persistence failures are logged without an event, and no path
	// reports a SAS mismatch.
	EventWarning EventType = "warning"
)

// Event is one notification pushed on the engine's Events channel.
type Event struct {
	Type    EventType
	Phase   callstate.Phase
	Call    *callstate.Call
	SAS     string
	Message string
}
