package callstate

import "github.com/kc1awv/lxst-phone/internal/signaling"

// Outcome names how a call ended, recorded in history (spec §3, §7).
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeMissed     Outcome = "missed"
	OutcomeLinkFailed Outcome = "link_failed"
	OutcomeCodecError Outcome = "codec_error"
	OutcomeTimedOut   Outcome = "timed_out"
)

// Call is the runtime call record (spec §3).
type Call struct {
	CallID             string
	LocalID            string
	RemoteID           string
	DisplayName        string
	InitiatedByLocal   bool
	RemoteCallDest     string
	RemotePublicKeyB64 string
	NegotiatedCodec    signaling.CodecPreference
	StartTS            int64
	EndTS              int64
	Outcome            Outcome
}
