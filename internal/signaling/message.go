// Package signaling implements the call-control wire protocol: message
// schema, JSON encoding, MTU enforcement, typed constructors, and codec
// negotiation (spec §3, §4.1, §6).
package signaling

// Type enumerates the accepted call-control message types.
type Type string

const (
	TypeInvite           Type = "CALL_INVITE"
	TypeRinging          Type = "CALL_RINGING"
	TypeAccept           Type = "CALL_ACCEPT"
	TypeReject           Type = "CALL_REJECT"
	TypeEnd              Type = "CALL_END"
	TypePresenceAnnounce Type = "PRESENCE_ANNOUNCE"
)

// MaxEncodedBytes is the JSON payload size budget: the transport's ≈64-byte
// encryption overhead must fit under the 500-byte packet ceiling, so the
// JSON target is ≤ 436 bytes (spec §3, §6).
const MaxEncodedBytes = 436

// CodecType names a supported audio codec.
type CodecType string

const (
	CodecOpus   CodecType = "opus"
	CodecCodec2 CodecType = "codec2"
)

// Message is the wire envelope for every call-control message. Optional
// fields are omitted from the encoded JSON when zero-valued, and the
// parser ignores unknown fields for forward compatibility (spec §4.1).
//
// Public keys are never carried here (spec §3): recipients resolve them
// from the peer directory, populated by prior PRESENCE_ANNOUNCE messages.
type Message struct {
	Type Type   `json:"type"`
	// CallID is a UUID v4 string.
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`

	DisplayName  string    `json:"display_name,omitempty"`
	CallDest     string    `json:"call_dest,omitempty"`
	CodecType    CodecType `json:"codec_type,omitempty"`
	CodecBitrate int       `json:"codec_bitrate,omitempty"`
	Timestamp    int64     `json:"timestamp,omitempty"`
}

// CodecPreference is a (codec, bitrate) pair as exchanged during
// negotiation. Bitrate is bits-per-second for Opus and the Codec2 mode
// value (which spec §4.1 defines to equal bits-per-second) for Codec2.
type CodecPreference struct {
	Type    CodecType
	Bitrate int
}
