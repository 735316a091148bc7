package signaling

import (
	"encoding/json"
	"fmt"
)

// InviteParams carries the fields required to build a CALL_INVITE.
type InviteParams struct {
	From, To, CallID string
	CallDest         string
	Codec            CodecPreference
	DisplayName      string // optional
	Timestamp        int64
}

// BuildInvite constructs and validates a CALL_INVITE message.
func BuildInvite(p InviteParams) (Message, error) {
	m := Message{
		Type:         TypeInvite,
		CallID:       p.CallID,
		From:         p.From,
		To:           p.To,
		CallDest:     p.CallDest,
		CodecType:    p.Codec.Type,
		CodecBitrate: p.Codec.Bitrate,
		DisplayName:  p.DisplayName,
		Timestamp:    p.Timestamp,
	}
	return m, validateEncodedSize(m)
}

// AcceptParams carries the fields required to build a CALL_ACCEPT. Codec
// carries the negotiated values, not the recipient's original preference
// (spec §4.1).
type AcceptParams struct {
	From, To, CallID string
	CallDest         string
	Codec            CodecPreference
	Timestamp        int64
}

// BuildAccept constructs and validates a CALL_ACCEPT message.
func BuildAccept(p AcceptParams) (Message, error) {
	m := Message{
		Type:         TypeAccept,
		CallID:       p.CallID,
		From:         p.From,
		To:           p.To,
		CallDest:     p.CallDest,
		CodecType:    p.Codec.Type,
		CodecBitrate: p.Codec.Bitrate,
		Timestamp:    p.Timestamp,
	}
	return m, validateEncodedSize(m)
}

// SimpleParams carries the fields shared by CALL_RINGING, CALL_REJECT and
// CALL_END, which need only the envelope fields.
type SimpleParams struct {
	From, To, CallID string
	Timestamp        int64
}

// BuildRinging constructs a CALL_RINGING message.
func BuildRinging(p SimpleParams) (Message, error) {
	return buildSimple(TypeRinging, p)
}

// BuildReject constructs a CALL_REJECT message.
func BuildReject(p SimpleParams) (Message, error) {
	return buildSimple(TypeReject, p)
}

// BuildEnd constructs a CALL_END message.
func BuildEnd(p SimpleParams) (Message, error) {
	return buildSimple(TypeEnd, p)
}

func buildSimple(t Type, p SimpleParams) (Message, error) {
	m := Message{
		Type:      t,
		CallID:    p.CallID,
		From:      p.From,
		To:        p.To,
		Timestamp: p.Timestamp,
	}
	return m, validateEncodedSize(m)
}

// Encode serializes m as canonical JSON.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func validateEncodedSize(m Message) error {
	b, err := Encode(m)
	if err != nil {
		return fmt.Errorf("signaling: encode: %w", err)
	}
	if len(b) > MaxEncodedBytes {
		return fmt.Errorf("%w: %d bytes > %d budget", ErrMessageTooLarge, len(b), MaxEncodedBytes)
	}
	return nil
}

// Parse decodes and validates a wire message. Field ordering in the input
// JSON does not matter and unknown fields are ignored. A missing
// type-required field yields ErrMissingField; an unrecognized type yields
// ErrUnknownType.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("signaling: parse: %w", err)
	}

	if m.CallID == "" || m.From == "" || m.To == "" {
		return Message{}, fmt.Errorf("%w: call_id/from/to", ErrMissingField)
	}

	switch m.Type {
	case TypeInvite, TypeAccept:
		if m.CallDest == "" || m.CodecType == "" || m.CodecBitrate == 0 {
			return Message{}, fmt.Errorf("%w: call_dest/codec_type/codec_bitrate required for %s", ErrMissingField, m.Type)
		}
	case TypeRinging, TypeReject, TypeEnd:
		// No additional required fields.
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	return m, nil
}
