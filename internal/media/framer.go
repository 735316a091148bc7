package media

import (
	"encoding/binary"
	"fmt"
)

// Frame type tags, spec §4.6 ("[type:u8][seq:u32 BE][payload]") extended
// with ping/pong for RTT measurement.
const (
	FrameTypeAudio byte = 0x01
	FrameTypePing  byte = 0x02
	FrameTypePong  byte = 0x03
)

// headerLen is [type:1][seq:4], shared by every frame type.
const headerLen = 5

// EncodeAudioFrame prepends the [type][seq] header to an encoded payload.
func EncodeAudioFrame(seq uint32, payload []byte) []byte {
	out := make([]byte, headerLen+len(payload))
	out[0] = FrameTypeAudio
	binary.BigEndian.PutUint32(out[1:5], seq)
	copy(out[5:], payload)
	return out
}

// EncodePing builds a ping frame: header only, empty payload (spec §4.6:
// "Ping: empty payload"). seq is echoed back in the reply's own seq field
// so the pinger can match a pong to the send it measures RTT from.
func EncodePing(seq uint32) []byte {
	out := make([]byte, headerLen)
	out[0] = FrameTypePing
	binary.BigEndian.PutUint32(out[1:5], seq)
	return out
}

// EncodePong replies to a ping, echoing its seq and carrying an 8-byte
// monotonic timestamp chosen by the ponging side (spec §4.6: "pong
// echoes the ping's [seq]; 8-byte monotonic timestamp chosen by sender").
func EncodePong(seq uint32, sentTSMillis int64) []byte {
	out := make([]byte, headerLen+8)
	out[0] = FrameTypePong
	binary.BigEndian.PutUint32(out[1:5], seq)
	binary.BigEndian.PutUint64(out[5:13], uint64(sentTSMillis))
	return out
}

// DecodedFrame is the result of splitting a received framed payload.
type DecodedFrame struct {
	Type       byte
	Seq        uint32 // valid for every frame type
	Payload    []byte // valid when Type == FrameTypeAudio
	SentMillis int64  // valid when Type == FrameTypePong
}

// DecodeFrame splits type/seq/payload out of a received framed byte slice
// (spec §4.8: "Playback path"). Frames shorter than the 5-byte header are
// rejected (spec §4.6: "reject frames shorter than 5 bytes").
func DecodeFrame(b []byte) (DecodedFrame, error) {
	if len(b) < headerLen {
		return DecodedFrame{}, fmt.Errorf("media: short frame: %d bytes", len(b))
	}
	seq := binary.BigEndian.Uint32(b[1:5])
	switch b[0] {
	case FrameTypeAudio:
		return DecodedFrame{
			Type:    FrameTypeAudio,
			Seq:     seq,
			Payload: b[headerLen:],
		}, nil
	case FrameTypePing:
		return DecodedFrame{Type: FrameTypePing, Seq: seq}, nil
	case FrameTypePong:
		if len(b) < headerLen+8 {
			return DecodedFrame{}, fmt.Errorf("media: short pong frame: %d bytes", len(b))
		}
		return DecodedFrame{
			Type:       FrameTypePong,
			Seq:        seq,
			SentMillis: int64(binary.BigEndian.Uint64(b[5:13])),
		}, nil
	default:
		return DecodedFrame{}, fmt.Errorf("media: unknown frame type 0x%02x", b[0])
	}
}
