// Package codec defines the encode/decode abstraction the audio pipeline
// is built against (spec §4.8: "Codec abstraction"), with concrete Opus
// and Codec2 implementations in sibling files/packages.
package codec

import (
	"fmt"

	"github.com/kc1awv/lxst-phone/internal/signaling"
)

// Encoder turns one frame_ms window of PCM samples into opaque encoded
// bytes. Implementations are configured at construction with
// (sample_rate, channels, frame_ms, bitrate_or_mode) and are not safe for
// concurrent use from more than one capture goroutine.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	// SampleRate, Channels and FrameMillis report the configuration the
	// encoder expects its PCM windows to match.
	SampleRate() int
	Channels() int
	FrameMillis() int
	Close() error
}

// Decoder turns encoded bytes back into a PCM window of frameSize
// samples. A nil/empty payload requests packet-loss concealment.
type Decoder interface {
	Decode(data []byte, frameSize int) ([]int16, error)
	SampleRate() int
	Channels() int
	Close() error
}

// Preference describes which codec negotiation selected, reusing the
// signaling package's wire type so callers don't have to convert.
type Preference = signaling.CodecPreference

// NewEncoder constructs the concrete Encoder the negotiated preference
// names.
func NewEncoder(pref Preference) (Encoder, error) {
	switch pref.Type {
	case signaling.CodecOpus:
		return NewOpusEncoder(pref.Bitrate)
	case signaling.CodecCodec2:
		return NewCodec2Encoder(pref.Bitrate)
	default:
		return nil, fmt.Errorf("codec: unknown codec type %q", pref.Type)
	}
}

// NewDecoder constructs the concrete Decoder the negotiated preference
// names. A Codec2 decoder must be built at the same bitrate/mode as the
// remote peer's encoder; an Opus decoder is bitrate-independent.
func NewDecoder(pref Preference) (Decoder, error) {
	switch pref.Type {
	case signaling.CodecOpus:
		return NewOpusDecoder()
	case signaling.CodecCodec2:
		return NewCodec2Decoder(pref.Bitrate)
	default:
		return nil, fmt.Errorf("codec: unknown codec type %q", pref.Type)
	}
}
