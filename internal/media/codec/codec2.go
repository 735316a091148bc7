package codec

import (
	"fmt"

	"github.com/kc1awv/lxst-phone/internal/media/codec/codec2"
)

// Codec2 frame/sample parameters (spec §4.8): 8 kHz, mono, 40 ms frames,
// 700-3200 bps modes.
const (
	Codec2SampleRate  = 8000
	Codec2Channels    = 1
	Codec2FrameMillis = 40
)

// Codec2Encoder adapts codec2.Codec2 to the Encoder interface.
type Codec2Encoder struct {
	c2 *codec2.Codec2
}

// NewCodec2Encoder selects the mode matching bitrateBps (spec §4.1:
// codec2's wire bitrate equals its mode's nominal bps).
func NewCodec2Encoder(bitrateBps int) (*Codec2Encoder, error) {
	mode, ok := codec2.ModeForBitrate(bitrateBps)
	if !ok {
		return nil, fmt.Errorf("codec: unsupported codec2 bitrate %d", bitrateBps)
	}
	c2, err := codec2.New(mode)
	if err != nil {
		return nil, fmt.Errorf("codec: codec2 encoder: %w", err)
	}
	return &Codec2Encoder{c2: c2}, nil
}

func (e *Codec2Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != e.c2.SamplesPerFrame() {
		return nil, fmt.Errorf("codec: codec2 encode: got %d samples, want %d", len(pcm), e.c2.SamplesPerFrame())
	}
	return e.c2.Encode(pcm), nil
}

func (e *Codec2Encoder) SampleRate() int  { return Codec2SampleRate }
func (e *Codec2Encoder) Channels() int    { return Codec2Channels }
func (e *Codec2Encoder) FrameMillis() int { return Codec2FrameMillis }
func (e *Codec2Encoder) Close() error     { return e.c2.Close() }

// Codec2Decoder adapts codec2.Codec2 to the Decoder interface.
type Codec2Decoder struct {
	c2 *codec2.Codec2
}

// NewCodec2Decoder must be constructed at the same bitrate/mode the
// remote peer's encoder negotiated.
func NewCodec2Decoder(bitrateBps int) (*Codec2Decoder, error) {
	mode, ok := codec2.ModeForBitrate(bitrateBps)
	if !ok {
		return nil, fmt.Errorf("codec: unsupported codec2 bitrate %d", bitrateBps)
	}
	c2, err := codec2.New(mode)
	if err != nil {
		return nil, fmt.Errorf("codec: codec2 decoder: %w", err)
	}
	return &Codec2Decoder{c2: c2}, nil
}

// Decode ignores frameSize: codec2 frame size is fixed by mode.
func (d *Codec2Decoder) Decode(data []byte, _ int) ([]int16, error) {
	return d.c2.Decode(data), nil
}

func (d *Codec2Decoder) SampleRate() int { return Codec2SampleRate }
func (d *Codec2Decoder) Channels() int   { return Codec2Channels }
func (d *Codec2Decoder) Close() error    { return d.c2.Close() }
