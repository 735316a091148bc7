// Package codec2 binds libcodec2 for the 700-3200 bps modes spec §4.8
// names as the mesh-friendly alternative to Opus. There is no published
// Go module for libcodec2, so this wraps the C library directly the way
// the reference M17 client wraps it (go-m17-listen's codec2 package) and
// the way the call engine's own noise-suppression binding wraps RNNoise.
package codec2

/*
#cgo pkg-config: codec2
#include <codec2/codec2.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Mode selects one of libcodec2's fixed bitrate/frame configurations.
type Mode int

const (
	Mode3200 Mode = C.CODEC2_MODE_3200
	Mode2400 Mode = C.CODEC2_MODE_2400
	Mode1600 Mode = C.CODEC2_MODE_1600
	Mode1400 Mode = C.CODEC2_MODE_1400
	Mode1300 Mode = C.CODEC2_MODE_1300
	Mode1200 Mode = C.CODEC2_MODE_1200
	Mode700C Mode = C.CODEC2_MODE_700C
)

// BitrateForMode maps a mode to its nominal bits-per-second, which spec
// §4.1 treats as equal to the codec_bitrate wire value for codec2.
func BitrateForMode(m Mode) int {
	switch m {
	case Mode3200:
		return 3200
	case Mode2400:
		return 2400
	case Mode1600:
		return 1600
	case Mode1400:
		return 1400
	case Mode1300:
		return 1300
	case Mode1200:
		return 1200
	case Mode700C:
		return 700
	default:
		return 0
	}
}

// ModeForBitrate is the inverse of BitrateForMode, used when negotiation
// hands back a bitrate and the pipeline needs the mode to construct a
// Codec2 instance.
func ModeForBitrate(bps int) (Mode, bool) {
	switch bps {
	case 3200:
		return Mode3200, true
	case 2400:
		return Mode2400, true
	case 1600:
		return Mode1600, true
	case 1400:
		return Mode1400, true
	case 1300:
		return Mode1300, true
	case 1200:
		return Mode1200, true
	case 700:
		return Mode700C, true
	default:
		return 0, false
	}
}

// Codec2 is a libcodec2 encode/decode pair at a fixed mode. Not safe for
// concurrent use.
type Codec2 struct {
	state         *C.struct_CODEC2
	samplesPerFrame int
	bytesPerFrame   int
}

// New allocates a codec2 state at mode.
func New(mode Mode) (*Codec2, error) {
	st := C.codec2_create(C.int(mode))
	if st == nil {
		return nil, fmt.Errorf("codec2: codec2_create failed for mode %d", mode)
	}
	return &Codec2{
		state:           st,
		samplesPerFrame: int(C.codec2_samples_per_frame(st)),
		bytesPerFrame:   int(C.codec2_bytes_per_frame(st)),
	}, nil
}

// SamplesPerFrame is the PCM frame size (8 kHz samples) Encode expects.
func (c *Codec2) SamplesPerFrame() int { return c.samplesPerFrame }

// BytesPerFrame is the encoded frame size Decode expects.
func (c *Codec2) BytesPerFrame() int { return c.bytesPerFrame }

// Encode compresses one frame of 8 kHz PCM (length SamplesPerFrame) into
// BytesPerFrame encoded bytes.
func (c *Codec2) Encode(pcm []int16) []byte {
	out := make([]byte, c.bytesPerFrame)
	C.codec2_encode(c.state,
		(*C.uchar)(unsafe.Pointer(&out[0])),
		(*C.short)(unsafe.Pointer(&pcm[0])))
	return out
}

// Decode expands BytesPerFrame encoded bytes into one frame of 8 kHz
// PCM. A nil/short bits triggers the library's own error-concealment by
// passing zeroed input, matching how the pipeline treats a missing
// jitter-buffer entry.
func (c *Codec2) Decode(bits []byte) []int16 {
	pcm := make([]int16, c.samplesPerFrame)
	in := bits
	if len(in) < c.bytesPerFrame {
		in = make([]byte, c.bytesPerFrame)
	}
	C.codec2_decode(c.state,
		(*C.short)(unsafe.Pointer(&pcm[0])),
		(*C.uchar)(unsafe.Pointer(&in[0])))
	return pcm
}

// Close releases the underlying libcodec2 state.
func (c *Codec2) Close() error {
	if c.state != nil {
		C.codec2_destroy(c.state)
		c.state = nil
	}
	return nil
}
