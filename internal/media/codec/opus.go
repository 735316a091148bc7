package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Opus frame/sample parameters (spec §4.8): 48 kHz, mono, 20 ms frames,
// 8-64 kbps.
const (
	OpusSampleRate  = 48000
	OpusChannels    = 1
	OpusFrameMillis = 20
	OpusMaxPacket   = 1275 // RFC 6716 max Opus packet size
)

// OpusEncoder wraps gopkg.in/hraban/opus.v2 to implement Encoder.
type OpusEncoder struct {
	enc *opus.Encoder
}

// NewOpusEncoder constructs an encoder at bitrate bits/sec, clamped to the
// 8-64 kbps range spec §4.8 allows.
func NewOpusEncoder(bitrate int) (*OpusEncoder, error) {
	if bitrate < 8000 {
		bitrate = 8000
	}
	if bitrate > 64000 {
		bitrate = 64000
	}
	enc, err := opus.NewEncoder(OpusSampleRate, OpusChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("codec: opus set bitrate: %w", err)
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, fmt.Errorf("codec: opus set fec: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, OpusMaxPacket)
	n, err := e.enc.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encode: %w", err)
	}
	return out[:n], nil
}

func (e *OpusEncoder) SampleRate() int  { return OpusSampleRate }
func (e *OpusEncoder) Channels() int    { return OpusChannels }
func (e *OpusEncoder) FrameMillis() int { return OpusFrameMillis }
func (e *OpusEncoder) Close() error     { return nil }

// OpusDecoder wraps gopkg.in/hraban/opus.v2 to implement Decoder.
type OpusDecoder struct {
	dec *opus.Decoder
}

// NewOpusDecoder constructs a decoder matched to NewOpusEncoder's rate.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes data into frameSize samples. An empty data triggers
// Opus packet-loss concealment via DecodeFEC, matching the audio
// pipeline's "ping/missing frame" handling (spec §4.7, §4.8).
func (d *OpusDecoder) Decode(data []byte, frameSize int) ([]int16, error) {
	pcm := make([]int16, frameSize)
	if len(data) == 0 {
		if err := d.dec.DecodeFEC(data, pcm); err != nil {
			return nil, fmt.Errorf("codec: opus plc: %w", err)
		}
		return pcm, nil
	}
	n, err := d.dec.Decode(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decode: %w", err)
	}
	return pcm[:n], nil
}

func (d *OpusDecoder) SampleRate() int { return OpusSampleRate }
func (d *OpusDecoder) Channels() int   { return OpusChannels }
func (d *OpusDecoder) Close() error    { return nil }
