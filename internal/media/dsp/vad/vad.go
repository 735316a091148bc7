// Package vad implements a simple energy-based voice activity detector
// for mono float32 PCM audio at 48 kHz, 960-sample (20 ms) frames, used
// on the capture side of the audio pipeline (spec §4.8).
package vad

import "math"

const (
	// DefaultThreshold is the RMS level below which a frame is treated as
	// silence (~-46 dBFS).
	DefaultThreshold = float32(0.005)

	// DefaultHangover is the number of silent frames to keep sending
	// after speech ends (~400ms at 20ms/frame).
	DefaultHangover = 20
)

// VAD is a single-channel voice activity detector. Zero value is not
// usable; use New().
type VAD struct {
	threshold float32
	hangover  int
	remaining int
	enabled   bool
}

// New returns a VAD with DefaultThreshold and DefaultHangover, enabled.
func New() *VAD {
	return &VAD{
		threshold: DefaultThreshold,
		hangover:  DefaultHangover,
		enabled:   true,
	}
}

// SetEnabled enables or disables the VAD. Disabled is pass-through.
func (v *VAD) SetEnabled(enabled bool) {
	v.enabled = enabled
	if !enabled {
		v.remaining = 0
	}
}

// SetThreshold maps level in [0,100] to an RMS range of [0.001, 0.05].
func (v *VAD) SetThreshold(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.threshold = 0.001 + float32(level)/100.0*0.049
}

// ShouldSend reports whether a frame with the given RMS energy should be
// transmitted, applying hangover.
func (v *VAD) ShouldSend(rms float32) bool {
	if !v.enabled {
		return true
	}
	if rms > v.threshold {
		v.remaining = v.hangover
		return true
	}
	if v.remaining > 0 {
		v.remaining--
		return true
	}
	return false
}

// ShouldSendProb is like ShouldSend but from an ML voice probability
// (e.g. RNNoise's VAD output) rather than RMS energy.
func (v *VAD) ShouldSendProb(prob float32) bool {
	if !v.enabled {
		return true
	}
	if prob > 0.5 {
		v.remaining = v.hangover
		return true
	}
	if v.remaining > 0 {
		v.remaining--
		return true
	}
	return false
}

// Enabled reports whether the VAD is currently enabled.
func (v *VAD) Enabled() bool { return v.enabled }

// Reset clears the hangover counter without changing other settings.
func (v *VAD) Reset() { v.remaining = 0 }

// RMS returns the root-mean-square of a float32 PCM frame.
func RMS(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(frame))))
}
