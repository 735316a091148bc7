// Package adapt selects an Opus bitrate step from observed loss and RTT,
// the way a live link degrades or improves under a mesh transport's
// variable conditions (spec §4.8: "counters for RTT/loss/bitrate").
package adapt

import "math"

// Ladder is the ordered list of Opus target bitrates in bits/sec, spanning
// spec §4.8's 8-64 kbps range.
var Ladder = []int{8000, 12000, 16000, 24000, 32000, 48000, 64000}

// DefaultBitrate is the starting bitrate for a new session.
const DefaultBitrate = 32000

// NextBitrate returns the next Opus bitrate to use given the current
// setting and the connection quality observed over the last measurement
// interval:
//   - step DOWN one rung when packet loss exceeds 5%
//   - step UP one rung when loss < 1% and 0 < RTT < 150ms
//     (RTT == 0 means no measurement yet; hold rather than assume a good link)
//   - otherwise HOLD
//
// The result is always a value in Ladder.
func NextBitrate(current int, lossRate float64, rttMs float64) int {
	idx := stepIndex(current)
	switch {
	case lossRate > 0.05 && idx > 0:
		return Ladder[idx-1]
	case lossRate < 0.01 && rttMs > 0 && rttMs < 150 && idx < len(Ladder)-1:
		return Ladder[idx+1]
	default:
		return Ladder[idx]
	}
}

func stepIndex(bps int) int {
	best, bestDist := 0, iabs(bps-Ladder[0])
	for i, step := range Ladder {
		if d := iabs(bps - step); d < bestDist {
			bestDist, best = d, i
		}
	}
	return best
}

func iabs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// SmoothLoss applies exponentially weighted moving average smoothing to a
// raw packet-loss measurement. alpha is the weight given to the new
// sample (spec §4.8 uses the same α-weighted-average technique for RTT).
func SmoothLoss(smoothed, raw, alpha float64) float64 {
	return alpha*raw + (1-alpha)*smoothed
}

// EWMA updates a running exponentially weighted moving average with a
// new sample. Used for RTT (spec §4.8: "RTT is an exponentially weighted
// moving average with α=0.2").
func EWMA(current, sample, alpha float64) float64 {
	if current == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*current
}

// TargetJitterMillis computes a target jitter-buffer latency (ms) from
// measured inter-arrival jitter and loss rate, clamped to a sane range
// before being passed to jitter.Capacity.
func TargetJitterMillis(jitterMs, lossRate float64) int {
	if jitterMs <= 0 {
		return 60 // three 20ms frames, a conservative default
	}
	target := int(math.Ceil(jitterMs)) + 20
	if lossRate > 0.05 {
		target += 20
	}
	if target < 40 {
		target = 40
	}
	if target > 640 {
		target = 640
	}
	return target
}
