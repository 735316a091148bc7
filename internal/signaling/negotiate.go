package signaling

// Negotiate implements the pure codec negotiation function of spec §4.1:
//
//  1. If the remote side supplied no codec info, return the local values.
//  2. If exactly one side prefers codec2, that side's (codec2, mode) wins
//     — codec2 always beats Opus to conserve bandwidth on constrained
//     links.
//  3. Otherwise (same codec on both sides), the result is the lower
//     bitrate and its codec type; on equality the local side wins.
//
// Bitrate comparison treats a Codec2 mode value as bits-per-second, which
// is true by construction (spec glossary: "Codec2 mode ... numerically
// equals the bitrate in bit/s").
func Negotiate(local, remote CodecPreference) CodecPreference {
	if remote.Type == "" {
		return local
	}

	localIsC2 := local.Type == CodecCodec2
	remoteIsC2 := remote.Type == CodecCodec2

	if localIsC2 != remoteIsC2 {
		if localIsC2 {
			return local
		}
		return remote
	}

	// Same codec family (both codec2, both opus, or — degenerate —
	// neither specified a recognized codec2/non-codec2 distinction; in
	// that case falling through to bitrate comparison is still correct
	// since both sides are some non-codec2 type).
	if remote.Bitrate < local.Bitrate {
		return remote
	}
	return local
}
