// Package identity reconstructs the addressable transport destinations
// this core talks to, from the identity/public-key material the transport
// and peer directory already hold. The local ed25519 keypair itself is
// generated, stored and loaded by keyfile.go in this package.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// AppName is the aspect-independent application tag mixed into every
// destination hash, matching the wire constant used in announce app_data
// ("app":"lxst_phone") and the destination derivation formula in spec §3.
const AppName = "lxst_phone"

// AspectCall is the signaling destination aspect.
const AspectCall = "call"

// DestinationHash derives H(identityHash ‖ "lxst_phone" ‖ aspect) as a
// lowercase 64-hex string. Two independent calls with the same inputs
// always yield the same value (spec §8: "Destination determinism").
func DestinationHash(identityHash []byte, aspect string) string {
	h := sha256.New()
	h.Write(identityHash)
	h.Write([]byte(AppName))
	h.Write([]byte(aspect))
	return hex.EncodeToString(h.Sum(nil))
}

// DestinationHashForPublicKey derives the call-aspect destination hash for
// a raw public key, by first hashing the key to obtain the node_id and
// then applying DestinationHash. This is what lets any party reconstruct
// a peer's signaling destination from a stored public key alone, without
// needing a fresh announce (spec §4.2, §4.11).
func DestinationHashForPublicKey(publicKey []byte, aspect string) (nodeID, destHash string) {
	sum := sha256.Sum256(publicKey)
	nodeID = hex.EncodeToString(sum[:])
	destHash = DestinationHash(sum[:], aspect)
	return nodeID, destHash
}

// NodeIDBytes decodes a 64-hex node_id string back into its 32 raw bytes.
// Returns false if id is not well-formed.
func NodeIDBytes(id string) ([]byte, bool) {
	b, err := hex.DecodeString(id)
	if err != nil || len(b) != sha256.Size {
		return nil, false
	}
	return b, true
}
