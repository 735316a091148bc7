// Package sas derives the 4-digit Short Authentication String humans read
// aloud to detect a MITM on a just-established media link (spec §4.10).
package sas

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Derive computes sas(keyMaterial) = decimal(SHA256(keyMaterial)[0:4] as
// u32 BE mod 10000), rendered with leading zeros to 4 digits.
func Derive(keyMaterial []byte) string {
	sum := sha256.Sum256(keyMaterial)
	n := binary.BigEndian.Uint32(sum[0:4])
	return fmt.Sprintf("%04d", n%10000)
}

// FallbackKeyMaterial builds the key material used when a link_id is not
// yet available: the two node IDs' raw bytes concatenated in lexicographic
// order, so both peers derive the same SAS regardless of who is local.
func FallbackKeyMaterial(nodeIDA, nodeIDB []byte) []byte {
	a, b := nodeIDA, nodeIDB
	if compareBytes(a, b) > 0 {
		a, b = b, a
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}
