package signaling

import "errors"

// ErrMessageTooLarge is returned by a constructor when the encoded
// message would exceed MaxEncodedBytes (spec §8 scenario 6).
var ErrMessageTooLarge = errors.New("signaling: message exceeds MTU budget")

// ErrMissingField is returned by Parse when a type-required field is
// absent (spec §4.1: "Required fields per type are enforced on parse").
var ErrMissingField = errors.New("signaling: missing required field")

// ErrUnknownType is returned by Parse for a type value outside the
// accepted set (spec §3).
var ErrUnknownType = errors.New("signaling: unknown message type")
