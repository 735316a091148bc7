// Package admission implements the ordered checks an incoming CALL_INVITE
// passes through before it is allowed to ring (spec §4.3, §7): unknown
// peer, blocked, rate-limited, then busy. Each check is evaluated against
// the directory, rate limiter, and call-state machine independently of
// transport or wire-format concerns.
package admission

import (
	"github.com/kc1awv/lxst-phone/internal/callstate"
	"github.com/kc1awv/lxst-phone/internal/directory"
	"github.com/kc1awv/lxst-phone/internal/ratelimit"
)

// Decision names the outcome of evaluating an incoming invite.
type Decision string

const (
	Allow             Decision = "allow"
	RejectUnknown     Decision = "reject_unknown"
	RejectBlocked     Decision = "reject_blocked"
	RejectRateLimited Decision = "reject_rate_limited"
	RejectBusy        Decision = "reject_busy"
)

// Allowed reports whether d represents an admitted invite.
func (d Decision) Allowed() bool {
	return d == Allow
}

// Gate evaluates the admission checks in the fixed order spec §4.3 and
// §7 define: a peer absent from the directory is rejected before a
// blocked check can run on data that doesn't exist, blocked overrides
// rate limiting and busy, and rate-limited overrides busy (so a flood
// during an active call still counts against the limiter rather than
// silently no-opping).
type Gate struct {
	dir     *directory.Directory
	limiter *ratelimit.Limiter
	machine *callstate.Machine
}

// NewGate wires a Gate from its three collaborators.
func NewGate(dir *directory.Directory, limiter *ratelimit.Limiter, machine *callstate.Machine) *Gate {
	return &Gate{dir: dir, limiter: limiter, machine: machine}
}

// Evaluate runs the ordered admission checks for an invite from peerID.
func (g *Gate) Evaluate(peerID string) Decision {
	if _, ok := g.dir.Get(peerID); !ok {
		return RejectUnknown
	}

	if g.dir.IsBlocked(peerID) {
		return RejectBlocked
	}

	if !g.limiter.IsAllowed(peerID) {
		return RejectRateLimited
	}

	phase := g.machine.Phase()
	if phase != callstate.PhaseIdle && phase != callstate.PhaseEnded {
		return RejectBusy
	}

	return Allow
}
