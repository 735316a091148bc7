// Package link manages the lifecycle of a single media link between two
// call-aspect destinations (spec §4.9): the initiator opens it once the
// callee's ACCEPT arrives, and the callee registers an inbound-link
// handler at startup. Open enforces the 10s establishment timeout; Accept
// hands over links that are already ESTABLISHED and sets no timer.
package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kc1awv/lxst-phone/internal/transport"
)

// establishTimeout is the budget for a PENDING link to reach ESTABLISHED
// before it is treated as a failure (spec §4.9, §5: "Link establishment
// has a 10 s timeout").
const establishTimeout = 10 * time.Second

// State is a link's lifecycle state.
type State int

const (
	StatePending State = iota
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrEstablishTimeout is returned by Open when the link does not reach
// ESTABLISHED within establishTimeout.
var ErrEstablishTimeout = fmt.Errorf("link: establishment timed out after %s", establishTimeout)

// Link wraps a transport.Link with the PENDING→ESTABLISHED→CLOSED state
// spec §4.9 describes, and exposes the link_id fed to SAS derivation.
type Link struct {
	mu    sync.Mutex
	state State
	raw   transport.Link
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ID returns the opaque link identifier, or nil before ESTABLISHED.
func (l *Link) ID() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateEstablished {
		return nil
	}
	return l.raw.ID()
}

// Send writes one framed payload to the peer. Returns an error if the
// link is not ESTABLISHED.
func (l *Link) Send(frame []byte) error {
	l.mu.Lock()
	if l.state != StateEstablished {
		l.mu.Unlock()
		return fmt.Errorf("link: send while %s", l.state)
	}
	raw := l.raw
	l.mu.Unlock()
	return raw.Send(frame)
}

// OnFrame installs the inbound-frame callback for this link.
func (l *Link) OnFrame(cb transport.LinkCallback) {
	l.mu.Lock()
	raw := l.raw
	l.mu.Unlock()
	raw.OnFrame(cb)
}

// Close tears the link down, transitioning to CLOSED. Idempotent.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	l.state = StateClosed
	raw := l.raw
	l.mu.Unlock()
	return raw.Close()
}

// Open establishes an outbound link to destHash, enforcing the 10s
// establishment timeout (spec §4.9). The initiator calls this once the
// callee's ACCEPT has arrived (spec §3: data flow).
func Open(ctx context.Context, t transport.Transport, destHash string) (*Link, error) {
	ctx, cancel := context.WithTimeout(ctx, establishTimeout)
	defer cancel()

	type result struct {
		raw transport.Link
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := t.OpenLink(ctx, destHash)
		done <- result{raw, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("link: open: %w", r.err)
		}
		return &Link{state: StateEstablished, raw: r.raw}, nil
	case <-ctx.Done():
		return nil, ErrEstablishTimeout
	}
}

// Accept registers the inbound-link callback on t, wrapping each
// accepted raw link in a Link already in the ESTABLISHED state and
// handing it to onLink (spec §4.9: "the callee registers an inbound-link
// callback on its own destination at startup").
func Accept(t transport.Transport, onLink func(*Link)) {
	t.AcceptLink(func(raw transport.Link) {
		onLink(&Link{state: StateEstablished, raw: raw})
	})
}
