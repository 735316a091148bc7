package directory

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"

	"github.com/kc1awv/lxst-phone/internal/clock"
	"github.com/kc1awv/lxst-phone/internal/identity"
)

// ErrNotFound is returned by Resolve when node_id is absent.
var ErrNotFound = errors.New("directory: peer not found")

// Store is the persistence capability the Directory writes through. Its
// sole production implementation is the atomic-rename JSON file store in
// persistence.go; tests may substitute an in-memory stub.
type Store interface {
	Save(peers []Peer) error
}

// Directory is the in-memory peer directory, single-writer guarded by mu,
// matching the coarse-mutex discipline spec §5 calls for ("negligible"
// contention at single-digit events/sec).
type Directory struct {
	mu    sync.RWMutex
	clock clock.Clock
	store Store
	peers map[string]*Peer
}

// New returns an empty Directory backed by store. Pass a nil store to run
// without persistence (e.g. in tests).
func New(c clock.Clock, store Store) *Directory {
	return &Directory{
		clock: c,
		store: store,
		peers: make(map[string]*Peer),
	}
}

// LoadAll replaces the in-memory directory with peers, e.g. at startup
// after reading peers.json. Does not trigger a save. Re-derives each
// record's destination hash from its stored public key and drops any
// record that fails to match (spec §3: "call_dest_hash must equal hash
// derived from public_key"), the same check handleAnnounce applies to a
// live announce — a hand-edited or corrupted peers.json must not
// reintroduce a mismatched record that bypassed it once already.
func (d *Directory) LoadAll(peers []Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = make(map[string]*Peer, len(peers))
	for i := range peers {
		p := peers[i]
		pubKey, err := base64.StdEncoding.DecodeString(p.PublicKeyB64)
		if err != nil {
			slog.Warn("dropping peer record with unparseable public key", "node_id", p.NodeID, "error", err)
			continue
		}
		nodeID, destHash := identity.DestinationHashForPublicKey(pubKey, identity.AspectCall)
		if nodeID != p.NodeID || destHash != p.CallDestHash {
			slog.Warn("dropping peer record with mismatched destination hash",
				"node_id", p.NodeID, "stored_dest", p.CallDestHash, "derived_dest", destHash)
			continue
		}
		d.peers[p.NodeID] = &p
	}
}

// Upsert inserts or updates a peer record, preserving Verified and
// Blocked across updates, bumping AnnounceCount, and setting LastSeen
// (spec §4.2). Returns the resulting record.
func (d *Directory) Upsert(nodeID, displayName, callDestHash, publicKeyB64 string) Peer {
	now := d.clock.Wall()

	d.mu.Lock()
	defer d.mu.Unlock()

	p, existed := d.peers[nodeID]
	if !existed {
		p = &Peer{
			NodeID:    nodeID,
			FirstSeen: now,
		}
		d.peers[nodeID] = p
	}

	p.DisplayName = displayName
	p.CallDestHash = callDestHash
	p.PublicKeyB64 = publicKeyB64
	p.LastSeen = now
	p.AnnounceCount++

	result := *p
	d.persistLocked()
	return result
}

// Resolve looks up a peer's (dest_hash, public_key_b64) by node ID.
func (d *Directory) Resolve(nodeID string) (destHash, publicKeyB64 string, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.peers[nodeID]
	if !ok {
		return "", "", ErrNotFound
	}
	return p.CallDestHash, p.PublicKeyB64, nil
}

// Get returns a copy of the peer record for nodeID.
func (d *Directory) Get(nodeID string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[nodeID]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// All returns a snapshot of every peer record, in no particular order.
func (d *Directory) All() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	return out
}

// IsBlocked reports whether nodeID is marked blocked. Unknown peers are
// never blocked.
func (d *Directory) IsBlocked(nodeID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[nodeID]
	return ok && p.Blocked
}

// SetBlocked updates a peer's blocked flag and persists the change.
func (d *Directory) SetBlocked(nodeID string, blocked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[nodeID]
	if !ok {
		return ErrNotFound
	}
	p.Blocked = blocked
	d.persistLocked()
	return nil
}

// SetVerified updates a peer's verified flag (set true after the user
// confirms a matching SAS, spec §4.10) and persists the change.
func (d *Directory) SetVerified(nodeID string, verified bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[nodeID]
	if !ok {
		return ErrNotFound
	}
	p.Verified = verified
	d.persistLocked()
	return nil
}

// persistLocked writes the full directory to the backing store. Caller
// must hold d.mu. Persistence failures are logged at ERROR and otherwise
// swallowed: the in-memory directory remains authoritative for the
// running process (spec §7: "Persistence Failure").
func (d *Directory) persistLocked() {
	if d.store == nil {
		return
	}
	peers := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, *p)
	}
	if err := d.store.Save(peers); err != nil {
		slog.Error("peer directory persistence failed", "error", err)
	}
}
