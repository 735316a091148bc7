package directory

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/kc1awv/lxst-phone/internal/clock"
	"github.com/kc1awv/lxst-phone/internal/identity"
)

// validPeer builds a Peer whose NodeID/CallDestHash are actually derived
// from publicKey, the shape LoadAll now requires to admit a record.
func validPeer(publicKey byte, displayName string) Peer {
	pub := []byte{publicKey}
	nodeID, destHash := identity.DestinationHashForPublicKey(pub, identity.AspectCall)
	return Peer{
		NodeID:       nodeID,
		DisplayName:  displayName,
		CallDestHash: destHash,
		PublicKeyB64: base64.StdEncoding.EncodeToString(pub),
	}
}

type memStore struct {
	saved []Peer
}

func (m *memStore) Save(peers []Peer) error {
	m.saved = append([]Peer(nil), peers...)
	return nil
}

func TestUpsertInsertThenUpdatePreservesFlags(t *testing.T) {
	mc := clock.NewMock(time.Unix(1000, 0))
	store := &memStore{}
	d := New(mc, store)

	d.Upsert("node-1", "Alice", "dest-1", "pubkey-b64")
	if err := d.SetVerified("node-1", true); err != nil {
		t.Fatalf("SetVerified: %v", err)
	}
	if err := d.SetBlocked("node-1", true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}

	mc.Advance(time.Hour)
	p := d.Upsert("node-1", "Alice II", "dest-1", "pubkey-b64")

	if !p.Verified {
		t.Error("expected verified to survive update")
	}
	if !p.Blocked {
		t.Error("expected blocked to survive update")
	}
	if p.AnnounceCount != 2 {
		t.Errorf("expected announce_count=2, got %d", p.AnnounceCount)
	}
	if p.DisplayName != "Alice II" {
		t.Errorf("expected display name to update, got %q", p.DisplayName)
	}
	if !p.LastSeen.After(p.FirstSeen) {
		t.Error("expected last_seen to advance past first_seen")
	}
}

func TestResolveUnknownPeer(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := New(mc, nil)

	_, _, err := d.Resolve("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveKnownPeer(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := New(mc, nil)
	d.Upsert("node-1", "Alice", "dest-1", "pubkey")

	dest, pub, err := d.Resolve("node-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dest != "dest-1" || pub != "pubkey" {
		t.Fatalf("unexpected resolve result: dest=%q pub=%q", dest, pub)
	}
}

func TestIsBlockedUnknownPeerIsFalse(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := New(mc, nil)
	if d.IsBlocked("nope") {
		t.Fatal("expected unknown peer to not be blocked")
	}
}

func TestPersistLockedCalledOnMutation(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	store := &memStore{}
	d := New(mc, store)

	d.Upsert("node-1", "Alice", "dest-1", "pubkey")
	if len(store.saved) != 1 {
		t.Fatalf("expected one saved peer, got %d", len(store.saved))
	}

	d.SetBlocked("node-1", true)
	if !store.saved[0].Blocked {
		t.Fatal("expected persisted snapshot to reflect blocked=true")
	}
}

func TestLoadAllReplacesState(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := New(mc, nil)
	peer := validPeer(0x01, "Alice")
	d.LoadAll([]Peer{peer})

	p, ok := d.Get(peer.NodeID)
	if !ok || p.DisplayName != "Alice" {
		t.Fatalf("expected loaded peer, got %+v ok=%v", p, ok)
	}
}

func TestLoadAllDropsMismatchedDestinationHash(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := New(mc, nil)

	good := validPeer(0x02, "Bob")
	bad := validPeer(0x03, "Mallory")
	bad.CallDestHash = "not-the-derived-hash"

	d.LoadAll([]Peer{good, bad})

	if _, ok := d.Get(good.NodeID); !ok {
		t.Fatal("expected valid peer to be loaded")
	}
	if _, ok := d.Get(bad.NodeID); ok {
		t.Fatal("expected peer with mismatched destination hash to be dropped")
	}
	if len(d.All()) != 1 {
		t.Fatalf("expected exactly one surviving peer, got %d", len(d.All()))
	}
}

func TestLoadAllDropsUnparseablePublicKey(t *testing.T) {
	mc := clock.NewMock(time.Unix(0, 0))
	d := New(mc, nil)

	bad := Peer{NodeID: "node-x", DisplayName: "Eve", CallDestHash: "dest-x", PublicKeyB64: "not valid base64!!"}
	d.LoadAll([]Peer{bad})

	if len(d.All()) != 0 {
		t.Fatalf("expected unparseable peer to be dropped, got %+v", d.All())
	}
}
