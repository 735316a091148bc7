package transport

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Transport used by tests. Multiple Mocks can be
// wired to each other via Connect to simulate datagram and link exchange
// between two local identities without a real mesh-routing substrate.
type Mock struct {
	mu           sync.Mutex
	destHash     string
	peers        map[string]*Mock // destHash -> peer Mock
	packetCB     PacketCallback
	announceCB   AnnounceCallback
	acceptLinkCB func(link Link)

	// SendPacketErr, if set, is returned by SendPacket instead of
	// delivering the packet. Lets tests simulate Transport Send Failure
	// (spec §7).
	SendPacketErr error
}

// NewMock returns a Mock whose local destination hash is destHash.
func NewMock(destHash string) *Mock {
	return &Mock{
		destHash: destHash,
		peers:    make(map[string]*Mock),
	}
}

// Connect makes m and other mutually reachable by destination hash.
func Connect(a, b *Mock) {
	a.mu.Lock()
	a.peers[b.destHash] = b
	a.mu.Unlock()

	b.mu.Lock()
	b.peers[a.destHash] = a
	b.mu.Unlock()
}

func (m *Mock) LocalDestinationHash() string { return m.destHash }

func (m *Mock) RegisterPacketCallback(cb PacketCallback) {
	m.mu.Lock()
	m.packetCB = cb
	m.mu.Unlock()
}

func (m *Mock) RegisterAnnounceHandler(cb AnnounceCallback) {
	m.mu.Lock()
	m.announceCB = cb
	m.mu.Unlock()
}

func (m *Mock) AcceptLink(cb func(link Link)) {
	m.mu.Lock()
	m.acceptLinkCB = cb
	m.mu.Unlock()
}

// SendPacket delivers payload to the peer registered under destHash, if
// any, invoking that peer's packet callback synchronously.
func (m *Mock) SendPacket(ctx context.Context, destHash string, payload []byte) error {
	if m.SendPacketErr != nil {
		return m.SendPacketErr
	}

	m.mu.Lock()
	peer, ok := m.peers[destHash]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport mock: no peer registered for destination %s", destHash)
	}

	peer.mu.Lock()
	cb := peer.packetCB
	peer.mu.Unlock()
	if cb != nil {
		cb(Packet{FromDestHash: m.destHash, Payload: payload})
	}
	return nil
}

// DeliverAnnounce synthesizes an inbound announce on m, as if emitted by
// the peer identified by fromIdentityHash/publicKey.
func (m *Mock) DeliverAnnounce(a Announce) {
	m.mu.Lock()
	cb := m.announceCB
	m.mu.Unlock()
	if cb != nil {
		cb(a)
	}
}

// OpenLink establishes a MockLink to destHash, invoking the peer's
// accept-link callback if one is registered.
func (m *Mock) OpenLink(ctx context.Context, destHash string) (Link, error) {
	m.mu.Lock()
	peer, ok := m.peers[destHash]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport mock: no peer registered for destination %s", destHash)
	}

	id := []byte(m.destHash + "|" + destHash)
	local := &MockLink{id: id, peerDestHash: destHash}
	remote := &MockLink{id: id, peerDestHash: m.destHash}
	local.remote = remote
	remote.remote = local

	peer.mu.Lock()
	acceptCB := peer.acceptLinkCB
	peer.mu.Unlock()
	if acceptCB != nil {
		acceptCB(remote)
	}

	return local, nil
}

// MockLink is a Link implementation that hands frames directly to the
// peer MockLink's registered frame callback.
type MockLink struct {
	mu           sync.Mutex
	id           []byte
	peerDestHash string
	remote       *MockLink
	frameCB      LinkCallback
	closed       bool
}

func (l *MockLink) ID() []byte { return l.id }

func (l *MockLink) OnFrame(cb LinkCallback) {
	l.mu.Lock()
	l.frameCB = cb
	l.mu.Unlock()
}

func (l *MockLink) Send(frame []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return fmt.Errorf("transport mock: link closed")
	}

	l.remote.mu.Lock()
	cb := l.remote.frameCB
	l.remote.mu.Unlock()
	if cb != nil {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		cb(cp)
	}
	return nil
}

func (l *MockLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
