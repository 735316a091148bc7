// Package transport defines the capability interface the call engine
// consumes from the mesh-routing substrate (spec §1, §9). The substrate
// itself — identity-addressed encrypted datagrams and encrypted
// bidirectional links between identities — is an external collaborator
// and is not implemented here. Exactly two implementations exist in
// scope: the real one (owned by the host application, outside this
// module) and Mock, used by every package's tests.
package transport

import "context"

// Packet is an inbound datagram delivered to the local signaling
// destination, already decrypted by the transport.
type Packet struct {
	FromDestHash string
	Payload      []byte
}

// Announce is an inbound presence announce.
type Announce struct {
	DestinationHash string
	PublicKey       []byte
	IdentityHash    []byte
	AppData         []byte
}

// Link is an established bidirectional encrypted stream between two
// identities, used for media after a call is accepted (spec §4.9).
type Link interface {
	// ID returns the opaque link identifier fed to SAS derivation.
	ID() []byte
	// Send writes one framed payload to the peer.
	Send(frame []byte) error
	// OnFrame installs the callback invoked for each inbound frame on
	// this link, replacing any previously installed callback. Both the
	// opening and accepting side call this on their own Link value.
	OnFrame(cb LinkCallback)
	// Close tears the link down. Idempotent.
	Close() error
}

// LinkCallback is invoked with inbound bytes for a given link.
type LinkCallback func(frame []byte)

// PacketCallback is invoked for each inbound signaling datagram.
type PacketCallback func(Packet)

// AnnounceCallback is invoked for each inbound announce.
type AnnounceCallback func(Announce)

// Transport is the capability set the call engine requires. send_packet,
// register_packet_callback, register_announce_handler, open_link, and
// accept_link from spec §9's design note map directly onto these methods.
type Transport interface {
	// SendPacket sends an encrypted datagram to destHash. A reported
	// failure is non-fatal to the transport itself (spec §5: "treated as
	// non-blocking from the core's perspective"); the caller decides
	// policy.
	SendPacket(ctx context.Context, destHash string, payload []byte) error

	// RegisterPacketCallback installs the handler invoked for inbound
	// signaling datagrams on the local destination. Replaces any
	// previously registered handler.
	RegisterPacketCallback(cb PacketCallback)

	// RegisterAnnounceHandler installs the handler invoked for inbound
	// announces. Replaces any previously registered handler.
	RegisterAnnounceHandler(cb AnnounceCallback)

	// OpenLink establishes an outbound media link to destHash. It
	// returns once the link reaches ESTABLISHED or the context is
	// cancelled/times out; spec §4.9 gives this a 10s budget at the
	// caller.
	OpenLink(ctx context.Context, destHash string) (Link, error)

	// AcceptLink registers the callback invoked when a remote peer opens
	// a link to the local media destination. cb is called once per
	// accepted link with the established Link; the handler installs its
	// inbound-frame callback via link.OnFrame before returning.
	AcceptLink(cb func(link Link))

	// LocalDestinationHash returns the hash of the local inbound
	// signaling destination (the "call" aspect destination owned by
	// this process, spec §3).
	LocalDestinationHash() string
}
