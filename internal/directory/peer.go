// Package directory ingests presence announces, stores peer records, and
// resolves node IDs to the transport destinations signaling needs (spec
// §3, §4.2).
package directory

import "time"

// Peer is one entry in the directory, keyed by NodeID.
type Peer struct {
	NodeID        string    `json:"node_id"`
	DisplayName   string    `json:"display_name"`
	CallDestHash  string    `json:"call_dest"`
	PublicKeyB64  string    `json:"public_key"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	AnnounceCount int       `json:"announce_count"`
	Verified      bool      `json:"verified"`
	Blocked       bool      `json:"blocked"`
}

// fileFormat is the on-disk shape of peers.json (spec §6).
type fileFormat struct {
	Version int    `json:"version"`
	Peers   []Peer `json:"peers"`
}

const currentVersion = 1
