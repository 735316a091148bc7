package directory

import (
	"encoding/base64"
	"log/slog"

	"github.com/kc1awv/lxst-phone/internal/identity"
	"github.com/kc1awv/lxst-phone/internal/signaling"
	"github.com/kc1awv/lxst-phone/internal/transport"
)

// NewAnnounceHandler returns a transport.AnnounceCallback closed over dir
// and localNodeID. It holds no back-reference to anything resembling a
// client/announce-handler cycle (spec §9: the source's cyclic reference
// between client and announce handler is resolved by inverting control —
// the handler is a plain function value, not a method on a type the
// directory also depends on).
func NewAnnounceHandler(dir *Directory, localNodeID string) transport.AnnounceCallback {
	return func(a transport.Announce) {
		handleAnnounce(dir, localNodeID, a)
	}
}

func handleAnnounce(dir *Directory, localNodeID string, a transport.Announce) {
	appData, ok := signaling.ParseAnnounceAppData(a.AppData)
	if !ok || appData.App != signaling.AppDataName {
		slog.Debug("dropping announce: not an lxst_phone app_data blob")
		return
	}

	nodeID, destHash := identity.DestinationHashForPublicKey(a.PublicKey, identity.AspectCall)
	if nodeID == localNodeID {
		slog.Debug("dropping self-announce")
		return
	}

	if destHash != a.DestinationHash {
		slog.Warn("dropping announce with mismatched destination hash",
			"node_id", nodeID, "announced_dest", a.DestinationHash, "derived_dest", destHash)
		return
	}

	publicKeyB64 := base64.StdEncoding.EncodeToString(a.PublicKey)
	peer := dir.Upsert(nodeID, appData.DisplayName, destHash, publicKeyB64)
	slog.Info("peer directory updated from announce",
		"node_id", peer.NodeID, "display_name", peer.DisplayName, "announce_count", peer.AnnounceCount)
}
