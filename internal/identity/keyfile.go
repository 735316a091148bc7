package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// KeyFile is the on-disk shape of a local identity (spec §6: "the
// identity file format ... except its externally observable properties"
// is out of scope; this is the minimal concrete format this module
// needs to run standalone, grounded on the teacher's own habit of
// reaching for stdlib crypto directly — see server/tls.go's ecdsa key
// generation — rather than a third-party crypto package).
type KeyFile struct {
	PublicKey  string `json:"public_key"`  // base64 std encoding
	PrivateKey string `json:"private_key"` // base64 std encoding
}

// Identity is a loaded local identity and its derived addressing
// properties.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	NodeID     string
	CallDest   string
}

// Generate creates a fresh ed25519 keypair and writes it to path,
// refusing to overwrite an existing identity file.
func Generate(path string) (Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return Identity{}, fmt.Errorf("identity: %s already exists, refusing to overwrite", path)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate key: %w", err)
	}

	kf := KeyFile{
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return Identity{}, fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Identity{}, fmt.Errorf("identity: create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Identity{}, fmt.Errorf("identity: write %s: %w", path, err)
	}

	return identityFromKeys(pub, priv), nil
}

// Load reads an existing identity file.
func Load(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return Identity{}, fmt.Errorf("identity: parse %s: %w", path, err)
	}

	pub, err := base64.StdEncoding.DecodeString(kf.PublicKey)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: decode public key: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(kf.PrivateKey)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: decode private key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
		return Identity{}, fmt.Errorf("identity: malformed key sizes in %s", path)
	}

	return identityFromKeys(pub, priv), nil
}

func identityFromKeys(pub ed25519.PublicKey, priv ed25519.PrivateKey) Identity {
	nodeID, callDest := DestinationHashForPublicKey(pub, AspectCall)
	return Identity{PublicKey: pub, PrivateKey: priv, NodeID: nodeID, CallDest: callDest}
}
