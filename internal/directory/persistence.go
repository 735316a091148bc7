package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the peer directory to peers.json using a
// write-temp-then-rename sequence, so a crash mid-write never leaves a
// torn file on disk (spec §4.2).
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path (typically
// <config dir>/lxst-phone/peers.json).
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the full peer directory to disk atomically.
func (s *FileStore) Save(peers []Peer) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("directory: create config dir: %w", err)
	}

	data, err := json.MarshalIndent(fileFormat{Version: currentVersion, Peers: peers}, "", "  ")
	if err != nil {
		return fmt.Errorf("directory: marshal peers: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".peers-*.json.tmp")
	if err != nil {
		return fmt.Errorf("directory: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("directory: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("directory: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("directory: rename into place: %w", err)
	}
	return nil
}

// Load reads peers.json, returning an empty slice if the file does not
// yet exist.
func (s *FileStore) Load() ([]Peer, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: read peers file: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("directory: parse peers file: %w", err)
	}
	return ff.Peers, nil
}
