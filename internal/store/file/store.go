// Package file persists the ledger snapshot as a JSON document on local
// disk. Writes go to a temporary sibling and are renamed into place, so a
// reader sees either the previous snapshot or the new one.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore over a single file.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore saves the snapshot as JSON at path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the snapshot file path.
func (s *SnapshotStore) Path() string { return s.path }

// Save writes snap to a temp file and renames it over path.
func (s *SnapshotStore) Save(_ context.Context, snap domain.LedgerSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("file: create dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file: rename snapshot: %w", err)
	}
	return nil
}

// Load returns domain.ErrNotFound when nothing was saved and wraps
// domain.ErrCorruptState when the payload does not decode.
func (s *SnapshotStore) Load(_ context.Context) (domain.LedgerSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.LedgerSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("file: read %s: %w", s.path, err)
	}

	var snap domain.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("file: decode %s: %w: %v", s.path, domain.ErrCorruptState, err)
	}
	return snap, nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
