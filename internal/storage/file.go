package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// FileStore persists the trigger set as a single JSON document on disk,
// keyed by SnapshotKey. Writes replace the whole document.
type FileStore struct {
	path string
}

type fileSnapshot struct {
	Triggers []*triggers.Trigger `json:"formease-triggers"`
}

// NewFileStore creates a file-backed store at path, creating parent
// directories as needed
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.ConfigError("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.InternalError("failed to create store directory", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted snapshot; a missing file is an empty store
func (s *FileStore) Load() ([]*triggers.Trigger, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*triggers.Trigger{}, nil
		}
		return nil, errors.InternalError("failed to read trigger snapshot", err)
	}

	var snapshot fileSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, errors.InternalError("failed to decode trigger snapshot", err)
	}
	if snapshot.Triggers == nil {
		snapshot.Triggers = []*triggers.Trigger{}
	}
	return snapshot.Triggers, nil
}

// Save atomically overwrites the snapshot via a temp-file rename
func (s *FileStore) Save(set []*triggers.Trigger) error {
	raw, err := json.MarshalIndent(fileSnapshot{Triggers: set}, "", "  ")
	if err != nil {
		return errors.InternalError("failed to encode trigger snapshot", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.InternalError("failed to write trigger snapshot", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.InternalError("failed to replace trigger snapshot", err)
	}
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

// Health verifies the snapshot directory is writable
func (s *FileStore) Health() error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.InternalError("store directory is not accessible", err)
	}
	if !info.IsDir() {
		return errors.ConfigError("store parent is not a directory")
	}
	return nil
}

var _ Store = (*FileStore)(nil)
