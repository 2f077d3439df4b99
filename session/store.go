// CLAUDE:SUMMARY Per-broker session files with atomic writes.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists one State per broker as {dir}/broker_{id}.json.
// Writes go through a temp file and rename so a crashed process never
// leaves a half-written snapshot behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the sessions directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session: empty sessions dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(brokerID string) string {
	return filepath.Join(s.dir, "broker_"+brokerID+".json")
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(brokerID string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "broker_*.tmp")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path(brokerID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) when none exists.
func (s *FileStore) Load(brokerID string) (*State, error) {
	data, err := os.ReadFile(s.path(brokerID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("session: decode state: %w", err)
	}
	return &st, nil
}

// Has reports whether a snapshot exists for the broker.
func (s *FileStore) Has(brokerID string) bool {
	_, err := os.Stat(s.path(brokerID))
	return err == nil
}

// Delete removes the broker's snapshot. Missing files are not an error.
func (s *FileStore) Delete(brokerID string) error {
	err := os.Remove(s.path(brokerID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: delete state: %w", err)
	}
	return nil
}

// ClearAll removes every stored snapshot.
func (s *FileStore) ClearAll() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "broker_*.json"))
	if err != nil {
		return fmt.Errorf("session: glob: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session: delete %s: %w", filepath.Base(m), err)
		}
	}
	return nil
}
