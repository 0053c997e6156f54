// Package store persists the update pipeline's durable state: the installed
// version marker, update history, the security audit log and backup records.
// Records are kept as per-key files written atomically.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is a small durable key-value surface. Writes are atomic: readers
// never observe a partially written value.
type Store interface {
	// Get returns the value for key. The second result is false when the
	// key has never been written.
	Get(key string) ([]byte, bool, error)
	// Set writes the value for key.
	Set(key string, value []byte) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error
}

// FileStore keeps each key in its own file under a base directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Set writes the value through a temporary file and renames it into place,
// then syncs the directory so the rename is durable.
func (s *FileStore) Set(key string, value []byte) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, value, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", key, err)
	}

	if df, err := os.Open(s.dir); err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync store directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}

func (s *FileStore) Remove(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// keyPath maps a key to a file path, rejecting keys that would escape the
// store directory.
func (s *FileStore) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
