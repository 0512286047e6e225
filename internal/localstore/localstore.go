// Package localstore is the local durable key-value storage: a single
// JSON file of string keys, guarded by an advisory file lock so the CLI
// and a running server do not clobber each other's writes.
//
// Fixed key names live here so callers agree on them.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Well-known keys.
const (
	// KeyAPICredential holds the generation API credential.
	KeyAPICredential = "gemini_api_key"

	// KeyHistoryFallback holds a serialized copy of the in-memory
	// conversation history, written after each completed turn.
	KeyHistoryFallback = "conversation_history"
)

// Store reads and writes the state file. Safe for concurrent use across
// processes via flock; within a process, callers serialize per key
// through the lock as well.
type Store struct {
	path string
	lock *flock.Flock
}

// New creates a Store for the given file path. The parent directory is
// created on first write, not here.
func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	if err := s.lock.RLock(); err != nil {
		return "", false, fmt.Errorf("locking state file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set writes the value for key. The full file is rewritten atomically
// (temp file + rename) under the lock.
func (s *Store) Set(key, value string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// read loads the current file contents. A missing file is an empty map.
func (s *Store) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	values := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decoding state file: %w", err)
		}
	}
	return values, nil
}
