package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a slot has no persisted heartbeat yet.
var ErrNotFound = errors.New("heartbeat: not found")

// Store is the heartbeat persistence contract shared by workers (writing
// their own key) and the watchdog (reading all keys, demoting stale ones).
type Store interface {
	Read(slot string) (WorkerHeartbeat, error)
	Write(hb WorkerHeartbeat) error
	List() (map[string]WorkerHeartbeat, error)
}

// FileStore keeps one JSON file per slot. The one-file-per-key layout keeps
// the single-writer-per-key discipline trivially safe: concurrent writers
// touch different files, and each write is an atomic tmp+rename.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at the given directory.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Read loads one slot's heartbeat.
func (s *FileStore) Read(slot string) (WorkerHeartbeat, error) {
	data, err := os.ReadFile(s.path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return WorkerHeartbeat{}, ErrNotFound
		}
		return WorkerHeartbeat{}, fmt.Errorf("heartbeat: read %s: %w", slot, err)
	}
	var hb WorkerHeartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return WorkerHeartbeat{}, fmt.Errorf("heartbeat: parse %s: %w", slot, err)
	}
	return hb, nil
}

// Write persists a heartbeat with an atomic write. The record is validated
// first so a malformed state never reaches disk.
func (s *FileStore) Write(hb WorkerHeartbeat) error {
	if err := hb.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("heartbeat: create store directory: %w", err)
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("heartbeat: marshal %s: %w", hb.Slot, err)
	}

	path := s.path(hb.Slot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("heartbeat: write temp file for %s: %w", hb.Slot, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("heartbeat: rename temp file for %s: %w", hb.Slot, err)
	}
	return nil
}

// List returns every persisted heartbeat keyed by slot. Unparseable files
// are skipped rather than failing the whole scan.
func (s *FileStore) List() (map[string]WorkerHeartbeat, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("heartbeat: glob store directory: %w", err)
	}

	out := make(map[string]WorkerHeartbeat, len(matches))
	for _, match := range matches {
		data, err := os.ReadFile(match)
		if err != nil {
			continue
		}
		var hb WorkerHeartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			continue
		}
		if hb.Slot == "" {
			hb.Slot = strings.TrimSuffix(filepath.Base(match), ".json")
		}
		out[hb.Slot] = hb
	}
	return out, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.dir, slot+".json")
}
