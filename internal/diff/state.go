// Package diff tracks per-store bookmark fingerprints between runs and
// turns two snapshots into an explicit change set.
package diff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bmsync/internal/store"
)

// StoreState is one store's snapshot at the end of the last sync.
// BookmarkHashes maps normalized URL to content fingerprint.
type StoreState struct {
	BookmarkHashes map[string]string `json:"bookmark_hashes"`
	LastModified   time.Time         `json:"last_modified"`
}

// State is the persisted sync state for all stores.
type State struct {
	LastSyncTime  time.Time               `json:"last_sync_time"`
	BrowserStates map[store.ID]StoreState `json:"browser_states"`
}

// NewState returns an empty state ready to record snapshots.
func NewState() *State {
	return &State{BrowserStates: make(map[store.ID]StoreState)}
}

// Store returns the snapshot for one store. A store never seen before
// gets an empty snapshot, so every bookmark diffs as added.
func (s *State) Store(id store.ID) StoreState {
	if st, ok := s.BrowserStates[id]; ok {
		return st
	}
	return StoreState{BookmarkHashes: map[string]string{}}
}

// SetStore records the snapshot for one store.
func (s *State) SetStore(id store.ID, st StoreState) {
	if s.BrowserStates == nil {
		s.BrowserStates = make(map[store.ID]StoreState)
	}
	s.BrowserStates[id] = st
}

// Load reads the state file. A missing file is a first run and yields
// an empty state; a malformed file is an error.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing sync state %s: %w", path, err)
	}
	if s.BrowserStates == nil {
		s.BrowserStates = make(map[store.ID]StoreState)
	}
	return &s, nil
}

// Save writes the state atomically, temp file then rename.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing sync state: %w", err)
	}
	return nil
}
