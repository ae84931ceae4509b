// Package store implements the Data Store (spec §4.3): the single source
// of truth for per-platform snapshots and the current opportunity list,
// backed by overwrite-in-place JSON files written atomically.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sawpanic/skinmarket/internal/atomicfile"
	"github.com/sawpanic/skinmarket/internal/model"
)

// Store reads and writes the well-known files named in spec §6. Each file
// has its own mutex so a snapshot write on one platform never blocks a
// read of the opportunity list.
type Store struct {
	dir string

	muSnapshotA sync.RWMutex
	muSnapshotB sync.RWMutex
	muOpps      sync.RWMutex
}

// New creates a Store rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// WriteSnapshot overwrites snapshot_<platform>.json atomically.
func (s *Store) WriteSnapshot(snap model.Snapshot) error {
	mu := s.snapshotMutex(snap.Metadata.Platform)
	mu.Lock()
	defer mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.Metadata.Platform, err)
	}
	return atomicfile.Write(s.path(snapshotFileName(snap.Metadata.Platform)), data)
}

// ReadSnapshot loads the most recent snapshot for platform. It returns
// (zero value, false, nil) if no snapshot has ever been written.
func (s *Store) ReadSnapshot(platform model.Platform) (model.Snapshot, bool, error) {
	mu := s.snapshotMutex(platform)
	mu.RLock()
	defer mu.RUnlock()

	raw, err := os.ReadFile(s.path(snapshotFileName(platform)))
	if os.IsNotExist(err) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("read snapshot %s: %w", platform, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", platform, err)
	}
	return snap, true, nil
}

func (s *Store) snapshotMutex(platform model.Platform) *sync.RWMutex {
	if platform == model.PlatformA {
		return &s.muSnapshotA
	}
	return &s.muSnapshotB
}

func snapshotFileName(platform model.Platform) string {
	return fmt.Sprintf("snapshot_%s.json", platform)
}

// WriteOpportunities atomically replaces opportunities.json.
func (s *Store) WriteOpportunities(list model.OpportunityList) error {
	s.muOpps.Lock()
	defer s.muOpps.Unlock()

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal opportunities: %w", err)
	}
	return atomicfile.Write(s.path("opportunities.json"), data)
}

// ReadOpportunities loads the current opportunity list, or an empty list
// if none has been written yet.
func (s *Store) ReadOpportunities() (model.OpportunityList, error) {
	s.muOpps.RLock()
	defer s.muOpps.RUnlock()

	raw, err := os.ReadFile(s.path("opportunities.json"))
	if os.IsNotExist(err) {
		return model.OpportunityList{}, nil
	}
	if err != nil {
		return model.OpportunityList{}, fmt.Errorf("read opportunities: %w", err)
	}
	var list model.OpportunityList
	if err := json.Unmarshal(raw, &list); err != nil {
		return model.OpportunityList{}, fmt.Errorf("decode opportunities: %w", err)
	}
	return list, nil
}
