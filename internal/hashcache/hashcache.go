// Package hashcache owns the Hash-Name Cache (spec §4.6, §3): the set of
// canonical names the Incremental Pipeline re-queries, rebuilt after every
// successful full analysis and persisted as hashname_cache.bin.
package hashcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/skinmarket/internal/atomicfile"
	"github.com/sawpanic/skinmarket/internal/model"
)

// wireFormat is the gob-encoded payload behind hashname_cache.bin. The
// on-disk format is explicitly opaque per spec §6, so gob (rather than
// JSON) is an appropriate fit — nothing outside this package ever reads it.
type wireFormat struct {
	Names          []string
	LastFullUpdate time.Time
}

// Cache is the in-memory, mutex-serialized owner of the Hash-Name Cache.
// Per spec §3 "serialized only by it" — no other component mutates it.
type Cache struct {
	mu   sync.RWMutex
	path string
	data model.HashNameCache
}

// New creates an empty cache bound to the given persistence path.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Load reads the cache from disk, tolerating a missing file (spec:
// "initialized empty; loaded at startup").
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.data = model.HashNameCache{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read hash-name cache: %w", err)
	}
	var wf wireFormat
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&wf); err != nil {
		return fmt.Errorf("decode hash-name cache: %w", err)
	}
	c.data = model.HashNameCache{Names: wf.Names, LastFullUpdate: wf.LastFullUpdate}
	return nil
}

// Snapshot returns a copy of the current cache contents.
func (c *Cache) Snapshot() model.HashNameCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.data.Names))
	copy(names, c.data.Names)
	return model.HashNameCache{Names: names, LastFullUpdate: c.data.LastFullUpdate}
}

// LastFullUpdate returns the timestamp the Scheduler's full-loop due-check
// compares against (spec §4.11).
func (c *Cache) LastFullUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.LastFullUpdate
}

// RebuildFromOpportunities replaces the cache from a successful full run's
// output (spec §4.6): take canonical names in descending diff order,
// truncate to maxSize, persist. opportunities must already be sorted by
// profit_rate descending (the Filter & Ranker's contract); this function
// re-sorts by raw diff since the cache truncation rule is diff-based, not
// profit-rate-based.
func (c *Cache) RebuildFromOpportunities(opportunities []model.Opportunity, maxSize int, now time.Time) error {
	sorted := make([]model.Opportunity, len(opportunities))
	copy(sorted, opportunities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Diff.GreaterThan(sorted[j].Diff)
	})

	names := make([]string, 0, len(sorted))
	for _, o := range sorted {
		names = append(names, o.CanonicalName)
	}
	if len(names) > maxSize {
		names = names[:maxSize]
	}

	c.mu.Lock()
	c.data = model.HashNameCache{Names: names, LastFullUpdate: now}
	snap := c.data
	c.mu.Unlock()

	return c.persist(snap)
}

// Invalidate clears the cache, including LastFullUpdate, so the
// Scheduler's startup due-check treats a full refresh as due — used when a
// Settings edit changes which items can qualify at all (spec §9 Open
// Questions resolution).
func (c *Cache) Invalidate() error {
	c.mu.Lock()
	c.data = model.HashNameCache{}
	c.mu.Unlock()
	return c.persist(model.HashNameCache{})
}

func (c *Cache) persist(data model.HashNameCache) error {
	var buf bytes.Buffer
	wf := wireFormat{Names: data.Names, LastFullUpdate: data.LastFullUpdate}
	if err := gob.NewEncoder(&buf).Encode(wf); err != nil {
		return fmt.Errorf("encode hash-name cache: %w", err)
	}
	return atomicfile.Write(c.path, buf.Bytes())
}
