// Package settings holds the process-wide, mutable filter and scheduling
// configuration (spec §3 "Settings"). Reads return a consistent snapshot;
// writes swap the whole record under a lock, following the same
// read-returns-a-copy / write-swaps-the-record shape as
// internal/scheduler's SchedulerConfig in the teacher repo.
package settings

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Settings is the full tuple of configurable knobs from spec §3.
type Settings struct {
	DiffMin              decimal.Decimal `json:"diff_min" yaml:"diff_min"`
	DiffMax              decimal.Decimal `json:"diff_max" yaml:"diff_max"`
	PriceMinA            decimal.Decimal `json:"price_min_a" yaml:"price_min_a"`
	PriceMaxA            decimal.Decimal `json:"price_max_a" yaml:"price_max_a"`
	ListingCountMin      int             `json:"listing_count_min" yaml:"listing_count_min"`
	MaxOutputItems       int             `json:"max_output_items" yaml:"max_output_items"`
	FullInterval         time.Duration   `json:"full_interval" yaml:"full_interval"`
	IncrementalInterval  time.Duration   `json:"incremental_interval" yaml:"incremental_interval"`
	IncrementalCacheSize int             `json:"incremental_cache_size" yaml:"incremental_cache_size"`
	RequestDelayA        time.Duration   `json:"request_delay_a" yaml:"request_delay_a"`
	RequestDelayB        time.Duration   `json:"request_delay_b" yaml:"request_delay_b"`
	PageSizeA            int             `json:"page_size_a" yaml:"page_size_a"`
	PageSizeB            int             `json:"page_size_b" yaml:"page_size_b"`
	MaxPagesA            int             `json:"max_pages_a" yaml:"max_pages_a"`
	MaxPagesB            int             `json:"max_pages_b" yaml:"max_pages_b"`
}

// Default returns the defaults named throughout spec.md (§3, §4.11, §7).
func Default() Settings {
	return Settings{
		DiffMin:              decimal.NewFromInt(3),
		DiffMax:              decimal.NewFromInt(5),
		PriceMinA:            decimal.NewFromInt(10),
		PriceMaxA:            decimal.NewFromInt(1000),
		ListingCountMin:      1,
		MaxOutputItems:       300,
		FullInterval:         time.Hour,
		IncrementalInterval:  time.Minute,
		IncrementalCacheSize: 1000,
		RequestDelayA:        2 * time.Second,
		RequestDelayB:        2 * time.Second,
		PageSizeA:            80,
		PageSizeB:            100,
		MaxPagesA:            2000,
		MaxPagesB:            2000,
	}
}

// Validate rejects a settings mutation per spec §7 CONFIG_INVALID.
func (s Settings) Validate() error {
	if s.DiffMin.GreaterThanOrEqual(s.DiffMax) {
		return fmt.Errorf("diff_min (%s) must be less than diff_max (%s)", s.DiffMin, s.DiffMax)
	}
	if s.PriceMinA.IsNegative() || s.PriceMaxA.IsNegative() {
		return fmt.Errorf("price bounds must be non-negative")
	}
	if s.PriceMinA.GreaterThan(s.PriceMaxA) {
		return fmt.Errorf("price_min_a (%s) must not exceed price_max_a (%s)", s.PriceMinA, s.PriceMaxA)
	}
	if s.ListingCountMin < 0 {
		return fmt.Errorf("listing_count_min must be non-negative")
	}
	if s.MaxOutputItems <= 0 {
		return fmt.Errorf("max_output_items must be positive")
	}
	if s.IncrementalCacheSize <= 0 {
		return fmt.Errorf("incremental_cache_size must be positive")
	}
	if s.FullInterval <= 0 || s.IncrementalInterval <= 0 {
		return fmt.Errorf("full_interval and incremental_interval must be positive")
	}
	return nil
}

// QualificationKey changes whenever an edit could alter which items can
// qualify for an opportunity at all (listing-count floor, price window for
// A). The Hash-Name Cache is invalidated only when this changes — see
// spec §9 Open Questions, resolved that way.
func (s Settings) QualificationKey() string {
	return fmt.Sprintf("%s|%s|%d", s.PriceMinA, s.PriceMaxA, s.ListingCountMin)
}

// Store owns the single mutable Settings record. Every reader gets a
// value-copy snapshot; every writer swaps the whole record atomically.
type Store struct {
	mu  sync.RWMutex
	cur Settings
}

// NewStore creates a Store seeded with the given settings.
func NewStore(initial Settings) *Store {
	return &Store{cur: initial}
}

// Get returns a consistent snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update validates and swaps in next, returning the prior value for
// callers that need to detect a QualificationKey change (C12 cache
// invalidation rule). On validation failure the prior settings remain
// untouched and the error is returned.
func (s *Store) Update(next Settings) (prior Settings, err error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prior = s.cur
	s.cur = next
	return prior, nil
}

// LoadFile reads YAML settings from path, falling back to Default() for any
// zero-valued field left unset by the file (mirrors the teacher's
// loadConfig-then-apply-defaults shape).
func LoadFile(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return s, nil
}
