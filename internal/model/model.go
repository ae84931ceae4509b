// Package model holds the entities shared across the engine: platform-native
// items, full-catalog snapshots, matched opportunities, and the persisted
// hash-name cache.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies one of the two marketplaces.
type Platform string

const (
	PlatformA Platform = "A" // Buff163
	PlatformB Platform = "B" // Youpin898
)

// Item is a marketplace listing row as received from one platform.
type Item struct {
	Platform      Platform        `json:"platform"`
	NativeID      string          `json:"native_id"`
	DisplayName   string          `json:"display_name"`
	CanonicalName string          `json:"canonical_name"`
	Price         decimal.Decimal `json:"price"`
	ListingCount  int             `json:"listing_count"`
	ImageURL      string          `json:"image_url,omitempty"`
	Category      string          `json:"category,omitempty"`
	CapturedAt    time.Time       `json:"captured_at"`
}

// GeneratorConfig echoes the crawl parameters that produced a Snapshot.
type GeneratorConfig struct {
	PageSize int `json:"page_size" yaml:"page_size"`
	MaxPages int `json:"max_pages" yaml:"max_pages"`
}

// SnapshotMetadata describes a Snapshot without its item payload.
type SnapshotMetadata struct {
	Platform    Platform        `json:"platform"`
	TotalCount  int             `json:"total_count"`
	GeneratedAt time.Time       `json:"generated_at"`
	Generator   GeneratorConfig `json:"generator"`
}

// Snapshot is the full inventory of one platform at one instant. It is
// immutable once written: replacement is by overwrite of the well-known
// file path, never by append.
type Snapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	Items    []Item           `json:"items"`
}

// NewSnapshot builds a Snapshot whose total_count always matches len(items),
// satisfying the persisted-snapshot invariant in spec §8.
func NewSnapshot(platform Platform, gen GeneratorConfig, items []Item, generatedAt time.Time) Snapshot {
	return Snapshot{
		Metadata: SnapshotMetadata{
			Platform:    platform,
			TotalCount:  len(items),
			GeneratedAt: generatedAt,
			Generator:   gen,
		},
		Items: items,
	}
}

// MatchKind records which tier of the Matcher produced a cross-platform hit.
type MatchKind string

const (
	MatchNone       MatchKind = "none"
	MatchExact      MatchKind = "exact"
	MatchNormalized MatchKind = "normalized"
)

// Opportunity is a matched cross-platform pair whose diff passed the active
// filter window.
type Opportunity struct {
	CanonicalName string          `json:"canonical_name"`
	DisplayName   string          `json:"display_name"`
	NativeIDA     string          `json:"native_id_a"`
	PriceA        decimal.Decimal `json:"price_a"`
	PriceB        decimal.Decimal `json:"price_b"`
	Diff          decimal.Decimal `json:"diff"`
	ProfitRate    float64         `json:"profit_rate"` // percent
	ListingCountA int             `json:"listing_count_a"`
	MatchKind     MatchKind       `json:"match_kind"`
	URLA          string          `json:"url_a,omitempty"`
	URLB          string          `json:"url_b,omitempty"`
	Category      string          `json:"category,omitempty"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// OpportunityListMetadata describes a persisted opportunity list.
type OpportunityListMetadata struct {
	TotalCount   int       `json:"total_count"`
	GeneratedAt  time.Time `json:"generated_at"`
	FilterConfig string    `json:"filter_config"`
}

// OpportunityList is the persisted current opportunity list (opportunities.json).
type OpportunityList struct {
	Metadata OpportunityListMetadata `json:"metadata"`
	Items    []Opportunity           `json:"items"`
}

// HashNameCache is the persisted set of canonical names considered for
// incremental refresh, truncated to Settings.IncrementalCacheSize by
// descending diff from the last full run.
type HashNameCache struct {
	Names          []string  `json:"names"`
	LastFullUpdate time.Time `json:"last_full_update"`
}

// Contains reports whether name is present in the cache.
func (c *HashNameCache) Contains(name string) bool {
	for _, n := range c.Names {
		if n == name {
			return true
		}
	}
	return false
}
