// Package matcher implements the cross-market canonical-name join (spec
// §4.4): an exact-match index built once per snapshot pair, with a
// secondary normalized-name index as a fallback tier, so every probe stays
// O(1) instead of the O(n·m) normalized-lookup loops the original source
// used.
package matcher

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/skinmarket/internal/model"
)

// fullWidthFold maps the specific full-width punctuation the spec calls out
// to their ASCII equivalents. Tier 2 only folds these, it does not do
// general Unicode normalization.
var fullWidthFold = strings.NewReplacer(
	"（", "(",
	"）", ")",
	"｜", "|",
)

// Normalize collapses whitespace and folds full-width punctuation while
// preserving case, per spec §4.4 tier 2.
func Normalize(name string) string {
	folded := fullWidthFold.Replace(name)
	fields := strings.Fields(folded)
	return strings.Join(fields, " ")
}

// Match is the result of probing one Platform-A item against the index.
type Match struct {
	Item    model.Item
	PriceB  decimal.Decimal
	Kind    model.MatchKind
	Matched bool
}

// Counters tallies how probes resolved, for observability (spec §4.4 "Matcher
// tracks counters").
type Counters struct {
	Exact      int
	Normalized int
	None       int
}

// Index is the precomputed Platform-B lookup: canonical-name -> lowest
// positive price, plus a normalized-name -> original-canonical-names
// secondary index. Built once per snapshot pair and reused across all
// probes (spec §9 "Tiered matching via precomputed index").
type Index struct {
	exact      map[string]decimal.Decimal
	normalized map[string][]string
}

// BuildIndex builds the Platform-B lookup from its snapshot. Non-positive
// prices are rejected; duplicate canonical names keep the lowest price.
func BuildIndex(snapshotB model.Snapshot) *Index {
	idx := &Index{
		exact:      make(map[string]decimal.Decimal, len(snapshotB.Items)),
		normalized: make(map[string][]string, len(snapshotB.Items)),
	}
	for _, it := range snapshotB.Items {
		if !it.Price.IsPositive() {
			continue
		}
		if cur, ok := idx.exact[it.CanonicalName]; !ok || it.Price.LessThan(cur) {
			idx.exact[it.CanonicalName] = it.Price
		}
	}
	for name := range idx.exact {
		norm := Normalize(name)
		idx.normalized[norm] = append(idx.normalized[norm], name)
	}
	return idx
}

// Probe looks up one canonical name using the tiered policy: exact match
// first (O(1)), then normalized match through the secondary index (O(1)
// per probe). Weapon-name stripping, fuzzy similarity, wear-stripping and
// StatTrak-stripping are deliberately not implemented here — spec §4.4
// forbids reintroducing them without a new, price-keyed strategy, since
// wear/StatTrak are price-determining.
func (idx *Index) Probe(canonicalName string) (decimal.Decimal, model.MatchKind, bool) {
	if price, ok := idx.exact[canonicalName]; ok {
		return price, model.MatchExact, true
	}
	norm := Normalize(canonicalName)
	if candidates, ok := idx.normalized[norm]; ok && len(candidates) > 0 {
		// Multiple distinct canonical names can normalize to the same
		// string; take the lowest price among them, consistent with the
		// exact-tier "keep the lowest price on duplicates" rule.
		best := idx.exact[candidates[0]]
		for _, c := range candidates[1:] {
			if p := idx.exact[c]; p.LessThan(best) {
				best = p
			}
		}
		return best, model.MatchNormalized, true
	}
	return decimal.Zero, model.MatchNone, false
}

// MatchAll probes every item in snapshotA against idx and returns the
// matches plus tier counters. It does not apply any price/listing filters;
// that is the Filter & Ranker's job (spec §4.5).
func MatchAll(snapshotA model.Snapshot, idx *Index) ([]Match, Counters) {
	matches := make([]Match, 0, len(snapshotA.Items))
	var counters Counters

	for _, item := range snapshotA.Items {
		price, kind, ok := idx.Probe(item.CanonicalName)
		if !ok {
			counters.None++
			matches = append(matches, Match{Item: item, Kind: model.MatchNone, Matched: false})
			continue
		}
		switch kind {
		case model.MatchExact:
			counters.Exact++
		case model.MatchNormalized:
			counters.Normalized++
		}
		matches = append(matches, Match{Item: item, PriceB: price, Kind: kind, Matched: true})
	}
	return matches, counters
}
