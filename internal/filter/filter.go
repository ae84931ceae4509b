// Package filter implements the Filter & Ranker (spec §4.5): it applies
// the price/listing/diff windows to matched pairs, sorts survivors by
// profit rate, and caps the result to max_output_items.
package filter

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/skinmarket/internal/matcher"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/settings"
)

const hundred = 100

// Apply filters matches against the active settings snapshot and returns
// Opportunities sorted by profit_rate descending (stable), capped to
// MaxOutputItems. now stamps LastUpdated on every surviving opportunity.
func Apply(matches []matcher.Match, s settings.Settings, now time.Time) []model.Opportunity {
	out := make([]model.Opportunity, 0, len(matches))

	for _, m := range matches {
		if !m.Matched {
			continue
		}
		item := m.Item

		// 1. price_A in [price_min_A, price_max_A]
		if item.Price.LessThan(s.PriceMinA) || item.Price.GreaterThan(s.PriceMaxA) {
			continue
		}
		// 2. listing_count_A >= listing_count_min
		if item.ListingCount < s.ListingCountMin {
			continue
		}
		// 3. price_B > 0
		if !m.PriceB.IsPositive() {
			continue
		}
		// 4. diff = price_B - price_A in [diff_min, diff_max]
		diff := m.PriceB.Sub(item.Price)
		if diff.LessThan(s.DiffMin) || diff.GreaterThan(s.DiffMax) {
			continue
		}
		// Invariant guarded separately since it is part of the spec's
		// testable property set even though it is implied by filter 1.
		if !item.Price.IsPositive() {
			continue
		}

		profitRate, _ := diff.Div(item.Price).Mul(decimal.NewFromInt(hundred)).Float64()

		out = append(out, model.Opportunity{
			CanonicalName: item.CanonicalName,
			DisplayName:   item.DisplayName,
			NativeIDA:     item.NativeID,
			PriceA:        item.Price,
			PriceB:        m.PriceB,
			Diff:          diff,
			ProfitRate:    profitRate,
			ListingCountA: item.ListingCount,
			MatchKind:     m.Kind,
			Category:      item.Category,
			LastUpdated:   now,
		})
	}

	// Stable sort by profit_rate descending; stability preserves input
	// order for ties as required by spec §8.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProfitRate > out[j].ProfitRate
	})

	if len(out) > s.MaxOutputItems {
		out = out[:s.MaxOutputItems]
	}
	return out
}
