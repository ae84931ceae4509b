package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/model"
)

// RunIncremental executes the Incremental Pipeline (spec §4.9): it never
// forces the gate — if a full or another incremental run is already in
// flight, this tick is skipped entirely (no queueing).
func (p *Pipelines) RunIncremental(ctx context.Context) (Result, error) {
	id := newRunID()
	if !p.Gate.TryStart(gate.KindIncremental, id, false) {
		return Result{}, ErrGateBusy
	}

	timer := p.startTimer(gate.KindIncremental)
	result := p.runIncrementalLocked(ctx, id)
	if result.Err == nil && !result.Cancelled {
		p.Gate.SetLastResults(result.Opportunities)
	}
	p.Gate.Finish(id, nil)
	p.observeResult(timer, gate.KindIncremental, result)
	return result, result.Err
}

func (p *Pipelines) runIncrementalLocked(ctx context.Context, id string) Result {
	cache := p.HashCache.Snapshot()
	if len(cache.Names) == 0 {
		return Result{Kind: gate.KindIncremental, ID: id, Opportunities: p.Gate.LastResults()}
	}

	s := p.Settings.Get()
	concurrency := p.IncrementalConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	type pairResult struct {
		canonical string
		itemA     model.Item
		priceB    decimal.Decimal
		ok        bool
	}

	sem := make(chan struct{}, concurrency)
	results := make(chan pairResult, len(cache.Names))
	var wg sync.WaitGroup

	for _, name := range cache.Names {
		if p.Gate.ShouldStop() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(canonical string) {
			defer wg.Done()
			defer func() { <-sem }()

			var itemsA, itemsB []model.Item
			var wgSearch sync.WaitGroup
			wgSearch.Add(2)
			go func() { defer wgSearch.Done(); itemsA, _ = p.ClientA.Search(ctx, canonical) }()
			go func() { defer wgSearch.Done(); itemsB, _ = p.ClientB.Search(ctx, canonical) }()
			wgSearch.Wait()

			itemA, okA := firstExactMatch(itemsA, canonical)
			itemB, okB := firstExactMatch(itemsB, canonical)
			if !okA || !okB || !itemB.Price.IsPositive() {
				results <- pairResult{canonical: canonical, ok: false}
				return
			}
			results <- pairResult{canonical: canonical, itemA: itemA, priceB: itemB.Price, ok: true}
		}(name)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	index := make(map[string]model.Opportunity)
	for _, prior := range p.Gate.LastResults() {
		index[prior.CanonicalName] = prior
	}

	now := time.Now()
	for r := range results {
		if !r.ok {
			continue
		}
		if r.itemA.Price.LessThan(s.PriceMinA) || r.itemA.Price.GreaterThan(s.PriceMaxA) {
			continue
		}
		if r.itemA.ListingCount < s.ListingCountMin {
			continue
		}
		diff := r.priceB.Sub(r.itemA.Price)
		if diff.LessThan(s.DiffMin) || diff.GreaterThan(s.DiffMax) {
			continue
		}
		profitRate, _ := diff.Div(r.itemA.Price).Mul(decimal.NewFromInt(100)).Float64()
		index[r.canonical] = model.Opportunity{
			CanonicalName: r.canonical,
			DisplayName:   r.itemA.DisplayName,
			NativeIDA:     r.itemA.NativeID,
			PriceA:        r.itemA.Price,
			PriceB:        r.priceB,
			Diff:          diff,
			ProfitRate:    profitRate,
			ListingCountA: r.itemA.ListingCount,
			MatchKind:     model.MatchExact,
			Category:      r.itemA.Category,
			LastUpdated:   now,
		}
	}

	if p.Gate.ShouldStop() {
		return Result{Kind: gate.KindIncremental, ID: id, Cancelled: true}
	}

	opportunities := make([]model.Opportunity, 0, len(index))
	for _, o := range index {
		opportunities = append(opportunities, o)
	}
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Diff.GreaterThan(opportunities[j].Diff)
	})
	if len(opportunities) > s.MaxOutputItems {
		opportunities = opportunities[:s.MaxOutputItems]
	}

	list := model.OpportunityList{
		Metadata: model.OpportunityListMetadata{TotalCount: len(opportunities), GeneratedAt: now, FilterConfig: s.QualificationKey()},
		Items:    opportunities,
	}
	if err := p.Store.WriteOpportunities(list); err != nil {
		return Result{Kind: gate.KindIncremental, ID: id, Err: err}
	}

	log.Debug().Str("run_id", id).Int("opportunities", len(opportunities)).Msg("incremental analysis complete")
	return Result{Kind: gate.KindIncremental, ID: id, Opportunities: opportunities}
}

func firstExactMatch(items []model.Item, canonical string) (model.Item, bool) {
	for _, it := range items {
		if it.CanonicalName == canonical {
			return it, true
		}
	}
	return model.Item{}, false
}
