package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/skinmarket/internal/filter"
	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/matcher"
	"github.com/sawpanic/skinmarket/internal/model"
)

// RunFull executes the Full-Update Pipeline (spec §4.8). force=true always
// displaces a running analysis, matching the scheduler's hourly tick and
// any administrative force-full trigger.
func (p *Pipelines) RunFull(ctx context.Context, force bool) (Result, error) {
	id := newRunID()
	if !p.Gate.TryStart(gate.KindFull, id, force) {
		return Result{}, ErrGateBusy
	}

	timer := p.startTimer(gate.KindFull)
	result := p.runFullLocked(ctx, id)
	p.Gate.Finish(id, resultsOrNil(result))
	p.observeResult(timer, gate.KindFull, result)
	return result, result.Err
}

func resultsOrNil(r Result) []model.Opportunity {
	if r.Err != nil || r.Cancelled {
		return nil
	}
	return r.Opportunities
}

func (p *Pipelines) runFullLocked(ctx context.Context, id string) Result {
	s := p.Settings.Get()

	type fetchOutcome struct {
		snap model.Snapshot
		err  error
	}
	chA := make(chan fetchOutcome, 1)
	chB := make(chan fetchOutcome, 1)

	go func() {
		snap, err := p.ClientA.FetchAllPages(ctx, model.GeneratorConfig{PageSize: s.PageSizeA, MaxPages: s.MaxPagesA})
		chA <- fetchOutcome{snap, err}
	}()
	go func() {
		snap, err := p.ClientB.FetchAllPages(ctx, model.GeneratorConfig{PageSize: s.PageSizeB, MaxPages: s.MaxPagesB})
		chB <- fetchOutcome{snap, err}
	}()

	outcomeA := <-chA
	outcomeB := <-chB

	if outcomeA.err != nil {
		return Result{Kind: gate.KindFull, ID: id, Err: fmt.Errorf("fetch platform A: %w", outcomeA.err)}
	}
	if outcomeB.err != nil {
		return Result{Kind: gate.KindFull, ID: id, Err: fmt.Errorf("fetch platform B: %w", outcomeB.err)}
	}

	if p.Gate.ShouldStop() {
		return Result{Kind: gate.KindFull, ID: id, Cancelled: true}
	}

	if err := p.Store.WriteSnapshot(outcomeA.snap); err != nil {
		return Result{Kind: gate.KindFull, ID: id, Err: fmt.Errorf("persist snapshot A: %w", err)}
	}
	if err := p.Store.WriteSnapshot(outcomeB.snap); err != nil {
		return Result{Kind: gate.KindFull, ID: id, Err: fmt.Errorf("persist snapshot B: %w", err)}
	}

	if p.Gate.ShouldStop() {
		return Result{Kind: gate.KindFull, ID: id, Cancelled: true}
	}

	opportunities := p.matchAndFilter(outcomeA.snap, outcomeB.snap)

	if p.Gate.ShouldStop() {
		return Result{Kind: gate.KindFull, ID: id, Cancelled: true}
	}

	now := time.Now()
	list := model.OpportunityList{
		Metadata: model.OpportunityListMetadata{TotalCount: len(opportunities), GeneratedAt: now, FilterConfig: s.QualificationKey()},
		Items:    opportunities,
	}
	if err := p.Store.WriteOpportunities(list); err != nil {
		return Result{Kind: gate.KindFull, ID: id, Err: fmt.Errorf("persist opportunities: %w", err)}
	}

	if err := p.HashCache.RebuildFromOpportunities(opportunities, s.IncrementalCacheSize, now); err != nil {
		return Result{Kind: gate.KindFull, ID: id, Err: fmt.Errorf("rebuild hash-name cache: %w", err)}
	}

	log.Info().Str("run_id", id).Int("opportunities", len(opportunities)).Msg("full analysis complete")
	return Result{Kind: gate.KindFull, ID: id, Opportunities: opportunities}
}

// matchAndFilter runs the Matcher (§4.4) then the Filter & Ranker (§4.5)
// against two snapshots; shared by the full pipeline and Reprocess (§4.12).
func (p *Pipelines) matchAndFilter(snapA, snapB model.Snapshot) []model.Opportunity {
	idx := matcher.BuildIndex(snapB)
	matches, counters := matcher.MatchAll(snapA, idx)
	log.Debug().Int("exact", counters.Exact).Int("normalized", counters.Normalized).Int("none", counters.None).Msg("matcher counters")
	if p.Metrics != nil {
		p.Metrics.RecordMatcherCounters(counters.Exact, counters.Normalized, counters.None)
	}

	return filter.Apply(matches, p.Settings.Get(), time.Now())
}
