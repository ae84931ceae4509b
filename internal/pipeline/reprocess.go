package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/model"
)

// Reprocess re-runs the Matcher and Filter & Ranker against the two most
// recent on-disk snapshots with no network I/O (spec §4.12), triggered
// after a Settings mutation that changes a filter. If no snapshots exist
// yet, the caller should fall back to RunIncremental instead — Reprocess
// itself returns an error rather than silently enqueueing a Full run.
func (p *Pipelines) Reprocess(ctx context.Context) (Result, error) {
	id := newRunID()
	if !p.Gate.TryStart(gate.KindManual, id, false) {
		return Result{}, ErrGateBusy
	}

	timer := p.startTimer(gate.KindManual)
	result := p.reprocessLocked(ctx, id)
	p.Gate.Finish(id, resultsOrNil(result))
	p.observeResult(timer, gate.KindManual, result)
	return result, result.Err
}

// HasSnapshots reports whether both platform snapshots exist, used by
// callers (Settings HTTP handler) to decide between Reprocess and a
// fallback Incremental run.
func (p *Pipelines) HasSnapshots() (bool, error) {
	_, okA, err := p.Store.ReadSnapshot(model.PlatformA)
	if err != nil {
		return false, err
	}
	_, okB, err := p.Store.ReadSnapshot(model.PlatformB)
	if err != nil {
		return false, err
	}
	return okA && okB, nil
}

func (p *Pipelines) reprocessLocked(ctx context.Context, id string) Result {
	snapA, okA, err := p.Store.ReadSnapshot(model.PlatformA)
	if err != nil {
		return Result{Kind: gate.KindManual, ID: id, Err: fmt.Errorf("read snapshot A: %w", err)}
	}
	snapB, okB, err := p.Store.ReadSnapshot(model.PlatformB)
	if err != nil {
		return Result{Kind: gate.KindManual, ID: id, Err: fmt.Errorf("read snapshot B: %w", err)}
	}
	if !okA || !okB {
		return Result{Kind: gate.KindManual, ID: id, Err: fmt.Errorf("no snapshots on disk yet")}
	}

	if p.Gate.ShouldStop() {
		return Result{Kind: gate.KindManual, ID: id, Cancelled: true}
	}

	opportunities := p.matchAndFilter(snapA, snapB)
	s := p.Settings.Get()
	now := time.Now()
	list := model.OpportunityList{
		Metadata: model.OpportunityListMetadata{TotalCount: len(opportunities), GeneratedAt: now, FilterConfig: s.QualificationKey()},
		Items:    opportunities,
	}
	if err := p.Store.WriteOpportunities(list); err != nil {
		return Result{Kind: gate.KindManual, ID: id, Err: fmt.Errorf("persist opportunities: %w", err)}
	}

	log.Info().Str("run_id", id).Int("opportunities", len(opportunities)).Msg("reprocess complete")
	return Result{Kind: gate.KindManual, ID: id, Opportunities: opportunities}
}
