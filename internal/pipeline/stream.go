package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/metrics"
	"github.com/sawpanic/skinmarket/internal/model"
)

// EnvelopeType tags each frame in the Streaming Pipeline (spec §4.10).
type EnvelopeType string

const (
	EnvelopeCachedData         EnvelopeType = "cached_data"
	EnvelopeProgress           EnvelopeType = "progress"
	EnvelopeMappingReady       EnvelopeType = "mapping_ready"
	EnvelopeIncrementalResults EnvelopeType = "incremental_results"
	EnvelopeCompleted          EnvelopeType = "completed"
	EnvelopeCancelled          EnvelopeType = "cancelled"
	EnvelopeError              EnvelopeType = "error"
)

// Envelope is one frame of the stream, per the ordering guarantee in spec
// §4.10: cached_data first, then any number of progress/mapping_ready/
// incremental_results, then exactly one terminal frame.
type Envelope struct {
	Type          EnvelopeType        `json:"type"`
	Phase         string              `json:"phase,omitempty"`
	Percent       int                 `json:"percent,omitempty"`
	Sizes         *MappingSizes       `json:"sizes,omitempty"`
	Opportunities []model.Opportunity `json:"opportunities,omitempty"`
	TotalCount    int                 `json:"total_count,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// MappingSizes carries the Matcher's index sizes for mapping_ready.
type MappingSizes struct {
	SnapshotA int `json:"snapshot_a"`
	SnapshotB int `json:"snapshot_b"`
}

// Stream runs a single Full-Update analysis and emits ordered envelopes.
// Without force, only one subscriber may stream at a time: attempting to
// start a second stream while one is active fails to acquire the gate and
// returns ErrGateBusy immediately, before the channel is created. With
// force, the active analysis is displaced instead.
func (p *Pipelines) Stream(ctx context.Context, force bool) (<-chan Envelope, error) {
	id := newRunID()
	if !p.Gate.TryStart(gate.KindStreaming, id, force) {
		return nil, ErrGateBusy
	}

	out := make(chan Envelope, 16)
	timer := p.startTimer(gate.KindStreaming)
	go p.runStreamLocked(ctx, id, timer, out)
	return out, nil
}

func (p *Pipelines) runStreamLocked(ctx context.Context, id string, timer *metrics.Timer, out chan<- Envelope) {
	defer close(out)

	out <- Envelope{Type: EnvelopeCachedData, Opportunities: p.Gate.LastResults()}

	s := p.Settings.Get()
	out <- Envelope{Type: EnvelopeProgress, Phase: "fetching_platform_a", Percent: 5}
	out <- Envelope{Type: EnvelopeProgress, Phase: "fetching_platform_b", Percent: 5}

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

	finish := func(opportunities []model.Opportunity, err error, cancelled bool) {
		p.Gate.Finish(id, opportunities)
		p.observeResult(timer, gate.KindStreaming, Result{Kind: gate.KindStreaming, ID: id, Opportunities: opportunities, Cancelled: cancelled, Err: err})
	}

	if outcomeA.err != nil {
		out <- Envelope{Type: EnvelopeError, Message: fmt.Sprintf("fetch platform A: %v", outcomeA.err)}
		finish(nil, outcomeA.err, false)
		return
	}
	if outcomeB.err != nil {
		out <- Envelope{Type: EnvelopeError, Message: fmt.Sprintf("fetch platform B: %v", outcomeB.err)}
		finish(nil, outcomeB.err, false)
		return
	}

	if p.Gate.ShouldStop() {
		out <- Envelope{Type: EnvelopeCancelled}
		finish(nil, nil, true)
		return
	}

	out <- Envelope{Type: EnvelopeProgress, Phase: "persisting_snapshots", Percent: 50}
	if err := p.Store.WriteSnapshot(outcomeA.snap); err != nil {
		out <- Envelope{Type: EnvelopeError, Message: err.Error()}
		finish(nil, err, false)
		return
	}
	if err := p.Store.WriteSnapshot(outcomeB.snap); err != nil {
		out <- Envelope{Type: EnvelopeError, Message: err.Error()}
		finish(nil, err, false)
		return
	}

	out <- Envelope{Type: EnvelopeMappingReady, Sizes: &MappingSizes{SnapshotA: len(outcomeA.snap.Items), SnapshotB: len(outcomeB.snap.Items)}}

	if p.Gate.ShouldStop() {
		out <- Envelope{Type: EnvelopeCancelled}
		finish(nil, nil, true)
		return
	}

	opportunities := p.matchAndFilter(outcomeA.snap, outcomeB.snap)
	out <- Envelope{Type: EnvelopeIncrementalResults, Opportunities: opportunities, Percent: 90}

	if p.Gate.ShouldStop() {
		out <- Envelope{Type: EnvelopeCancelled}
		finish(nil, nil, true)
		return
	}

	now := time.Now()
	list := model.OpportunityList{
		Metadata: model.OpportunityListMetadata{TotalCount: len(opportunities), GeneratedAt: now, FilterConfig: s.QualificationKey()},
		Items:    opportunities,
	}
	if err := p.Store.WriteOpportunities(list); err != nil {
		out <- Envelope{Type: EnvelopeError, Message: err.Error()}
		finish(nil, err, false)
		return
	}
	if err := p.HashCache.RebuildFromOpportunities(opportunities, s.IncrementalCacheSize, now); err != nil {
		out <- Envelope{Type: EnvelopeError, Message: err.Error()}
		finish(nil, err, false)
		return
	}

	out <- Envelope{Type: EnvelopeCompleted, Opportunities: opportunities, TotalCount: len(opportunities), GeneratedAt: now}
	finish(opportunities, nil, false)
}
