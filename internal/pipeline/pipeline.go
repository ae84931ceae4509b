// Package pipeline implements the Full-Update (C8), Incremental (C9),
// Streaming (C10), and Settings-driven Reprocess (C12) pipelines. Every
// entry point here is gate-guarded: callers acquire the Analysis Gate,
// run to completion or until ShouldStop fires, and always release it.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/hashcache"
	"github.com/sawpanic/skinmarket/internal/marketclient"
	"github.com/sawpanic/skinmarket/internal/metrics"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/settings"
	"github.com/sawpanic/skinmarket/internal/store"
)

// ErrGateBusy is returned when a non-forced run could not acquire the
// Analysis Gate because another analysis is already in flight.
var ErrGateBusy = errors.New("analysis gate busy")

// MarketClient is the subset of marketclient.Client the pipelines depend
// on, kept as an interface so Full/Incremental can be tested against stubs
// without standing up HTTP servers.
type MarketClient interface {
	FetchAllPages(ctx context.Context, gen model.GeneratorConfig) (model.Snapshot, error)
	Search(ctx context.Context, keyword string) ([]model.Item, error)
}

// Pipelines wires the Analysis Gate, Data Store, Hash-Name Cache, and
// Settings Store to the two Marketplace Clients. It is the engine's
// analysis-facing surface; internal/engine owns one of these.
type Pipelines struct {
	Gate      *gate.Gate
	Store     *store.Store
	HashCache *hashcache.Cache
	Settings  *settings.Store
	ClientA   MarketClient
	ClientB   MarketClient

	// IncrementalConcurrency bounds the worker pool fanning out over the
	// Hash-Name Cache (spec §4.9 step 3, default 5).
	IncrementalConcurrency int

	// Metrics is optional: nil leaves every pipeline fully functional
	// without recording anything, which keeps pipeline_test.go's stub
	// construction free of a metrics dependency.
	Metrics *metrics.Registry
}

// observeResult records a completed run's duration, outcome, and the
// Analysis Gate's active-kind gauge. No-op when Metrics is nil.
func (p *Pipelines) observeResult(timer *metrics.Timer, kind gate.Kind, r Result) {
	if p.Metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case r.Err != nil:
		outcome = "error"
		p.Metrics.RecordPipelineError(string(kind), errorClassOf(r.Err))
	case r.Cancelled:
		outcome = "cancelled"
	}
	if timer != nil {
		timer.Stop(outcome)
	}
	p.Metrics.SetGateActive(string(p.Gate.Status().Kind))
	if outcome == "success" {
		p.Metrics.SetOpportunitiesCurrent(len(r.Opportunities))
	}
}

// errorClassOf reports the spec §7 error kind behind err, falling back to
// a generic label for errors that never passed through a Marketplace
// Client (a store write failure, say).
func errorClassOf(err error) string {
	var f *marketclient.Failure
	if errors.As(err, &f) {
		return string(f.Class)
	}
	return "INTERNAL"
}

func (p *Pipelines) startTimer(kind gate.Kind) *metrics.Timer {
	if p.Metrics == nil {
		return nil
	}
	return p.Metrics.StartTimer(string(kind))
}

// Result summarizes one completed analysis run for logging/status.
type Result struct {
	Kind          gate.Kind
	ID            string
	Opportunities []model.Opportunity
	Cancelled     bool
	Err           error
}

func newRunID() string { return uuid.NewString() }
