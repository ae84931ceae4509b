// Package gate implements the Analysis Gate (spec §4.7): a process-wide
// singleton mutex that allows at most one analysis run at a time and
// coordinates cooperative cancellation. The gate never performs I/O; it
// only tracks state and hands back a snapshot the last-results cache can
// read.
package gate

import (
	"sync"
	"time"

	"github.com/sawpanic/skinmarket/internal/model"
)

// Kind identifies the sort of analysis currently holding the gate.
type Kind string

const (
	KindNone        Kind = "none"
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
	KindStreaming   Kind = "streaming"
	KindManual      Kind = "manual" // reprocess, settings-triggered
)

// Status is an external, read-only observation of the gate (GET /status).
type Status struct {
	IsRunning     bool      `json:"is_running"`
	Kind          Kind      `json:"kind"`
	ID            string    `json:"id"`
	StartTime     time.Time `json:"start_time,omitempty"`
	StopRequested bool      `json:"stop_requested"`
}

// Gate is the single mutex-guarded coordinator. All state changes hold mu;
// mu is never held across I/O, so callers only ever touch it through the
// short methods below.
type Gate struct {
	mu sync.Mutex

	running       bool
	kind          Kind
	id            string
	startTime     time.Time
	stopRequested bool

	lastResults []model.Opportunity
}

// New creates an idle Gate.
func New() *Gate {
	return &Gate{kind: KindNone}
}

// TryStart attempts to acquire the gate for a run of the given kind and id.
// If the gate is idle, it always succeeds. If the gate is held:
//   - force=true displaces the current holder: stop_requested is set so the
//     displaced run observes should_stop() promptly, and this call still
//     returns true, replacing the recorded holder immediately. The displaced
//     pipeline is expected to call Finish with its own (now stale) id, which
//     is a no-op once displaced (see Finish).
//   - force=false returns false without touching state (GATE_BUSY, spec §7).
func (g *Gate) TryStart(kind Kind, id string, force bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		g.running = true
		g.kind = kind
		g.id = id
		g.startTime = time.Now()
		g.stopRequested = false
		return true
	}
	if !force {
		return false
	}
	g.stopRequested = true
	g.running = true
	g.kind = kind
	g.id = id
	g.startTime = time.Now()
	return true
}

// ShouldStop reports whether the currently running pipeline should unwind.
// Pipelines poll this at safe points: page boundaries, batch boundaries,
// and between pipeline phases (spec §5 "Suspension points").
func (g *Gate) ShouldStop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopRequested
}

// Finish releases the gate if id matches the current holder. A mismatched
// id means this caller was displaced by a forced start; the whole call is
// a no-op in that case, including the results update, so a displaced run's
// partial results can never clobber the new holder's last-results cache
// (spec §7 "Any failure leaves the prior list intact"). If id still
// matches and results is non-nil, it atomically replaces the last-results
// cache.
func (g *Gate) Finish(id string, results []model.Opportunity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.id != id {
		return
	}
	g.running = false
	g.kind = KindNone
	g.id = ""
	g.stopRequested = false
	if results != nil {
		g.lastResults = results
	}
}

// ForceStopAll signals cancellation to whatever is currently running
// without starting new work.
func (g *Gate) ForceStopAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.stopRequested = true
	}
}

// Status returns a point-in-time snapshot for external observation.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		IsRunning:     g.running,
		Kind:          g.kind,
		ID:            g.id,
		StartTime:     g.startTime,
		StopRequested: g.stopRequested,
	}
}

// LastResults returns the last successfully committed opportunity list.
// Used by the Streaming Pipeline's first frame (cached_data).
func (g *Gate) LastResults() []model.Opportunity {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.Opportunity, len(g.lastResults))
	copy(out, g.lastResults)
	return out
}

// SetLastResults replaces the last-results cache directly, used by the
// Incremental Pipeline and Reprocess which commit results outside of
// Finish's id-matching path (they always hold the gate when calling this).
func (g *Gate) SetLastResults(results []model.Opportunity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastResults = results
}
