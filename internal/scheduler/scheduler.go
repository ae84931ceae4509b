// Package scheduler drives the Scheduler (spec §4.11): two independent
// periodic loops — hourly full, per-minute incremental — plus on-demand
// force triggers, all terminating promptly on shutdown without blocking
// on I/O.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/skinmarket/internal/hashcache"
	"github.com/sawpanic/skinmarket/internal/pipeline"
	"github.com/sawpanic/skinmarket/internal/settings"
)

// Status reports the scheduler's liveness for GET /status.
type Status struct {
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at"`
	LastFullRun time.Time `json:"last_full_run"`
	LastIncRun  time.Time `json:"last_incremental_run"`
}

// Scheduler owns the two periodic loops. It holds no gate-bypassing
// authority of its own: every tick and every force trigger goes through
// Pipelines, which in turn goes through the Analysis Gate.
type Scheduler struct {
	pipelines *pipeline.Pipelines
	hashCache *hashcache.Cache
	settings  *settings.Store

	mu          sync.RWMutex
	running     bool
	startedAt   time.Time
	lastFullRun time.Time
	lastIncRun  time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler bound to the given Pipelines.
func New(p *pipeline.Pipelines, hashCache *hashcache.Cache, settingsStore *settings.Store) *Scheduler {
	return &Scheduler{pipelines: p, hashCache: hashCache, settings: settingsStore}
}

// Start launches both loops. It returns immediately; Stop blocks until
// both loops have exited.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(2)
	go s.runFullLoop(loopCtx)
	go s.runIncrementalLoop(loopCtx)

	if s.isFullRefreshDue() {
		go s.triggerFull(loopCtx, true)
	}
}

// Stop signals both loops to exit and waits for them, without performing
// any I/O itself (spec §4.11 "must not block on I/O during shutdown").
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// ForceFull triggers a full run subject to the Analysis Gate (force=true
// per spec §4.8 step 1, so it always displaces a running analysis).
func (s *Scheduler) ForceFull(ctx context.Context) error {
	_, err := s.pipelines.RunFull(ctx, true)
	if err == nil {
		s.recordFull()
	}
	return err
}

// ForceIncremental triggers an incremental run subject to the gate
// (force=false; skipped if any analysis is active, per spec §4.11).
func (s *Scheduler) ForceIncremental(ctx context.Context) error {
	_, err := s.pipelines.RunIncremental(ctx)
	if err == nil {
		s.recordIncremental()
	}
	return err
}

// Status returns a point-in-time snapshot for external observation.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:     s.running,
		StartedAt:   s.startedAt,
		LastFullRun: s.lastFullRun,
		LastIncRun:  s.lastIncRun,
	}
}

func (s *Scheduler) runFullLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.settings.Get().FullInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.triggerFull(ctx, true)
			if newInterval := s.settings.Get().FullInterval; newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		}
	}
}

func (s *Scheduler) runIncrementalLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.settings.Get().IncrementalInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.pipelines.RunIncremental(ctx); err != nil {
				log.Debug().Err(err).Msg("incremental tick skipped")
			} else {
				s.recordIncremental()
			}
			if newInterval := s.settings.Get().IncrementalInterval; newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		}
	}
}

func (s *Scheduler) triggerFull(ctx context.Context, force bool) {
	if _, err := s.pipelines.RunFull(ctx, force); err != nil {
		log.Warn().Err(err).Msg("full analysis run failed")
		return
	}
	s.recordFull()
}

func (s *Scheduler) isFullRefreshDue() bool {
	last := s.hashCache.LastFullUpdate()
	if last.IsZero() {
		return true
	}
	return time.Since(last) >= s.settings.Get().FullInterval
}

func (s *Scheduler) recordFull() {
	s.mu.Lock()
	s.lastFullRun = time.Now()
	s.mu.Unlock()
}

func (s *Scheduler) recordIncremental() {
	s.mu.Lock()
	s.lastIncRun = time.Now()
	s.mu.Unlock()
}
