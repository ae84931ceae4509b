package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/hashcache"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/pipeline"
	"github.com/sawpanic/skinmarket/internal/settings"
	"github.com/sawpanic/skinmarket/internal/store"
)

type stubClient struct {
	snap model.Snapshot
	err  error
	hits int32
}

func (c *stubClient) FetchAllPages(ctx context.Context, gen model.GeneratorConfig) (model.Snapshot, error) {
	atomic.AddInt32(&c.hits, 1)
	return c.snap, c.err
}

func (c *stubClient) Search(ctx context.Context, keyword string) ([]model.Item, error) {
	return nil, nil
}

func newTestSetup(t *testing.T, fullInterval, incInterval time.Duration) (*Scheduler, *stubClient, *stubClient) {
	dir := t.TempDir()
	s := settings.Default()
	s.FullInterval = fullInterval
	s.IncrementalInterval = incInterval
	s.DiffMin = decimal.NewFromInt(1)
	s.DiffMax = decimal.NewFromInt(1000)
	s.PriceMinA = decimal.NewFromInt(1)
	s.PriceMaxA = decimal.NewFromInt(100000)

	clientA := &stubClient{snap: model.NewSnapshot(model.PlatformA, model.GeneratorConfig{}, nil, time.Now())}
	clientB := &stubClient{snap: model.NewSnapshot(model.PlatformB, model.GeneratorConfig{}, nil, time.Now())}

	p := &pipeline.Pipelines{
		Gate:      gate.New(),
		Store:     store.New(dir),
		HashCache: hashcache.New(filepath.Join(dir, "hashname_cache.bin")),
		Settings:  settings.NewStore(s),
		ClientA:   clientA,
		ClientB:   clientB,
	}

	return New(p, p.HashCache, p.Settings), clientA, clientB
}

func TestStartTriggersImmediateFullRunWhenCacheEmpty(t *testing.T) {
	sched, clientA, _ := newTestSetup(t, time.Hour, time.Hour)
	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&clientA.hits) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestStartSkipsImmediateFullRunWhenRecentlyUpdated(t *testing.T) {
	sched, clientA, _ := newTestSetup(t, time.Hour, time.Hour)
	require.NoError(t, sched.hashCache.RebuildFromOpportunities(nil, 10, time.Now()))

	sched.Start(context.Background())
	defer sched.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&clientA.hits))
}

func TestStopTerminatesBothLoopsPromptly(t *testing.T) {
	sched, _, _ := newTestSetup(t, time.Hour, time.Hour)
	require.NoError(t, sched.hashCache.RebuildFromOpportunities(nil, 10, time.Now()))
	sched.Start(context.Background())

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
	assert.False(t, sched.Status().Running)
}

func TestForceFullRunsImmediatelyAndRecordsTimestamp(t *testing.T) {
	sched, clientA, _ := newTestSetup(t, time.Hour, time.Hour)
	require.NoError(t, sched.ForceFull(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&clientA.hits))
	assert.False(t, sched.Status().LastFullRun.IsZero())
}

func TestForceIncrementalIsNoopWhenHashCacheEmpty(t *testing.T) {
	sched, _, _ := newTestSetup(t, time.Hour, time.Hour)
	require.NoError(t, sched.ForceIncremental(context.Background()))
	assert.False(t, sched.Status().LastIncRun.IsZero())
}

func TestRunIncrementalLoopTicksRepeatedly(t *testing.T) {
	sched, _, _ := newTestSetup(t, time.Hour, 10*time.Millisecond)
	require.NoError(t, sched.hashCache.RebuildFromOpportunities(nil, 10, time.Now()))
	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return !sched.Status().LastIncRun.IsZero()
	}, time.Second, 5*time.Millisecond)
}
