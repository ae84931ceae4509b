package pipeline

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/hashcache"
	"github.com/sawpanic/skinmarket/internal/metrics"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/settings"
	"github.com/sawpanic/skinmarket/internal/store"
)

type stubClient struct {
	snap       model.Snapshot
	err        error
	searchResp map[string][]model.Item
}

func (c *stubClient) FetchAllPages(ctx context.Context, gen model.GeneratorConfig) (model.Snapshot, error) {
	return c.snap, c.err
}

func (c *stubClient) Search(ctx context.Context, keyword string) ([]model.Item, error) {
	return c.searchResp[keyword], nil
}

func newTestPipelines(t *testing.T, clientA, clientB MarketClient) *Pipelines {
	dir := t.TempDir()
	s := settings.Default()
	s.DiffMin = decimal.NewFromInt(1)
	s.DiffMax = decimal.NewFromInt(1000)
	s.PriceMinA = decimal.NewFromInt(1)
	s.PriceMaxA = decimal.NewFromInt(100000)
	s.ListingCountMin = 0

	return &Pipelines{
		Gate:      gate.New(),
		Store:     store.New(dir),
		HashCache: hashcache.New(dir + "/hashname_cache.bin"),
		Settings:  settings.NewStore(s),
		ClientA:   clientA,
		ClientB:   clientB,
	}
}

func itemA(name string, price int64, listing int) model.Item {
	return model.Item{Platform: model.PlatformA, CanonicalName: name, DisplayName: name, Price: decimal.NewFromInt(price), ListingCount: listing}
}

func itemB(name string, price int64) model.Item {
	return model.Item{Platform: model.PlatformB, CanonicalName: name, DisplayName: name, Price: decimal.NewFromInt(price)}
}

func TestRunFullPersistsSnapshotsAndOpportunities(t *testing.T) {
	clientA := &stubClient{snap: model.NewSnapshot(model.PlatformA, model.GeneratorConfig{}, []model.Item{itemA("X", 100, 5)}, time.Now())}
	clientB := &stubClient{snap: model.NewSnapshot(model.PlatformB, model.GeneratorConfig{}, []model.Item{itemB("X", 120)}, time.Now())}
	p := newTestPipelines(t, clientA, clientB)

	result, err := p.RunFull(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, result.Opportunities, 1)
	assert.Equal(t, "X", result.Opportunities[0].CanonicalName)

	cache := p.HashCache.Snapshot()
	assert.Contains(t, cache.Names, "X")

	list, err := p.Store.ReadOpportunities()
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestRunFullAbortsOnPartialFetchFailure(t *testing.T) {
	clientA := &stubClient{err: errors.New("platform A down")}
	clientB := &stubClient{snap: model.NewSnapshot(model.PlatformB, model.GeneratorConfig{}, nil, time.Now())}
	p := newTestPipelines(t, clientA, clientB)

	_, err := p.RunFull(context.Background(), true)
	require.Error(t, err)

	list, err := p.Store.ReadOpportunities()
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestRunFullWithoutForceFailsWhenGateBusy(t *testing.T) {
	p := newTestPipelines(t, &stubClient{}, &stubClient{})
	p.Gate.TryStart(gate.KindFull, "other", false)

	_, err := p.RunFull(context.Background(), false)
	assert.ErrorIs(t, err, ErrGateBusy)
}

func TestRunIncrementalSkipsWhenHashCacheEmpty(t *testing.T) {
	p := newTestPipelines(t, &stubClient{}, &stubClient{})
	result, err := p.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Opportunities)
}

func TestRunIncrementalSkipsWhenGateBusy(t *testing.T) {
	p := newTestPipelines(t, &stubClient{}, &stubClient{})
	p.Gate.TryStart(gate.KindFull, "other", false)

	_, err := p.RunIncremental(context.Background())
	assert.ErrorIs(t, err, ErrGateBusy)
}

func TestRunIncrementalProducesOpportunityFromSearch(t *testing.T) {
	clientA := &stubClient{searchResp: map[string][]model.Item{"X": {itemA("X", 100, 5)}}}
	clientB := &stubClient{searchResp: map[string][]model.Item{"X": {itemB("X", 120)}}}
	p := newTestPipelines(t, clientA, clientB)
	require.NoError(t, p.HashCache.RebuildFromOpportunities([]model.Opportunity{{CanonicalName: "X", Diff: decimal.NewFromInt(20)}}, 10, time.Now()))

	result, err := p.RunIncremental(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Opportunities, 1)
	assert.Equal(t, "X", result.Opportunities[0].CanonicalName)
}

func TestReprocessFailsWithoutSnapshots(t *testing.T) {
	p := newTestPipelines(t, &stubClient{}, &stubClient{})
	_, err := p.Reprocess(context.Background())
	assert.Error(t, err)
}

func TestReprocessUsesOnDiskSnapshotsWithNoNetworkCall(t *testing.T) {
	p := newTestPipelines(t, &stubClient{}, &stubClient{})
	require.NoError(t, p.Store.WriteSnapshot(model.NewSnapshot(model.PlatformA, model.GeneratorConfig{}, []model.Item{itemA("X", 100, 5)}, time.Now())))
	require.NoError(t, p.Store.WriteSnapshot(model.NewSnapshot(model.PlatformB, model.GeneratorConfig{}, []model.Item{itemB("X", 120)}, time.Now())))

	result, err := p.Reprocess(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Opportunities, 1)
}

func TestStreamEmitsCachedDataThenTerminalFrame(t *testing.T) {
	clientA := &stubClient{snap: model.NewSnapshot(model.PlatformA, model.GeneratorConfig{}, []model.Item{itemA("X", 100, 5)}, time.Now())}
	clientB := &stubClient{snap: model.NewSnapshot(model.PlatformB, model.GeneratorConfig{}, []model.Item{itemB("X", 120)}, time.Now())}
	p := newTestPipelines(t, clientA, clientB)

	ch, err := p.Stream(context.Background(), true)
	require.NoError(t, err)

	var frames []Envelope
	for env := range ch {
		frames = append(frames, env)
	}

	require.NotEmpty(t, frames)
	assert.Equal(t, EnvelopeCachedData, frames[0].Type)
	assert.Equal(t, EnvelopeCompleted, frames[len(frames)-1].Type)
}

func TestRunFullRecordsMetricsWhenRegistryAttached(t *testing.T) {
	clientA := &stubClient{snap: model.NewSnapshot(model.PlatformA, model.GeneratorConfig{}, []model.Item{itemA("X", 100, 5)}, time.Now())}
	clientB := &stubClient{snap: model.NewSnapshot(model.PlatformB, model.GeneratorConfig{}, []model.Item{itemB("X", 120)}, time.Now())}
	p := newTestPipelines(t, clientA, clientB)
	p.Metrics = metrics.New()

	_, err := p.RunFull(context.Background(), true)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	p.Metrics.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	assert.Contains(t, body, "skinmonitor_matcher_exact_total 1")
	assert.Contains(t, body, `skinmonitor_pipeline_runs_total{kind="full",result="success"} 1`)
}

func TestStreamSecondSubscriberRejectedWithoutForce(t *testing.T) {
	p := newTestPipelines(t, &stubClient{}, &stubClient{})
	p.Gate.TryStart(gate.KindStreaming, "other", false)

	_, err := p.Stream(context.Background(), false)
	assert.ErrorIs(t, err, ErrGateBusy)
}
