package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/hashcache"
	"github.com/sawpanic/skinmarket/internal/metrics"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/pipeline"
	"github.com/sawpanic/skinmarket/internal/scheduler"
	"github.com/sawpanic/skinmarket/internal/settings"
	"github.com/sawpanic/skinmarket/internal/store"
)

type nopMarketClient struct{}

func (c *nopMarketClient) FetchAllPages(ctx context.Context, gen model.GeneratorConfig) (model.Snapshot, error) {
	return model.Snapshot{}, nil
}

func (c *nopMarketClient) Search(ctx context.Context, keyword string) ([]model.Item, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	dir := t.TempDir()
	s := settings.Default()
	s.DiffMin = decimal.NewFromInt(1)
	s.DiffMax = decimal.NewFromInt(1000)
	s.PriceMinA = decimal.NewFromInt(1)
	s.PriceMaxA = decimal.NewFromInt(100000)

	settingsStore := settings.NewStore(s)

	p := &pipeline.Pipelines{
		Gate:      gate.New(),
		Store:     store.New(dir),
		HashCache: hashcache.New(dir + "/hashname_cache.bin"),
		Settings:  settingsStore,
		ClientA:   &nopMarketClient{},
		ClientB:   &nopMarketClient{},
	}
	sched := scheduler.New(p, p.HashCache, settingsStore)
	reg := metrics.New()

	return NewServer(Config{Host: "127.0.0.1", Port: 0}, p, sched, settingsStore, reg)
}

func TestStatusEndpointReturnsGateAndSchedulerState(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, gate.KindNone, body.Gate.Kind)
}

func TestOpportunitiesEndpointReturnsEmptyListWhenStoreEmpty(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/opportunities", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body OpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Items)
}

func TestForceFullEndpointAccepts(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("POST", "/force-full", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestForceIncrementalConflictsWhenGateHeld(t *testing.T) {
	srv := newTestServer(t)
	srv.handlers.pipelines.Gate.TryStart(gate.KindFull, "other", false)

	req := httptest.NewRequest("POST", "/force-incremental", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSettingsEndpointRejectsInvalidConfig(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"diff_min":"10","diff_max":"1"}`)
	req := httptest.NewRequest("POST", "/settings", body)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSettingsEndpointFallsBackToIncrementalWithoutSnapshots(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"diff_min":"1","diff_max":"1000","price_min_a":"1","price_max_a":"100000","listing_count_min":0,"max_output_items":300,"full_interval":3600000000000,"incremental_interval":60000000000,"incremental_cache_size":1000,"page_size_a":80,"page_size_b":100,"max_pages_a":10,"max_pages_b":10}`)
	req := httptest.NewRequest("POST", "/settings", body)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(gate.KindIncremental), resp.RunKind)
}

func TestSettingsEndpointInvalidatesHashCacheOnQualificationChange(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.handlers.pipelines.HashCache.RebuildFromOpportunities(
		[]model.Opportunity{{CanonicalName: "AK-47 | Redline", Diff: decimal.NewFromInt(5)}},
		100, time.Now(),
	))
	require.NotEmpty(t, srv.handlers.pipelines.HashCache.Snapshot().Names)

	// listing_count_min changes from the default (1) to 0, which per spec
	// §9 alters which items can qualify at all, so the cache must clear.
	body := strings.NewReader(`{"diff_min":"1","diff_max":"1000","price_min_a":"1","price_max_a":"100000","listing_count_min":0,"max_output_items":300,"full_interval":3600000000000,"incremental_interval":60000000000,"incremental_cache_size":1000,"page_size_a":80,"page_size_b":100,"max_pages_a":10,"max_pages_b":10}`)
	req := httptest.NewRequest("POST", "/settings", body)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, srv.handlers.pipelines.HashCache.Snapshot().Names)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundReturnsErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "endpoint_not_found", body.Code)
}
