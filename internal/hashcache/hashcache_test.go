package hashcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/model"
)

func opp(name string, diff int64) model.Opportunity {
	return model.Opportunity{CanonicalName: name, Diff: decimal.NewFromInt(diff)}
}

func TestRebuildTruncatesByDescendingDiff(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "hashname_cache.bin"))
	opps := []model.Opportunity{opp("Low", 3), opp("High", 10), opp("Mid", 5)}

	require.NoError(t, c.RebuildFromOpportunities(opps, 2, time.Now()))

	snap := c.Snapshot()
	assert.Equal(t, []string{"High", "Mid"}, snap.Names)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	require.NoError(t, c.Load())
	assert.Empty(t, c.Snapshot().Names)
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashname_cache.bin")
	c := New(path)
	now := time.Now().Truncate(time.Second)
	require.NoError(t, c.RebuildFromOpportunities([]model.Opportunity{opp("X", 4)}, 100, now))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, []string{"X"}, reloaded.Snapshot().Names)
	assert.True(t, reloaded.LastFullUpdate().Equal(now))
}

func TestInvalidateClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashname_cache.bin")
	c := New(path)
	require.NoError(t, c.RebuildFromOpportunities([]model.Opportunity{opp("X", 4)}, 100, time.Now()))
	require.NoError(t, c.Invalidate())
	assert.Empty(t, c.Snapshot().Names)
}
