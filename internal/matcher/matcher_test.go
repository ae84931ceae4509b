package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/model"
)

func itemB(canonical string, price int64) model.Item {
	return model.Item{Platform: model.PlatformB, CanonicalName: canonical, Price: decimal.NewFromInt(price)}
}

func itemA(canonical string) model.Item {
	return model.Item{Platform: model.PlatformA, CanonicalName: canonical, CapturedAt: time.Now()}
}

func TestBuildIndexRejectsNonPositiveAndKeepsLowestDuplicate(t *testing.T) {
	snap := model.Snapshot{Items: []model.Item{
		itemB("X", 100),
		itemB("X", 90),
		itemB("Y", 0),
		itemB("Z", -5),
	}}
	idx := BuildIndex(snap)

	price, kind, ok := idx.Probe("X")
	require.True(t, ok)
	assert.Equal(t, model.MatchExact, kind)
	assert.True(t, price.Equal(decimal.NewFromInt(90)))

	_, _, ok = idx.Probe("Y")
	assert.False(t, ok)
	_, _, ok = idx.Probe("Z")
	assert.False(t, ok)
}

func TestProbeExactBeforeNormalized(t *testing.T) {
	snap := model.Snapshot{Items: []model.Item{itemB("AK-47 (Redline)", 50)}}
	idx := BuildIndex(snap)

	_, kind, ok := idx.Probe("AK-47 (Redline)")
	require.True(t, ok)
	assert.Equal(t, model.MatchExact, kind)
}

func TestProbeNormalizedFoldsFullWidthPunctuationAndWhitespace(t *testing.T) {
	snap := model.Snapshot{Items: []model.Item{itemB("AK-47 （Redline）", 50)}}
	idx := BuildIndex(snap)

	price, kind, ok := idx.Probe("AK-47  (Redline)  ")
	require.True(t, ok)
	assert.Equal(t, model.MatchNormalized, kind)
	assert.True(t, price.Equal(decimal.NewFromInt(50)))
}

func TestProbeNoMatch(t *testing.T) {
	snap := model.Snapshot{Items: []model.Item{itemB("X", 50)}}
	idx := BuildIndex(snap)

	_, kind, ok := idx.Probe("Y")
	assert.False(t, ok)
	assert.Equal(t, model.MatchNone, kind)
}

func TestMatchAllCounters(t *testing.T) {
	snapB := model.Snapshot{Items: []model.Item{itemB("X", 50), itemB("Y （1）", 60)}}
	idx := BuildIndex(snapB)

	snapA := model.Snapshot{Items: []model.Item{
		itemA("X"),       // exact
		itemA("Y (1)"),   // normalized
		itemA("Unknown"), // none
	}}

	matches, counters := MatchAll(snapA, idx)
	require.Len(t, matches, 3)
	assert.Equal(t, 1, counters.Exact)
	assert.Equal(t, 1, counters.Normalized)
	assert.Equal(t, 1, counters.None)
}
