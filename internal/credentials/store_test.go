package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/model"
)

type stubSource struct {
	bag Bag
	err error
}

func (s stubSource) Load(model.Platform) (Bag, error) { return s.bag, s.err }

type stubChecker struct {
	calls   int
	results []Result
}

func (c *stubChecker) Check(model.Platform, Bag) Result {
	r := c.results[c.calls]
	if c.calls < len(c.results)-1 {
		c.calls++
	}
	return r
}

func TestValidateCachesValidResultWithinTTL(t *testing.T) {
	checker := &stubChecker{results: []Result{{Status: StatusValid}, {Status: StatusInvalid}}}
	store := NewStore(stubSource{bag: Bag{Headers: map[string]string{"X": "1"}}}, checker, time.Minute)
	require.NoError(t, store.Load(model.PlatformA))

	first := store.Validate(model.PlatformA, false)
	second := store.Validate(model.PlatformA, false)

	assert.Equal(t, StatusValid, first.Status)
	assert.Equal(t, StatusValid, second.Status)
	assert.Equal(t, 1, checker.calls) // only the first Validate reached the checker
}

func TestValidateForceBypassesCache(t *testing.T) {
	checker := &stubChecker{results: []Result{{Status: StatusValid}, {Status: StatusInvalid, Reason: "revoked"}}}
	store := NewStore(stubSource{}, checker, time.Minute)

	store.Validate(model.PlatformA, false)
	forced := store.Validate(model.PlatformA, true)

	assert.Equal(t, StatusInvalid, forced.Status)
}

func TestTransientFailureNeverCached(t *testing.T) {
	checker := &stubChecker{results: []Result{
		{Status: StatusTransientFailure, Reason: "timeout"},
		{Status: StatusValid},
	}}
	store := NewStore(stubSource{}, checker, time.Minute)

	first := store.Validate(model.PlatformA, false)
	second := store.Validate(model.PlatformA, false)

	assert.Equal(t, StatusTransientFailure, first.Status)
	assert.Equal(t, StatusValid, second.Status)
}

func TestValidateRechecksAfterTTLExpires(t *testing.T) {
	checker := &stubChecker{results: []Result{{Status: StatusValid}, {Status: StatusInvalid}}}
	now := time.Now()
	store := NewStore(stubSource{}, checker, time.Minute)
	store.now = func() time.Time { return now }

	store.Validate(model.PlatformA, false)
	now = now.Add(2 * time.Minute)
	expired := store.Validate(model.PlatformA, false)

	assert.Equal(t, StatusInvalid, expired.Status)
}

func TestInvalidateForcesRecheck(t *testing.T) {
	checker := &stubChecker{results: []Result{{Status: StatusValid}, {Status: StatusInvalid}}}
	store := NewStore(stubSource{}, checker, time.Hour)

	store.Validate(model.PlatformA, false)
	store.Invalidate(model.PlatformA)
	after := store.Validate(model.PlatformA, false)

	assert.Equal(t, StatusInvalid, after.Status)
}

func TestLoadPropagatesSourceError(t *testing.T) {
	store := NewStore(stubSource{err: assertErr{}}, &stubChecker{}, time.Minute)
	err := store.Load(model.PlatformA)
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "no credentials" }
