package breaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/skinmarket/internal/model"
)

func TestExecutePassesThroughSuccess(t *testing.T) {
	b := New(model.PlatformA)
	result, err := b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecutePropagatesUnderlyingError(t *testing.T) {
	b := New(model.PlatformA)
	wantErr := errors.New("boom")
	_, err := b.Execute(func() (any, error) { return nil, wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New(model.PlatformB)
	failing := func() (any, error) { return nil, errors.New("down") }

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(failing)
	}

	_, err := b.Execute(func() (any, error) { return "should not run", nil })
	assert.Error(t, err)
	assert.Equal(t, "open", b.State())
}
