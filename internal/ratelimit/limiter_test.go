package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/skinmarket/internal/model"
)

func TestAllowPassesThroughUnconfiguredPlatform(t *testing.T) {
	g := NewGate()
	assert.True(t, g.Allow(model.PlatformA))
}

func TestFirstRequestAllowedImmediately(t *testing.T) {
	g := NewGate()
	g.SetDelay(model.PlatformA, 50*time.Millisecond)
	assert.True(t, g.Allow(model.PlatformA))
}

func TestSecondRequestThrottledUntilDelayElapses(t *testing.T) {
	g := NewGate()
	g.SetDelay(model.PlatformA, 50*time.Millisecond)
	g.Allow(model.PlatformA)
	assert.False(t, g.Allow(model.PlatformA))
}

func TestPlatformsAreIndependent(t *testing.T) {
	g := NewGate()
	g.SetDelay(model.PlatformA, time.Second)
	g.SetDelay(model.PlatformB, time.Millisecond)
	g.Allow(model.PlatformA)
	assert.True(t, g.Allow(model.PlatformB))
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	g := NewGate()
	g.SetDelay(model.PlatformA, time.Hour)
	g.Allow(model.PlatformA) // consume the only token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, model.PlatformA)
	assert.Error(t, err)
}

func TestSetDelayUpdatesExistingLimiter(t *testing.T) {
	g := NewGate()
	g.SetDelay(model.PlatformA, time.Hour)
	g.Allow(model.PlatformA) // consume the only token at the hourly rate
	g.SetDelay(model.PlatformA, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, g.Allow(model.PlatformA))
}
