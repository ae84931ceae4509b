// Package ratelimit implements the process-wide request pacing gate (spec
// §4.1, §5): each platform gets one monotonic "earliest next request"
// limiter shared by every caller, so concurrent Marketplace Client calls
// never burst past the configured per-platform delay.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sawpanic/skinmarket/internal/model"
)

// Gate holds one token-bucket limiter per platform, each configured for a
// single token every delay with no burst — the "earliest next request"
// semantics spec §4.1 describes.
type Gate struct {
	mu       sync.RWMutex
	limiters map[model.Platform]*rate.Limiter
}

// NewGate creates an empty Gate. Call SetDelay for each platform before use.
func NewGate() *Gate {
	return &Gate{limiters: make(map[model.Platform]*rate.Limiter)}
}

// SetDelay (re)configures the minimum spacing between requests for a
// platform, updating an existing limiter in place. engine.New calls it
// with the loaded request_delay_a/b; a later /settings edit does not.
func (g *Gate) SetDelay(platform model.Platform, delay time.Duration) {
	limit := rate.Every(delay)
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[platform]; ok {
		l.SetLimit(limit)
		return
	}
	g.limiters[platform] = rate.NewLimiter(limit, 1)
}

// Wait blocks the caller until the next request for platform is permitted,
// or ctx is cancelled. Unconfigured platforms pass through immediately.
func (g *Gate) Wait(ctx context.Context, platform model.Platform) error {
	limiter := g.limiter(platform)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow reports, without blocking, whether a request for platform may
// proceed right now.
func (g *Gate) Allow(platform model.Platform) bool {
	limiter := g.limiter(platform)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

// NextDelay reports how long a caller would currently wait for platform,
// without consuming a token.
func (g *Gate) NextDelay(platform model.Platform) time.Duration {
	limiter := g.limiter(platform)
	if limiter == nil {
		return 0
	}
	r := limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	return delay
}

func (g *Gate) limiter(platform model.Platform) *rate.Limiter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limiters[platform]
}
