// Package breaker wraps each Marketplace Client in a circuit breaker so a
// platform outage trips quickly instead of each scheduled run burning its
// full retry budget against a dead endpoint.
package breaker

import (
	"time"

	cb "github.com/sony/gobreaker"

	"github.com/sawpanic/skinmarket/internal/model"
)

// Breaker wraps one platform's outbound calls.
type Breaker struct{ cb *cb.CircuitBreaker }

// New creates a breaker named after platform. It trips after 3 consecutive
// failures, or once request volume passes 20 with a >5% failure rate, and
// half-opens to probe again after Timeout.
func New(platform model.Platform) *Breaker {
	st := cb.Settings{Name: string(platform)}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState while the platform is considered down.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state ("closed", "half-open" or
// "open"). /status does not include it.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
