package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistersWithoutPanicking(t *testing.T) {
	assert.NotPanics(t, func() { New() })
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func TestHandlerServesMetricsAfterRecording(t *testing.T) {
	r := New()
	r.RecordMatcherCounters(3, 1, 2)
	r.SetOpportunitiesCurrent(5)
	r.SetGateActive("full")
	timer := r.StartTimer("full")
	timer.Stop("ok")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "skinmonitor_matcher_exact_total")
}
