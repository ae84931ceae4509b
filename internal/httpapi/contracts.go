package httpapi

import (
	"time"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/scheduler"
	"github.com/sawpanic/skinmarket/internal/settings"
)

// StatusResponse answers GET /status (spec §4.12).
type StatusResponse struct {
	Gate      gate.Status       `json:"gate"`
	Scheduler scheduler.Status  `json:"scheduler"`
	Settings  settings.Settings `json:"settings"`
}

// OpportunitiesResponse answers GET /opportunities.
type OpportunitiesResponse struct {
	TotalCount  int                 `json:"total_count"`
	GeneratedAt time.Time           `json:"generated_at"`
	Items       []model.Opportunity `json:"items"`
}

// ErrorResponse is the standardized error body for every non-2xx response,
// matching the reason-coded contract in spec §7.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TriggerResponse answers the force-* and settings endpoints.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	RunKind  string `json:"run_kind,omitempty"`
}
