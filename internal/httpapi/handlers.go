package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sawpanic/skinmarket/internal/gate"
	"github.com/sawpanic/skinmarket/internal/pipeline"
	"github.com/sawpanic/skinmarket/internal/scheduler"
	"github.com/sawpanic/skinmarket/internal/settings"
	"github.com/sawpanic/skinmarket/internal/store"
)

// Handlers holds every dependency the routes need: no handler talks to the
// process global state directly.
type Handlers struct {
	pipelines *pipeline.Pipelines
	scheduler *scheduler.Scheduler
	store     *store.Store
	settings  *settings.Store
}

// NewHandlers wires the HTTP surface to the engine's components.
func NewHandlers(p *pipeline.Pipelines, sched *scheduler.Scheduler, s *settings.Store) *Handlers {
	return &Handlers{pipelines: p, scheduler: sched, store: p.Store, settings: s}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(ctxRequestID{}).(string)
	if requestID == "" {
		requestID = "unknown"
	}
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// Status handles GET /status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, StatusResponse{
		Gate:      h.pipelines.Gate.Status(),
		Scheduler: h.scheduler.Status(),
		Settings:  h.settings.Get(),
	})
}

// Opportunities handles GET /opportunities, reading straight off the Data
// Store rather than holding the latest list in a handler-owned cache.
func (h *Handlers) Opportunities(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ReadOpportunities()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "store_read_failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, OpportunitiesResponse{
		TotalCount:  list.Metadata.TotalCount,
		GeneratedAt: list.Metadata.GeneratedAt,
		Items:       list.Items,
	})
}

// ForceFull handles POST /force-full.
func (h *Handlers) ForceFull(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.ForceFull(r.Context()); err != nil {
		h.writeError(w, r, http.StatusConflict, "gate_busy", err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, TriggerResponse{Accepted: true, RunKind: string(gate.KindFull)})
}

// ForceIncremental handles POST /force-incremental.
func (h *Handlers) ForceIncremental(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.ForceIncremental(r.Context()); err != nil {
		h.writeError(w, r, http.StatusConflict, "gate_busy", err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, TriggerResponse{Accepted: true, RunKind: string(gate.KindIncremental)})
}

// Settings handles POST /settings: validates, swaps the Settings Store, and
// triggers a Reprocess (falling back to Incremental when no snapshots exist
// yet on disk, per spec §4.12).
func (h *Handlers) Settings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed_body", err.Error())
		return
	}

	prior, err := h.settings.Update(next)
	if err != nil {
		h.writeError(w, r, http.StatusUnprocessableEntity, "config_invalid", err.Error())
		return
	}
	if prior.QualificationKey() != next.QualificationKey() {
		if err := h.pipelines.HashCache.Invalidate(); err != nil {
			h.writeError(w, r, http.StatusInternalServerError, "store_write_failed", err.Error())
			return
		}
	}

	hasSnapshots, err := h.pipelines.HasSnapshots()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "store_read_failed", err.Error())
		return
	}

	runKind := string(gate.KindManual)
	if hasSnapshots {
		if _, err := h.pipelines.Reprocess(r.Context()); err != nil {
			h.writeError(w, r, http.StatusConflict, "gate_busy", err.Error())
			return
		}
	} else {
		runKind = string(gate.KindIncremental)
		if _, err := h.pipelines.RunIncremental(r.Context()); err != nil {
			h.writeError(w, r, http.StatusConflict, "gate_busy", err.Error())
			return
		}
	}

	h.writeJSON(w, http.StatusAccepted, TriggerResponse{Accepted: true, RunKind: runKind})
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}
