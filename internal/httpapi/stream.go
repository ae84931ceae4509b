package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Stream handles POST /stream, relaying the Streaming Pipeline's ordered
// envelopes as Server-Sent Events. Unless force=true (or 1) is given, the
// gate rejects a second concurrent subscriber before this handler ever
// opens the response body.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	force := parseForce(r.URL.Query())

	ch, err := h.pipelines.Stream(r.Context(), force)
	if err != nil {
		h.writeError(w, r, http.StatusConflict, "gate_busy", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for env := range ch {
		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload)
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

func parseForce(q url.Values) bool {
	return q.Get("force") == "true" || q.Get("force") == "1"
}
