package httpx

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"
)

const healthResponse = `{"status":"ok"}`

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandlers answers readiness/liveness probes.
type HealthHandlers struct {
	Checks map[string]HealthCheck
}

// Health returns 200 when every check passes and 503 naming the failures otherwise.
// GET|HEAD /healthz.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	failed := h.run(r.Context())
	if len(failed) > 0 {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

func (h *HealthHandlers) run(ctx context.Context) []string {
	if h == nil || len(h.Checks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var failed []string
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}
