package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	Running         bool      `json:"running"`
	EventsProcessed uint64    `json:"events_processed"`
	PendingEvents   int       `json:"pending_events"`
	LastPublished   time.Time `json:"last_published"`
	LastError       string    `json:"last_error,omitempty"`
	Errors          []string  `json:"errors"`
}

// Stats returns the number of published events and when the last one went
// out.
func (w *Worker) Stats() (uint64, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed, w.lastPublished
}

// Health reports the worker state. The worker is unhealthy when it is not
// running or when events are pending and the last publish failed.
func (w *Worker) Health(ctx context.Context) HealthStatus {
	w.mu.Lock()
	status := HealthStatus{
		Healthy:         true,
		Running:         w.running,
		EventsProcessed: w.processed,
		LastPublished:   w.lastPublished,
		Errors:          []string{},
	}
	lastErr := w.lastError
	w.mu.Unlock()

	if !status.Running {
		status.Healthy = false
		status.Errors = append(status.Errors, "worker not running")
	}

	pending, err := w.store.Len(ctx)
	if err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("count pending events: %v", err))
	}
	status.PendingEvents = pending

	if lastErr != nil {
		status.LastError = lastErr.Error()
		if pending > 0 {
			status.Healthy = false
			status.Errors = append(status.Errors, "publishing is failing")
		}
	}
	return status
}

// ServeHTTP reports worker health as JSON, with 503 when unhealthy.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := w.Health(ctx)

	rw.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(rw).Encode(status)
}
