package httpapi

import (
	"context"
	"net/http"
	"time"
)

// handleHealth serves GET /healthz. The database is required; Redis is
// reported but only degrades the status when configured.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}

	if err := d.DB.Health(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	body := map[string]any{"checks": checks}

	// Archive is best-effort, so backlog is reported but never degrades
	// the status.
	if d.ArchiveWorker != nil {
		if depth, err := d.ArchiveWorker.QueueLength(ctx); err == nil {
			body["archive_backlog"] = depth
		}
	}
	if status == http.StatusOK {
		body["status"] = "ok"
	} else {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
