package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/arknettransit/dutyplan/internal/feed"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports job statistics.
type StatsSource interface {
	StatsSnapshot() map[string]any
}

// Handler serves the ops endpoints.
type Handler struct {
	version   string
	buildTime string
	db        Pinger
	feeds     *feed.Health
	jobs      StatsSource
	now       func() time.Time
}

// HealthCheck handles GET /health - liveness check.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status: HealthStatusOK,
		Time:   h.now(),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /ready. The worker is ready once the
// database answers a ping.
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	db := h.pingDatabase(r.Context())
	if db.Status != HealthStatusOK {
		writeJSON(w, http.StatusServiceUnavailable, Health{
			Status:  HealthStatusDown,
			Time:    h.now(),
			Details: map[string]any{"database": db.Detail},
		})
		return
	}
	writeJSON(w, http.StatusOK, Health{Status: HealthStatusOK, Time: h.now()})
}

// SystemStatus handles GET /status - subsystem, feed circuit and job status.
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := SystemStatus{
		Status:     HealthStatusOK,
		Time:       h.now(),
		Subsystems: []SubsystemStatus{h.pingDatabase(r.Context())},
		Feeds:      []feed.SourceHealth{},
	}
	if status.Subsystems[0].Status != HealthStatusOK {
		status.Status = HealthStatusDown
	}

	if h.feeds != nil {
		status.Feeds = h.feeds.Snapshot()
		for _, f := range status.Feeds {
			if !f.Healthy() && status.Status == HealthStatusOK {
				status.Status = HealthStatusDegraded
			}
		}
	}
	if h.jobs != nil {
		status.Validation = h.jobs.StatsSnapshot()
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) pingDatabase(ctx context.Context) SubsystemStatus {
	s := SubsystemStatus{Name: "postgres", Status: HealthStatusOK}
	if h.db == nil {
		s.Status = HealthStatusDown
		s.Detail = "not configured"
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		s.Status = HealthStatusDown
		s.Detail = err.Error()
	}
	return s
}
