package handlers

import (
	"net/http"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/httpx"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

// HealthHandlers serves liveness and readiness checks.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
}

type healthPayload struct {
	Status      string                       `json:"status"`
	Version     string                       `json:"version,omitempty"`
	CommitSHA   string                       `json:"commitSha,omitempty"`
	Environment string                       `json:"environment,omitempty"`
	Uptime      string                       `json:"uptime,omitempty"`
	Timestamp   string                       `json:"timestamp"`
	Checks      map[string]dependencyPayload `json:"checks,omitempty"`
}

type dependencyPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

func NewHealthHandlers(system services.SystemService, clock func() time.Time) *HealthHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &HealthHandlers{system: system, clock: clock}
}

// Healthz reports that the process is serving. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	payload := healthPayload{Status: domain.HealthStatusOK, Timestamp: now.Format(time.RFC3339)}
	if h.system != nil {
		build := h.system.Build()
		payload.Version = build.Version
		payload.CommitSHA = build.CommitSHA
		payload.Environment = build.Environment
		if !build.StartedAt.IsZero() {
			payload.Uptime = now.Sub(build.StartedAt).Truncate(time.Second).String()
		}
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// Readyz checks the order store and other dependencies. Only an error status fails readiness;
// degraded dependencies still report 200.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "readiness checks are not configured", http.StatusServiceUnavailable))
		return
	}
	report, err := h.system.Readiness(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "readiness checks failed", http.StatusServiceUnavailable))
		return
	}
	payload := healthPayload{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.Truncate(time.Second).String(),
		Timestamp:   report.GeneratedAt.UTC().Format(time.RFC3339),
		Checks:      make(map[string]dependencyPayload, len(report.Checks)),
	}
	for name, check := range report.Checks {
		payload.Checks[name] = dependencyPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		}
	}
	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, payload)
}
