package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/metrics"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

type stubSystemService struct {
	report domain.ReadinessReport
	err    error
	build  services.BuildInfo
}

func (s stubSystemService) Readiness(context.Context) (domain.ReadinessReport, error) {
	return s.report, s.err
}

func (s stubSystemService) Build() services.BuildInfo {
	return s.build
}

func serveHealth(t *testing.T, h *HealthHandlers, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(WithHealthHandlers(h))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReportsBuild(t *testing.T) {
	clock := func() time.Time { return handlerTestNow }
	system := stubSystemService{build: services.BuildInfo{Version: "1.2.0", CommitSHA: "abc123", Environment: "test", StartedAt: handlerTestNow.Add(-90 * time.Second)}}

	rec := serveHealth(t, NewHealthHandlers(system, clock), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	got := decodeBody[healthPayload](t, rec)
	if got.Status != "ok" || got.Version != "1.2.0" || got.Uptime != "1m30s" || got.Timestamp != "2026-04-10T09:30:00Z" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestReadyz(t *testing.T) {
	clock := func() time.Time { return handlerTestNow }
	checks := map[string]domain.DependencyHealth{
		"orders": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
		"events": {Status: domain.HealthStatusDegraded, Detail: "publisher slow"},
	}

	t.Run("degraded stays ready", func(t *testing.T) {
		system := stubSystemService{report: domain.ReadinessReport{Status: domain.HealthStatusDegraded, Checks: checks, GeneratedAt: handlerTestNow}}
		rec := serveHealth(t, NewHealthHandlers(system, clock), "/readyz")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		got := decodeBody[healthPayload](t, rec)
		if got.Checks["orders"].LatencyMS != 12 || got.Checks["events"].Detail != "publisher slow" {
			t.Fatalf("unexpected checks: %+v", got.Checks)
		}
	})

	t.Run("error fails readiness", func(t *testing.T) {
		system := stubSystemService{report: domain.ReadinessReport{Status: domain.HealthStatusError, Checks: checks, GeneratedAt: handlerTestNow}}
		if rec := serveHealth(t, NewHealthHandlers(system, clock), "/readyz"); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("collector failure", func(t *testing.T) {
		system := stubSystemService{err: errors.New("boom")}
		assertError(t, serveHealth(t, NewHealthHandlers(system, clock), "/readyz"), http.StatusServiceUnavailable, "not_ready")
	})

	t.Run("unconfigured", func(t *testing.T) {
		assertError(t, serveHealth(t, NewHealthHandlers(nil, clock), "/readyz"), http.StatusServiceUnavailable, "not_ready")
	})
}

func TestRouterFallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := NewRouter(WithMetricsHandler(metrics.NewServerMetrics(reg).Handler()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assertError(t, rec, http.StatusNotFound, errorNotFoundCode)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assertError(t, rec, http.StatusMethodNotAllowed, "method_not_allowed")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestRouterBasePath(t *testing.T) {
	router := NewRouter(WithBasePath("api/v1/"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD0001", nil))
	assertError(t, rec, http.StatusNotImplemented, "not_implemented")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health endpoints stay at the root, got %d", rec.Code)
	}
}
