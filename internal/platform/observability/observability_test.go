package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/requestctx"
)

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)
	log := ServiceLogger(zap.New(baseCore))

	log(context.Background(), "order.created", map[string]any{"code": "ORD0001"})
	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "order.code.conflict", map[string]any{"attempt": 1})

	if baseLogs.Len() != 1 || reqLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got base=%d req=%d", baseLogs.Len(), reqLogs.Len())
	}
	entry := baseLogs.All()[0]
	if entry.Message != "order.created" || entry.ContextMap()["code"] != "ORD0001" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if got := reqLogs.All()[0].Level; got != zapcore.WarnLevel {
		t.Fatalf("conflict events should warn, got %s", got)
	}
}

func TestRecoveryMiddlewareWritesInternalError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	chain := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/orders/ORD0001/status", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].ContextMap()["status"] != int64(http.StatusConflict) {
		t.Fatalf("unexpected entry %+v", entries[0].ContextMap())
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("bakery-prod")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders/ORD0001", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.TraceID != "105445aa7843bc8bf206b12000100000" || got.ProjectID != "bakery-prod" {
		t.Fatalf("unexpected trace info %+v", got)
	}
	if rec.Header().Get(cloudTraceHeader) == "" {
		t.Fatalf("expected trace header to be echoed")
	}
}

func TestParseCloudTraceContextRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}
