package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := NewServerMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{code}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, code := range []string{"ORD0001", "ORD0002"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+code, nil))
	}

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("/orders/{code}", http.MethodGet, "404")); got != 2 {
		t.Fatalf("expected 2 requests recorded, got %v", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cakey_api_http_requests_total") {
		t.Fatalf("expected exposition to include request counter, got %s", body)
	}
}

type publisherFunc func(context.Context, services.OrderEvent) error

func (f publisherFunc) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	return f(ctx, event)
}

func TestCountEventsRecordsResult(t *testing.T) {
	m := NewServerMetrics(prometheus.NewRegistry())
	fail := true
	pub := m.CountEvents(publisherFunc(func(context.Context, services.OrderEvent) error {
		if fail {
			return errors.New("broker down")
		}
		return nil
	}))

	_ = pub.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.created"})
	fail = false
	_ = pub.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.created"})

	if got := testutil.ToFloat64(m.Events.WithLabelValues("order.created", "error")); got != 1 {
		t.Fatalf("expected one failed publish, got %v", got)
	}
	if got := testutil.ToFloat64(m.Events.WithLabelValues("order.created", "ok")); got != 1 {
		t.Fatalf("expected one successful publish, got %v", got)
	}
	if m.CountEvents(nil) != nil {
		t.Fatalf("nil publisher must stay nil")
	}
}
