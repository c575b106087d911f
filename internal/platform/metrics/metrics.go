package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

const namespace = "cakey"

// ServerMetrics holds the API's Prometheus collectors.
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Events    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewServerMetrics registers collectors on reg, or on the default registry when reg is nil.
func NewServerMetrics(reg *prometheus.Registry) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "events_total",
		Help:      "Order events by type and publish result.",
	}, []string{"type", "result"})

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	registerer.MustRegister(requests, latency, events)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, Events: events, gatherer: gatherer}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records one request count and latency sample per request, labelled by chi route
// pattern so path parameters do not explode cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// CountEvents decorates next so every publish attempt is counted.
func (m *ServerMetrics) CountEvents(next services.OrderEventPublisher) services.OrderEventPublisher {
	if next == nil {
		return nil
	}
	return &countingPublisher{next: next, events: m.Events}
}

type countingPublisher struct {
	next   services.OrderEventPublisher
	events *prometheus.CounterVec
}

func (p *countingPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	err := p.next.PublishOrderEvent(ctx, event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.events.WithLabelValues(event.Type, result).Inc()
	return err
}
