package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/auth"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/httpx"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

const (
	maxRecentLimit      = 100
	dashboardDateLayout = "2006-01-02"
)

// DashboardHandlers exposes staff-only order rollups.
type DashboardHandlers struct {
	authn     *auth.Authenticator
	dashboard services.DashboardService
}

func NewDashboardHandlers(authn *auth.Authenticator, dashboard services.DashboardService) *DashboardHandlers {
	return &DashboardHandlers{authn: authn, dashboard: dashboard}
}

// Routes registers /orders/dashboard endpoints.
func (h *DashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireStaff())
	}
	r.Get("/stats", h.stats)
	r.Get("/recent", h.recent)
	r.Get("/analytics", h.analytics)
	r.Get("/orders", h.ordersByStatus)
}

type statsPayload struct {
	TotalOrders    int64            `json:"totalOrders"`
	CountsByStatus map[string]int64 `json:"countsByStatus"`
	Revenue        int64            `json:"revenue"`
	RevenueOrders  int64            `json:"revenueOrders"`
	AverageOrder   float64          `json:"averageOrderValue"`
}

type dailyPayload struct {
	Date      string `json:"date"`
	Orders    int64  `json:"orders"`
	Cancelled int64  `json:"cancelled"`
	Revenue   int64  `json:"revenue"`
}

func (h *DashboardHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.dashboard.Stats(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	counts := make(map[string]int64, len(stats.CountsByStatus))
	for status, n := range stats.CountsByStatus {
		counts[string(status)] = n
	}
	httpx.WriteJSON(w, http.StatusOK, statsPayload{
		TotalOrders:    stats.TotalOrders,
		CountsByStatus: counts,
		Revenue:        stats.Revenue,
		RevenueOrders:  stats.RevenueOrders,
		AverageOrder:   stats.AverageOrder,
	})
}

func (h *DashboardHandlers) recent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := parseLimit(r.URL.Query().Get("limit"), 0, maxRecentLimit)
	if !ok {
		badRequest(ctx, w, "limit must be a positive integer")
		return
	}
	summaries, err := h.dashboard.Recent(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderSummaryPayload, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, buildSummaryPayload(s))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DashboardHandlers) analytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(ctx, w, "days must be a positive integer")
			return
		}
		days = n
	}
	series, err := h.dashboard.Analytics(ctx, days)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]dailyPayload, 0, len(series))
	for _, day := range series {
		items = append(items, dailyPayload{
			Date:      day.Date.Format(dashboardDateLayout),
			Orders:    day.Orders,
			Cancelled: day.Cancelled,
			Revenue:   day.Revenue,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": items})
}

// ordersByStatus lists every order in a status. With ?limit=N the list is cut at N and hasMore
// reports whether anything was left out.
func (h *DashboardHandlers) ordersByStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	status := strings.TrimSpace(query.Get("status"))
	if status == "" {
		badRequest(ctx, w, "status query parameter is required")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(ctx, w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	fetch := limit
	if limit > 0 {
		fetch = limit + 1
	}
	orders, err := h.dashboard.ListByStatus(ctx, status, fetch)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	hasMore := limit > 0 && len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":   buildOrderList(orders),
		"count":   len(orders),
		"hasMore": hasMore,
	})
}
