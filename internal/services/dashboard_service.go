package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const (
	defaultRecentLimit   = 10
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 366
)

// DashboardServiceDeps wires the order store into the read-only dashboard aggregator.
type DashboardServiceDeps struct {
	Orders        repositories.OrderRepository
	RecentLimit   int
	AnalyticsDays int
	// Location decides where analytics day boundaries fall.
	Location *time.Location
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type dashboardService struct {
	orders        repositories.OrderRepository
	recentLimit   int
	analyticsDays int
	location      *time.Location
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewDashboardService constructs the dashboard aggregator.
func NewDashboardService(deps DashboardServiceDeps) (DashboardService, error) {
	if deps.Orders == nil {
		return nil, errors.New("dashboard service: order repository is required")
	}
	recent := deps.RecentLimit
	if recent <= 0 {
		recent = defaultRecentLimit
	}
	days := deps.AnalyticsDays
	if days <= 0 {
		days = defaultAnalyticsDays
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &dashboardService{
		orders:        deps.Orders,
		recentLimit:   recent,
		analyticsDays: days,
		location:      loc,
		now:           clock,
		logger:        logger,
	}, nil
}

// Stats returns per-status counts and revenue over non-cancelled orders. A store failure is an
// error, never a partial result.
func (s *dashboardService) Stats(ctx context.Context) (OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		s.logger(ctx, "dashboard.stats.failed", map[string]any{"error": err.Error()})
		return OrderStats{}, mapRepositoryError(err)
	}

	counts := make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))
	var total int64
	for _, status := range domain.OrderStatuses {
		counts[status] = stats.CountsByStatus[status]
		total += counts[status]
	}
	stats.CountsByStatus = counts
	stats.TotalOrders = total
	stats.AverageOrder = 0
	if stats.RevenueOrders > 0 {
		stats.AverageOrder = float64(stats.Revenue) / float64(stats.RevenueOrders)
	}
	return stats, nil
}

func (s *dashboardService) Recent(ctx context.Context, limit int) ([]OrderSummary, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{Limit: clampLimit(limit, s.recentLimit)})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	summaries := make([]OrderSummary, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, summarize(order))
	}
	return summaries, nil
}

// ListByStatus returns orders in status, newest first. A non-positive limit returns every match.
func (s *dashboardService) ListByStatus(ctx context.Context, status string, limit int) ([]Order, error) {
	parsed, err := ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status: []domain.OrderStatus{parsed},
		Limit:  limit,
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return orders, nil
}

// Analytics buckets the last days calendar days, oldest first. Days without orders are present
// with zero values so charts need no gap filling.
func (s *dashboardService) Analytics(ctx context.Context, days int) ([]DailyOrderStats, error) {
	if days <= 0 {
		days = s.analyticsDays
	}
	if days > maxAnalyticsDays {
		return nil, fmt.Errorf("%w: analytics window is limited to %d days", ErrOrderInvalidInput, maxAnalyticsDays)
	}

	today := calendarDay(s.now().In(s.location))
	start := today.AddDate(0, 0, -(days - 1))
	startUTC := start.UTC()

	orders, err := s.orders.List(ctx, repositories.OrderListFilter{CreatedAfter: &startUTC})
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	series := make([]DailyOrderStats, days)
	index := make(map[string]int, days)
	for i := range series {
		day := start.AddDate(0, 0, i)
		series[i].Date = day
		index[day.Format(deliveryDateLayout)] = i
	}
	for _, order := range orders {
		i, ok := index[order.CreatedAt.In(s.location).Format(deliveryDateLayout)]
		if !ok {
			continue
		}
		series[i].Orders++
		if order.Status == domain.OrderStatusCancelled {
			series[i].Cancelled++
			continue
		}
		series[i].Revenue += order.Payment.Total
	}
	return series, nil
}

func summarize(order Order) OrderSummary {
	customer := order.Customer.Name
	if customer == "" {
		customer = order.Customer.ID
	}
	return OrderSummary{
		Code:      order.Code,
		Customer:  customer,
		Product:   order.Product.Name,
		Size:      order.Item.Size,
		Quantity:  order.Item.Quantity,
		Total:     order.Payment.Total,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	}
}
