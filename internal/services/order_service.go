package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventCancelled     = "order.cancelled"
	orderEventDeleted       = "order.deleted"

	orderIDPrefix = "ord_"

	defaultCustomerListLimit = 50
	maxListLimit             = 200
	statusUpdateAttempts     = 2
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders             repositories.OrderRepository
	HardDeleteOnCancel bool
	Clock              func() time.Time
	Events             OrderEventPublisher
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	hardDelete bool
	clock      func() time.Time
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		hardDelete: deps.HardDeleteOnCancel,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetByCode(ctx context.Context, code string) (Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Order{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

// Resolve accepts either an internal id or a human code.
func (s *orderService) Resolve(ctx context.Context, ref string) (Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Order{}, fmt.Errorf("%w: order reference is required", ErrOrderInvalidInput)
	}
	if !strings.HasPrefix(ref, orderIDPrefix) {
		return s.GetByCode(ctx, ref)
	}
	order, err := s.orders.FindByID(ctx, ref)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{
		CustomerID: customerID,
		Limit:      clampLimit(limit, defaultCustomerListLimit),
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target, err := ParseOrderStatus(cmd.TargetStatus)
	if err != nil {
		return Order{}, err
	}
	if target == domain.OrderStatusCancelled {
		return s.Cancel(ctx, CancelOrderCommand{
			OrderRef:         cmd.OrderRef,
			ExpectedStatus:   cmd.ExpectedStatus,
			ExpectedRevision: cmd.ExpectedRevision,
			ActorID:          cmd.ActorID,
			Reason:           cmd.Reason,
		})
	}

	var expectedStatus domain.OrderStatus
	if cmd.ExpectedStatus != nil {
		if expectedStatus, err = ParseOrderStatus(*cmd.ExpectedStatus); err != nil {
			return Order{}, err
		}
	}
	pinned := cmd.ExpectedStatus != nil || cmd.ExpectedRevision != nil

	var prev domain.OrderStatus
	order, err := s.mutate(ctx, cmd.OrderRef, pinned, func(order *domain.Order, now time.Time) (bool, error) {
		if cmd.ExpectedStatus != nil && order.Status != expectedStatus {
			return false, fmt.Errorf("%w: expected status %s but was %s", ErrOrderConflict, expectedStatus, order.Status)
		}
		if cmd.ExpectedRevision != nil && order.Revision != *cmd.ExpectedRevision {
			return false, fmt.Errorf("%w: expected revision %d but was %d", ErrOrderConflict, *cmd.ExpectedRevision, order.Revision)
		}
		prev = order.Status
		if err := applyStatusTransition(order, target, now); err != nil {
			return false, err
		}
		return prev != target, nil
	})
	if err != nil {
		return Order{}, err
	}

	if prev != order.Status {
		s.publishEvent(ctx, orderEvent(orderEventStatusChanged, order, prev, cmd.ActorID, cmd.Reason))
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	var expectedStatus domain.OrderStatus
	if cmd.ExpectedStatus != nil {
		var err error
		if expectedStatus, err = ParseOrderStatus(*cmd.ExpectedStatus); err != nil {
			return Order{}, err
		}
	}
	pinned := cmd.ExpectedStatus != nil || cmd.ExpectedRevision != nil

	var prev domain.OrderStatus
	order, err := s.mutate(ctx, cmd.OrderRef, pinned, func(order *domain.Order, now time.Time) (bool, error) {
		prev = order.Status
		if order.Status == domain.OrderStatusCancelled {
			return false, nil
		}
		if cmd.ExpectedStatus != nil && order.Status != expectedStatus {
			return false, fmt.Errorf("%w: expected status %s but was %s", ErrOrderConflict, expectedStatus, order.Status)
		}
		if cmd.ExpectedRevision != nil && order.Revision != *cmd.ExpectedRevision {
			return false, fmt.Errorf("%w: expected revision %d but was %d", ErrOrderConflict, *cmd.ExpectedRevision, order.Revision)
		}
		if err := applyStatusTransition(order, domain.OrderStatusCancelled, now); err != nil {
			return false, err
		}
		order.CancelReason = strings.TrimSpace(cmd.Reason)
		return true, nil
	})
	if err != nil {
		return Order{}, err
	}

	if prev != domain.OrderStatusCancelled {
		s.publishEvent(ctx, orderEvent(orderEventCancelled, order, prev, cmd.ActorID, cmd.Reason))
	}
	return order, nil
}

func (s *orderService) Remove(ctx context.Context, cmd RemoveOrderCommand) (RemoveOrderResult, error) {
	order, err := s.Cancel(ctx, CancelOrderCommand{
		OrderRef: cmd.OrderRef,
		ActorID:  cmd.ActorID,
		Reason:   cmd.Reason,
	})
	if err != nil {
		return RemoveOrderResult{}, err
	}
	if !s.hardDelete {
		return RemoveOrderResult{Order: order}, nil
	}

	if err := s.orders.Delete(ctx, order.ID); err != nil {
		return RemoveOrderResult{}, mapRepositoryError(err)
	}
	s.logger(ctx, "order.deleted", map[string]any{
		"orderId": order.ID,
		"code":    order.Code,
		"actor":   cmd.ActorID,
	})
	s.publishEvent(ctx, orderEvent(orderEventDeleted, order, order.Status, cmd.ActorID, cmd.Reason))
	return RemoveOrderResult{Order: order, Deleted: true}, nil
}

// mutate reads the order, applies fn and writes it back under the store's revision check.
// fn reports whether anything changed. Unpinned updates are retried once after a concurrent write.
func (s *orderService) mutate(ctx context.Context, ref string, pinned bool, fn func(*domain.Order, time.Time) (bool, error)) (Order, error) {
	attempts := statusUpdateAttempts
	if pinned {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		order, err := s.Resolve(ctx, ref)
		if err != nil {
			return Order{}, err
		}
		changed, err := fn(&order, s.clock())
		if err != nil {
			return Order{}, err
		}
		if !changed {
			return order, nil
		}
		saved, err := s.orders.Update(ctx, order)
		if err == nil {
			return saved, nil
		}
		lastErr = mapRepositoryError(err)
		if !errors.Is(lastErr, ErrOrderConflict) {
			return Order{}, lastErr
		}
		s.logger(ctx, "order.update.conflict", map[string]any{
			"orderId":  order.ID,
			"revision": order.Revision,
			"attempt":  attempt + 1,
		})
	}
	return Order{}, lastErr
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

func publishOrderEvent(ctx context.Context, events OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func orderEvent(eventType string, order Order, prev domain.OrderStatus, actor, reason string) OrderEvent {
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		OrderCode:      order.Code,
		CustomerID:     order.Customer.ID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		Total:          order.Payment.Total,
		ActorID:        strings.TrimSpace(actor),
		OccurredAt:     order.UpdatedAt,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		event.Metadata = map[string]any{"reason": reason}
	}
	return event
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
