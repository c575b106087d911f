package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPreparing:      {domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

var statusAliases = map[string]domain.OrderStatus{
	"preparing":        domain.OrderStatusPreparing,
	"outfordelivery":   domain.OrderStatusOutForDelivery,
	"out_for_delivery": domain.OrderStatusOutForDelivery,
	"delivered":        domain.OrderStatusDelivered,
	"cancelled":        domain.OrderStatusCancelled,
	"canceled":         domain.OrderStatusCancelled,
}

// ParseOrderStatus maps raw onto the status allow-list, ignoring case.
func ParseOrderStatus(raw string) (domain.OrderStatus, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusAliases[key]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrOrderInvalidStatus, raw)
}

// CheckTransition validates moving from current to target. Staying in a non-terminal state is a no-op.
func CheckTransition(current, target domain.OrderStatus) error {
	if !slices.Contains(domain.OrderStatuses, target) {
		return fmt.Errorf("%w: %q", ErrOrderInvalidStatus, target)
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: order is %s", ErrOrderTerminalState, current)
	}
	if current == target {
		return nil
	}
	if !slices.Contains(orderStateTransitions[current], target) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, current, target)
	}
	return nil
}

// applyStatusTransition mutates order in place after CheckTransition succeeds.
func applyStatusTransition(order *domain.Order, target domain.OrderStatus, now time.Time) error {
	if err := CheckTransition(order.Status, target); err != nil {
		return err
	}
	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}
