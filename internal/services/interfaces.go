package services

import (
	"context"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order            = domain.Order
	OrderDraft       = domain.OrderDraft
	OrderStatus      = domain.OrderStatus
	OrderSummary     = domain.OrderSummary
	OrderStats       = domain.OrderStats
	DailyOrderStats  = domain.DailyOrderStats
	PricingBreakdown = domain.PricingBreakdown
)

// OrderService governs reads and status mutations of committed orders.
type OrderService interface {
	GetByCode(ctx context.Context, code string) (Order, error)
	Resolve(ctx context.Context, ref string) (Order, error)
	ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Remove(ctx context.Context, cmd RemoveOrderCommand) (RemoveOrderResult, error)
}

// CheckoutService runs the immediate-commit and deferred-payment checkout protocols.
type CheckoutService interface {
	Quote(ctx context.Context, req OrderRequest) (PricingBreakdown, error)
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	PlaceOrder(ctx context.Context, cmd CheckoutCommand) (Order, error)
	CreateDraft(ctx context.Context, cmd CheckoutCommand) (DraftResult, error)
	CommitDraft(ctx context.Context, cmd CommitDraftCommand) (Order, error)
}

// DashboardService exposes read-only rollups over the order store.
type DashboardService interface {
	Stats(ctx context.Context) (OrderStats, error)
	Recent(ctx context.Context, limit int) ([]OrderSummary, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]Order, error)
	Analytics(ctx context.Context, days int) ([]DailyOrderStats, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderCode      string
	CustomerID     string
	PreviousStatus string
	CurrentStatus  string
	Total          int64
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// PaymentConfirmer verifies the opaque reference returned by the external payment step.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, reference string, amount int64) (PaymentConfirmation, error)
}

// PaymentConfirmation is the verified outcome of the external payment step.
type PaymentConfirmation struct {
	Reference string
	Provider  string
	Amount    int64
	Confirmed bool
}

// OrderStatusTransitionCommand requests a status change. ExpectedStatus and ExpectedRevision
// reject the update when the order moved on since the caller last read it.
type OrderStatusTransitionCommand struct {
	OrderRef         string
	TargetStatus     string
	ExpectedStatus   *string
	ExpectedRevision *int64
	ActorID          string
	Reason           string
}

// CancelOrderCommand cancels an order. Cancelling a cancelled order succeeds without changes,
// whatever the expectations say.
type CancelOrderCommand struct {
	OrderRef         string
	ExpectedStatus   *string
	ExpectedRevision *int64
	ActorID          string
	Reason           string
}

// RemoveOrderCommand drives DELETE: a soft cancel, or cancel-and-purge when hard delete is enabled.
type RemoveOrderCommand struct {
	OrderRef string
	ActorID  string
	Reason   string
}

// RemoveOrderResult reports what Remove did.
type RemoveOrderResult struct {
	Order   Order
	Deleted bool
}

// CheckoutCommand carries a raw intake request and the caller's identity.
type CheckoutCommand struct {
	Request OrderRequest
	ActorID string
}

// CheckoutResult holds either a committed order or a draft awaiting payment.
type CheckoutResult struct {
	Order *Order
	Draft *DraftResult
}

// DraftResult is returned by the deferred-payment path. Token is opaque to clients.
type DraftResult struct {
	Draft   OrderDraft
	Pricing PricingBreakdown
	Token   string
}

// CommitDraftCommand commits a previously issued draft once payment has been confirmed.
type CommitDraftCommand struct {
	Token            string
	PaymentReference string
	// ClientTotal is whatever total the client resubmitted; it is never trusted.
	ClientTotal *int64
	ActorID     string
}
