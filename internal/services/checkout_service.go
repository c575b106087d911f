package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const (
	codeAssignAttempts = 2
	initialRevision    = int64(1)
)

// CheckoutServiceDeps wires the dependencies required by the checkout coordinator.
type CheckoutServiceDeps struct {
	Orders     repositories.OrderRepository
	Catalog    repositories.ProductCatalog
	Codes      CodeAssigner
	Pricing    *PricingCalculator
	Normalizer *OrderNormalizer
	Drafts     *DraftCodec
	// Payments verifies commit references. When nil every non-empty reference is trusted.
	Payments    PaymentConfirmer
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders     repositories.OrderRepository
	catalog    repositories.ProductCatalog
	codes      CodeAssigner
	pricing    *PricingCalculator
	normalizer *OrderNormalizer
	drafts     *DraftCodec
	payments   PaymentConfirmer
	now        func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// preparedOrder is a normalized request with its catalog-backed snapshot and price.
type preparedOrder struct {
	order   NormalizedOrder
	pricing domain.PricingBreakdown
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Codes == nil {
		return nil, errors.New("checkout service: code assigner is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing calculator is required")
	}
	if deps.Drafts == nil {
		return nil, errors.New("checkout service: draft codec is required")
	}

	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = NewOrderNormalizer(time.UTC)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:     deps.Orders,
		catalog:    deps.Catalog,
		codes:      deps.Codes,
		pricing:    deps.Pricing,
		normalizer: normalizer,
		drafts:     deps.Drafts,
		payments:   deps.Payments,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Quote prices a request exactly as checkout would, without persisting anything.
func (s *checkoutService) Quote(ctx context.Context, req OrderRequest) (PricingBreakdown, error) {
	prepared, err := s.prepare(ctx, req)
	if err != nil {
		return PricingBreakdown{}, err
	}
	return prepared.pricing, nil
}

// Checkout picks the protocol from the payment method: deferred methods get a draft,
// everything else is committed immediately.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	prepared, err := s.prepare(ctx, cmd.Request)
	if err != nil {
		return CheckoutResult{}, err
	}
	if prepared.order.Method.Deferred() {
		draft, err := s.seal(prepared)
		if err != nil {
			return CheckoutResult{}, err
		}
		return CheckoutResult{Draft: &draft}, nil
	}
	order, err := s.commit(ctx, prepared, "", "", cmd.ActorID)
	if err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{Order: &order}, nil
}

func (s *checkoutService) PlaceOrder(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	prepared, err := s.prepare(ctx, cmd.Request)
	if err != nil {
		return Order{}, err
	}
	if prepared.order.Method.Deferred() {
		return Order{}, fmt.Errorf("%w: payment method %s requires the draft checkout flow", ErrOrderInvalidInput, prepared.order.Method)
	}
	return s.commit(ctx, prepared, "", "", cmd.ActorID)
}

func (s *checkoutService) CreateDraft(ctx context.Context, cmd CheckoutCommand) (DraftResult, error) {
	prepared, err := s.prepare(ctx, cmd.Request)
	if err != nil {
		return DraftResult{}, err
	}
	if !prepared.order.Method.Deferred() {
		return DraftResult{}, fmt.Errorf("%w: payment method %s does not use drafts", ErrOrderInvalidInput, prepared.order.Method)
	}
	return s.seal(prepared)
}

// CommitDraft persists a sealed draft once its payment reference is confirmed. The total is
// recomputed from the draft contents before the payment is confirmed, so a stale draft never
// reaches the payment provider; the client's resubmitted total is never used.
func (s *checkoutService) CommitDraft(ctx context.Context, cmd CommitDraftCommand) (Order, error) {
	draft, err := s.drafts.Open(cmd.Token)
	if err != nil {
		return Order{}, err
	}

	existing, err := s.orders.FindByDraftID(ctx, draft.DraftID)
	if err == nil {
		s.logger(ctx, "checkout.commit.replayed", map[string]any{
			"draftId": draft.DraftID,
			"orderId": existing.ID,
			"code":    existing.Code,
		})
		return existing, nil
	}
	if mapped := mapRepositoryError(err); !errors.Is(mapped, ErrOrderNotFound) {
		return Order{}, mapped
	}

	prepared, err := s.prepare(ctx, draftRequest(draft))
	if err != nil {
		return Order{}, err
	}
	if !s.pricing.WithinTolerance(prepared.pricing.Total, draft.Payment.Total) {
		return Order{}, fmt.Errorf("%w: draft total %d, recomputed %d", ErrDraftStale, draft.Payment.Total, prepared.pricing.Total)
	}

	reference, err := s.confirmPayment(ctx, draft, cmd.PaymentReference)
	if err != nil {
		return Order{}, err
	}
	if cmd.ClientTotal != nil && *cmd.ClientTotal != prepared.pricing.Total {
		s.logger(ctx, "checkout.commit.client_total_ignored", map[string]any{
			"draftId":     draft.DraftID,
			"clientTotal": *cmd.ClientTotal,
			"total":       prepared.pricing.Total,
		})
	}

	return s.commit(ctx, prepared, draft.DraftID, reference, cmd.ActorID)
}

func (s *checkoutService) prepare(ctx context.Context, req OrderRequest) (preparedOrder, error) {
	normalized, err := s.normalizer.Normalize(req, s.now())
	if err != nil {
		return preparedOrder{}, err
	}
	if err := s.resolveProduct(ctx, &normalized); err != nil {
		return preparedOrder{}, err
	}
	breakdown, err := s.pricing.Price(PriceQuery{
		BasePrice:   normalized.Product.BasePrice,
		Size:        normalized.Item.Size,
		Quantity:    normalized.Item.Quantity,
		DeliveryFee: normalized.DeliveryFee,
	})
	if err != nil {
		return preparedOrder{}, err
	}
	normalized.Item.Quantity = breakdown.Quantity
	return preparedOrder{order: normalized, pricing: breakdown}, nil
}

// resolveProduct replaces the client's product snapshot with the catalog's when the catalog
// knows the product. Unknown products keep the client snapshot only if it carries a price.
func (s *checkoutService) resolveProduct(ctx context.Context, order *NormalizedOrder) error {
	if s.catalog != nil && order.Product.ProductID != "" {
		product, err := s.catalog.FindProduct(ctx, order.Product.ProductID)
		switch mapped := mapRepositoryError(err); {
		case err == nil:
			if product.Name == "" {
				product.Name = order.Product.Name
			}
			if product.ImageURL == "" {
				product.ImageURL = order.Product.ImageURL
			}
			product.ProductID = order.Product.ProductID
			order.Product = product
			order.PriceProvided = true
			return nil
		case errors.Is(mapped, ErrOrderNotFound):
			if !order.PriceProvided {
				return fmt.Errorf("%w: unknown product %q", ErrOrderInvalidInput, order.Product.ProductID)
			}
		default:
			return mapped
		}
	}
	if !order.PriceProvided {
		return fmt.Errorf("%w: product price is required", ErrOrderInvalidInput)
	}
	if order.Product.Name == "" {
		return fmt.Errorf("%w: product name is required", ErrOrderInvalidInput)
	}
	return nil
}

func (s *checkoutService) seal(prepared preparedOrder) (DraftResult, error) {
	n := prepared.order
	draft, token, err := s.drafts.Seal(domain.OrderDraft{
		Channel:  n.Channel,
		Product:  n.Product,
		Customer: n.Customer,
		Item:     n.Item,
		Delivery: n.Delivery,
		Payment:  applyPricing(domain.OrderPayment{Method: n.Method}, prepared.pricing),
	})
	if err != nil {
		return DraftResult{}, err
	}
	return DraftResult{Draft: draft, Pricing: prepared.pricing, Token: token}, nil
}

// confirmPayment checks the external payment reference against the draft's displayed total.
func (s *checkoutService) confirmPayment(ctx context.Context, draft domain.OrderDraft, reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		if draft.Payment.Method.Deferred() {
			return "", fmt.Errorf("%w: payment reference is required", ErrPaymentNotConfirmed)
		}
		return "", nil
	}
	if s.payments == nil {
		return reference, nil
	}

	confirmation, err := s.payments.ConfirmPayment(ctx, reference, draft.Payment.Total)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.logger(ctx, "checkout.payment.confirm_failed", map[string]any{
			"draftId":   draft.DraftID,
			"reference": reference,
			"error":     err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrPaymentNotConfirmed, err)
	}
	if !confirmation.Confirmed {
		return "", fmt.Errorf("%w: reference %s was not confirmed by %s", ErrPaymentNotConfirmed, reference, confirmation.Provider)
	}
	if confirmation.Reference != "" {
		reference = confirmation.Reference
	}
	return reference, nil
}

// commit assigns a code and inserts the order. A code collision is retried once with a freshly
// assigned code before surfacing as a conflict; a draft collision replays the winning order.
func (s *checkoutService) commit(ctx context.Context, prepared preparedOrder, draftID, reference, actorID string) (Order, error) {
	n := prepared.order
	now := s.now()
	order := domain.Order{
		ID:        s.newID(),
		DraftID:   draftID,
		Channel:   n.Channel,
		Product:   n.Product,
		Customer:  n.Customer,
		Item:      n.Item,
		Delivery:  n.Delivery,
		Payment:   applyPricing(domain.OrderPayment{Method: n.Method, Reference: reference}, prepared.pricing),
		Status:    domain.OrderStatusPreparing,
		Revision:  initialRevision,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var lastErr error
	for attempt := 0; attempt < codeAssignAttempts; attempt++ {
		code, err := s.codes.Assign(ctx)
		if err != nil {
			return Order{}, err
		}
		order.Code = code

		err = s.orders.Insert(ctx, order)
		if err == nil {
			s.logger(ctx, "order.created", map[string]any{
				"orderId": order.ID,
				"code":    order.Code,
				"channel": string(order.Channel),
				"total":   order.Payment.Total,
			})
			publishOrderEvent(ctx, s.events, s.logger, orderEvent(orderEventCreated, order, "", actorID, ""))
			return order, nil
		}

		lastErr = mapRepositoryError(err)
		if !errors.Is(lastErr, ErrOrderConflict) {
			return Order{}, lastErr
		}
		kind := repositories.ConflictKindOf(err)
		if draftID != "" && (kind == repositories.ConflictDraft || kind == "") {
			// A concurrent commit of the same draft won the race.
			if existing, findErr := s.orders.FindByDraftID(ctx, draftID); findErr == nil {
				return existing, nil
			}
		}
		if kind != repositories.ConflictOrderCode && kind != "" {
			return Order{}, lastErr
		}
		s.logger(ctx, "order.code.conflict", map[string]any{
			"code":    code,
			"attempt": attempt + 1,
		})
	}
	return Order{}, lastErr
}
