package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/auth"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/httpx"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/requestctx"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

const (
	defaultCustomerOrderLimit = 50
	maxCustomerOrderLimit     = 200
	maxReasonLength           = 500
)

type commitDraftRequest struct {
	Draft            string           `json:"draft"`
	PaymentReference string           `json:"paymentReference"`
	Total            *services.Number `json:"total,omitempty"`
}

type statusChangeRequest struct {
	Status           string `json:"status"`
	ExpectedStatus   string `json:"expected_status"`
	ExpectedRevision *int64 `json:"expected_revision"`
	Reason           string `json:"reason"`
}

type removeOrderResponse struct {
	Order   orderPayload `json:"order"`
	Deleted bool         `json:"deleted"`
}

// OrderHandlers serves order intake, tracking and staff status management.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	checkout services.CheckoutService

	// limiter meters the anonymous intake endpoints; nil disables throttling.
	limiter *intakeLimiter
	replay  func(http.Handler) http.Handler
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithIntakeRateLimit allows perMinute quotes and perMinute order placements (draft, create,
// commit) per client. Non-positive values disable throttling.
func WithIntakeRateLimit(perMinute int) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.limiter = newIntakeLimiter(perMinute, intakeWindow, nil)
	}
}

// WithIdempotency installs the replay middleware on POST /orders and /orders/commit.
func WithIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.replay = mw
	}
}

func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, checkout services.CheckoutService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints. Reads and intake are public; mutations need staff.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.Optional())
	}

	r.With(h.limiter.guard(intakeQuote)).Post("/quote", h.quote)
	r.Group(func(intake chi.Router) {
		intake.Use(h.limiter.guard(intakePlace))
		intake.Post("/draft", h.createDraft)
		intake.Group(func(replayed chi.Router) {
			if h.replay != nil {
				replayed.Use(h.replay)
			}
			replayed.Post("/", h.createOrder)
			replayed.Post("/commit", h.commitDraft)
		})
	})

	r.Get("/", h.listCustomerOrders)
	r.Get("/{code}", h.getOrder)

	r.Group(func(staff chi.Router) {
		if h.authn != nil {
			staff.Use(h.authn.RequireStaff())
		}
		staff.Patch("/{orderRef}/status", h.changeStatus)
		staff.Delete("/{orderRef}", h.removeOrder)
	})
}

func (h *OrderHandlers) decodeOrderRequest(w http.ResponseWriter, r *http.Request) (services.OrderRequest, bool) {
	var req services.OrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(r.Context(), w, decodeMessage(err))
		return services.OrderRequest{}, false
	}
	return req, true
}

func (h *OrderHandlers) quote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}
	pricing, err := h.checkout.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildPricingPayload(pricing))
}

// createOrder commits immediately for afterpay and cash on delivery. Card payments get a
// draft back (202) that must go through /orders/commit.
func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{Request: req, ActorID: requestctx.ActorID(ctx)})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if result.Draft != nil {
		httpx.WriteJSON(w, http.StatusAccepted, buildDraftPayload(*result.Draft))
		return
	}
	if result.Order == nil {
		writeServiceError(ctx, w, errors.New("checkout returned no result"))
		return
	}
	w.Header().Set("Location", "/orders/"+result.Order.Code)
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(*result.Order))
}

func (h *OrderHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	draft, err := h.checkout.CreateDraft(ctx, services.CheckoutCommand{Request: req, ActorID: requestctx.ActorID(ctx)})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildDraftPayload(draft))
}

func (h *OrderHandlers) commitDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body commitDraftRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		badRequest(ctx, w, decodeMessage(err))
		return
	}
	if strings.TrimSpace(body.Draft) == "" {
		badRequest(ctx, w, "draft is required")
		return
	}
	cmd := services.CommitDraftCommand{
		Token:            body.Draft,
		PaymentReference: body.PaymentReference,
		ActorID:          requestctx.ActorID(ctx),
	}
	if body.Total != nil && body.Total.Valid {
		total := body.Total.Value
		cmd.ClientTotal = &total
	}
	order, err := h.checkout.CommitDraft(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/orders/"+order.Code)
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		badRequest(ctx, w, "order code is required")
		return
	}
	order, err := h.orders.GetByCode(ctx, code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	customerID := strings.TrimSpace(query.Get("customerId"))
	if customerID == "" {
		badRequest(ctx, w, "customerId query parameter is required")
		return
	}
	limit, ok := parseLimit(query.Get("limit"), defaultCustomerOrderLimit, maxCustomerOrderLimit)
	if !ok {
		badRequest(ctx, w, "limit must be a positive integer")
		return
	}
	orders, err := h.orders.ListCustomerOrders(ctx, customerID, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": buildOrderList(orders)})
}

func (h *OrderHandlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body statusChangeRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		badRequest(ctx, w, decodeMessage(err))
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		badRequest(ctx, w, "status is required")
		return
	}
	if len(body.Reason) > maxReasonLength {
		badRequest(ctx, w, "reason is too long")
		return
	}
	cmd := services.OrderStatusTransitionCommand{
		OrderRef:         chi.URLParam(r, "orderRef"),
		TargetStatus:     body.Status,
		ExpectedRevision: body.ExpectedRevision,
		ActorID:          requestctx.ActorID(ctx),
		Reason:           strings.TrimSpace(body.Reason),
	}
	if expected := strings.TrimSpace(body.ExpectedStatus); expected != "" {
		cmd.ExpectedStatus = &expected
	}
	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) removeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if len(reason) > maxReasonLength {
		badRequest(ctx, w, "reason is too long")
		return
	}
	result, err := h.orders.Remove(ctx, services.RemoveOrderCommand{
		OrderRef: chi.URLParam(r, "orderRef"),
		ActorID:  requestctx.ActorID(ctx),
		Reason:   reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, removeOrderResponse{Order: buildOrderPayload(result.Order), Deleted: result.Deleted})
}

func parseLimit(raw string, fallback, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func decodeMessage(err error) string {
	if errors.Is(err, httpx.ErrEmptyBody) {
		return "request body is required"
	}
	return "request body must be valid JSON"
}
