package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/auth"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/idempotency"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories/memory"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

var handlerTestNow = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

const (
	staffToken    = "staff-token"
	customerToken = "customer-token"
)

type stubTokenVerifier struct{}

func (stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	switch idToken {
	case staffToken:
		return &firebaseauth.Token{UID: "staff-1", Claims: map[string]any{"role": "staff"}}, nil
	case customerToken:
		return &firebaseauth.Token{UID: "cust-1", Claims: map[string]any{}}, nil
	default:
		return nil, errors.New("token rejected")
	}
}

type orderFixture struct {
	router   http.Handler
	orders   *memory.OrderRepository
	checkout services.CheckoutService
}

func newOrderFixture(t *testing.T, opts ...OrderHandlerOption) orderFixture {
	t.Helper()
	clock := func() time.Time { return handlerTestNow }
	orders := memory.NewOrderRepository()

	codes, err := services.NewCodeAssigner(services.CodeAssignerDeps{Counters: memory.NewCounterRepository(), Clock: clock})
	if err != nil {
		t.Fatalf("new code assigner: %v", err)
	}
	drafts, err := services.NewDraftCodec("handler-secret", 15*time.Minute, clock)
	if err != nil {
		t.Fatalf("new draft codec: %v", err)
	}
	pricing, err := services.NewPricingCalculator(services.DefaultPricingConfig())
	if err != nil {
		t.Fatalf("new pricing: %v", err)
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     orders,
		Catalog:    memory.NewProductCatalog(),
		Codes:      codes,
		Pricing:    pricing,
		Normalizer: services.NewOrderNormalizer(time.UTC),
		Drafts:     drafts,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{Orders: orders, Clock: clock})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	dashboard, err := services.NewDashboardService(services.DashboardServiceDeps{Orders: orders, Location: time.UTC, Clock: clock})
	if err != nil {
		t.Fatalf("new dashboard service: %v", err)
	}

	authn := auth.NewAuthenticator(stubTokenVerifier{})
	router := NewRouter(
		WithOrderRoutes(NewOrderHandlers(authn, orderSvc, checkout, opts...).Routes),
		WithDashboardRoutes(NewDashboardHandlers(authn, dashboard).Routes),
	)
	return orderFixture{router: router, orders: orders, checkout: checkout}
}

func orderBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"customerId":      "cust-1",
		"productName":     "Chocolate Fudge",
		"basePrice":       2000,
		"customerName":    "Ama",
		"phone":           "071-234 5678",
		"deliveryAddress": "12 Galle Road",
		"size":            "medium",
		"quantity":        2,
		"deliveryDate":    "2026-04-12",
		"paymentMethod":   "cashOnDelivery",
	}
	for k, v := range overrides {
		if v == nil {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	return body
}

func (fx orderFixture) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decodeBody[errorResponse](t, rec); got.Error != kind {
		t.Fatalf("expected error kind %q, got %+v", kind, got)
	}
}

func (fx orderFixture) createOrder(t *testing.T) orderPayload {
	t.Helper()
	rec := fx.do(t, http.MethodPost, "/orders", "", orderBody(nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rec.Code, rec.Body.String())
	}
	return decodeBody[orderPayload](t, rec)
}

func TestCreateOrderCommitsCashOnDelivery(t *testing.T) {
	fx := newOrderFixture(t)

	rec := fx.do(t, http.MethodPost, "/orders", "", orderBody(nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[orderPayload](t, rec)
	if got.HumanCode != "ORD0001" || got.Status != "Preparing" || got.Revision != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got.Payment.Total != 5166 || got.Payment.Tax != 346 || got.Customer.Phone != "0712345678" {
		t.Fatalf("unexpected payment or customer: %+v %+v", got.Payment, got.Customer)
	}
	if loc := rec.Header().Get("Location"); loc != "/orders/ORD0001" {
		t.Fatalf("unexpected location %q", loc)
	}

	second := fx.createOrder(t)
	if second.HumanCode != "ORD0002" {
		t.Fatalf("expected sequential code, got %s", second.HumanCode)
	}
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	fx := newOrderFixture(t)

	assertError(t, fx.do(t, http.MethodPost, "/orders", "", orderBody(map[string]any{"phone": nil})), http.StatusBadRequest, "validation_error")
	assertError(t, fx.do(t, http.MethodPost, "/orders", "", orderBody(map[string]any{"deliveryDate": "2026-04-01"})), http.StatusBadRequest, "validation_error")
	assertError(t, fx.do(t, http.MethodPost, "/orders", "", nil), http.StatusBadRequest, "validation_error")

	if count, _ := fx.orders.Count(context.Background()); count != 0 {
		t.Fatalf("expected no orders stored, got %d", count)
	}
}

func TestQuoteMatchesCommittedTotal(t *testing.T) {
	fx := newOrderFixture(t)

	rec := fx.do(t, http.MethodPost, "/orders/quote", "", orderBody(nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: %d %s", rec.Code, rec.Body.String())
	}
	quote := decodeBody[pricingPayload](t, rec)
	order := fx.createOrder(t)
	if quote.Total != order.Payment.Total || quote.UnitPrice != order.Payment.UnitPrice {
		t.Fatalf("quote %+v disagrees with order %+v", quote, order.Payment)
	}
}

func TestCardCheckoutGoesThroughDraftAndCommit(t *testing.T) {
	fx := newOrderFixture(t)

	rec := fx.do(t, http.MethodPost, "/orders", "", orderBody(map[string]any{"paymentMethod": "creditCard"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	draft := decodeBody[draftPayload](t, rec)
	if draft.Draft == "" || draft.Pricing.Total != 5166 || draft.ExpiresAt == "" {
		t.Fatalf("unexpected draft: %+v", draft)
	}
	if count, _ := fx.orders.Count(context.Background()); count != 0 {
		t.Fatalf("draft must not persist an order, got %d", count)
	}

	assertError(t, fx.do(t, http.MethodPost, "/orders/commit", "", map[string]any{"draft": draft.Draft}), http.StatusPaymentRequired, "payment_not_confirmed")

	commit := map[string]any{"draft": draft.Draft, "paymentReference": "pi_123", "total": 1}
	rec = fx.do(t, http.MethodPost, "/orders/commit", "", commit)
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit: %d %s", rec.Code, rec.Body.String())
	}
	order := decodeBody[orderPayload](t, rec)
	if order.Payment.Total != 5166 || order.Payment.Reference != "pi_123" || order.Payment.Method != "creditCard" {
		t.Fatalf("client total must be ignored: %+v", order.Payment)
	}

	again := decodeBody[orderPayload](t, fx.do(t, http.MethodPost, "/orders/commit", "", commit))
	if again.HumanCode != order.HumanCode {
		t.Fatalf("recommitting a draft must return the same order, got %s and %s", order.HumanCode, again.HumanCode)
	}
}

func TestCommitRejectsTamperedDraft(t *testing.T) {
	fx := newOrderFixture(t)

	assertError(t, fx.do(t, http.MethodPost, "/orders/commit", "", map[string]any{"draft": "not-a-draft", "paymentReference": "pi_1"}), http.StatusBadRequest, "invalid_draft")
	assertError(t, fx.do(t, http.MethodPost, "/orders/commit", "", map[string]any{"paymentReference": "pi_1"}), http.StatusBadRequest, "validation_error")
}

func TestGetOrderByCode(t *testing.T) {
	fx := newOrderFixture(t)
	created := fx.createOrder(t)

	rec := fx.do(t, http.MethodGet, "/orders/"+created.HumanCode, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[orderPayload](t, rec); got.InternalID != created.InternalID {
		t.Fatalf("unexpected order %+v", got)
	}

	assertError(t, fx.do(t, http.MethodGet, "/orders/ORD9999", "", nil), http.StatusNotFound, "not_found")
}

func TestListCustomerOrders(t *testing.T) {
	fx := newOrderFixture(t)
	fx.createOrder(t)
	fx.createOrder(t)

	assertError(t, fx.do(t, http.MethodGet, "/orders", "", nil), http.StatusBadRequest, "validation_error")
	assertError(t, fx.do(t, http.MethodGet, "/orders?customerId=cust-1&limit=zero", "", nil), http.StatusBadRequest, "validation_error")

	rec := fx.do(t, http.MethodGet, "/orders?customerId=cust-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[struct {
		Items []orderPayload `json:"items"`
	}](t, rec)
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(got.Items))
	}

	other := decodeBody[struct {
		Items []orderPayload `json:"items"`
	}](t, fx.do(t, http.MethodGet, "/orders?customerId=someone-else", "", nil))
	if len(other.Items) != 0 {
		t.Fatalf("expected no orders for another customer, got %d", len(other.Items))
	}
}

func TestChangeStatusRequiresStaff(t *testing.T) {
	fx := newOrderFixture(t)
	created := fx.createOrder(t)
	path := "/orders/" + created.HumanCode + "/status"
	body := map[string]any{"status": "OutForDelivery"}

	assertError(t, fx.do(t, http.MethodPatch, path, "", body), http.StatusUnauthorized, "unauthenticated")
	assertError(t, fx.do(t, http.MethodPatch, path, customerToken, body), http.StatusForbidden, "forbidden")

	rec := fx.do(t, http.MethodPatch, path, staffToken, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("transition: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[orderPayload](t, rec); got.Status != "OutForDelivery" || got.Revision != 2 {
		t.Fatalf("unexpected order after transition: %+v", got)
	}
}

func TestChangeStatusLifecycleErrors(t *testing.T) {
	fx := newOrderFixture(t)
	created := fx.createOrder(t)
	path := "/orders/" + created.HumanCode + "/status"

	assertError(t, fx.do(t, http.MethodPatch, path, staffToken, map[string]any{"status": "Baking"}), http.StatusBadRequest, "invalid_status")
	assertError(t, fx.do(t, http.MethodPatch, path, staffToken, map[string]any{"status": "OutForDelivery", "expected_revision": 7}), http.StatusConflict, "conflict")

	if rec := fx.do(t, http.MethodPatch, path, staffToken, map[string]any{"status": "OutForDelivery", "expected_status": "Preparing"}); rec.Code != http.StatusOK {
		t.Fatalf("transition: %d %s", rec.Code, rec.Body.String())
	}
	assertError(t, fx.do(t, http.MethodPatch, path, staffToken, map[string]any{"status": "Preparing"}), http.StatusConflict, "invalid_transition")

	// The internal id resolves as well as the human code.
	rec := fx.do(t, http.MethodPatch, "/orders/"+created.InternalID+"/status", staffToken, map[string]any{"status": "Delivered"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deliver: %d %s", rec.Code, rec.Body.String())
	}
	delivered := decodeBody[orderPayload](t, rec)
	if delivered.Status != "Delivered" || delivered.DeliveredAt == "" {
		t.Fatalf("unexpected delivered order: %+v", delivered)
	}

	assertError(t, fx.do(t, http.MethodPatch, path, staffToken, map[string]any{"status": "Cancelled"}), http.StatusConflict, "terminal_state")
}

func TestRemoveOrderSoftCancels(t *testing.T) {
	fx := newOrderFixture(t)
	created := fx.createOrder(t)
	path := "/orders/" + created.HumanCode + "?reason=customer+called"

	assertError(t, fx.do(t, http.MethodDelete, path, customerToken, nil), http.StatusForbidden, "forbidden")

	rec := fx.do(t, http.MethodDelete, path, staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[removeOrderResponse](t, rec)
	if got.Deleted || got.Order.Status != "Cancelled" || got.Order.CancelReason != "customer called" || got.Order.CancelledAt == "" {
		t.Fatalf("unexpected removal result: %+v", got)
	}

	again := decodeBody[removeOrderResponse](t, fx.do(t, http.MethodDelete, path, staffToken, nil))
	if again.Order.Revision != got.Order.Revision {
		t.Fatalf("cancelling twice must not bump the revision: %d then %d", got.Order.Revision, again.Order.Revision)
	}

	assertError(t, fx.do(t, http.MethodDelete, "/orders/ORD4040", staffToken, nil), http.StatusNotFound, "not_found")
}

func TestIntakeRateLimit(t *testing.T) {
	fx := newOrderFixture(t, WithIntakeRateLimit(1))

	if rec := fx.do(t, http.MethodPost, "/orders/quote", "", orderBody(nil)); rec.Code != http.StatusOK {
		t.Fatalf("first quote: %d %s", rec.Code, rec.Body.String())
	}
	rec := fx.do(t, http.MethodPost, "/orders/quote", "", orderBody(nil))
	assertError(t, rec, http.StatusTooManyRequests, "rate_limited")
	if got := rec.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Fatalf("expected Retry-After header, got %q", got)
	}

	// Quotes and placements draw from separate budgets.
	if rec := fx.do(t, http.MethodPost, "/orders", "", orderBody(nil)); rec.Code != http.StatusCreated {
		t.Fatalf("create after quotes: %d %s", rec.Code, rec.Body.String())
	}
	assertError(t, fx.do(t, http.MethodPost, "/orders/draft", "", orderBody(nil)), http.StatusTooManyRequests, "rate_limited")

	// Staff entering phone orders are never throttled; signed-in customers get their own bucket.
	for i := 0; i < 3; i++ {
		if rec := fx.do(t, http.MethodPost, "/orders/quote", staffToken, orderBody(nil)); rec.Code != http.StatusOK {
			t.Fatalf("staff quote %d: %d", i, rec.Code)
		}
	}
	if rec := fx.do(t, http.MethodPost, "/orders/quote", customerToken, orderBody(nil)); rec.Code != http.StatusOK {
		t.Fatalf("customer quote: %d", rec.Code)
	}

	// Reads are never throttled.
	if rec := fx.do(t, http.MethodGet, "/orders?customerId=cust-1", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
}

func TestCreateOrderReplaysIdempotentRequests(t *testing.T) {
	store := idempotency.NewMemoryStore()
	fx := newOrderFixture(t, WithIdempotency(idempotency.Middleware(store, idempotency.WithClock(func() time.Time { return handlerTestNow }))))

	first := fx.do(t, http.MethodPost, "/orders", "", orderBody(nil), "Idempotency-Key", "k-1")
	second := fx.do(t, http.MethodPost, "/orders", "", orderBody(nil), "Idempotency-Key", "k-1")
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}
	if second.Header().Get(idempotency.ReplayHeader) != "true" {
		t.Fatalf("expected replayed response")
	}
	if decodeBody[orderPayload](t, first).HumanCode != decodeBody[orderPayload](t, second).HumanCode {
		t.Fatalf("replay returned a different order")
	}
	if count, _ := fx.orders.Count(context.Background()); count != 1 {
		t.Fatalf("expected a single stored order, got %d", count)
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"", 50, true},
		{"10", 10, true},
		{"1000", 200, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"ten", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseLimit(tc.raw, defaultCustomerOrderLimit, maxCustomerOrderLimit)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseLimit(%q) = %d,%v want %d,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestOrderRoutesWithoutRegistrar(t *testing.T) {
	router := NewRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD0001", nil))
	assertError(t, rec, http.StatusNotImplemented, "not_implemented")
}
