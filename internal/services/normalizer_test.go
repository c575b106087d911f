package services

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

var normalizerNow = time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)

func validFlatRequest() OrderRequest {
	return OrderRequest{
		CustomerID:      "cust-1",
		ProductName:     "Chocolate Fudge",
		BasePrice:       NumberOf(2000),
		CustomerName:    "Ama",
		Phone:           "071-234 5678",
		DeliveryAddress: "12 Galle Road",
		Size:            "medium",
		Quantity:        NumberOf(2),
		DeliveryDate:    "2026-04-12",
		PaymentMethod:   "cashOnDelivery",
	}
}

func TestNormalizeFlatRequest(t *testing.T) {
	n := NewOrderNormalizer(time.UTC)

	got, err := n.Normalize(validFlatRequest(), normalizerNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Customer.Phone != "0712345678" {
		t.Fatalf("expected normalized phone, got %q", got.Customer.Phone)
	}
	if got.Channel != domain.OrderChannelWeb || got.Item.Frosting != defaultFrosting || got.Delivery.Slot != domain.DeliverySlotAfternoon {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if !got.PriceProvided || got.Product.BasePrice != 2000 || got.Item.Quantity != 2 || got.Item.Size != domain.CakeSizeMedium {
		t.Fatalf("unexpected item or price: %+v", got)
	}
	if got.Method != domain.PaymentMethodCashOnDelivery {
		t.Fatalf("unexpected method %q", got.Method)
	}
	if !got.Delivery.Date.Equal(time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected delivery date %v", got.Delivery.Date)
	}
}

func TestNormalizeNestedValuesTakePrecedence(t *testing.T) {
	n := NewOrderNormalizer(time.UTC)
	req := validFlatRequest()
	req.Customer = &CustomerInput{Name: "Nested Name", Address: "Nested Address"}
	req.Item = &ItemInput{Size: "large"}
	req.Delivery = &DeliveryInput{Time: "evening"}
	req.Payment = &PaymentInput{Method: "afterpay"}

	got, err := n.Normalize(req, normalizerNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Customer.Name != "Nested Name" || got.Customer.Address != "Nested Address" {
		t.Fatalf("nested customer did not win: %+v", got.Customer)
	}
	if got.Customer.ID != "cust-1" || got.Customer.Phone != "0712345678" {
		t.Fatalf("flat fallback missing: %+v", got.Customer)
	}
	if got.Item.Size != domain.CakeSizeLarge || got.Item.Quantity != 2 {
		t.Fatalf("unexpected item: %+v", got.Item)
	}
	if got.Delivery.Slot != domain.DeliverySlotEvening || got.Method != domain.PaymentMethodAfterpay {
		t.Fatalf("unexpected delivery or method: %+v %s", got.Delivery, got.Method)
	}
}

func TestNormalizeDecodesLooseJSON(t *testing.T) {
	body := `{
		"userId": "cust-9",
		"product": {"name": "Red Velvet", "price": "1500"},
		"customer": {"phone": "+94 (71) 234-5678", "address": "  7 Lake Drive  "},
		"item": {"quantity": "abc", "message": "<b>Happy</b> Birthday"},
		"delivery": {"date": "2026-04-11T09:00:00Z"},
		"payment": {"method": "card", "total": 4000}
	}`
	var req OrderRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := NewOrderNormalizer(time.UTC).Normalize(req, normalizerNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Customer.ID != "cust-9" || got.Customer.Phone != "94712345678" || got.Customer.Address != "7 Lake Drive" {
		t.Fatalf("unexpected customer: %+v", got.Customer)
	}
	if got.Item.Quantity != 1 {
		t.Fatalf("non-numeric quantity should default to 1, got %d", got.Item.Quantity)
	}
	if got.Item.Message != "Happy Birthday" {
		t.Fatalf("expected markup stripped, got %q", got.Item.Message)
	}
	if got.Product.BasePrice != 1500 || got.Method != domain.PaymentMethodCreditCard {
		t.Fatalf("unexpected price or method: %+v", got)
	}
	if got.ClientTotal == nil || *got.ClientTotal != 4000 {
		t.Fatalf("client total not captured: %v", got.ClientTotal)
	}
}

func TestNumberSaturatesOutOfRangeValues(t *testing.T) {
	var req OrderRequest
	if err := json.Unmarshal([]byte(`{"quantity": 1e20, "basePrice": 1e19, "price": "-1e30"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.Quantity.Valid || req.Quantity.Value != math.MaxInt64 {
		t.Fatalf("quantity should saturate high, got %+v", req.Quantity)
	}
	if !req.BasePrice.Valid || req.BasePrice.Value != math.MaxInt64 {
		t.Fatalf("base price should saturate high, got %+v", req.BasePrice)
	}
	if !req.Price.Valid || req.Price.Value != math.MinInt64 {
		t.Fatalf("price should saturate low, got %+v", req.Price)
	}

	req = validFlatRequest()
	req.Quantity = Number{}
	if err := json.Unmarshal([]byte(`{"quantity": 1e20, "basePrice": 1e19}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := NewOrderNormalizer(time.UTC).Normalize(req, normalizerNow)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	calc, err := NewPricingCalculator(DefaultPricingConfig())
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	if q := calc.ClampQuantity(got.Item.Quantity); q != defaultMaxQuantity {
		t.Fatalf("huge quantity should clamp to the maximum, got %d", q)
	}
	_, err = calc.Price(PriceQuery{BasePrice: got.Product.BasePrice, Size: got.Item.Size, Quantity: got.Item.Quantity})
	if !errors.Is(err, ErrOrderInvalidInput) || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected out of range price, got %v", err)
	}
}

func TestNormalizeRejectsShortPhone(t *testing.T) {
	req := validFlatRequest()
	req.Phone = "12345"

	_, err := NewOrderNormalizer(time.UTC).Normalize(req, normalizerNow)
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "phone") {
		t.Fatalf("expected phone problem in %q", err.Error())
	}
}

func TestNormalizeCollectsAllProblems(t *testing.T) {
	_, err := NewOrderNormalizer(time.UTC).Normalize(OrderRequest{ProductName: "Cake"}, normalizerNow)
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, want := range []string{"customer id", "delivery address", "phone", "delivery date", "payment method"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestNormalizeAllowsBlankCustomerName(t *testing.T) {
	req := validFlatRequest()
	req.CustomerName = "   "

	got, err := NewOrderNormalizer(time.UTC).Normalize(req, normalizerNow)
	if err != nil {
		t.Fatalf("blank name must be accepted: %v", err)
	}
	if got.Customer.Name != "" {
		t.Fatalf("expected empty name, got %q", got.Customer.Name)
	}
}

func TestNormalizeDeliveryDateMustBeAfterToday(t *testing.T) {
	colombo, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	n := NewOrderNormalizer(colombo)

	for _, date := range []string{"2026-04-10", "2026-04-09", "not-a-date"} {
		req := validFlatRequest()
		req.DeliveryDate = date
		if _, err := n.Normalize(req, normalizerNow); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("date %s: expected validation error, got %v", date, err)
		}
	}

	// 20:00 UTC on the 10th is already the 11th in Colombo.
	late := time.Date(2026, 4, 10, 20, 0, 0, 0, time.UTC)
	req := validFlatRequest()
	req.DeliveryDate = "2026-04-11"
	if _, err := n.Normalize(req, late); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected same-day delivery in local time to be rejected, got %v", err)
	}
}

func TestNormalizeRejectsUnknownEnumerations(t *testing.T) {
	cases := map[string]func(*OrderRequest){
		"size":    func(r *OrderRequest) { r.Size = "huge" },
		"slot":    func(r *OrderRequest) { r.DeliveryTime = "midnight" },
		"method":  func(r *OrderRequest) { r.PaymentMethod = "barter" },
		"channel": func(r *OrderRequest) { r.Channel = "fax" },
	}
	for name, mutate := range cases {
		req := validFlatRequest()
		mutate(&req)
		if _, err := NewOrderNormalizer(time.UTC).Normalize(req, normalizerNow); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParsePaymentMethodAliases(t *testing.T) {
	cases := map[string]domain.PaymentMethod{
		"creditCard":       domain.PaymentMethodCreditCard,
		"credit_card":      domain.PaymentMethodCreditCard,
		"Cash on Delivery": domain.PaymentMethodCashOnDelivery,
		"COD":              domain.PaymentMethodCashOnDelivery,
		"AfterPay":         domain.PaymentMethodAfterpay,
	}
	for raw, want := range cases {
		got, err := ParsePaymentMethod(raw)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", raw, want, got, err)
		}
	}
}
