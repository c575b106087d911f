package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/textutil"
)

const (
	defaultFrosting    = "buttercream"
	minPhoneDigits     = 10
	maxPhoneDigits     = 15
	deliveryDateLayout = "2006-01-02"
)

// Number decodes JSON numbers and numeric strings. Unparseable input leaves Valid false so callers
// can fall back to a default instead of rejecting the request. Values beyond the int64 range
// saturate at its bounds.
type Number struct {
	Set   bool
	Valid bool
	Value int64
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	n.Set = true
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		n.Valid = false
		return nil
	}
	n.Valid = true
	switch {
	case f >= math.MaxInt64:
		n.Value = math.MaxInt64
	case f <= math.MinInt64:
		n.Value = math.MinInt64
	default:
		n.Value = int64(f)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(n.Value, 10)), nil
}

// NumberOf returns a valid Number holding v.
func NumberOf(v int64) Number {
	return Number{Set: true, Valid: true, Value: v}
}

func (n *Number) ok() bool {
	return n != nil && n.Set && n.Valid
}

// OrderRequest is the raw intake shape. Every concept may arrive nested or flat; nested values win.
type OrderRequest struct {
	Channel    string `json:"channel,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	UserID     string `json:"userId,omitempty"`

	Product  *ProductInput  `json:"product,omitempty"`
	Customer *CustomerInput `json:"customer,omitempty"`
	Item     *ItemInput     `json:"item,omitempty"`
	Delivery *DeliveryInput `json:"delivery,omitempty"`
	Payment  *PaymentInput  `json:"payment,omitempty"`

	ProductID    string `json:"productId,omitempty"`
	ProductName  string `json:"productName,omitempty"`
	ProductImage string `json:"productImage,omitempty"`
	BasePrice    Number `json:"basePrice,omitempty"`
	Price        Number `json:"price,omitempty"`

	CustomerName    string `json:"customerName,omitempty"`
	Phone           string `json:"phone,omitempty"`
	CustomerPhone   string `json:"customerPhone,omitempty"`
	DeliveryAddress string `json:"deliveryAddress,omitempty"`
	Address         string `json:"address,omitempty"`

	Size          string `json:"size,omitempty"`
	Quantity      Number `json:"quantity,omitempty"`
	Frosting      string `json:"frosting,omitempty"`
	Message       string `json:"message,omitempty"`
	Customization string `json:"customization,omitempty"`

	DeliveryDate        string `json:"deliveryDate,omitempty"`
	DeliveryTime        string `json:"deliveryTime,omitempty"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`

	PaymentMethod string  `json:"paymentMethod,omitempty"`
	DeliveryFee   *Number `json:"deliveryFee,omitempty"`
	Total         *Number `json:"total,omitempty"`
}

// ProductInput is the nested product shape.
type ProductInput struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
	Price Number `json:"price,omitempty"`
}

// CustomerInput is the nested customer shape.
type CustomerInput struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ItemInput is the nested item shape.
type ItemInput struct {
	Size          string `json:"size,omitempty"`
	Quantity      Number `json:"quantity,omitempty"`
	Frosting      string `json:"frosting,omitempty"`
	Message       string `json:"message,omitempty"`
	Customization string `json:"customization,omitempty"`
}

// DeliveryInput is the nested delivery shape.
type DeliveryInput struct {
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// PaymentInput is the nested payment shape.
type PaymentInput struct {
	Method      string  `json:"method,omitempty"`
	DeliveryFee *Number `json:"deliveryFee,omitempty"`
	Total       *Number `json:"total,omitempty"`
}

// NormalizedOrder is the canonical, unpriced order produced from an OrderRequest.
type NormalizedOrder struct {
	Channel  domain.OrderChannel
	Product  domain.ProductSnapshot
	Customer domain.Customer
	Item     domain.OrderItem
	Delivery domain.Delivery
	Method   domain.PaymentMethod
	// PriceProvided is false when the client sent no usable base price.
	PriceProvided bool
	DeliveryFee   *int64
	// ClientTotal is recorded for diagnostics only and never persisted.
	ClientTotal *int64
}

// OrderNormalizer merges heterogeneous request shapes into a NormalizedOrder.
type OrderNormalizer struct {
	location *time.Location
}

// NewOrderNormalizer constructs a normalizer that evaluates delivery dates in loc.
func NewOrderNormalizer(loc *time.Location) *OrderNormalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderNormalizer{location: loc}
}

// Normalize validates req against now and returns the canonical order.
func (n *OrderNormalizer) Normalize(req OrderRequest, now time.Time) (NormalizedOrder, error) {
	product := valueOr(req.Product)
	customer := valueOr(req.Customer)
	item := valueOr(req.Item)
	delivery := valueOr(req.Delivery)
	payment := valueOr(req.Payment)

	var problems []string

	channel, err := parseChannel(req.Channel)
	if err != nil {
		problems = append(problems, err.Error())
	}

	out := NormalizedOrder{
		Channel: channel,
		Product: domain.ProductSnapshot{
			ProductID: textutil.FirstNonBlank(product.ID, req.ProductID),
			Name:      textutil.PlainText(textutil.FirstNonBlank(product.Name, req.ProductName)),
			ImageURL:  textutil.FirstNonBlank(product.Image, req.ProductImage),
		},
		Customer: domain.Customer{
			ID:      textutil.FirstNonBlank(customer.ID, req.CustomerID, req.UserID),
			Name:    textutil.PlainText(textutil.FirstNonBlank(customer.Name, req.CustomerName)),
			Address: textutil.PlainText(textutil.FirstNonBlank(customer.Address, req.DeliveryAddress, req.Address)),
		},
		Item: domain.OrderItem{
			Frosting:      textutil.PlainText(textutil.FirstNonBlank(item.Frosting, req.Frosting)),
			Message:       textutil.PlainText(textutil.FirstNonBlank(item.Message, req.Message)),
			Customization: textutil.PlainText(textutil.FirstNonBlank(item.Customization, req.Customization)),
		},
		Delivery: domain.Delivery{
			Instructions: textutil.PlainText(textutil.FirstNonBlank(delivery.Instructions, req.SpecialInstructions)),
		},
	}

	switch {
	case product.Price.ok():
		out.Product.BasePrice, out.PriceProvided = product.Price.Value, true
	case req.BasePrice.ok():
		out.Product.BasePrice, out.PriceProvided = req.BasePrice.Value, true
	case req.Price.ok():
		out.Product.BasePrice, out.PriceProvided = req.Price.Value, true
	}
	if out.PriceProvided && out.Product.BasePrice < 0 {
		problems = append(problems, "product price must be non-negative")
	}
	if out.Product.ProductID == "" && out.Product.Name == "" {
		problems = append(problems, "product id or name is required")
	}

	if out.Customer.ID == "" {
		problems = append(problems, "customer id is required")
	}
	if out.Customer.Address == "" {
		problems = append(problems, "delivery address is required")
	}
	phone, err := normalizePhone(textutil.FirstNonBlank(customer.Phone, req.Phone, req.CustomerPhone))
	if err != nil {
		problems = append(problems, err.Error())
	}
	out.Customer.Phone = phone

	size, err := parseSize(textutil.FirstNonBlank(item.Size, req.Size))
	if err != nil {
		problems = append(problems, err.Error())
	}
	out.Item.Size = size
	out.Item.Quantity = 1
	switch {
	case item.Quantity.ok():
		out.Item.Quantity = int(item.Quantity.Value)
	case req.Quantity.ok():
		out.Item.Quantity = int(req.Quantity.Value)
	}
	if out.Item.Frosting == "" {
		out.Item.Frosting = defaultFrosting
	}

	date, err := n.parseDeliveryDate(textutil.FirstNonBlank(delivery.Date, req.DeliveryDate), now)
	if err != nil {
		problems = append(problems, err.Error())
	}
	out.Delivery.Date = date
	slot, err := parseSlot(textutil.FirstNonBlank(delivery.Time, req.DeliveryTime))
	if err != nil {
		problems = append(problems, err.Error())
	}
	out.Delivery.Slot = slot

	method, err := ParsePaymentMethod(textutil.FirstNonBlank(payment.Method, req.PaymentMethod))
	if err != nil {
		problems = append(problems, err.Error())
	}
	out.Method = method

	if fee := firstNumber(payment.DeliveryFee, req.DeliveryFee); fee != nil {
		if *fee < 0 {
			problems = append(problems, "delivery fee must be non-negative")
		}
		out.DeliveryFee = fee
	}
	out.ClientTotal = firstNumber(payment.Total, req.Total)

	if len(problems) > 0 {
		return NormalizedOrder{}, fmt.Errorf("%w: %s", ErrOrderInvalidInput, strings.Join(problems, "; "))
	}
	return out, nil
}

func (n *OrderNormalizer) parseDeliveryDate(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("delivery date is required")
	}
	var parsed time.Time
	var err error
	if len(raw) == len(deliveryDateLayout) {
		parsed, err = time.ParseInLocation(deliveryDateLayout, raw, n.location)
	} else {
		parsed, err = time.Parse(time.RFC3339, raw)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("delivery date %q is not a valid date", raw)
	}
	day := calendarDay(parsed.In(n.location))
	today := calendarDay(now.In(n.location))
	if !day.After(today) {
		return time.Time{}, fmt.Errorf("delivery date must be after %s", today.Format(deliveryDateLayout))
	}
	return day, nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func normalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("phone is required")
	}
	phone := textutil.StripPhoneSeparators(raw)
	if !textutil.IsDigits(phone) || len(phone) < minPhoneDigits || len(phone) > maxPhoneDigits {
		return "", fmt.Errorf("phone must contain %d-%d digits", minPhoneDigits, maxPhoneDigits)
	}
	return phone, nil
}

func parseChannel(raw string) (domain.OrderChannel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(domain.OrderChannelWeb):
		return domain.OrderChannelWeb, nil
	case string(domain.OrderChannelAdmin):
		return domain.OrderChannelAdmin, nil
	case string(domain.OrderChannelPhone):
		return domain.OrderChannelPhone, nil
	default:
		return "", fmt.Errorf("unsupported channel %q", raw)
	}
}

func parseSize(raw string) (domain.CakeSize, error) {
	switch strings.ToLower(raw) {
	case "", string(domain.CakeSizeSmall):
		return domain.CakeSizeSmall, nil
	case string(domain.CakeSizeMedium):
		return domain.CakeSizeMedium, nil
	case string(domain.CakeSizeLarge):
		return domain.CakeSizeLarge, nil
	default:
		return "", fmt.Errorf("unsupported size %q", raw)
	}
}

func parseSlot(raw string) (domain.DeliverySlot, error) {
	switch strings.ToLower(raw) {
	case "", string(domain.DeliverySlotAfternoon):
		return domain.DeliverySlotAfternoon, nil
	case string(domain.DeliverySlotMorning):
		return domain.DeliverySlotMorning, nil
	case string(domain.DeliverySlotEvening):
		return domain.DeliverySlotEvening, nil
	default:
		return "", fmt.Errorf("unsupported delivery time %q", raw)
	}
}

// ParsePaymentMethod accepts the canonical method names and common spellings of them.
func ParsePaymentMethod(raw string) (domain.PaymentMethod, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch key {
	case "":
		return "", errors.New("payment method is required")
	case "creditcard", "card":
		return domain.PaymentMethodCreditCard, nil
	case "afterpay":
		return domain.PaymentMethodAfterpay, nil
	case "cashondelivery", "cod", "cash":
		return domain.PaymentMethodCashOnDelivery, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", raw)
	}
}

func firstNumber(values ...*Number) *int64 {
	for _, v := range values {
		if v.ok() {
			value := v.Value
			return &value
		}
	}
	return nil
}

func valueOr[T any](ptr *T) T {
	if ptr == nil {
		var zero T
		return zero
	}
	return *ptr
}
