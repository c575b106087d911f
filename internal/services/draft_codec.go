package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

const draftIssuer = "cakey-checkout"

// DraftCodec seals order drafts into HS256 tokens so the client can hold a draft it cannot alter.
type DraftCodec struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
	newID  func() string
}

// NewDraftCodec constructs a codec. ttl bounds how long a draft can be committed.
func NewDraftCodec(secret string, ttl time.Duration, clock func() time.Time) (*DraftCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("draft codec: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("draft codec: ttl must be positive")
	}
	if clock == nil {
		clock = time.Now
	}
	return &DraftCodec{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
		newID:  uuid.NewString,
	}, nil
}

type draftClaims struct {
	Draft draftPayload `json:"draft"`
	jwt.RegisteredClaims
}

type draftPayload struct {
	Channel       string `json:"channel"`
	ProductID     string `json:"productId,omitempty"`
	ProductName   string `json:"productName"`
	ProductImage  string `json:"productImage,omitempty"`
	BasePrice     int64  `json:"basePrice"`
	CustomerID    string `json:"customerId"`
	CustomerName  string `json:"customerName,omitempty"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	Size          string `json:"size"`
	Quantity      int    `json:"quantity"`
	Frosting      string `json:"frosting"`
	Message       string `json:"message,omitempty"`
	Customization string `json:"customization,omitempty"`
	DeliveryDate  string `json:"deliveryDate"`
	DeliverySlot  string `json:"deliverySlot"`
	Instructions  string `json:"instructions,omitempty"`
	Method        string `json:"method"`
	DeliveryFee   int64  `json:"deliveryFee"`
	Total         int64  `json:"total"`
}

// Seal assigns a draft id and expiry to draft and returns the signed token.
func (c *DraftCodec) Seal(draft domain.OrderDraft) (domain.OrderDraft, string, error) {
	now := c.clock().UTC()
	draft.DraftID = c.newID()
	draft.ExpiresAt = now.Add(c.ttl)

	claims := draftClaims{
		Draft: draftPayload{
			Channel:       string(draft.Channel),
			ProductID:     draft.Product.ProductID,
			ProductName:   draft.Product.Name,
			ProductImage:  draft.Product.ImageURL,
			BasePrice:     draft.Product.BasePrice,
			CustomerID:    draft.Customer.ID,
			CustomerName:  draft.Customer.Name,
			Phone:         draft.Customer.Phone,
			Address:       draft.Customer.Address,
			Size:          string(draft.Item.Size),
			Quantity:      draft.Item.Quantity,
			Frosting:      draft.Item.Frosting,
			Message:       draft.Item.Message,
			Customization: draft.Item.Customization,
			DeliveryDate:  draft.Delivery.Date.Format(deliveryDateLayout),
			DeliverySlot:  string(draft.Delivery.Slot),
			Instructions:  draft.Delivery.Instructions,
			Method:        string(draft.Payment.Method),
			DeliveryFee:   draft.Payment.DeliveryFee,
			Total:         draft.Payment.Total,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        draft.DraftID,
			Issuer:    draftIssuer,
			Subject:   draft.Customer.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(draft.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return domain.OrderDraft{}, "", fmt.Errorf("draft codec: sign: %w", err)
	}
	return draft, token, nil
}

// Open verifies token and returns the draft exactly as it was sealed. Amounts are the
// totals displayed to the customer, not a trusted price.
func (c *DraftCodec) Open(token string) (domain.OrderDraft, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.OrderDraft{}, fmt.Errorf("%w: draft token is required", ErrDraftInvalid)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &draftClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}); err != nil {
		return domain.OrderDraft{}, fmt.Errorf("%w: %v", ErrDraftInvalid, err)
	}

	now := c.clock().UTC()
	if claims.Issuer != draftIssuer || claims.ID == "" || claims.ExpiresAt == nil {
		return domain.OrderDraft{}, fmt.Errorf("%w: malformed draft claims", ErrDraftInvalid)
	}
	if !claims.VerifyExpiresAt(now, true) {
		return domain.OrderDraft{}, fmt.Errorf("%w: draft expired at %s", ErrDraftInvalid, claims.ExpiresAt.Time.Format(time.RFC3339))
	}

	p := claims.Draft
	date, err := time.Parse(deliveryDateLayout, p.DeliveryDate)
	if err != nil {
		return domain.OrderDraft{}, fmt.Errorf("%w: delivery date: %v", ErrDraftInvalid, err)
	}

	return domain.OrderDraft{
		DraftID: claims.ID,
		Channel: domain.OrderChannel(p.Channel),
		Product: domain.ProductSnapshot{
			ProductID: p.ProductID,
			Name:      p.ProductName,
			ImageURL:  p.ProductImage,
			BasePrice: p.BasePrice,
		},
		Customer: domain.Customer{
			ID:      p.CustomerID,
			Name:    p.CustomerName,
			Phone:   p.Phone,
			Address: p.Address,
		},
		Item: domain.OrderItem{
			Size:          domain.CakeSize(p.Size),
			Quantity:      p.Quantity,
			Frosting:      p.Frosting,
			Message:       p.Message,
			Customization: p.Customization,
		},
		Delivery: domain.Delivery{
			Date:         date,
			Slot:         domain.DeliverySlot(p.DeliverySlot),
			Instructions: p.Instructions,
		},
		Payment: domain.OrderPayment{
			Method:      domain.PaymentMethod(p.Method),
			DeliveryFee: p.DeliveryFee,
			Total:       p.Total,
		},
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// draftRequest rebuilds an intake request from an opened draft so commit re-runs normalization.
func draftRequest(draft domain.OrderDraft) OrderRequest {
	fee := NumberOf(draft.Payment.DeliveryFee)
	return OrderRequest{
		Channel: string(draft.Channel),
		Product: &ProductInput{
			ID:    draft.Product.ProductID,
			Name:  draft.Product.Name,
			Image: draft.Product.ImageURL,
			Price: NumberOf(draft.Product.BasePrice),
		},
		Customer: &CustomerInput{
			ID:      draft.Customer.ID,
			Name:    draft.Customer.Name,
			Phone:   draft.Customer.Phone,
			Address: draft.Customer.Address,
		},
		Item: &ItemInput{
			Size:          string(draft.Item.Size),
			Quantity:      NumberOf(int64(draft.Item.Quantity)),
			Frosting:      draft.Item.Frosting,
			Message:       draft.Item.Message,
			Customization: draft.Item.Customization,
		},
		Delivery: &DeliveryInput{
			Date:         draft.Delivery.Date.Format(deliveryDateLayout),
			Time:         string(draft.Delivery.Slot),
			Instructions: draft.Delivery.Instructions,
		},
		Payment: &PaymentInput{
			Method:      string(draft.Payment.Method),
			DeliveryFee: &fee,
		},
	}
}
