package handlers

import (
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

const dateLayout = "2006-01-02"

type orderPayload struct {
	InternalID   string                `json:"internalId"`
	HumanCode    string                `json:"humanCode"`
	Channel      string                `json:"channel"`
	Status       string                `json:"status"`
	Revision     int64                 `json:"revision"`
	Product      productSnapshotOutput `json:"productSnapshot"`
	Customer     customerOutput        `json:"customer"`
	Item         itemOutput            `json:"item"`
	Delivery     deliveryOutput        `json:"delivery"`
	Payment      paymentOutput         `json:"payment"`
	CreatedAt    string                `json:"createdAt"`
	UpdatedAt    string                `json:"updatedAt"`
	CancelledAt  string                `json:"cancelledAt,omitempty"`
	DeliveredAt  string                `json:"deliveredAt,omitempty"`
	CancelReason string                `json:"cancelReason,omitempty"`
}

type productSnapshotOutput struct {
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	BasePrice int64  `json:"basePrice"`
}

type customerOutput struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type itemOutput struct {
	Size          string `json:"size"`
	Quantity      int    `json:"quantity"`
	Frosting      string `json:"frosting,omitempty"`
	Message       string `json:"message,omitempty"`
	Customization string `json:"customization,omitempty"`
}

type deliveryOutput struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	Instructions string `json:"specialInstructions,omitempty"`
}

type paymentOutput struct {
	Method      string `json:"method"`
	Reference   string `json:"reference,omitempty"`
	UnitPrice   int64  `json:"unitPrice"`
	Subtotal    int64  `json:"subtotal"`
	Tax         int64  `json:"tax"`
	DeliveryFee int64  `json:"deliveryFee"`
	Total       int64  `json:"total"`
}

type pricingPayload struct {
	BasePrice   int64  `json:"basePrice"`
	Size        string `json:"size"`
	Surcharge   string `json:"sizeSurcharge"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	Subtotal    int64  `json:"subtotal"`
	TaxRate     string `json:"taxRate"`
	Tax         int64  `json:"tax"`
	DeliveryFee int64  `json:"deliveryFee"`
	Total       int64  `json:"total"`
}

type draftPayload struct {
	Draft     string         `json:"draft"`
	ExpiresAt string         `json:"expiresAt"`
	Pricing   pricingPayload `json:"pricing"`
}

type orderSummaryPayload struct {
	HumanCode string `json:"humanCode"`
	Customer  string `json:"customer"`
	Product   string `json:"product"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Total     int64  `json:"total"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		InternalID: order.ID,
		HumanCode:  order.Code,
		Channel:    string(order.Channel),
		Status:     string(order.Status),
		Revision:   order.Revision,
		Product: productSnapshotOutput{
			ProductID: order.Product.ProductID,
			Name:      order.Product.Name,
			Image:     order.Product.ImageURL,
			BasePrice: order.Product.BasePrice,
		},
		Customer: customerOutput(order.Customer),
		Item: itemOutput{
			Size:          string(order.Item.Size),
			Quantity:      order.Item.Quantity,
			Frosting:      order.Item.Frosting,
			Message:       order.Item.Message,
			Customization: order.Item.Customization,
		},
		Delivery:     buildDelivery(order.Delivery),
		Payment:      buildPayment(order.Payment),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
		CancelReason: order.CancelReason,
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	return payload
}

func buildOrderList(orders []services.Order) []orderPayload {
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	return items
}

func buildDelivery(d domain.Delivery) deliveryOutput {
	out := deliveryOutput{Time: string(d.Slot), Instructions: d.Instructions}
	if !d.Date.IsZero() {
		out.Date = d.Date.Format(dateLayout)
	}
	return out
}

func buildPayment(p domain.OrderPayment) paymentOutput {
	return paymentOutput{
		Method:      string(p.Method),
		Reference:   p.Reference,
		UnitPrice:   p.UnitPrice,
		Subtotal:    p.Subtotal,
		Tax:         p.Tax,
		DeliveryFee: p.DeliveryFee,
		Total:       p.Total,
	}
}

func buildPricingPayload(p services.PricingBreakdown) pricingPayload {
	return pricingPayload{
		BasePrice:   p.BasePrice,
		Size:        string(p.Size),
		Surcharge:   p.Surcharge,
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
		Subtotal:    p.Subtotal,
		TaxRate:     p.TaxRate,
		Tax:         p.Tax,
		DeliveryFee: p.DeliveryFee,
		Total:       p.Total,
	}
}

func buildDraftPayload(d services.DraftResult) draftPayload {
	return draftPayload{
		Draft:     d.Token,
		ExpiresAt: formatTime(d.Draft.ExpiresAt),
		Pricing:   buildPricingPayload(d.Pricing),
	}
}

func buildSummaryPayload(s services.OrderSummary) orderSummaryPayload {
	return orderSummaryPayload{
		HumanCode: s.Code,
		Customer:  s.Customer,
		Product:   s.Product,
		Size:      string(s.Size),
		Quantity:  s.Quantity,
		Total:     s.Total,
		Status:    string(s.Status),
		CreatedAt: formatTime(s.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
