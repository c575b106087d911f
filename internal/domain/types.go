package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPreparing is the initial state of every committed order.
	OrderStatusPreparing OrderStatus = "Preparing"
	// OrderStatusOutForDelivery indicates the cake has left the bakery.
	OrderStatusOutForDelivery OrderStatus = "OutForDelivery"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// OrderStatuses lists every recognised status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsTerminal reports whether no further transition may leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CakeSize enumerates the sizes the bakery sells.
type CakeSize string

const (
	CakeSizeSmall  CakeSize = "small"
	CakeSizeMedium CakeSize = "medium"
	CakeSizeLarge  CakeSize = "large"
)

// DeliverySlot is the requested time-of-day window.
type DeliverySlot string

const (
	DeliverySlotMorning   DeliverySlot = "morning"
	DeliverySlotAfternoon DeliverySlot = "afternoon"
	DeliverySlotEvening   DeliverySlot = "evening"
)

// PaymentMethod is the customer's chosen way to pay.
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "creditCard"
	PaymentMethodAfterpay       PaymentMethod = "afterpay"
	PaymentMethodCashOnDelivery PaymentMethod = "cashOnDelivery"
)

// Deferred reports whether the method requires an external confirmation before commit.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentMethodCreditCard
}

// OrderChannel tags the intake path an order arrived through.
type OrderChannel string

const (
	OrderChannelWeb   OrderChannel = "web"
	OrderChannelAdmin OrderChannel = "admin"
	OrderChannelPhone OrderChannel = "phone"
)

// Order is the durable order record.
type Order struct {
	ID        string
	Code      string
	DraftID   string
	Channel   OrderChannel
	Product   ProductSnapshot
	Customer  Customer
	Item      OrderItem
	Delivery  Delivery
	Payment   OrderPayment
	Status    OrderStatus
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time

	CancelledAt  *time.Time
	DeliveredAt  *time.Time
	CancelReason string
}

// ProductSnapshot freezes catalog data as of purchase time.
type ProductSnapshot struct {
	ProductID string
	Name      string
	ImageURL  string
	BasePrice int64
}

// Customer identifies who placed the order and where it goes.
type Customer struct {
	ID      string
	Name    string
	Phone   string
	Address string
}

// OrderItem describes the configured cake.
type OrderItem struct {
	Size          CakeSize
	Quantity      int
	Frosting      string
	Message       string
	Customization string
}

// Delivery holds the requested delivery window.
type Delivery struct {
	Date         time.Time
	Slot         DeliverySlot
	Instructions string
}

// OrderPayment stores amounts in whole currency units.
type OrderPayment struct {
	Method      PaymentMethod
	Reference   string
	UnitPrice   int64
	Subtotal    int64
	Tax         int64
	DeliveryFee int64
	Total       int64
}

// OrderDraft is a normalized and priced order that has not been persisted.
type OrderDraft struct {
	DraftID   string
	Channel   OrderChannel
	Product   ProductSnapshot
	Customer  Customer
	Item      OrderItem
	Delivery  Delivery
	Payment   OrderPayment
	ExpiresAt time.Time
}

// OrderSummary is the compact dashboard projection of an order.
type OrderSummary struct {
	Code      string
	Customer  string
	Product   string
	Size      CakeSize
	Quantity  int
	Total     int64
	Status    OrderStatus
	CreatedAt time.Time
}

// OrderStats carries status counts and revenue over non-cancelled orders.
type OrderStats struct {
	CountsByStatus map[OrderStatus]int64
	TotalOrders    int64
	Revenue        int64
	RevenueOrders  int64
	AverageOrder   float64
}

// DailyOrderStats is one bucket of the analytics series.
type DailyOrderStats struct {
	Date      time.Time
	Orders    int64
	Cancelled int64
	Revenue   int64
}
