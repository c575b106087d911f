package domain

// PricingBreakdown captures the monetary results of pricing one order line.
type PricingBreakdown struct {
	BasePrice   int64
	Size        CakeSize
	Surcharge   string
	Quantity    int
	UnitPrice   int64
	Subtotal    int64
	TaxRate     string
	Tax         int64
	DeliveryFee int64
	Total       int64
}
