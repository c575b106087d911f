package services

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

const (
	defaultTaxRate        = "0.08"
	defaultDeliveryFee    = int64(500)
	defaultMaxQuantity    = 50
	defaultTotalTolerance = int64(1)
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// PricingConfig is the explicit pricing policy handed to the calculator.
type PricingConfig struct {
	TaxRate            decimal.Decimal
	DefaultDeliveryFee int64
	Surcharges         map[domain.CakeSize]decimal.Decimal
	MaxQuantity        int
	// TotalTolerance bounds the accepted difference between a draft total and its recomputation.
	TotalTolerance int64
}

// DefaultPricingConfig returns the bakery's standard pricing policy.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TaxRate:            decimal.RequireFromString(defaultTaxRate),
		DefaultDeliveryFee: defaultDeliveryFee,
		Surcharges: map[domain.CakeSize]decimal.Decimal{
			domain.CakeSizeSmall:  decimal.Zero,
			domain.CakeSizeMedium: decimal.RequireFromString("0.08"),
			domain.CakeSizeLarge:  decimal.RequireFromString("0.15"),
		},
		MaxQuantity:    defaultMaxQuantity,
		TotalTolerance: defaultTotalTolerance,
	}
}

// PriceQuery is the input to a single pricing computation.
type PriceQuery struct {
	BasePrice int64
	Size      domain.CakeSize
	Quantity  int
	// DeliveryFee overrides the configured baseline when set.
	DeliveryFee *int64
}

// PricingCalculator computes order amounts. It holds no mutable state and never performs I/O,
// so quotes and committed orders priced from the same query always agree.
type PricingCalculator struct {
	cfg PricingConfig
}

// NewPricingCalculator validates cfg and fills unset fields from the defaults.
func NewPricingCalculator(cfg PricingConfig) (*PricingCalculator, error) {
	defaults := DefaultPricingConfig()
	if cfg.Surcharges == nil {
		cfg.Surcharges = defaults.Surcharges
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = defaults.MaxQuantity
	}
	if cfg.TotalTolerance < 0 {
		return nil, errors.New("pricing calculator: total tolerance must be non-negative")
	}
	if cfg.TaxRate.IsNegative() {
		return nil, errors.New("pricing calculator: tax rate must be non-negative")
	}
	if cfg.DefaultDeliveryFee < 0 {
		return nil, errors.New("pricing calculator: delivery fee must be non-negative")
	}
	for size, surcharge := range cfg.Surcharges {
		if surcharge.IsNegative() {
			return nil, fmt.Errorf("pricing calculator: surcharge for %q must be non-negative", size)
		}
	}
	return &PricingCalculator{cfg: cfg}, nil
}

// Config exposes the policy the calculator was built with.
func (c *PricingCalculator) Config() PricingConfig {
	return c.cfg
}

// ClampQuantity bounds q to [1, MaxQuantity].
func (c *PricingCalculator) ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	if q > c.cfg.MaxQuantity {
		return c.cfg.MaxQuantity
	}
	return q
}

// Price computes unit price, subtotal, tax and total for q.
func (c *PricingCalculator) Price(q PriceQuery) (domain.PricingBreakdown, error) {
	if q.BasePrice < 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: base price must be non-negative", ErrOrderInvalidInput)
	}
	surcharge, ok := c.cfg.Surcharges[q.Size]
	if !ok {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: unsupported size %q", ErrOrderInvalidInput, q.Size)
	}
	fee := c.cfg.DefaultDeliveryFee
	if q.DeliveryFee != nil {
		if *q.DeliveryFee < 0 {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: delivery fee must be non-negative", ErrOrderInvalidInput)
		}
		fee = *q.DeliveryFee
	}
	quantity := c.ClampQuantity(q.Quantity)

	unit := decimal.NewFromInt(q.BasePrice).Mul(decimal.NewFromInt(1).Add(surcharge)).Round(0)
	subtotal := unit.Mul(decimal.NewFromInt(int64(quantity)))
	tax := subtotal.Mul(c.cfg.TaxRate).Round(0)
	total := subtotal.Add(tax).Add(decimal.NewFromInt(fee))
	if total.GreaterThan(maxAmount) {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: order total is out of range", ErrOrderInvalidInput)
	}

	return domain.PricingBreakdown{
		BasePrice:   q.BasePrice,
		Size:        q.Size,
		Surcharge:   surcharge.String(),
		Quantity:    quantity,
		UnitPrice:   unit.IntPart(),
		Subtotal:    subtotal.IntPart(),
		TaxRate:     c.cfg.TaxRate.String(),
		Tax:         tax.IntPart(),
		DeliveryFee: fee,
		Total:       total.IntPart(),
	}, nil
}

// WithinTolerance reports whether two totals differ by no more than the configured tolerance.
func (c *PricingCalculator) WithinTolerance(a, b int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.cfg.TotalTolerance
}

func applyPricing(payment domain.OrderPayment, breakdown domain.PricingBreakdown) domain.OrderPayment {
	payment.UnitPrice = breakdown.UnitPrice
	payment.Subtotal = breakdown.Subtotal
	payment.Tax = breakdown.Tax
	payment.DeliveryFee = breakdown.DeliveryFee
	payment.Total = breakdown.Total
	return payment
}
