package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

const providerStripe = "stripe"

// ErrReferenceUnknown is returned when the PSP has no record of the reference.
var ErrReferenceUnknown = errors.New("payments: payment reference not found")

type paymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfirmerConfig configures StripeConfirmer.
type StripeConfirmerConfig struct {
	APIKey   string
	Backends *stripe.Backends
	// Currency is the lower-case ISO code orders are charged in. Empty skips the check.
	Currency string
	// MinorUnits converts order totals (whole currency units) to Stripe amounts.
	MinorUnits int64
	Logger     func(ctx context.Context, event string, fields map[string]any)

	intents paymentIntentAPI
}

// StripeConfirmer checks a PaymentIntent id returned by the storefront's card step.
type StripeConfirmer struct {
	intents    paymentIntentAPI
	currency   stripe.Currency
	minorUnits int64
	logger     func(context.Context, string, map[string]any)
}

var _ services.PaymentConfirmer = (*StripeConfirmer)(nil)

func NewStripeConfirmer(cfg StripeConfirmerConfig) (*StripeConfirmer, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	minor := cfg.MinorUnits
	if minor <= 0 {
		minor = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeConfirmer{
		intents:    intents,
		currency:   stripe.Currency(strings.ToLower(strings.TrimSpace(cfg.Currency))),
		minorUnits: minor,
		logger:     logger,
	}, nil
}

// ConfirmPayment reports Confirmed only when the intent has succeeded (or is authorised and
// awaiting capture) for exactly the expected amount.
func (c *StripeConfirmer) ConfirmPayment(ctx context.Context, reference string, amount int64) (services.PaymentConfirmation, error) {
	reference = strings.TrimSpace(reference)
	result := services.PaymentConfirmation{Reference: reference, Provider: providerStripe, Amount: amount}
	if !strings.HasPrefix(reference, "pi_") {
		return result, fmt.Errorf("stripe: reference %q is not a payment intent", reference)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := c.intents.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return result, fmt.Errorf("%w: %s", ErrReferenceUnknown, reference)
		}
		return result, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}

	want := amount * c.minorUnits
	fields := map[string]any{
		"reference": reference,
		"status":    string(intent.Status),
		"amount":    intent.Amount,
		"expected":  want,
	}
	switch {
	case intent.Status != stripe.PaymentIntentStatusSucceeded && intent.Status != stripe.PaymentIntentStatusRequiresCapture:
		c.logger(ctx, "payments.stripe.not_settled", fields)
		return result, nil
	case intent.Amount != want:
		c.logger(ctx, "payments.stripe.amount_mismatch", fields)
		return result, nil
	case c.currency != "" && intent.Currency != c.currency:
		fields["currency"] = string(intent.Currency)
		c.logger(ctx, "payments.stripe.currency_mismatch", fields)
		return result, nil
	}
	result.Confirmed = true
	return result, nil
}
