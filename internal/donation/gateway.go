package donation

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

// Gateway is the subset of the Stripe API the service calls.
type Gateway interface {
	// CreatePaymentIntent opens a USD intent and returns its client secret.
	CreatePaymentIntent(ctx context.Context, amount utilities.Cents, metadata map[string]string) (string, error)
	// PaymentIntent retrieves an intent with latest_charge expanded.
	PaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeGateway talks to Stripe with a per-instance client so the key is
// never stored in package state.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{api: sc}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount utilities.Cents, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amount)),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	return pi.ClientSecret, nil
}

func (g *StripeGateway) PaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	return g.api.PaymentIntents.Get(id, params)
}

// card is the brand and last four digits of the charge behind an intent.
type card struct {
	Brand string
	Last4 string
}

func cardOf(pi *stripe.PaymentIntent) (card, bool) {
	if pi == nil || pi.LatestCharge == nil || pi.LatestCharge.PaymentMethodDetails == nil ||
		pi.LatestCharge.PaymentMethodDetails.Card == nil {
		return card{}, false
	}
	c := pi.LatestCharge.PaymentMethodDetails.Card
	return card{Brand: string(c.Brand), Last4: c.Last4}, true
}

// chargeExpanded reports whether latest_charge arrived as an object rather
// than a bare id.
func chargeExpanded(pi *stripe.PaymentIntent) bool {
	return pi.LatestCharge != nil && pi.LatestCharge.PaymentMethodDetails != nil
}

func displayBrand(b string) string {
	if b == "" {
		return "CARD"
	}
	return strings.ToUpper(b)
}
