package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider for the given secret key. Nil
// backends use the public Stripe API.
func NewStripeProvider(secretKey string, backends *stripe.Backends) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	list := &stripe.CustomerListParams{Email: stripe.String(email)}
	list.Context = ctx
	list.Limit = stripe.Int64(1)

	it := p.api.Customers.List(list)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list stripe customers: %w", classifyStripeErr(err))
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", classifyStripeErr(err))
	}
	return c.ID, nil
}

func (p *StripeProvider) CreatePaymentTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe payment intent: %w", classifyStripeErr(err))
	}
	return &Transaction{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// classifyStripeErr tags Stripe errors so callers can tell a rejected
// request from an outage.
func classifyStripeErr(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrDeclined, err)
}
