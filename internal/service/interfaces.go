package service

import (
	"context"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
)

// PriceResolver is satisfied by *pricing.Resolver.
type PriceResolver interface {
	Resolve(ctx context.Context, productID string, variantID *string) (domain.PriceSnapshot, error)
	ResolveAll(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]domain.PriceSnapshot, error)
}

// PaymentProvider is satisfied by the adapters in the payment package.
type PaymentProvider interface {
	FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreatePaymentTransaction(ctx context.Context, req payment.TransactionRequest) (*payment.Transaction, error)
}
