package payment

import (
	"context"
	"errors"
)

var (
	ErrUnavailable = errors.New("payment provider unavailable")
	ErrDeclined    = errors.New("payment provider declined the request")
)

// Provider is the external payment processor.
type Provider interface {
	// FindOrCreateCustomer returns the first customer registered with email,
	// creating one with the given metadata when there is none.
	FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreatePaymentTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
}

type TransactionRequest struct {
	// Amount in minor currency units.
	Amount     int64
	Currency   string
	CustomerID string
	Metadata   map[string]string
	// IdempotencyKey makes retried creations return the same transaction.
	IdempotencyKey string
}

type Transaction struct {
	ID           string
	ClientSecret string
}
