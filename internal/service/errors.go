package service

import (
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/repository"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrAmountMismatch  = errors.New("amount verification failed")
	ErrPaymentProvider = errors.New("payment provider error")
	ErrPersistence     = errors.New("persistence error")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

const (
	KindNotFound        = "NotFound"
	KindEmptyCart       = "EmptyCart"
	KindAmountMismatch  = "AmountMismatch"
	KindPaymentProvider = "PaymentProviderError"
	KindPersistence     = "PersistenceError"
	KindInvalidRequest  = "InvalidRequest"
	KindInternal        = "Internal"
)

// ErrorKind maps an error returned by this package to its wire kind.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrAmountMismatch):
		return KindAmountMismatch
	case errors.Is(err, ErrPaymentProvider):
		return KindPaymentProvider
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrInvalidQuantity):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrPaymentProvider) || errors.Is(err, ErrPersistence)
}

// storeErr classifies an error coming out of the repository.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrLineNotFound),
		errors.Is(err, repository.ErrDraftOrderNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}
}

// priceErr classifies an error coming out of the pricing resolver.
func priceErr(op string, err error) error {
	if errors.Is(err, catalog.ErrProductNotFound) || errors.Is(err, catalog.ErrVariantNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
