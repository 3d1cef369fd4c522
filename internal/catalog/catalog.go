package catalog

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
)

// Reader returns the current unit price of a product, in minor units.
// A variant with its own price overrides the product price; a variant
// without one inherits it.
type Reader interface {
	GetUnitPrice(ctx context.Context, productID string, variantID *string) (int64, error)
}
