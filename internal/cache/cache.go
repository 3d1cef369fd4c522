package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/internal/domain"
)

// LinesCache keeps the rendered line list of a cart. It is a read
// accelerator only; checkout always reads the store.
//
// Every Delete advances the cart's generation. A reader takes the generation
// before reading the store and passes it to Set, which refuses to store lines
// read before a later invalidation.
type LinesCache interface {
	Get(ctx context.Context, cartID string) ([]domain.CartLine, error)
	Generation(ctx context.Context, cartID string) (int64, error)
	Set(ctx context.Context, cartID string, generation int64, lines []domain.CartLine) error
	Delete(ctx context.Context, cartIDs ...string) error
}

var (
	ErrCacheMiss         = errors.New("cache miss")
	ErrGenerationChanged = errors.New("cart changed since generation was read")
)
