package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidPrice = errors.New("catalog returned a negative price")

// maxConcurrentLookups bounds catalog calls made by ResolveAll.
const maxConcurrentLookups = 8

type Resolver struct {
	catalog catalog.Reader
	timeout time.Duration
	now     func() time.Time
}

func NewResolver(reader catalog.Reader, timeout time.Duration) *Resolver {
	return &Resolver{
		catalog: reader,
		timeout: timeout,
		now:     time.Now,
	}
}

// Resolve reads the current authoritative unit price for a product or variant.
func (r *Resolver) Resolve(ctx context.Context, productID string, variantID *string) (domain.PriceSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	price, err := r.catalog.GetUnitPrice(ctx, productID, variantID)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("resolve price of %s: %w", domain.NewLineKey(productID, variantID), err)
	}
	if price < 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("resolve price of %s: %w", domain.NewLineKey(productID, variantID), ErrInvalidPrice)
	}

	return domain.PriceSnapshot{
		ProductID:  productID,
		VariantID:  variantID,
		UnitPrice:  price,
		ResolvedAt: r.now(),
	}, nil
}

// ResolveAll resolves every distinct key concurrently. The first failure
// cancels the remaining lookups.
func (r *Resolver) ResolveAll(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]domain.PriceSnapshot, error) {
	distinct := make(map[domain.LineKey]struct{}, len(keys))
	for _, k := range keys {
		distinct[k] = struct{}{}
	}

	results := make(chan domain.PriceSnapshot, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)

	for k := range distinct {
		g.Go(func() error {
			snap, err := r.Resolve(gctx, k.ProductID, k.Variant())
			if err != nil {
				return err
			}
			results <- snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	prices := make(map[domain.LineKey]domain.PriceSnapshot, len(distinct))
	for snap := range results {
		prices[domain.NewLineKey(snap.ProductID, snap.VariantID)] = snap
	}
	return prices, nil
}
