package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

// cacheLoadTimeout bounds a shared cache-aside load once it is detached from
// the callers that started it.
const cacheLoadTimeout = 5 * time.Second

// Ledger owns the line items of a cart. Every mutation returns the line
// list as stored after the change.
type Ledger struct {
	repo   repository.CartRepository
	prices PriceResolver
	cache  cache.LinesCache
	log    *slog.Logger
	sfg    singleflight.Group // Prevents cache stampede
	now    func() time.Time
}

func NewLedger(repo repository.CartRepository, prices PriceResolver, c cache.LinesCache, log *slog.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		prices: prices,
		cache:  c,
		log:    log,
		now:    time.Now,
	}
}

// AddLine adds qty units of a product (or variant) at its current catalog
// price. Adding an item already in the cart increases its quantity and keeps
// the price captured by the first add.
func (l *Ledger) AddLine(ctx context.Context, cartID, productID string, variantID *string, qty int) ([]domain.CartLine, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	if variantID != nil && *variantID == "" {
		variantID = nil
	}
	if _, err := l.openCart(ctx, cartID); err != nil {
		return nil, err
	}

	snap, err := l.prices.Resolve(ctx, productID, variantID)
	if err != nil {
		return nil, priceErr("add line", err)
	}

	now := l.now()
	_, err = l.repo.UpsertLine(ctx, &domain.CartLine{
		CartID:    cartID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
		UnitPrice: snap.UnitPrice,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		l.log.ErrorContext(ctx, "repo upsert line error", "cart_id", cartID, "product_id", productID, "err", err)
		return nil, storeErr("add line", err)
	}

	invalidateCache(l.cache, l.log, cartID)
	return l.readLines(ctx, cartID)
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line.
func (l *Ledger) UpdateQuantity(ctx context.Context, cartID, lineID string, qty int) ([]domain.CartLine, error) {
	if qty <= 0 {
		return l.RemoveLine(ctx, cartID, lineID)
	}
	if _, err := l.openCart(ctx, cartID); err != nil {
		return nil, err
	}

	if _, err := l.repo.SetLineQuantity(ctx, cartID, lineID, qty, l.now()); err != nil {
		if !errors.Is(err, repository.ErrLineNotFound) {
			l.log.ErrorContext(ctx, "repo update quantity error", "cart_id", cartID, "line_id", lineID, "err", err)
		}
		return nil, storeErr("update quantity", err)
	}

	invalidateCache(l.cache, l.log, cartID)
	return l.readLines(ctx, cartID)
}

// RemoveLine deletes a line. Removing a line that is not in the cart is not
// an error.
func (l *Ledger) RemoveLine(ctx context.Context, cartID, lineID string) ([]domain.CartLine, error) {
	if _, err := l.openCart(ctx, cartID); err != nil {
		return nil, err
	}

	deleted, err := l.repo.DeleteLine(ctx, cartID, lineID, l.now())
	if err != nil {
		l.log.ErrorContext(ctx, "repo remove line error", "cart_id", cartID, "line_id", lineID, "err", err)
		return nil, storeErr("remove line", err)
	}

	if deleted {
		invalidateCache(l.cache, l.log, cartID)
	}
	return l.readLines(ctx, cartID)
}

func (l *Ledger) Clear(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	if _, err := l.openCart(ctx, cartID); err != nil {
		return nil, err
	}

	if _, err := l.repo.DeleteLines(ctx, cartID, l.now()); err != nil {
		l.log.ErrorContext(ctx, "repo clear cart error", "cart_id", cartID, "err", err)
		return nil, storeErr("clear cart", err)
	}

	invalidateCache(l.cache, l.log, cartID)
	return l.readLines(ctx, cartID)
}

// ListLines returns the lines of a cart in insertion order, served from the
// cache when possible. The cart is expected to be resolved by the caller.
//
// Concurrent readers of one cart share a single load. The load runs detached
// from the caller's cancellation so one departing reader cannot fail the rest.
func (l *Ledger) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	v, err, _ := l.sfg.Do(cartID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheLoadTimeout)
		defer cancel()
		return l.loadLines(loadCtx, cartID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CartLine), nil
}

func (l *Ledger) loadLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	lines, err := l.cache.Get(ctx, cartID)
	if err == nil {
		return lines, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l.log.WarnContext(ctx, "cache get error", "cart_id", cartID, "err", err)
	}

	// the generation is read before the store so a write landing in between
	// makes the fill below a no-op
	gen, errGen := l.cache.Generation(ctx, cartID)
	if errGen != nil {
		l.log.WarnContext(ctx, "cache generation error", "cart_id", cartID, "err", errGen)
	}

	lines, err = l.repo.ListLines(ctx, cartID)
	if err != nil {
		return nil, storeErr("list lines", err)
	}
	if errGen != nil {
		return lines, nil
	}

	errSet := l.cache.Set(ctx, cartID, gen, lines)
	switch {
	case errSet == nil:
	case errors.Is(errSet, cache.ErrGenerationChanged):
		l.log.DebugContext(ctx, "cart changed during load, not caching", "cart_id", cartID)
	default:
		l.log.WarnContext(ctx, "cache set error", "cart_id", cartID, "err", errSet)
	}
	return lines, nil
}

// readLines bypasses the cache so a mutation answers with what was just written.
func (l *Ledger) readLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	lines, err := l.repo.ListLines(ctx, cartID)
	if err != nil {
		return nil, storeErr("read lines", err)
	}
	return lines, nil
}

func (l *Ledger) openCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	cart, err := l.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, storeErr("load cart", err)
	}
	if !cart.IsOpen(l.now()) {
		return nil, fmt.Errorf("load cart: %w: cart %s expired", ErrNotFound, cartID)
	}
	return cart, nil
}
