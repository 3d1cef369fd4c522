package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

// IdentityManager decides which cart a request operates on.
type IdentityManager struct {
	repo  repository.CartRepository
	cache cache.LinesCache
	log   *slog.Logger
	ttl   time.Duration
	now   func() time.Time
}

func NewIdentityManager(repo repository.CartRepository, c cache.LinesCache, log *slog.Logger, anonymousTTL time.Duration) *IdentityManager {
	return &IdentityManager{
		repo:  repo,
		cache: c,
		log:   log,
		ttl:   anonymousTTL,
		now:   time.Now,
	}
}

// ResolveCart returns the cart for the current shopper, or for the device
// when nobody is signed in. The device token is only a hint: it is honored
// when it names an open anonymous cart and ignored otherwise. A signed-in
// shopper presenting such a token gets its lines merged into the account
// cart, and the anonymous cart is retired.
func (m *IdentityManager) ResolveCart(ctx context.Context, shopperID, deviceToken *string) (*domain.Cart, error) {
	now := m.now()

	hinted, err := m.lookupHint(ctx, deviceToken, now)
	if err != nil {
		return nil, err
	}

	if shopperID != nil && *shopperID != "" {
		cart, err := m.repo.GetOrCreateShopperCart(ctx, *shopperID, now)
		if err != nil {
			return nil, storeErr("resolve shopper cart", err)
		}

		if hinted != nil && hinted.IsAnonymous() && hinted.ID != cart.ID {
			if err := m.merge(ctx, hinted.ID, cart.ID, now); err != nil {
				return nil, err
			}
		}
		return cart, nil
	}

	if hinted != nil && hinted.IsAnonymous() {
		return hinted, nil
	}

	cart := domain.NewAnonymousCart(uuid.NewString(), now, m.ttl)
	if err := m.repo.CreateCart(ctx, cart); err != nil {
		return nil, storeErr("create anonymous cart", err)
	}
	m.log.InfoContext(ctx, "anonymous cart created", "cart_id", cart.ID, "expires_at", cart.ExpiresAt)
	return cart, nil
}

func (m *IdentityManager) lookupHint(ctx context.Context, deviceToken *string, now time.Time) (*domain.Cart, error) {
	if deviceToken == nil || *deviceToken == "" {
		return nil, nil
	}
	if uuid.Validate(*deviceToken) != nil {
		m.log.DebugContext(ctx, "ignoring malformed cart token")
		return nil, nil
	}

	cart, err := m.repo.GetCart(ctx, *deviceToken)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("lookup cart token", err)
	}
	if !cart.IsOpen(now) {
		return nil, nil
	}
	return cart, nil
}

func (m *IdentityManager) merge(ctx context.Context, fromID, intoID string, now time.Time) error {
	err := m.repo.MergeCarts(ctx, fromID, intoID, now)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		// another request merged the same token first
		m.log.InfoContext(ctx, "anonymous cart already merged", "from_cart_id", fromID, "cart_id", intoID)
	case err != nil:
		return storeErr("merge anonymous cart", err)
	default:
		m.log.InfoContext(ctx, "anonymous cart merged", "from_cart_id", fromID, "cart_id", intoID)
	}

	invalidateCache(m.cache, m.log, fromID, intoID)
	return nil
}

func invalidateCache(c cache.LinesCache, log *slog.Logger, cartIDs ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Delete(ctx, cartIDs...); err != nil {
		log.Warn("cache invalidate error", "cart_ids", cartIDs, "err", err)
	}
}
