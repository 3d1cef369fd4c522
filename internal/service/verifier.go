package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
)

// Verification is the server-side view of what a cart costs right now.
type Verification struct {
	CartID             string
	AuthoritativeTotal int64
	Lines              []domain.SnapshotLine
	VerifiedAt         time.Time
}

// Verifier recomputes a cart total from the catalog and checks it against
// the amount the client displayed.
type Verifier struct {
	repo      repository.CartRepository
	prices    PriceResolver
	tolerance int64
	now       func() time.Time
}

func NewVerifier(repo repository.CartRepository, prices PriceResolver, tolerance int64) *Verifier {
	return &Verifier{
		repo:      repo,
		prices:    prices,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// VerifyAndTotal reads the cart lines from the store (never the cache),
// prices every line at the current catalog price and fails with
// ErrAmountMismatch when the claimed amount is off by more than the tolerance.
func (v *Verifier) VerifyAndTotal(ctx context.Context, cartID string, clientClaimedAmount int64) (*Verification, error) {
	cart, err := v.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, storeErr("verify cart", err)
	}
	now := v.now()
	if !cart.IsOpen(now) {
		return nil, fmt.Errorf("verify cart: %w: cart %s expired", ErrNotFound, cartID)
	}

	lines, err := v.repo.ListLines(ctx, cartID)
	if err != nil {
		return nil, storeErr("verify cart", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	keys := make([]domain.LineKey, len(lines))
	for i, line := range lines {
		keys[i] = line.Key()
	}
	prices, err := v.prices.ResolveAll(ctx, keys)
	if err != nil {
		return nil, priceErr("verify cart", err)
	}

	var total int64
	snapshot := make([]domain.SnapshotLine, len(lines))
	for i, line := range lines {
		unit := prices[line.Key()].UnitPrice
		subtotal := unit * int64(line.Quantity)
		snapshot[i] = domain.SnapshotLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: unit,
			Subtotal:  subtotal,
		}
		total += subtotal
	}

	if diff := total - clientClaimedAmount; diff > v.tolerance || -diff > v.tolerance {
		return nil, fmt.Errorf("%w: claimed %d, expected %d", ErrAmountMismatch, clientClaimedAmount, total)
	}

	return &Verification{
		CartID:             cartID,
		AuthoritativeTotal: total,
		Lines:              snapshot,
		VerifiedAt:         now,
	}, nil
}
