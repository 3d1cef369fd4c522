package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjod/go_storefront/internal/repository"
)

type CheckoutRequest struct {
	CartID         string
	ClaimedAmount  int64
	ShopperID      *string
	ShopperEmail   *string
	IdempotencyKey string
}

// CheckoutService turns a verified cart into a payment transaction.
type CheckoutService struct {
	carts     repository.CartRepository
	verifier  *Verifier
	initiator *Initiator
	currency  string
	log       *slog.Logger
}

func NewCheckoutService(carts repository.CartRepository, verifier *Verifier, initiator *Initiator, currency string, log *slog.Logger) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		verifier:  verifier,
		initiator: initiator,
		currency:  currency,
		log:       log,
	}
}

// Checkout verifies the claimed amount and opens a payment transaction for
// the authoritative total. A cart that belongs to a shopper can only be
// checked out by that shopper; to anyone else it does not exist.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*Transaction, error) {
	cart, err := s.carts.GetCart(ctx, req.CartID)
	if err != nil {
		return nil, storeErr("checkout", err)
	}
	if !cart.IsAnonymous() && (req.ShopperID == nil || !cart.OwnedBy(*req.ShopperID)) {
		s.log.WarnContext(ctx, "checkout of a cart owned by another shopper", "cart_id", req.CartID)
		return nil, fmt.Errorf("checkout: %w: cart %s", ErrNotFound, req.CartID)
	}

	verification, err := s.verifier.VerifyAndTotal(ctx, req.CartID, req.ClaimedAmount)
	if err != nil {
		s.log.InfoContext(ctx, "checkout verification failed", "cart_id", req.CartID, "claimed", req.ClaimedAmount, "err", err)
		return nil, err
	}

	return s.initiator.Initiate(ctx, InitiateRequest{
		CartID:             req.CartID,
		ShopperID:          req.ShopperID,
		ShopperEmail:       req.ShopperEmail,
		AuthoritativeTotal: verification.AuthoritativeTotal,
		Currency:           s.currency,
		Lines:              verification.Lines,
		IdempotencyKey:     req.IdempotencyKey,
	})
}
