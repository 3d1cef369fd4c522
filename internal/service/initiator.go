package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

type InitiateRequest struct {
	CartID             string
	ShopperID          *string
	ShopperEmail       *string
	AuthoritativeTotal int64
	Currency           string
	Lines              []domain.SnapshotLine
	IdempotencyKey     string
}

// Transaction is the handle the client needs to confirm payment.
type Transaction struct {
	TransactionID string
	ClientSecret  string
	DraftOrderID  string
	Amount        int64
	Currency      string
}

// Initiator opens a payment transaction with the provider and records a
// pending draft order for it.
type Initiator struct {
	provider PaymentProvider
	orders   repository.DraftOrderRepository
	log      *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewInitiator(provider PaymentProvider, orders repository.DraftOrderRepository, log *slog.Logger, timeout time.Duration) *Initiator {
	return &Initiator{
		provider: provider,
		orders:   orders,
		log:      log,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Initiate must only be called with a total produced by the Verifier. The
// draft order write is best effort: a failure is logged and the transaction
// is still returned, without a draft order id.
func (i *Initiator) Initiate(ctx context.Context, req InitiateRequest) (*Transaction, error) {
	tx, err := i.openTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Transaction{
		TransactionID: tx.ID,
		ClientSecret:  tx.ClientSecret,
		Amount:        req.AuthoritativeTotal,
		Currency:      req.Currency,
	}
	result.DraftOrderID = i.recordDraftOrder(ctx, req, tx.ID)
	return result, nil
}

func (i *Initiator) openTransaction(ctx context.Context, req InitiateRequest) (*payment.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var customerID string
	if req.ShopperEmail != nil && *req.ShopperEmail != "" {
		metadata := map[string]string{}
		if req.ShopperID != nil {
			metadata["shopper_id"] = *req.ShopperID
		}
		id, err := i.provider.FindOrCreateCustomer(ctx, *req.ShopperEmail, metadata)
		if err != nil {
			i.log.ErrorContext(ctx, "payment customer lookup failed", "cart_id", req.CartID, "err", err)
			return nil, fmt.Errorf("find or create customer: %w: %w", ErrPaymentProvider, err)
		}
		customerID = id
	}

	tx, err := i.provider.CreatePaymentTransaction(ctx, payment.TransactionRequest{
		Amount:     req.AuthoritativeTotal,
		Currency:   req.Currency,
		CustomerID: customerID,
		Metadata: map[string]string{
			"cart_id":    req.CartID,
			"item_count": strconv.Itoa(len(req.Lines)),
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		i.log.ErrorContext(ctx, "payment transaction failed", "cart_id", req.CartID, "amount", req.AuthoritativeTotal, "err", err)
		return nil, fmt.Errorf("create payment transaction: %w: %w", ErrPaymentProvider, err)
	}

	i.log.InfoContext(ctx, "payment transaction created",
		"cart_id", req.CartID,
		"transaction_id", tx.ID,
		"amount", req.AuthoritativeTotal,
		"currency", req.Currency)
	return tx, nil
}

func (i *Initiator) recordDraftOrder(ctx context.Context, req InitiateRequest, transactionID string) string {
	order, err := domain.NewDraftOrder(uuid.NewString(), transactionID, req.CartID, req.ShopperID,
		req.AuthoritativeTotal, req.Currency, req.Lines, i.now())
	if err != nil {
		i.log.ErrorContext(ctx, "draft order rejected", "transaction_id", transactionID, "err", err)
		return ""
	}

	err = i.orders.CreateDraftOrder(ctx, order)
	if errors.Is(err, repository.ErrDuplicateDraftOrder) {
		// a retried request with the same idempotency key maps to the same transaction
		existing, getErr := i.orders.GetDraftOrderByTransaction(ctx, transactionID)
		if getErr != nil {
			i.log.ErrorContext(ctx, "failed to load existing draft order", "transaction_id", transactionID, "err", getErr)
			return ""
		}
		return existing.ID
	}
	if err != nil {
		i.log.ErrorContext(ctx, "failed to persist draft order", "transaction_id", transactionID, "cart_id", req.CartID, "err", err)
		return ""
	}
	return order.ID
}
