package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/service"
	"github.com/go-playground/validator/v10"
)

type Checkouter interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.Transaction, error)
}

type CheckoutHandler struct {
	checkout Checkouter
	validate *validator.Validate
	timeout  time.Duration
	log      *slog.Logger
}

func NewCheckoutHandler(checkout Checkouter, timeout time.Duration, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		validate: newValidator(),
		timeout:  timeout,
		log:      log,
	}
}

type CheckoutRequestDTO struct {
	CartID         string `json:"cart_id" validate:"required,max=64"`
	Amount         *int64 `json:"amount" validate:"required,gte=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=255"`
}

type CheckoutResponseDTO struct {
	ClientSecret  string `json:"client_secret"`
	TransactionID string `json:"transaction_id"`
	DraftOrderID  string `json:"draft_order_id,omitempty"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	creq := service.CheckoutRequest{
		CartID:         req.CartID,
		ClaimedAmount:  *req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	}
	if s := shopperFromContext(ctx); s != nil {
		creq.ShopperID = &s.ID
		if s.Email != "" {
			creq.ShopperEmail = &s.Email
		}
	}

	tx, err := h.checkout.Checkout(ctx, creq)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponseDTO{
		ClientSecret:  tx.ClientSecret,
		TransactionID: tx.TransactionID,
		DraftOrderID:  tx.DraftOrderID,
	})
}
