package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const cartTokenHeader = "X-Cart-Token"

type CartResolver interface {
	ResolveCart(ctx context.Context, shopperID, deviceToken *string) (*domain.Cart, error)
}

type CartLedger interface {
	AddLine(ctx context.Context, cartID, productID string, variantID *string, qty int) ([]domain.CartLine, error)
	UpdateQuantity(ctx context.Context, cartID, lineID string, qty int) ([]domain.CartLine, error)
	RemoveLine(ctx context.Context, cartID, lineID string) ([]domain.CartLine, error)
	Clear(ctx context.Context, cartID string) ([]domain.CartLine, error)
	ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
}

type CartHandler struct {
	carts    CartResolver
	ledger   CartLedger
	validate *validator.Validate
	timeout  time.Duration
	log      *slog.Logger
}

func NewCartHandler(carts CartResolver, ledger CartLedger, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		ledger:   ledger,
		validate: newValidator(),
		timeout:  timeout,
		log:      log,
	}
}

type AddLineRequestDTO struct {
	ProductID string  `json:"product_id" validate:"required,max=64"`
	VariantID *string `json:"variant_id" validate:"omitempty,max=64"`
	Quantity  *int    `json:"quantity" validate:"omitempty,min=1,max=999"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,max=999"`
}

type CartLineView struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	Subtotal  int64   `json:"subtotal"`
}

type CartView struct {
	CartID        string         `json:"cart_id"`
	CartToken     string         `json:"cart_token"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	Lines         []CartLineView `json:"lines"`
	TotalQuantity int            `json:"total_quantity"`
	Subtotal      int64          `json:"subtotal"`
}

func newCartView(cart *domain.Cart, lines []domain.CartLine) CartView {
	view := CartView{
		CartID:        cart.ID,
		CartToken:     cart.ID,
		ExpiresAt:     cart.ExpiresAt,
		Lines:         make([]CartLineView, 0, len(lines)),
		TotalQuantity: domain.TotalQuantity(lines),
		Subtotal:      domain.LinesSubtotal(lines),
	}
	for _, l := range lines {
		view.Lines = append(view.Lines, CartLineView{
			ID:        l.ID,
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return view
}

// EnsureCart resolves the caller's cart, creating or merging as needed.
func (h *CartHandler) EnsureCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, http.StatusOK, func(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error) {
		return h.ledger.ListLines(ctx, cart.ID)
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.EnsureCart(w, r)
}

func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req AddLineRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	h.withCart(w, r, http.StatusCreated, func(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error) {
		return h.ledger.AddLine(ctx, cart.ID, req.ProductID, req.VariantID, qty)
	})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")
	var req UpdateQuantityRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	h.withCart(w, r, http.StatusOK, func(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error) {
		return h.ledger.UpdateQuantity(ctx, cart.ID, lineID, *req.Quantity)
	})
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")
	h.withCart(w, r, http.StatusOK, func(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error) {
		return h.ledger.RemoveLine(ctx, cart.ID, lineID)
	})
}

func (h *CartHandler) ClearLines(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, http.StatusOK, func(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error) {
		return h.ledger.Clear(ctx, cart.ID)
	})
}

// withCart resolves the request's cart, runs op against it and renders the
// resulting lines.
func (h *CartHandler) withCart(w http.ResponseWriter, r *http.Request, status int,
	op func(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var shopperID *string
	if s := shopperFromContext(ctx); s != nil {
		shopperID = &s.ID
	}
	var token *string
	if t := r.Header.Get(cartTokenHeader); t != "" {
		token = &t
	}

	cart, err := h.carts.ResolveCart(ctx, shopperID, token)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}
	w.Header().Set(cartTokenHeader, cart.ID)

	lines, err := op(ctx, cart)
	if err != nil {
		h.serviceError(ctx, w, err)
		return
	}
	respondJSON(w, status, newCartView(cart, lines))
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeAndValidate(w, r, h.validate, dst)
}

func (h *CartHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	handleServiceError(ctx, h.log, w, err)
}

func handleServiceError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	kind := service.ErrorKind(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request failed", "kind", kind, "err", err)
	}
	respondError(w, status, kind, messageForKind(kind, err))
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, service.KindInvalidRequest, "invalid JSON body")
		return false
	}
	if err := v.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, service.KindInvalidRequest, validationMessage(err))
		return false
	}
	return true
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
