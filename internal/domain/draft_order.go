package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrDraftTotalMismatch = errors.New("draft order total does not match line subtotals")

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusCancelled
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo allows only pending -> terminal moves.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && next.IsTerminal()
}

// SnapshotLine is a line frozen at checkout time with its verified price.
type SnapshotLine struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	Subtotal  int64   `json:"subtotal"`
}

type DraftOrder struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	CartID        string         `json:"cart_id"`
	ShopperID     *string        `json:"shopper_id,omitempty"`
	TotalAmount   int64          `json:"total_amount"`
	Currency      string         `json:"currency"`
	Status        OrderStatus    `json:"status"`
	Lines         []SnapshotLine `json:"lines"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewDraftOrder(id, transactionID, cartID string, shopperID *string, total int64, currency string, lines []SnapshotLine, now time.Time) (*DraftOrder, error) {
	if sum := SnapshotTotal(lines); sum != total {
		return nil, fmt.Errorf("%w: total %d, lines %d", ErrDraftTotalMismatch, total, sum)
	}
	frozen := make([]SnapshotLine, len(lines))
	copy(frozen, lines)
	return &DraftOrder{
		ID:            id,
		TransactionID: transactionID,
		CartID:        cartID,
		ShopperID:     shopperID,
		TotalAmount:   total,
		Currency:      currency,
		Status:        OrderStatusPending,
		Lines:         frozen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func SnapshotTotal(lines []SnapshotLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal
	}
	return total
}
