package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
)

type draftOrderStatusEvent struct {
	DraftOrderID  string             `json:"draft_order_id"`
	TransactionID string             `json:"transaction_id"`
	CartID        string             `json:"cart_id"`
	From          domain.OrderStatus `json:"from"`
	To            domain.OrderStatus `json:"to"`
	ChangedAt     time.Time          `json:"changed_at"`
}

func (r *Repository) CreateDraftOrder(ctx context.Context, order *domain.DraftOrder) error {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal draft order lines: %w", err)
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal draft order event: %w", err)
	}

	query := `INSERT INTO draft_orders (id, transaction_id, cart_id, shopper_id, total_amount, currency, status, lines, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, insertErr := tx.ExecContext(ctx, query,
			order.ID,
			order.TransactionID,
			order.CartID,
			order.ShopperID,
			order.TotalAmount,
			order.Currency,
			order.Status,
			linesJSON,
			order.CreatedAt,
			order.UpdatedAt)
		if insertErr != nil {
			if isUniqueViolation(insertErr) {
				return ErrDuplicateDraftOrder
			}
			return fmt.Errorf("insert draft order: %w", insertErr)
		}

		return insertOutboxEvent(ctx, tx, order.TransactionID, EventDraftOrderCreated, payload)
	})
}

func (r *Repository) GetDraftOrderByTransaction(ctx context.Context, transactionID string) (*domain.DraftOrder, error) {
	query := `SELECT id, transaction_id, cart_id, shopper_id, total_amount, currency, status, lines, created_at, updated_at
	          FROM draft_orders WHERE transaction_id = $1`

	var (
		order     domain.DraftOrder
		shopperID sql.NullString
		linesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(
		&order.ID,
		&order.TransactionID,
		&order.CartID,
		&shopperID,
		&order.TotalAmount,
		&order.Currency,
		&order.Status,
		&linesJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query draft order by transaction: %w", err)
	}
	if shopperID.Valid {
		order.ShopperID = &shopperID.String
	}
	if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal draft order lines: %w", err)
	}
	return &order, nil
}

// UpdateDraftOrderStatus moves the order from one status to another. It fails
// with ErrStaleDraftOrder when the stored status is no longer from.
func (r *Repository) UpdateDraftOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, now time.Time) error {
	if !isUUID(id) {
		return ErrDraftOrderNotFound
	}

	query := `UPDATE draft_orders SET status = $3, updated_at = $4
	          WHERE id = $1 AND status = $2
	          RETURNING transaction_id, cart_id`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var transactionID, cartID string
		err := tx.QueryRowContext(ctx, query, id, from, to, now).Scan(&transactionID, &cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleDraftOrder
		}
		if err != nil {
			return fmt.Errorf("update draft order status: %w", err)
		}

		payload, err := json.Marshal(draftOrderStatusEvent{
			DraftOrderID:  id,
			TransactionID: transactionID,
			CartID:        cartID,
			From:          from,
			To:            to,
			ChangedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal status event: %w", err)
		}
		return insertOutboxEvent(ctx, tx, transactionID, EventDraftOrderStatusChanged, payload)
	})
}
