package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
)

const lineColumns = `id, cart_id, product_id, variant_id, quantity, unit_price, subtotal, created_at, updated_at`

func (r *Repository) CreateCart(ctx context.Context, cart *domain.Cart) error {
	query := `INSERT INTO carts (id, shopper_id, created_at, updated_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		cart.ID,
		cart.ShopperID,
		cart.CreatedAt,
		cart.UpdatedAt,
		cart.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *Repository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	if !isUUID(cartID) {
		return nil, ErrCartNotFound
	}

	query := `SELECT id, shopper_id, created_at, updated_at, expires_at FROM carts WHERE id = $1`
	return scanCart(r.db.QueryRowContext(ctx, query, cartID))
}

func (r *Repository) GetOrCreateShopperCart(ctx context.Context, shopperID string, now time.Time) (*domain.Cart, error) {
	insert := `INSERT INTO carts (id, shopper_id, created_at, updated_at)
	           VALUES ($1, $2, $3, $3)
	           ON CONFLICT (shopper_id) WHERE shopper_id IS NOT NULL DO NOTHING`

	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), shopperID, now); err != nil {
		return nil, fmt.Errorf("insert shopper cart: %w", err)
	}

	query := `SELECT id, shopper_id, created_at, updated_at, expires_at FROM carts WHERE shopper_id = $1`
	return scanCart(r.db.QueryRowContext(ctx, query, shopperID))
}

func (r *Repository) MergeCarts(ctx context.Context, fromID, intoID string, now time.Time) error {
	if !isUUID(fromID) || !isUUID(intoID) {
		return ErrCartNotFound
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		// lock the anonymous cart so a concurrent merge of the same token sees it gone
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE id = $1 AND shopper_id IS NULL FOR UPDATE`, fromID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCartNotFound
		}
		if err != nil {
			return fmt.Errorf("lock anonymous cart: %w", err)
		}

		move := `INSERT INTO cart_lines (cart_id, product_id, variant_id, quantity, unit_price, created_at, updated_at)
		         SELECT $2, product_id, variant_id, quantity, unit_price, created_at, $3
		         FROM cart_lines WHERE cart_id = $1 ORDER BY position
		         ON CONFLICT ON CONSTRAINT cart_lines_cart_product_variant_key
		         DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity,
		                       updated_at = EXCLUDED.updated_at`
		if _, err := tx.ExecContext(ctx, move, fromID, intoID, now); err != nil {
			return fmt.Errorf("merge cart lines: %w", err)
		}

		if err := touchCart(ctx, tx, intoID, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, fromID); err != nil {
			return fmt.Errorf("delete merged cart: %w", err)
		}
		return nil
	})
}

func (r *Repository) DeleteCart(ctx context.Context, cartID string) error {
	if !isUUID(cartID) {
		return ErrCartNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart rows affected: %w", err)
	}
	if n == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *Repository) DeleteExpiredCarts(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `DELETE FROM carts WHERE id IN (
	              SELECT id FROM carts
	              WHERE shopper_id IS NULL AND expires_at <= $1
	              ORDER BY expires_at
	              LIMIT $2
	              FOR UPDATE SKIP LOCKED)
	          RETURNING id`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("delete expired carts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired cart id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func (r *Repository) UpsertLine(ctx context.Context, line *domain.CartLine) (*domain.CartLine, error) {
	if !isUUID(line.CartID) {
		return nil, ErrCartNotFound
	}

	query := `INSERT INTO cart_lines (id, cart_id, product_id, variant_id, quantity, unit_price, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	          ON CONFLICT ON CONSTRAINT cart_lines_cart_product_variant_key
	          DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity,
	                        updated_at = EXCLUDED.updated_at
	          RETURNING ` + lineColumns

	id := line.ID
	if id == "" {
		id = uuid.NewString()
	}

	var stored *domain.CartLine
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, query,
			id,
			line.CartID,
			line.ProductID,
			variantColumn(line.VariantID),
			line.Quantity,
			line.UnitPrice,
			line.UpdatedAt)

		var err error
		stored, err = scanLine(row)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrCartNotFound
			}
			return fmt.Errorf("upsert cart line: %w", err)
		}
		return touchCart(ctx, tx, line.CartID, line.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *Repository) SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int, now time.Time) (*domain.CartLine, error) {
	if !isUUID(cartID) || !isUUID(lineID) {
		return nil, ErrLineNotFound
	}

	query := `UPDATE cart_lines SET quantity = $3, updated_at = $4
	          WHERE id = $1 AND cart_id = $2
	          RETURNING ` + lineColumns

	var stored *domain.CartLine
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = scanLine(tx.QueryRowContext(ctx, query, lineID, cartID, quantity, now))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLineNotFound
		}
		if err != nil {
			return fmt.Errorf("update line quantity: %w", err)
		}
		return touchCart(ctx, tx, cartID, now)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *Repository) DeleteLine(ctx context.Context, cartID, lineID string, now time.Time) (bool, error) {
	if !isUUID(cartID) || !isUUID(lineID) {
		return false, nil
	}

	var deleted bool
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1 AND cart_id = $2`, lineID, cartID)
		if err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete cart line rows affected: %w", err)
		}
		deleted = n > 0
		if !deleted {
			return nil
		}
		return touchCart(ctx, tx, cartID, now)
	})
	return deleted, err
}

func (r *Repository) DeleteLines(ctx context.Context, cartID string, now time.Time) (int64, error) {
	if !isUUID(cartID) {
		return 0, nil
	}

	var n int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
		if err != nil {
			return fmt.Errorf("clear cart lines: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("clear cart rows affected: %w", err)
		}
		return touchCart(ctx, tx, cartID, now)
	})
	return n, err
}

func (r *Repository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	if !isUUID(cartID) {
		return []domain.CartLine{}, nil
	}

	query := `SELECT ` + lineColumns + ` FROM cart_lines WHERE cart_id = $1 ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCart(row rowScanner) (*domain.Cart, error) {
	var (
		cart      domain.Cart
		shopperID sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&cart.ID, &shopperID, &cart.CreatedAt, &cart.UpdatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cart: %w", err)
	}
	if shopperID.Valid {
		cart.ShopperID = &shopperID.String
	}
	if expiresAt.Valid {
		cart.ExpiresAt = &expiresAt.Time
	}
	return &cart, nil
}

func scanLine(row rowScanner) (*domain.CartLine, error) {
	var (
		line    domain.CartLine
		variant string
	)
	err := row.Scan(
		&line.ID,
		&line.CartID,
		&line.ProductID,
		&variant,
		&line.Quantity,
		&line.UnitPrice,
		&line.Subtotal,
		&line.CreatedAt,
		&line.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if variant != "" {
		line.VariantID = &variant
	}
	return &line, nil
}

func touchCart(ctx context.Context, tx *sql.Tx, cartID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, now); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

// variantColumn maps an absent variant to '' so the unique key covers it.
func variantColumn(variantID *string) string {
	if variantID == nil {
		return ""
	}
	return *variantID
}

func isUUID(s string) bool {
	return uuid.Validate(s) == nil
}
