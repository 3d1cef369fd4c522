package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type PostgresReader struct {
	db *sql.DB
}

func NewPostgresReader(db *sql.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

func (r *PostgresReader) GetUnitPrice(ctx context.Context, productID string, variantID *string) (int64, error) {
	if variantID == nil {
		var price int64
		err := r.db.QueryRowContext(ctx,
			`SELECT price_cents FROM products WHERE id = $1`, productID).Scan(&price)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("query product price: %w", err)
		}
		return price, nil
	}

	query := `SELECT p.price_cents, v.id, v.price_cents
	          FROM products p
	          LEFT JOIN product_variants v ON v.product_id = p.id AND v.id = $2
	          WHERE p.id = $1`

	var (
		productPrice int64
		foundVariant sql.NullString
		variantPrice sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, productID, *variantID).Scan(&productPrice, &foundVariant, &variantPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query variant price: %w", err)
	}
	if !foundVariant.Valid {
		return 0, ErrVariantNotFound
	}
	if variantPrice.Valid {
		return variantPrice.Int64, nil
	}
	return productPrice, nil
}

// UpsertProduct writes a product and replaces its variant set.
func (r *PostgresReader) UpsertProduct(ctx context.Context, doc ProductDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, price_cents) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents`,
		doc.ID, doc.Name, doc.PriceCents)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", doc.ID, err)
	}

	keep := make([]string, 0, len(doc.Variants))
	for _, v := range doc.Variants {
		keep = append(keep, v.ID)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM product_variants WHERE product_id = $1 AND NOT (id = ANY($2))`,
		doc.ID, pq.Array(keep))
	if err != nil {
		return fmt.Errorf("prune variants of %s: %w", doc.ID, err)
	}

	for _, v := range doc.Variants {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_variants (id, product_id, name, price_cents) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET product_id = EXCLUDED.product_id, name = EXCLUDED.name, price_cents = EXCLUDED.price_cents`,
			v.ID, doc.ID, v.Name, v.PriceCents)
		if err != nil {
			return fmt.Errorf("upsert variant %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}
