package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT id, name, price, stock, low_stock_threshold, created_at, updated_at
	          FROM products WHERE id = $1`

	var p Product
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.Stock,
		&p.LowStockThreshold,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return &p, nil
}

func (s *postgresStore) GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error) {
	query := `SELECT id, product_id, name, price, stock
	          FROM product_variants WHERE id = $1`

	var v Variant
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.ProductID,
		&v.Name,
		&v.Price,
		&v.Stock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query variant by id: %w", err)
	}
	return &v, nil
}

func (s *postgresStore) AdjustStock(ctx context.Context, adjustments []StockAdjustment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stock adjustment: %w", err)
	}
	defer tx.Rollback()

	if err := AdjustStockTx(ctx, tx, adjustments); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stock adjustment: %w", err)
	}
	return nil
}

// AdjustStockTx applies relative stock updates inside an existing
// transaction. The stock >= delta guard turns a lost-update race between
// concurrent checkouts into a clean failure instead of negative inventory.
func AdjustStockTx(ctx context.Context, tx *sql.Tx, adjustments []StockAdjustment) error {
	for _, a := range adjustments {
		var (
			res sql.Result
			err error
		)
		if a.VariantID != nil {
			res, err = tx.ExecContext(ctx,
				`UPDATE product_variants SET stock = stock + $1 WHERE id = $2 AND stock + $1 >= 0`,
				a.Delta, *a.VariantID)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2 AND stock + $1 >= 0`,
				a.Delta, a.ProductID)
		}
		if err != nil {
			return fmt.Errorf("adjust stock for product %s: %w", a.ProductID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("adjust stock rows affected: %w", err)
		}
		if affected == 0 {
			if a.Delta < 0 {
				return ErrInsufficientStock
			}
			if a.VariantID != nil {
				return ErrVariantNotFound
			}
			return ErrProductNotFound
		}
	}
	return nil
}

func (s *postgresStore) LowStock(ctx context.Context, productIDs []uuid.UUID) ([]Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, name, price, stock, low_stock_threshold, created_at, updated_at
	          FROM products WHERE id = ANY($1) AND stock <= low_stock_threshold`

	ids := make([]string, len(productIDs))
	for i, id := range productIDs {
		ids[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query low stock products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan low stock row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}
