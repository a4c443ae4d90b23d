package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/store"
)

const getProductSQL = `SELECT id, name, description, price, category, is_protected, created_at, updated_at
	FROM products
	WHERE id = $1`

const putProductSQL = `INSERT INTO products (id, name, description, price, category, is_protected, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		price = EXCLUDED.price,
		category = EXCLUDED.category,
		is_protected = EXCLUDED.is_protected,
		updated_at = EXCLUDED.updated_at`

const (
	getStockSQL      = `SELECT product_id, quantity, last_updated FROM stock WHERE product_id = $1`
	stockQuantitySQL = `SELECT quantity FROM stock WHERE product_id = $1`
)

const putStockSQL = `INSERT INTO stock (product_id, quantity, last_updated)
	VALUES ($1, $2, $3)
	ON CONFLICT (product_id) DO UPDATE SET
		quantity = EXCLUDED.quantity,
		last_updated = EXCLUDED.last_updated`

// decrementStockSQL only matches while enough units are on hand.
const decrementStockSQL = `UPDATE stock
	SET quantity = quantity - $2, last_updated = $3
	WHERE product_id = $1 AND quantity >= $2
	RETURNING quantity`

func (q *queries) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var p catalog.Product
	err := q.q.QueryRow(ctx, getProductSQL, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.IsProtected, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "get product")
	}
	p.CreatedAt, p.UpdatedAt = utc(p.CreatedAt), utc(p.UpdatedAt)
	return &p, nil
}

func (q *queries) GetStock(ctx context.Context, productID uuid.UUID) (*catalog.Stock, error) {
	var s catalog.Stock
	if err := q.q.QueryRow(ctx, getStockSQL, productID).Scan(&s.ProductID, &s.Quantity, &s.LastUpdated); err != nil {
		return nil, mapErr(err, "get stock")
	}
	s.LastUpdated = utc(s.LastUpdated)
	return &s, nil
}

func (t *tx) PutProduct(ctx context.Context, p *catalog.Product) error {
	_, err := t.q.Exec(ctx, putProductSQL, p.ID, p.Name, p.Description, p.Price, p.Category,
		p.IsProtected, p.CreatedAt, p.UpdatedAt)
	return mapErr(err, "put product")
}

func (t *tx) PutStock(ctx context.Context, s *catalog.Stock) error {
	_, err := t.q.Exec(ctx, putStockSQL, s.ProductID, s.Quantity, s.LastUpdated)
	return mapErr(err, "put stock")
}

func (t *tx) DecrementStock(ctx context.Context, productID uuid.UUID, qty int, at time.Time) (int, error) {
	var left int
	err := t.q.QueryRow(ctx, decrementStockSQL, productID, qty, at).Scan(&left)
	if err == nil {
		return left, nil
	}
	if err := mapErr(err, "decrement stock"); !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	// Either the product has no stock row or too few units remain.
	if err := t.q.QueryRow(ctx, stockQuantitySQL, productID).Scan(&left); err != nil {
		return 0, mapErr(err, "read stock")
	}
	return left, store.ErrConditionFailed
}
