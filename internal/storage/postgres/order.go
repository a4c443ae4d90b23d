package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

const orderColumns = `id, user_id, address_id, credit_card_id, status, total, discount,
	applied_coupon_id, applied_coupon_code, created_at, updated_at`

const (
	getOrderSQL    = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	listOrdersSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

const createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const createOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, position, quantity, price_at_purchase)
	VALUES ($1, $2, $3, $4, $5, $6)`

const listOrderItemsSQL = `SELECT id, order_id, product_id, quantity, price_at_purchase
	FROM order_items
	WHERE order_id = ANY($1)
	ORDER BY order_id, position`

// applyOrderCouponSQL only matches a pending order without a coupon.
const applyOrderCouponSQL = `UPDATE orders SET
		total = $2, discount = $3, applied_coupon_id = $4, applied_coupon_code = $5, updated_at = $6
	WHERE id = $1 AND status = 'pending' AND applied_coupon_id IS NULL`

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.AddressID, &o.CreditCardID, &o.Status, &o.Total, &o.Discount,
		&o.AppliedCouponID, &o.AppliedCouponCode, &o.CreatedAt, &o.UpdatedAt)
	o.CreatedAt, o.UpdatedAt = utc(o.CreatedAt), utc(o.UpdatedAt)
	return o, err
}

func (q *queries) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := scanOrder(q.q.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		return nil, mapErr(err, "get order")
	}
	orders := []order.Order{o}
	if err := q.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (q *queries) ListOrders(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	rows, err := q.q.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, mapErr(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, mapErr(err, "scan orders")
	}
	if err := q.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills Items of every order with one query.
func (q *queries) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return mapErr(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.OrderItem, error) {
		var it order.OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PriceAtPurchase)
		return it, err
	})
	if err != nil {
		return mapErr(err, "scan order items")
	}
	for _, it := range items {
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

// CreateOrder inserts the order row and its items in one batch.
func (t *tx) CreateOrder(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(createOrderSQL, o.ID, o.UserID, o.AddressID, o.CreditCardID, o.Status, o.Total, o.Discount,
		o.AppliedCouponID, o.AppliedCouponCode, o.CreatedAt, o.UpdatedAt)
	for i, it := range o.Items {
		b.Queue(createOrderItemSQL, it.ID, o.ID, it.ProductID, i, it.Quantity, it.PriceAtPurchase)
	}

	br := t.q.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return mapErr(err, "create order")
		}
	}
	return mapErr(br.Close(), "create order")
}

func (t *tx) ApplyOrderCoupon(ctx context.Context, o *order.Order) error {
	tag, err := t.q.Exec(ctx, applyOrderCouponSQL, o.ID, o.Total, o.Discount,
		o.AppliedCouponID, o.AppliedCouponCode, o.UpdatedAt)
	if err != nil {
		return mapErr(err, "apply order coupon")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.q.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
		return mapErr(err, "check order")
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConditionFailed
}
