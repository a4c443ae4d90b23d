package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/store"
)

const couponColumns = `id, code, discount_type, discount_value, is_active, usage_limit, expires_at,
	usage_count, is_protected, created_at, updated_at`

const getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

// putCouponSQL keeps the id, usage counter and creation time of an existing
// coupon with the same code.
const putCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
	ON CONFLICT (code) DO UPDATE SET
		discount_type = EXCLUDED.discount_type,
		discount_value = EXCLUDED.discount_value,
		is_active = EXCLUDED.is_active,
		usage_limit = EXCLUDED.usage_limit,
		expires_at = EXCLUDED.expires_at,
		is_protected = EXCLUDED.is_protected,
		updated_at = EXCLUDED.updated_at
	RETURNING id, usage_count, created_at`

const swapCouponUsageSQL = `UPDATE coupons SET usage_count = $3, updated_at = $4
	WHERE id = $1 AND usage_count = $2`

const couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

const putIntentSQL = `INSERT INTO coupon_intents (user_id, code, created_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (user_id) DO UPDATE SET code = EXCLUDED.code, created_at = EXCLUDED.created_at`

const takeIntentSQL = `DELETE FROM coupon_intents WHERE user_id = $1 RETURNING code`

// GetCoupon reads a coupon by code. Inside a transaction the row is locked
// until commit so that concurrent applications serialise on it.
func (q *queries) GetCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	sql := getCouponSQL
	if q.inTx {
		sql += " FOR UPDATE"
	}

	var c coupon.Coupon
	err := q.q.QueryRow(ctx, sql, code).Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.IsActive, &c.UsageLimit, &c.ExpiresAt,
		&c.UsageCount, &c.IsProtected, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "get coupon")
	}
	c.ExpiresAt = utcPtr(c.ExpiresAt)
	c.CreatedAt, c.UpdatedAt = utc(c.CreatedAt), utc(c.UpdatedAt)
	return &c, nil
}

func (t *tx) PutCoupon(ctx context.Context, c *coupon.Coupon) error {
	err := t.q.QueryRow(ctx, putCouponSQL,
		c.ID, c.Code, c.DiscountType, c.DiscountValue, c.IsActive, c.UsageLimit, c.ExpiresAt,
		c.IsProtected, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID, &c.UsageCount, &c.CreatedAt)
	if err != nil {
		return mapErr(err, "put coupon")
	}
	c.CreatedAt = utc(c.CreatedAt)
	return nil
}

func (t *tx) SwapCouponUsage(ctx context.Context, couponID uuid.UUID, expected, next int, at time.Time) error {
	tag, err := t.q.Exec(ctx, swapCouponUsageSQL, couponID, expected, next, at)
	if err != nil {
		return mapErr(err, "swap coupon usage")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.q.QueryRow(ctx, couponExistsSQL, couponID).Scan(&exists); err != nil {
		return mapErr(err, "check coupon")
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConditionFailed
}

func (t *tx) PutCouponIntent(ctx context.Context, userID uuid.UUID, code string) error {
	_, err := t.q.Exec(ctx, putIntentSQL, userID, code)
	return mapErr(err, "put coupon intent")
}

func (t *tx) TakeCouponIntent(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	var code string
	err := t.q.QueryRow(ctx, takeIntentSQL, userID).Scan(&code)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, mapErr(err, "take coupon intent")
	}
	return code, true, nil
}
