package couponing

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

// ApplyToOrder applies the coupon with the given code to o inside tx and
// bumps the coupon's usage counter. o must be pending and carry no coupon;
// on success o reflects the stored discount.
//
// The order's total and the coupon counter move together or not at all: the
// caller's transaction aborts on any returned error.
func ApplyToOrder(ctx context.Context, tx store.Tx, o *order.Order, code string, now time.Time) (*coupon.Coupon, error) {
	c, err := tx.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFoundCode(apperr.EntityCoupon, code)
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	if err := coupon.CheckEligible(c, now); err != nil {
		return nil, err
	}

	discount, err := coupon.Discount(c, o.Total)
	if err != nil {
		return nil, err
	}

	updated := *o
	updated.Discount = discount.Round(order.MoneyScale)
	updated.Total = o.Total.Sub(discount).Round(order.MoneyScale)
	updated.AppliedCouponID = &c.ID
	updated.AppliedCouponCode = c.Code
	updated.UpdatedAt = now

	if err := tx.ApplyOrderCoupon(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, store.ErrConditionFailed):
			return nil, apperr.InvalidState("order is no longer pending or already has a coupon")
		case errors.Is(err, store.ErrNotFound):
			return nil, apperr.NotFound(apperr.EntityOrder, o.ID)
		}
		return nil, errors.Wrap(err, "apply order coupon")
	}
	if err := tx.SwapCouponUsage(ctx, c.ID, c.UsageCount, c.NextUsage(), now); err != nil {
		return nil, errors.Wrapf(err, "update usage of coupon %s", c.Code)
	}

	*o = updated
	return c, nil
}
