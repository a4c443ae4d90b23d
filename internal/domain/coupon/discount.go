package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var hundred = decimal.NewFromInt(100)

// moneyScale mirrors order.MoneyScale without importing the order package.
const moneyScale = 2

// CheckEligible returns a taxonomy error when c cannot be applied at now.
func CheckEligible(c *Coupon, now time.Time) error {
	switch {
	case !c.IsActive:
		return apperr.CouponInactive(c.Code, "coupon is not active")
	case c.Expired(now):
		return apperr.CouponInactive(c.Code, "coupon expired")
	case c.Exhausted():
		return apperr.CouponLimitReached(c.Code)
	}
	return nil
}

// Discount computes the amount c takes off total. The result is never
// negative and never exceeds total.
func Discount(c *Coupon, total decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = total.Mul(c.DiscountValue).Div(hundred).Round(moneyScale)
	case DiscountFixed:
		amount = c.DiscountValue
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}

	amount = decimal.Min(floorAtZero(amount), floorAtZero(total))
	return amount, nil
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
