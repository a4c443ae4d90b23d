package coupon

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed monetary amount capped at the order total.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon is a redeemable discount addressed by a human-entered code.
type Coupon struct {
	ID            uuid.UUID
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	IsActive      bool
	// UsageLimit is nil for unlimited coupons.
	UsageLimit  *int
	ExpiresAt   *time.Time
	UsageCount  int
	IsProtected bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the coupon's expiration time has passed at now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Exhausted reports whether the usage counter reached the limit.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

// NextUsage returns the usage counter after one more successful application.
//
// Protected coupons wrap around: reaching the limit resets the counter to zero.
func (c *Coupon) NextUsage() int {
	next := c.UsageCount + 1
	if c.IsProtected && c.UsageLimit != nil && next >= *c.UsageLimit {
		return 0
	}
	return next
}
