package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending is the state of every freshly created order. Coupons can
	// only be applied while an order is pending.
	StatusPending Status = "pending"
	// StatusPendingConfirmation marks the placeholder returned when a coupon
	// is deferred to the caller's next order.
	StatusPendingConfirmation Status = "pending_confirmation"
)

// MoneyScale is the number of fractional digits kept for monetary amounts.
const MoneyScale = 2

// Order is a durable customer order with its line items.
type Order struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	AddressID         uuid.UUID
	CreditCardID      uuid.UUID
	Status            Status
	Total             decimal.Decimal
	Discount          decimal.Decimal
	AppliedCouponID   *uuid.UUID
	AppliedCouponCode string
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasCoupon reports whether a coupon was already applied.
func (o *Order) HasCoupon() bool {
	return o.AppliedCouponID != nil
}

// Subtotal returns the pre-discount total: the sum of price-at-purchase times
// quantity over all items, rounded once after summation.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum.Round(MoneyScale)
}

// OrderItem is a single line of an order. PriceAtPurchase is a snapshot of
// the product price taken at creation and never recomputed.
type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	ProductID       uuid.UUID
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// LineTotal returns price-at-purchase times quantity, unrounded.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Receipt is an order as shown to its owner.
type Receipt struct {
	Order        *Order
	CardLastFour string
	// Deferred marks the placeholder returned when a coupon was recorded as
	// a pending intent instead of being applied.
	Deferred bool
}
