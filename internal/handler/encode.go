package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

func respond(w http.ResponseWriter, status int, body func(e *jx.Encoder)) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	body(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(e.Bytes())
	return err
}

// money encodes d as a JSON number with exactly two fractional digits.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(order.MoneyScale)))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func optID(e *jx.Encoder, id uuid.UUID) {
	if id == uuid.Nil {
		e.Null()
		return
	}
	e.Str(id.String())
}

func str(s string) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { e.Str(s) }
}

func boolean(b bool) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { e.Bool(b) }
}

func encodeReceipt(e *jx.Encoder, rc *order.Receipt) {
	o := rc.Order
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_id", str(o.ID.String()))
		e.Field("user_id", str(o.UserID.String()))
		e.Field("address_id", func(e *jx.Encoder) { optID(e, o.AddressID) })
		e.Field("credit_card_id", func(e *jx.Encoder) { optID(e, o.CreditCardID) })
		e.Field("status", str(string(o.Status)))
		e.Field("total_amount", func(e *jx.Encoder) { money(e, o.Total) })
		e.Field("discount_amount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("applied_coupon_id", func(e *jx.Encoder) {
			if o.AppliedCouponID == nil {
				e.Null()
				return
			}
			e.Str(o.AppliedCouponID.String())
		})
		e.Field("applied_coupon_code", func(e *jx.Encoder) {
			if o.AppliedCouponCode == "" {
				e.Null()
				return
			}
			e.Str(o.AppliedCouponCode)
		})
		e.Field("credit_card_last_four", func(e *jx.Encoder) {
			if rc.CardLastFour == "" {
				e.Null()
				return
			}
			e.Str(rc.CardLastFour)
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("order_item_id", str(it.ID.String()))
						e.Field("product_id", str(it.ProductID.String()))
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price_at_purchase", func(e *jx.Encoder) { money(e, it.PriceAtPurchase) })
					})
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
	})
}

func encodeAddress(e *jx.Encoder, a *account.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("address_id", str(a.ID.String()))
		e.Field("user_id", str(a.UserID.String()))
		e.Field("street", str(a.Street))
		e.Field("city", str(a.City))
		e.Field("country", str(a.Country))
		e.Field("zip_code", str(a.ZipCode))
		e.Field("is_default", boolean(a.IsDefault))
		e.Field("is_protected", boolean(a.IsProtected))
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, a.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, a.UpdatedAt) })
	})
}

// encodeCard never writes the number or CVV hashes.
func encodeCard(e *jx.Encoder, c *account.CreditCard) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("card_id", str(c.ID.String()))
		e.Field("user_id", str(c.UserID.String()))
		e.Field("cardholder_name", str(c.CardholderName))
		e.Field("expiry_month", str(c.ExpiryMonth))
		e.Field("expiry_year", str(c.ExpiryYear))
		e.Field("card_last_four", str(c.LastFour))
		e.Field("is_default", boolean(c.IsDefault))
		e.Field("is_protected", boolean(c.IsProtected))
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, c.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { timestamp(e, c.UpdatedAt) })
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("coupon_id", str(c.ID.String()))
		e.Field("code", str(c.Code))
		e.Field("discount_type", str(string(c.DiscountType)))
		e.Field("discount_value", func(e *jx.Encoder) { money(e, c.DiscountValue) })
		e.Field("is_active", boolean(c.IsActive))
		e.Field("usage_limit", func(e *jx.Encoder) {
			if c.UsageLimit == nil {
				e.Null()
				return
			}
			e.Int(*c.UsageLimit)
		})
		e.Field("usage_count", func(e *jx.Encoder) { e.Int(c.UsageCount) })
		e.Field("expiration_date", func(e *jx.Encoder) {
			if c.ExpiresAt == nil {
				e.Null()
				return
			}
			timestamp(e, *c.ExpiresAt)
		})
		e.Field("is_protected", boolean(c.IsProtected))
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, c.CreatedAt) })
	})
}
