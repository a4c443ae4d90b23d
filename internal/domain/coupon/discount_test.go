package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func limit(n int) *int { return &n }

func TestDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon *Coupon
		total  decimal.Decimal
		want   decimal.Decimal
	}{
		{
			name:   "percentage 10% off 200.00",
			coupon: &Coupon{Code: "SAVE10", DiscountType: DiscountPercentage, DiscountValue: d("10")},
			total:  d("200.00"),
			want:   d("20.00"),
		},
		{
			name:   "percentage rounds to cents",
			coupon: &Coupon{Code: "PCT15", DiscountType: DiscountPercentage, DiscountValue: d("15")},
			total:  d("33.33"),
			want:   d("5.00"),
		},
		{
			name:   "percentage rounds half away from zero",
			coupon: &Coupon{Code: "PCT5", DiscountType: DiscountPercentage, DiscountValue: d("5")},
			total:  d("0.50"),
			want:   d("0.03"),
		},
		{
			name:   "percentage above 100 is clamped to total",
			coupon: &Coupon{Code: "PCT150", DiscountType: DiscountPercentage, DiscountValue: d("150")},
			total:  d("40.00"),
			want:   d("40.00"),
		},
		{
			name:   "fixed below total",
			coupon: &Coupon{Code: "FLAT9", DiscountType: DiscountFixed, DiscountValue: d("9")},
			total:  d("100.00"),
			want:   d("9"),
		},
		{
			name:   "fixed above total is clamped",
			coupon: &Coupon{Code: "FLAT50", DiscountType: DiscountFixed, DiscountValue: d("50")},
			total:  d("12.34"),
			want:   d("12.34"),
		},
		{
			name:   "zero total",
			coupon: &Coupon{Code: "FLAT5", DiscountType: DiscountFixed, DiscountValue: d("5")},
			total:  decimal.Zero,
			want:   decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discount(tt.coupon, tt.total)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(tt.total))
		})
	}
}

func TestDiscount_UnsupportedType(t *testing.T) {
	_, err := Discount(&Coupon{Code: "X", DiscountType: "free_lowest", DiscountValue: d("1")}, d("10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}

func TestCheckEligible(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name     string
		coupon   Coupon
		wantKind apperr.Kind
		wantMsg  string
	}{
		{name: "active unlimited", coupon: Coupon{IsActive: true}},
		{name: "active under limit", coupon: Coupon{IsActive: true, UsageLimit: limit(3), UsageCount: 2}},
		{name: "not yet expired", coupon: Coupon{IsActive: true, ExpiresAt: &future}},
		{
			name:     "inactive",
			coupon:   Coupon{IsActive: false},
			wantKind: apperr.KindCouponInactive,
			wantMsg:  "coupon is not active",
		},
		{
			name:     "expired",
			coupon:   Coupon{IsActive: true, ExpiresAt: &past},
			wantKind: apperr.KindCouponInactive,
			wantMsg:  "coupon expired",
		},
		{
			name:     "expires exactly now",
			coupon:   Coupon{IsActive: true, ExpiresAt: &fixedNow},
			wantKind: apperr.KindCouponInactive,
			wantMsg:  "coupon expired",
		},
		{
			name:     "at limit",
			coupon:   Coupon{IsActive: true, UsageLimit: limit(3), UsageCount: 3},
			wantKind: apperr.KindCouponLimitReached,
			wantMsg:  "coupon usage limit reached",
		},
		{
			name:     "beyond limit",
			coupon:   Coupon{IsActive: true, UsageLimit: limit(1), UsageCount: 4},
			wantKind: apperr.KindCouponLimitReached,
		},
		{
			name:     "protected coupon still blocked at limit",
			coupon:   Coupon{IsActive: true, IsProtected: true, UsageLimit: limit(2), UsageCount: 2},
			wantKind: apperr.KindCouponLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.coupon.Code = "TEST"
			err := CheckEligible(&tt.coupon, fixedNow)
			if tt.wantKind == apperr.KindInternal {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestNextUsage(t *testing.T) {
	tests := []struct {
		name   string
		coupon Coupon
		want   int
	}{
		{name: "unlimited", coupon: Coupon{UsageCount: 7}, want: 8},
		{name: "under limit", coupon: Coupon{UsageLimit: limit(5), UsageCount: 0}, want: 1},
		{name: "reaches limit", coupon: Coupon{UsageLimit: limit(5), UsageCount: 4}, want: 5},
		{name: "protected below limit", coupon: Coupon{IsProtected: true, UsageLimit: limit(5), UsageCount: 2}, want: 3},
		{name: "protected reaching limit resets", coupon: Coupon{IsProtected: true, UsageLimit: limit(5), UsageCount: 4}, want: 0},
		{name: "protected without limit", coupon: Coupon{IsProtected: true, UsageCount: 9}, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.NextUsage())
		})
	}
}
