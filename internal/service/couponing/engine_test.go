package couponing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/metrics"
	"github.com/xenking/storefront/internal/storage/memory"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type env struct {
	t      *testing.T
	store  *memory.Store
	engine *Engine
	user   uuid.UUID
	card   uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	e := &env{
		t:      t,
		store:  st,
		engine: NewEngine(st, metrics.Noop()),
		user:   uuid.New(),
		card:   uuid.New(),
	}
	e.engine.now = func() time.Time { return fixedNow }

	e.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutUser(ctx, &account.User{ID: e.user, Username: "alice"}); err != nil {
			return err
		}
		return tx.CreateCreditCard(ctx, &account.CreditCard{ID: e.card, UserID: e.user, LastFour: "1111"})
	})
	return e
}

func (e *env) tx(fn func(ctx context.Context, tx store.Tx) error) {
	e.t.Helper()
	require.NoError(e.t, e.store.WithinTx(context.Background(), fn))
}

func (e *env) order(owner uuid.UUID, total string, mutate ...func(o *order.Order)) *order.Order {
	e.t.Helper()
	o := &order.Order{
		ID:           uuid.New(),
		UserID:       owner,
		CreditCardID: e.card,
		Status:       order.StatusPending,
		Total:        decimal.RequireFromString(total),
		Discount:     decimal.Zero,
		CreatedAt:    fixedNow.Add(-time.Hour),
		UpdatedAt:    fixedNow.Add(-time.Hour),
	}
	for _, fn := range mutate {
		fn(o)
	}
	e.tx(func(ctx context.Context, tx store.Tx) error { return tx.CreateOrder(ctx, o) })
	return o
}

func (e *env) coupon(c coupon.Coupon) *coupon.Coupon {
	e.t.Helper()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	e.tx(func(ctx context.Context, tx store.Tx) error { return tx.PutCoupon(ctx, &c) })
	return &c
}

func (e *env) usage(code string) int {
	e.t.Helper()
	c, err := e.store.GetCoupon(context.Background(), code)
	require.NoError(e.t, err)
	return c.UsageCount
}

func percent(code string, value int64) coupon.Coupon {
	return coupon.Coupon{
		Code:          code,
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(value),
		IsActive:      true,
	}
}

func fixed(code, value string) coupon.Coupon {
	return coupon.Coupon{
		Code:          code,
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.RequireFromString(value),
		IsActive:      true,
	}
}

func TestApply_Percentage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	limit := 100
	c := percent("SAVE10", 10)
	c.UsageLimit = &limit
	saved := e.coupon(c)
	o := e.order(e.user, "200.00")

	receipt, err := e.engine.Apply(ctx, ApplyRequest{OrderID: o.ID, Code: "SAVE10", CallerID: e.user})
	require.NoError(t, err)
	require.False(t, receipt.Deferred)

	got := receipt.Order
	assert.True(t, decimal.RequireFromString("20.00").Equal(got.Discount), "discount %s", got.Discount)
	assert.True(t, decimal.RequireFromString("180.00").Equal(got.Total), "total %s", got.Total)
	require.NotNil(t, got.AppliedCouponID)
	assert.Equal(t, saved.ID, *got.AppliedCouponID)
	assert.Equal(t, "SAVE10", got.AppliedCouponCode)
	assert.Equal(t, fixedNow, got.UpdatedAt)
	assert.Equal(t, "1111", receipt.CardLastFour)
	assert.Equal(t, 1, e.usage("SAVE10"))

	stored, err := e.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(stored.Total))
	assert.True(t, got.Discount.Equal(stored.Discount))
}

func TestApply_FixedIsClampedToTotal(t *testing.T) {
	e := newEnv(t)
	e.coupon(fixed("BIG", "50.00"))
	o := e.order(e.user, "30.00")

	receipt, err := e.engine.Apply(context.Background(), ApplyRequest{OrderID: o.ID, Code: "BIG", CallerID: e.user})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("30.00").Equal(receipt.Order.Discount))
	assert.True(t, receipt.Order.Total.IsZero(), "total %s", receipt.Order.Total)
}

func TestApply_Rejections(t *testing.T) {
	past := fixedNow.Add(-time.Minute)
	limit := 2

	tests := []struct {
		name     string
		coupon   coupon.Coupon
		owner    func(e *env) uuid.UUID
		mutate   func(o *order.Order)
		code     string
		wantKind apperr.Kind
		wantMsg  string
	}{
		{
			name:     "order of another user",
			coupon:   percent("SAVE10", 10),
			owner:    func(*env) uuid.UUID { return uuid.New() },
			wantKind: apperr.KindForbidden,
			wantMsg:  "not authorized to modify this order",
		},
		{
			name:   "order not pending",
			coupon: percent("SAVE10", 10),
			mutate: func(o *order.Order) {
				o.Status = "shipped"
			},
			wantKind: apperr.KindInvalidState,
			wantMsg:  "cannot apply coupon to a non-pending order",
		},
		{
			name:   "coupon already applied",
			coupon: percent("SAVE10", 10),
			mutate: func(o *order.Order) {
				id := uuid.New()
				o.AppliedCouponID = &id
				o.AppliedCouponCode = "OTHER"
			},
			wantKind: apperr.KindInvalidState,
			wantMsg:  "coupon already applied to this order",
		},
		{
			name:     "unknown coupon",
			coupon:   percent("SAVE10", 10),
			code:     "NOPE",
			wantKind: apperr.KindNotFound,
			wantMsg:  "coupon with ID NOPE not found",
		},
		{
			name: "inactive coupon",
			coupon: func() coupon.Coupon {
				c := percent("SAVE10", 10)
				c.IsActive = false
				return c
			}(),
			wantKind: apperr.KindCouponInactive,
		},
		{
			name: "expired coupon",
			coupon: func() coupon.Coupon {
				c := percent("SAVE10", 10)
				c.ExpiresAt = &past
				return c
			}(),
			wantKind: apperr.KindCouponInactive,
			wantMsg:  "coupon expired",
		},
		{
			name: "usage limit reached",
			coupon: func() coupon.Coupon {
				c := percent("SAVE10", 10)
				c.UsageLimit = &limit
				c.UsageCount = 2
				return c
			}(),
			wantKind: apperr.KindCouponLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			e.coupon(tt.coupon)

			owner := e.user
			if tt.owner != nil {
				owner = tt.owner(e)
			}
			var mutate []func(o *order.Order)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			o := e.order(owner, "100.00", mutate...)

			code := tt.code
			if code == "" {
				code = tt.coupon.Code
			}
			before := e.usage(tt.coupon.Code)

			_, err := e.engine.Apply(ctx, ApplyRequest{OrderID: o.ID, Code: code, CallerID: e.user})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}

			stored, err := e.store.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("100.00").Equal(stored.Total))
			assert.Equal(t, before, e.usage(tt.coupon.Code))
		})
	}
}

func TestApply_ProtectedCouponResetsAtLimit(t *testing.T) {
	e := newEnv(t)
	limit := 2
	c := percent("DEMO50", 50)
	c.UsageLimit = &limit
	c.UsageCount = 1
	c.IsProtected = true
	e.coupon(c)

	o := e.order(e.user, "10.00")
	receipt, err := e.engine.Apply(context.Background(), ApplyRequest{OrderID: o.ID, Code: "DEMO50", CallerID: e.user})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("5.00").Equal(receipt.Order.Total))
	assert.Equal(t, 0, e.usage("DEMO50"), "protected coupon counter wraps instead of exhausting")
}

func TestApply_SecondApplyOnSameOrderFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.coupon(percent("SAVE10", 10))
	e.coupon(fixed("FLAT5", "5"))
	o := e.order(e.user, "50.00")

	_, err := e.engine.Apply(ctx, ApplyRequest{OrderID: o.ID, Code: "SAVE10", CallerID: e.user})
	require.NoError(t, err)

	_, err = e.engine.Apply(ctx, ApplyRequest{OrderID: o.ID, Code: "FLAT5", CallerID: e.user})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, 1, e.usage("SAVE10"))
	assert.Equal(t, 0, e.usage("FLAT5"))
}

func TestApply_ConcurrentRespectsLimit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	limit := 1
	c := fixed("ONCE", "5")
	c.UsageLimit = &limit
	e.coupon(c)

	orders := make([]*order.Order, 20)
	for i := range orders {
		orders[i] = e.order(e.user, "50.00")
	}

	var g errgroup.Group
	results := make([]error, len(orders))
	for i, o := range orders {
		g.Go(func() error {
			_, results[i] = e.engine.Apply(ctx, ApplyRequest{OrderID: o.ID, Code: "ONCE", CallerID: e.user})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.KindCouponLimitReached, apperr.KindOf(err), err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, e.usage("ONCE"))

	discounted := 0
	for _, o := range orders {
		stored, err := e.store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		if stored.HasCoupon() {
			discounted++
		}
	}
	assert.Equal(t, 1, discounted)
}

func TestApply_DefersUnknownOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.coupon(percent("SAVE10", 10))
	orderID := uuid.New()

	receipt, err := e.engine.Apply(ctx, ApplyRequest{OrderID: orderID, Code: "SAVE10", CallerID: e.user})
	require.NoError(t, err)
	require.True(t, receipt.Deferred)

	o := receipt.Order
	assert.Equal(t, orderID, o.ID)
	assert.Equal(t, e.user, o.UserID)
	assert.Equal(t, order.StatusPendingConfirmation, o.Status)
	assert.True(t, decimal.NewFromInt(-1).Equal(o.Total))
	assert.True(t, o.Discount.IsZero())
	assert.Equal(t, "SAVE10", o.AppliedCouponCode)
	assert.Empty(t, o.Items)
	assert.Equal(t, 0, e.usage("SAVE10"), "deferral does not consume usage")

	_, err = e.store.GetOrder(ctx, orderID)
	require.ErrorIs(t, err, store.ErrNotFound)

	e.tx(func(ctx context.Context, tx store.Tx) error {
		code, ok, err := tx.TakeCouponIntent(ctx, e.user)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "SAVE10", code)
		return nil
	})
}

func TestApply_DeferReplacesEarlierIntent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.coupon(percent("SAVE10", 10))
	e.coupon(fixed("FLAT5", "5"))

	for _, code := range []string{"SAVE10", "FLAT5"} {
		_, err := e.engine.Apply(ctx, ApplyRequest{OrderID: uuid.New(), Code: code, CallerID: e.user})
		require.NoError(t, err)
	}

	e.tx(func(ctx context.Context, tx store.Tx) error {
		code, ok, err := tx.TakeCouponIntent(ctx, e.user)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "FLAT5", code)
		return nil
	})
}

func TestApply_DeferRequiresActiveCoupon(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	inactive := percent("OLDPROMO", 10)
	inactive.IsActive = false
	e.coupon(inactive)

	for _, code := range []string{"OLDPROMO", "MISSING"} {
		_, err := e.engine.Apply(ctx, ApplyRequest{OrderID: uuid.New(), Code: code, CallerID: e.user})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err), code)
	}

	e.tx(func(ctx context.Context, tx store.Tx) error {
		_, ok, err := tx.TakeCouponIntent(ctx, e.user)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.coupon(percent("SAVE10", 10))
	inactive := percent("OLDPROMO", 10)
	inactive.IsActive = false
	e.coupon(inactive)

	c, err := e.engine.Lookup(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)

	_, err = e.engine.Lookup(ctx, "OLDPROMO")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = e.engine.Lookup(ctx, "MISSING")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
