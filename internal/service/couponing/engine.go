// Package couponing applies coupons to orders and records deferred coupon
// intents.
package couponing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/metrics"
)

// ApplyRequest asks to apply a coupon code to an order on behalf of a caller.
type ApplyRequest struct {
	OrderID  uuid.UUID
	Code     string
	CallerID uuid.UUID
}

// Engine is the coupon engine.
type Engine struct {
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine creates an Engine backed by st.
func NewEngine(st store.Store, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   st,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Apply applies a coupon to an existing order owned by the caller.
//
// When the order does not exist but the coupon does and is active, the code
// is stored as the caller's pending intent and a placeholder receipt with
// status pending_confirmation is returned. The intent is consumed by the
// caller's next order.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*order.Receipt, error) {
	ctx, span := e.metrics.Start(ctx, "couponing.Apply",
		attribute.String("order_id", req.OrderID.String()),
		attribute.String("coupon_code", req.Code),
	)
	defer span.End()

	lg := zctx.From(ctx)
	now := e.now()

	var receipt *order.Receipt
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, req.OrderID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			receipt, err = e.recordIntent(ctx, tx, req, now)
			return err
		case err != nil:
			return errors.Wrap(err, "get order")
		}

		if o.UserID != req.CallerID {
			return apperr.Forbidden("not authorized to modify this order")
		}
		if o.Status != order.StatusPending {
			return apperr.InvalidState("cannot apply coupon to a non-pending order")
		}
		if o.HasCoupon() {
			return apperr.InvalidState("coupon already applied to this order")
		}

		if _, err := ApplyToOrder(ctx, tx, o, req.Code, now); err != nil {
			return err
		}

		receipt = &order.Receipt{Order: o, CardLastFour: cardLastFour(ctx, tx, o)}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if receipt.Deferred {
		e.metrics.IntentRecorded(ctx)
		lg.Info("Coupon intent recorded",
			zap.Stringer("user_id", req.CallerID),
			zap.Stringer("order_id", req.OrderID),
			zap.String("coupon_code", req.Code),
		)
		return receipt, nil
	}

	e.metrics.CouponApplied(ctx, metrics.ModeDirect)
	lg.Info("Coupon applied",
		zap.Stringer("order_id", receipt.Order.ID),
		zap.String("coupon_code", receipt.Order.AppliedCouponCode),
		zap.Stringer("discount", receipt.Order.Discount),
	)
	return receipt, nil
}

// recordIntent records req.Code as the caller's pending intent.
func (e *Engine) recordIntent(ctx context.Context, tx store.Tx, req ApplyRequest, now time.Time) (*order.Receipt, error) {
	c, err := tx.GetCoupon(ctx, req.Code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFoundCode(apperr.EntityCoupon, req.Code)
	case err != nil:
		return nil, errors.Wrap(err, "get coupon")
	case !c.IsActive:
		return nil, apperr.NotFoundCode(apperr.EntityCoupon, req.Code)
	}

	if err := tx.PutCouponIntent(ctx, req.CallerID, c.Code); err != nil {
		return nil, errors.Wrap(err, "put coupon intent")
	}

	return &order.Receipt{
		Order: &order.Order{
			ID:                req.OrderID,
			UserID:            req.CallerID,
			Status:            order.StatusPendingConfirmation,
			Total:             decimal.NewFromInt(-1),
			Discount:          decimal.Zero,
			AppliedCouponCode: c.Code,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		Deferred: true,
	}, nil
}

// Lookup returns an active coupon by code.
func (e *Engine) Lookup(ctx context.Context, code string) (*coupon.Coupon, error) {
	c, err := e.store.GetCoupon(ctx, code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFoundCode(apperr.EntityCoupon, code)
	case err != nil:
		return nil, errors.Wrap(err, "get coupon")
	case !c.IsActive:
		return nil, apperr.NotFoundCode(apperr.EntityCoupon, code)
	}
	return c, nil
}

func cardLastFour(ctx context.Context, r store.Reader, o *order.Order) string {
	card, err := r.GetCreditCard(ctx, o.CreditCardID)
	if err != nil {
		return ""
	}
	return card.LastFour
}
