// Package fulfillment turns line items into durable orders while reserving
// warehouse stock.
package fulfillment

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/metrics"
	"github.com/xenking/storefront/internal/service/couponing"
)

// CreateRequest describes an order to create.
type CreateRequest struct {
	UserID       uuid.UUID
	AddressID    uuid.UUID
	CreditCardID uuid.UUID
	Items        []order.LineItem
}

// Service creates and reads orders.
type Service struct {
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service backed by st.
func NewService(st store.Store, m *metrics.Metrics) *Service {
	return &Service{
		store:   st,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// reservation pairs a line item with the product it resolved to.
type reservation struct {
	item    order.LineItem
	product *catalog.Product
}

// CreateOrder validates every referenced entity, deducts stock for each line
// item and persists the order with its items. Nothing is written unless every
// step succeeds.
//
// A pending coupon intent recorded for the user is consumed and applied
// before returning. An intent whose coupon is no longer eligible is dropped.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (*order.Receipt, error) {
	ctx, span := s.metrics.Start(ctx, "fulfillment.CreateOrder",
		attribute.String("user_id", req.UserID.String()),
	)
	defer span.End()

	items, err := order.NormalizeLineItems(req.Items)
	if err != nil {
		return nil, err
	}

	var (
		receipt    *order.Receipt
		couponMode string
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		receipt, couponMode = nil, ""
		now := s.now()

		card, err := resolveReferences(ctx, tx, req)
		if err != nil {
			return err
		}

		reserved, err := validate(ctx, tx, items)
		if err != nil {
			return err
		}
		if err := decrement(ctx, tx, reserved, now); err != nil {
			return err
		}

		o := &order.Order{
			ID:           uuid.New(),
			UserID:       req.UserID,
			AddressID:    req.AddressID,
			CreditCardID: req.CreditCardID,
			Status:       order.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		o.Items = make([]order.OrderItem, 0, len(reserved))
		for _, r := range reserved {
			o.Items = append(o.Items, order.OrderItem{
				ID:              uuid.New(),
				OrderID:         o.ID,
				ProductID:       r.product.ID,
				Quantity:        r.item.Quantity,
				PriceAtPurchase: r.product.Price,
			})
		}
		o.Total = o.Subtotal()

		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		applied, err := s.applyIntent(ctx, tx, o, now)
		if err != nil {
			return err
		}
		if applied {
			couponMode = metrics.ModeDeferred
		}

		receipt = &order.Receipt{Order: o, CardLastFour: card.LastFour}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.OrderFailed(ctx, err)
		return nil, err
	}

	units := 0
	for _, it := range receipt.Order.Items {
		units += it.Quantity
	}
	s.metrics.OrderCreated(ctx, units)
	if couponMode != "" {
		s.metrics.CouponApplied(ctx, couponMode)
	}

	zctx.From(ctx).Info("Order created",
		zap.Stringer("order_id", receipt.Order.ID),
		zap.Stringer("user_id", receipt.Order.UserID),
		zap.Int("items", len(receipt.Order.Items)),
		zap.Stringer("total", receipt.Order.Total),
	)
	return receipt, nil
}

// CheckReferences reports the first of the user, address and card of req
// that does not exist. Items are not inspected.
func (s *Service) CheckReferences(ctx context.Context, req CreateRequest) error {
	_, err := resolveReferences(ctx, s.store, req)
	return err
}

// resolveReferences loads the user, address and card an order points at and
// returns the card.
func resolveReferences(ctx context.Context, r store.Reader, req CreateRequest) (*account.CreditCard, error) {
	if _, err := r.GetUser(ctx, req.UserID); err != nil {
		return nil, notFound(err, apperr.EntityUser, req.UserID, "get user")
	}
	if _, err := r.GetAddress(ctx, req.AddressID); err != nil {
		return nil, notFound(err, apperr.EntityAddress, req.AddressID, "get address")
	}
	card, err := r.GetCreditCard(ctx, req.CreditCardID)
	if err != nil {
		return nil, notFound(err, apperr.EntityCreditCard, req.CreditCardID, "get credit card")
	}
	return card, nil
}

// validate resolves every product and checks stock before anything is
// written.
func validate(ctx context.Context, tx store.Tx, items []order.LineItem) ([]reservation, error) {
	out := make([]reservation, 0, len(items))
	for _, item := range items {
		p, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, notFound(err, apperr.EntityProduct, item.ProductID, "get product")
		}

		available := 0
		st, err := tx.GetStock(ctx, item.ProductID)
		switch {
		case err == nil:
			available = st.Quantity
		case !errors.Is(err, store.ErrNotFound):
			return nil, errors.Wrap(err, "get stock")
		}
		if available < item.Quantity {
			return nil, insufficient(p, available, item.Quantity)
		}

		out = append(out, reservation{item: item, product: p})
	}
	return out, nil
}

// decrement deducts stock in ascending product id order so that concurrent
// orders touching the same products lock rows in the same order.
func decrement(ctx context.Context, tx store.Tx, reserved []reservation, now time.Time) error {
	sorted := slices.Clone(reserved)
	slices.SortFunc(sorted, func(a, b reservation) int {
		return bytes.Compare(a.product.ID[:], b.product.ID[:])
	})

	for _, r := range sorted {
		left, err := tx.DecrementStock(ctx, r.product.ID, r.item.Quantity, now)
		switch {
		case errors.Is(err, store.ErrConditionFailed):
			return insufficient(r.product, left, r.item.Quantity)
		case errors.Is(err, store.ErrNotFound):
			return insufficient(r.product, 0, r.item.Quantity)
		case err != nil:
			return errors.Wrapf(err, "decrement stock of %s", r.product.ID)
		}
	}
	return nil
}

// applyIntent consumes the user's pending coupon intent, if any.
func (s *Service) applyIntent(ctx context.Context, tx store.Tx, o *order.Order, now time.Time) (bool, error) {
	code, ok, err := tx.TakeCouponIntent(ctx, o.UserID)
	if err != nil {
		return false, errors.Wrap(err, "take coupon intent")
	}
	if !ok {
		return false, nil
	}

	lg := zctx.From(ctx).With(
		zap.Stringer("order_id", o.ID),
		zap.String("coupon_code", code),
	)
	if _, err := couponing.ApplyToOrder(ctx, tx, o, code, now); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return false, err
		}
		lg.Warn("Skipping pending coupon", zap.Error(err))
		return false, nil
	}

	lg.Info("Applied pending coupon", zap.Stringer("discount", o.Discount))
	return true, nil
}

// GetOrder returns an order of the user.
func (s *Service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*order.Receipt, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Wrap(err, "get order")
	}
	if err != nil || o.UserID != userID {
		if _, err := s.store.GetUser(ctx, userID); err != nil {
			return nil, notFound(err, apperr.EntityUser, userID, "get user")
		}
		return nil, apperr.NotFound(apperr.EntityOrder, orderID)
	}
	return &order.Receipt{Order: o, CardLastFour: s.cardLastFour(ctx, o)}, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID) ([]order.Receipt, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, notFound(err, apperr.EntityUser, userID, "get user")
	}
	orders, err := s.store.ListOrders(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	out := make([]order.Receipt, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		out = append(out, order.Receipt{Order: o, CardLastFour: s.cardLastFour(ctx, o)})
	}
	return out, nil
}

func (s *Service) cardLastFour(ctx context.Context, o *order.Order) string {
	card, err := s.store.GetCreditCard(ctx, o.CreditCardID)
	if err != nil {
		return ""
	}
	return card.LastFour
}

func insufficient(p *catalog.Product, available, requested int) error {
	return &apperr.InsufficientStockError{
		ProductID: p.ID.String(),
		Name:      p.Name,
		Available: available,
		Requested: requested,
	}
}

// notFound maps store.ErrNotFound to a NotFound error scoped to entity.
func notFound(err error, entity string, id uuid.UUID, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return errors.Wrap(err, op)
}
