package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

// tx mutates the shared state directly and records how to undo each write.
// The store lock is held for its whole lifetime.
type tx struct {
	s    *state
	undo []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember records the current value of m[k], or its absence.
func remember[K comparable, V any](t *tx, m map[K]V, k K) {
	old, ok := m[k]
	t.undo = append(t.undo, func() {
		if ok {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (t *tx) GetUser(_ context.Context, id uuid.UUID) (*account.User, error) {
	return t.s.getUser(id)
}

func (t *tx) FindAPIKey(_ context.Context, keyHash string) (*account.APIKey, error) {
	return t.s.findAPIKey(keyHash)
}

func (t *tx) GetAddress(_ context.Context, id uuid.UUID) (*account.Address, error) {
	return t.s.getAddress(id)
}

func (t *tx) ListAddresses(_ context.Context, userID uuid.UUID) ([]account.Address, error) {
	return t.s.listAddresses(userID), nil
}

func (t *tx) GetCreditCard(_ context.Context, id uuid.UUID) (*account.CreditCard, error) {
	return t.s.getCreditCard(id)
}

func (t *tx) ListCreditCards(_ context.Context, userID uuid.UUID) ([]account.CreditCard, error) {
	return t.s.listCreditCards(userID), nil
}

func (t *tx) GetProduct(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	return t.s.getProduct(id)
}

func (t *tx) GetStock(_ context.Context, productID uuid.UUID) (*catalog.Stock, error) {
	return t.s.getStock(productID)
}

func (t *tx) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	return t.s.getOrder(id)
}

func (t *tx) ListOrders(_ context.Context, userID uuid.UUID) ([]order.Order, error) {
	return t.s.listOrders(userID), nil
}

func (t *tx) GetCoupon(_ context.Context, code string) (*coupon.Coupon, error) {
	return t.s.getCoupon(code)
}

func (t *tx) DecrementStock(_ context.Context, productID uuid.UUID, qty int, at time.Time) (int, error) {
	st, ok := t.s.stock[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if st.Quantity < qty {
		return st.Quantity, store.ErrConditionFailed
	}

	remember(t, t.s.stock, productID)
	st.Quantity -= qty
	st.LastUpdated = at
	t.s.stock[productID] = st
	return st.Quantity, nil
}

func (t *tx) CreateOrder(_ context.Context, o *order.Order) error {
	if _, ok := t.s.orders[o.ID]; ok {
		return store.ErrDuplicate
	}
	remember(t, t.s.orders, o.ID)
	t.s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *tx) ApplyOrderCoupon(_ context.Context, o *order.Order) error {
	cur, ok := t.s.orders[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != order.StatusPending || cur.HasCoupon() {
		return store.ErrConditionFailed
	}

	remember(t, t.s.orders, o.ID)
	cur = cloneOrder(cur)
	cur.Total = o.Total
	cur.Discount = o.Discount
	cur.AppliedCouponCode = o.AppliedCouponCode
	if o.AppliedCouponID != nil {
		id := *o.AppliedCouponID
		cur.AppliedCouponID = &id
	}
	cur.UpdatedAt = o.UpdatedAt
	t.s.orders[o.ID] = cur
	return nil
}

func (t *tx) SwapCouponUsage(_ context.Context, couponID uuid.UUID, expected, next int, at time.Time) error {
	c, ok := t.s.couponByID(couponID)
	if !ok {
		return store.ErrNotFound
	}
	if c.UsageCount != expected {
		return store.ErrConditionFailed
	}

	remember(t, t.s.coupons, c.Code)
	c = cloneCoupon(c)
	c.UsageCount = next
	c.UpdatedAt = at
	t.s.coupons[c.Code] = c
	return nil
}

func (t *tx) PutCouponIntent(_ context.Context, userID uuid.UUID, code string) error {
	remember(t, t.s.intents, userID)
	t.s.intents[userID] = code
	return nil
}

func (t *tx) TakeCouponIntent(_ context.Context, userID uuid.UUID) (string, bool, error) {
	code, ok := t.s.intents[userID]
	if !ok {
		return "", false, nil
	}
	remember(t, t.s.intents, userID)
	delete(t.s.intents, userID)
	return code, true, nil
}

func (t *tx) CreateAddress(_ context.Context, a *account.Address) error {
	if _, ok := t.s.addresses[a.ID]; ok {
		return store.ErrDuplicate
	}
	remember(t, t.s.addresses, a.ID)
	t.s.addresses[a.ID] = *a
	return nil
}

func (t *tx) UpdateAddress(_ context.Context, a *account.Address) error {
	if _, ok := t.s.addresses[a.ID]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.addresses, a.ID)
	t.s.addresses[a.ID] = *a
	return nil
}

func (t *tx) DeleteAddress(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.addresses[id]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.addresses, id)
	delete(t.s.addresses, id)
	return nil
}

func (t *tx) SetDefaultAddress(_ context.Context, userID, id uuid.UUID) error {
	if id != uuid.Nil {
		if a, ok := t.s.addresses[id]; !ok || a.UserID != userID {
			return store.ErrNotFound
		}
	}
	for _, a := range t.s.addresses {
		if a.UserID != userID || a.IsDefault == (a.ID == id) {
			continue
		}
		remember(t, t.s.addresses, a.ID)
		a.IsDefault = a.ID == id
		t.s.addresses[a.ID] = a
	}
	return nil
}

func (t *tx) CreateCreditCard(_ context.Context, c *account.CreditCard) error {
	if _, ok := t.s.cards[c.ID]; ok {
		return store.ErrDuplicate
	}
	remember(t, t.s.cards, c.ID)
	t.s.cards[c.ID] = *c
	return nil
}

func (t *tx) UpdateCreditCard(_ context.Context, c *account.CreditCard) error {
	if _, ok := t.s.cards[c.ID]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.cards, c.ID)
	t.s.cards[c.ID] = *c
	return nil
}

func (t *tx) DeleteCreditCard(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.cards[id]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.cards, id)
	delete(t.s.cards, id)
	return nil
}

func (t *tx) SetDefaultCreditCard(_ context.Context, userID, id uuid.UUID) error {
	if id != uuid.Nil {
		if c, ok := t.s.cards[id]; !ok || c.UserID != userID {
			return store.ErrNotFound
		}
	}
	for _, c := range t.s.cards {
		if c.UserID != userID || c.IsDefault == (c.ID == id) {
			continue
		}
		remember(t, t.s.cards, c.ID)
		c.IsDefault = c.ID == id
		t.s.cards[c.ID] = c
	}
	return nil
}

func (t *tx) PutUser(_ context.Context, u *account.User) error {
	remember(t, t.s.users, u.ID)
	t.s.users[u.ID] = *u
	return nil
}

func (t *tx) PutAPIKey(_ context.Context, k *account.APIKey) error {
	for hash, existing := range t.s.apiKeys {
		if existing.ID == k.ID && hash != k.KeyHash {
			remember(t, t.s.apiKeys, hash)
			delete(t.s.apiKeys, hash)
		}
	}
	remember(t, t.s.apiKeys, k.KeyHash)
	stored := *k
	stored.Scopes = append([]string(nil), k.Scopes...)
	t.s.apiKeys[k.KeyHash] = stored
	return nil
}

func (t *tx) PutProduct(_ context.Context, p *catalog.Product) error {
	remember(t, t.s.products, p.ID)
	t.s.products[p.ID] = *p
	return nil
}

func (t *tx) PutStock(_ context.Context, s *catalog.Stock) error {
	if _, ok := t.s.products[s.ProductID]; !ok {
		return store.ErrNotFound
	}
	remember(t, t.s.stock, s.ProductID)
	t.s.stock[s.ProductID] = *s
	return nil
}

// PutCoupon upserts by code. An existing coupon keeps its id, usage counter
// and creation time; c is updated to reflect them.
func (t *tx) PutCoupon(_ context.Context, c *coupon.Coupon) error {
	if existing, ok := t.s.coupons[c.Code]; ok {
		c.ID = existing.ID
		c.UsageCount = existing.UsageCount
		c.CreatedAt = existing.CreatedAt
	}
	remember(t, t.s.coupons, c.Code)
	t.s.coupons[c.Code] = cloneCoupon(*c)
	return nil
}

var _ store.Tx = (*tx)(nil)
