package memory

import (
	"sort"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

// state holds every table of the store. Values are stored by value and copied
// on the way in and out so callers never alias stored records.
type state struct {
	users     map[uuid.UUID]account.User
	apiKeys   map[string]account.APIKey // by key hash
	addresses map[uuid.UUID]account.Address
	cards     map[uuid.UUID]account.CreditCard
	products  map[uuid.UUID]catalog.Product
	stock     map[uuid.UUID]catalog.Stock
	coupons   map[string]coupon.Coupon // by code
	orders    map[uuid.UUID]order.Order
	intents   map[uuid.UUID]string
}

func newState() *state {
	return &state{
		users:     make(map[uuid.UUID]account.User),
		apiKeys:   make(map[string]account.APIKey),
		addresses: make(map[uuid.UUID]account.Address),
		cards:     make(map[uuid.UUID]account.CreditCard),
		products:  make(map[uuid.UUID]catalog.Product),
		stock:     make(map[uuid.UUID]catalog.Stock),
		coupons:   make(map[string]coupon.Coupon),
		orders:    make(map[uuid.UUID]order.Order),
		intents:   make(map[uuid.UUID]string),
	}
}

func (s *state) getUser(id uuid.UUID) (*account.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *state) findAPIKey(hash string) (*account.APIKey, error) {
	k, ok := s.apiKeys[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	k.Scopes = append([]string(nil), k.Scopes...)
	return &k, nil
}

func (s *state) getAddress(id uuid.UUID) (*account.Address, error) {
	a, ok := s.addresses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *state) listAddresses(userID uuid.UUID) []account.Address {
	var out []account.Address
	for _, a := range s.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *state) getCreditCard(id uuid.UUID) (*account.CreditCard, error) {
	c, ok := s.cards[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *state) listCreditCards(userID uuid.UUID) []account.CreditCard {
	var out []account.CreditCard
	for _, c := range s.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *state) getProduct(id uuid.UUID) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *state) getStock(productID uuid.UUID) (*catalog.Stock, error) {
	st, ok := s.stock[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *state) getOrder(id uuid.UUID) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *state) listOrders(userID uuid.UUID) []order.Order {
	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (s *state) getCoupon(code string) (*coupon.Coupon, error) {
	c, ok := s.coupons[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	c = cloneCoupon(c)
	return &c, nil
}

func (s *state) couponByID(id uuid.UUID) (coupon.Coupon, bool) {
	for _, c := range s.coupons {
		if c.ID == id {
			return c, true
		}
	}
	return coupon.Coupon{}, false
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.OrderItem(nil), o.Items...)
	if o.AppliedCouponID != nil {
		id := *o.AppliedCouponID
		o.AppliedCouponID = &id
	}
	return o
}

func cloneCoupon(c coupon.Coupon) coupon.Coupon {
	if c.UsageLimit != nil {
		n := *c.UsageLimit
		c.UsageLimit = &n
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}
