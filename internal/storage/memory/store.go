// Package memory implements store.Store in process memory.
//
// A single mutex serialises transactions: WithinTx holds it for the whole
// callback, so a transaction observes no concurrent writes and its conditional
// updates cannot race. Aborted transactions replay their undo log in reverse.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

// Store is an in-memory store.Store for local development and tests.
type Store struct {
	mu sync.Mutex
	s  *state
}

// New returns an empty store.
func New() *Store {
	return &Store{s: newState()}
}

// WithinTx runs fn while holding the store lock. fn must not call back into
// the Store itself; use the provided Tx instead.
func (st *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (rErr error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	t := &tx{s: st.s}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if rErr != nil {
			t.rollback()
		}
	}()

	return fn(ctx, t)
}

// Ping always succeeds.
func (st *Store) Ping(context.Context) error { return nil }

func (st *Store) GetUser(_ context.Context, id uuid.UUID) (*account.User, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getUser(id)
}

func (st *Store) FindAPIKey(_ context.Context, keyHash string) (*account.APIKey, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.findAPIKey(keyHash)
}

func (st *Store) GetAddress(_ context.Context, id uuid.UUID) (*account.Address, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getAddress(id)
}

func (st *Store) ListAddresses(_ context.Context, userID uuid.UUID) ([]account.Address, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.listAddresses(userID), nil
}

func (st *Store) GetCreditCard(_ context.Context, id uuid.UUID) (*account.CreditCard, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getCreditCard(id)
}

func (st *Store) ListCreditCards(_ context.Context, userID uuid.UUID) ([]account.CreditCard, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.listCreditCards(userID), nil
}

func (st *Store) GetProduct(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getProduct(id)
}

func (st *Store) GetStock(_ context.Context, productID uuid.UUID) (*catalog.Stock, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getStock(productID)
}

func (st *Store) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getOrder(id)
}

func (st *Store) ListOrders(_ context.Context, userID uuid.UUID) ([]order.Order, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.listOrders(userID), nil
}

func (st *Store) GetCoupon(_ context.Context, code string) (*coupon.Coupon, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.getCoupon(code)
}

var _ store.Store = (*Store)(nil)
