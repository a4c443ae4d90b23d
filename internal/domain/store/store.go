// Package store defines the Data Store collaborator used by the order,
// coupon and profile services.
package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

var (
	// ErrNotFound is returned by reads and keyed writes when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional write does not match
	// the current state of the record.
	ErrConditionFailed = errors.New("condition failed")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Reader is the read side shared by Store and Tx.
type Reader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*account.User, error)
	FindAPIKey(ctx context.Context, keyHash string) (*account.APIKey, error)

	GetAddress(ctx context.Context, id uuid.UUID) (*account.Address, error)
	// ListAddresses returns the user's addresses oldest first.
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]account.Address, error)
	GetCreditCard(ctx context.Context, id uuid.UUID) (*account.CreditCard, error)
	// ListCreditCards returns the user's cards oldest first.
	ListCreditCards(ctx context.Context, userID uuid.UUID) ([]account.CreditCard, error)

	GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
	GetStock(ctx context.Context, productID uuid.UUID) (*catalog.Stock, error)

	// GetOrder returns the order with its items.
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	// ListOrders returns the user's orders with items, newest first.
	ListOrders(ctx context.Context, userID uuid.UUID) ([]order.Order, error)

	// GetCoupon looks a coupon up by code. Inside a transaction the coupon
	// row stays locked until commit or abort.
	GetCoupon(ctx context.Context, code string) (*coupon.Coupon, error)
}

// Tx is a unit of work. Writes become visible only when the enclosing
// WithinTx call commits.
type Tx interface {
	Reader

	// DecrementStock subtracts qty from the product's stock if at least qty
	// units are on hand and returns the remaining quantity. It returns
	// ErrConditionFailed otherwise.
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int, at time.Time) (int, error)
	// CreateOrder persists o together with all of its items.
	CreateOrder(ctx context.Context, o *order.Order) error
	// ApplyOrderCoupon stores o's total, discount and coupon reference. It
	// returns ErrConditionFailed unless the stored order is pending and has
	// no coupon yet.
	ApplyOrderCoupon(ctx context.Context, o *order.Order) error
	// SwapCouponUsage sets the coupon's usage counter to next if it is
	// currently expected, else returns ErrConditionFailed.
	SwapCouponUsage(ctx context.Context, couponID uuid.UUID, expected, next int, at time.Time) error

	// PutCouponIntent records code as the user's pending coupon, replacing
	// any earlier one.
	PutCouponIntent(ctx context.Context, userID uuid.UUID, code string) error
	// TakeCouponIntent removes and returns the user's pending coupon code.
	// ok is false when there is none.
	TakeCouponIntent(ctx context.Context, userID uuid.UUID) (code string, ok bool, err error)

	CreateAddress(ctx context.Context, a *account.Address) error
	UpdateAddress(ctx context.Context, a *account.Address) error
	DeleteAddress(ctx context.Context, id uuid.UUID) error
	// SetDefaultAddress marks id as the user's only default address. A nil id
	// clears the flag on every address of the user.
	SetDefaultAddress(ctx context.Context, userID, id uuid.UUID) error

	CreateCreditCard(ctx context.Context, c *account.CreditCard) error
	UpdateCreditCard(ctx context.Context, c *account.CreditCard) error
	DeleteCreditCard(ctx context.Context, id uuid.UUID) error
	// SetDefaultCreditCard marks id as the user's only default card. A nil id
	// clears the flag on every card of the user.
	SetDefaultCreditCard(ctx context.Context, userID, id uuid.UUID) error

	// Upserts used by seeding and ingest.
	PutUser(ctx context.Context, u *account.User) error
	PutAPIKey(ctx context.Context, k *account.APIKey) error
	PutProduct(ctx context.Context, p *catalog.Product) error
	PutStock(ctx context.Context, s *catalog.Stock) error
	PutCoupon(ctx context.Context, c *coupon.Coupon) error
}

// Store is the Data Store collaborator.
type Store interface {
	Reader

	// WithinTx runs fn in a transaction. The transaction commits when fn
	// returns nil and aborts otherwise; fn's error is returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
