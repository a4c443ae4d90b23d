package profile

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/store"
)

// collection adapts a user's addresses or cards to the default maintainer.
type collection[T any] struct {
	name       string
	list       func(ctx context.Context, tx store.Tx, userID uuid.UUID) ([]T, error)
	id         func(T) uuid.UUID
	isDefault  func(T) bool
	setDefault func(ctx context.Context, tx store.Tx, userID, id uuid.UUID) error
}

var addresses = collection[account.Address]{
	name: "address",
	list: func(ctx context.Context, tx store.Tx, userID uuid.UUID) ([]account.Address, error) {
		return tx.ListAddresses(ctx, userID)
	},
	id:        func(a account.Address) uuid.UUID { return a.ID },
	isDefault: func(a account.Address) bool { return a.IsDefault },
	setDefault: func(ctx context.Context, tx store.Tx, userID, id uuid.UUID) error {
		return tx.SetDefaultAddress(ctx, userID, id)
	},
}

var cards = collection[account.CreditCard]{
	name: "credit card",
	list: func(ctx context.Context, tx store.Tx, userID uuid.UUID) ([]account.CreditCard, error) {
		return tx.ListCreditCards(ctx, userID)
	},
	id:        func(c account.CreditCard) uuid.UUID { return c.ID },
	isDefault: func(c account.CreditCard) bool { return c.IsDefault },
	setDefault: func(ctx context.Context, tx store.Tx, userID, id uuid.UUID) error {
		return tx.SetDefaultCreditCard(ctx, userID, id)
	},
}

// choice steers which member ends up as the default.
type choice struct {
	// prefer wins when it is still a member.
	prefer uuid.UUID
	// avoid is skipped unless it is the only member.
	avoid uuid.UUID
}

// settle re-establishes "exactly one default" for the user's collection and
// returns the resulting default, or uuid.Nil for an empty collection.
//
// Without a preference the current default is kept; failing that the oldest
// member is promoted.
func settle[T any](ctx context.Context, tx store.Tx, c collection[T], userID uuid.UUID, ch choice) (uuid.UUID, error) {
	items, err := c.list(ctx, tx, userID)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "list %s", c.name)
	}
	if len(items) == 0 {
		return uuid.Nil, nil
	}

	target := pick(c, items, ch)

	defaults, settled := 0, false
	for _, item := range items {
		if c.isDefault(item) {
			defaults++
			settled = settled || c.id(item) == target
		}
	}
	if defaults == 1 && settled {
		return target, nil
	}

	if err := c.setDefault(ctx, tx, userID, target); err != nil {
		return uuid.Nil, errors.Wrapf(err, "set default %s", c.name)
	}
	return target, nil
}

func pick[T any](c collection[T], items []T, ch choice) uuid.UUID {
	if ch.prefer != uuid.Nil {
		for _, item := range items {
			if c.id(item) == ch.prefer {
				return ch.prefer
			}
		}
	}
	for _, item := range items {
		if c.isDefault(item) && c.id(item) != ch.avoid {
			return c.id(item)
		}
	}
	for _, item := range items {
		if c.id(item) != ch.avoid {
			return c.id(item)
		}
	}
	return c.id(items[0])
}
