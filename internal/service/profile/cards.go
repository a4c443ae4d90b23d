package profile

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/store"
)

// CardInput is a new payment card. Number and CVV are hashed before storage.
type CardInput struct {
	CardholderName string
	Number         string
	ExpiryMonth    string
	ExpiryYear     string
	// CVV is optional.
	CVV       string
	IsDefault bool
}

// CardPatch carries the fields to change; nil fields are left as is. The
// number and CVV cannot be changed.
type CardPatch struct {
	CardholderName *string
	ExpiryMonth    *string
	ExpiryYear     *string
	IsDefault      *bool
}

func (p CardPatch) empty() bool {
	return p.CardholderName == nil && p.ExpiryMonth == nil && p.ExpiryYear == nil && p.IsDefault == nil
}

// ListCreditCards returns the user's cards, oldest first.
func (s *Service) ListCreditCards(ctx context.Context, userID uuid.UUID) ([]account.CreditCard, error) {
	if _, err := s.user(ctx, s.store, userID); err != nil {
		return nil, err
	}
	list, err := s.store.ListCreditCards(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list credit cards")
	}
	return list, nil
}

// CreateCreditCard adds a card to the user's collection. The first card
// always becomes the default.
func (s *Service) CreateCreditCard(ctx context.Context, userID uuid.UUID, in CardInput) (*account.CreditCard, error) {
	if err := validateCard(in); err != nil {
		return nil, err
	}

	numberHash, err := s.hasher.Hash(in.Number)
	if err != nil {
		return nil, errors.Wrap(err, "hash card number")
	}
	var cvvHash string
	if in.CVV != "" {
		if cvvHash, err = s.hasher.Hash(in.CVV); err != nil {
			return nil, errors.Wrap(err, "hash cvv")
		}
	}

	var created *account.CreditCard
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := s.user(ctx, tx, userID); err != nil {
			return err
		}
		existing, err := tx.ListCreditCards(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "list credit cards")
		}

		now := s.now()
		c := account.CreditCard{
			ID:             uuid.New(),
			UserID:         userID,
			CardholderName: in.CardholderName,
			ExpiryMonth:    in.ExpiryMonth,
			ExpiryYear:     in.ExpiryYear,
			NumberHash:     numberHash,
			CVVHash:        cvvHash,
			LastFour:       in.Number[len(in.Number)-4:],
			IsDefault:      in.IsDefault || len(existing) == 0,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.CreateCreditCard(ctx, &c); err != nil {
			return errors.Wrap(err, "create credit card")
		}

		var ch choice
		if c.IsDefault {
			ch.prefer = c.ID
		}
		if _, err := settle(ctx, tx, cards, userID, ch); err != nil {
			return err
		}
		created, err = tx.GetCreditCard(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "reload credit card")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateCreditCard applies a partial patch to one of the user's cards.
func (s *Service) UpdateCreditCard(ctx context.Context, userID, cardID uuid.UUID, patch CardPatch) (*account.CreditCard, error) {
	if patch.empty() {
		return nil, apperr.Format("no update data provided")
	}
	if patch.CardholderName != nil && *patch.CardholderName == "" {
		return nil, apperr.Format("cardholder_name must not be empty")
	}
	if patch.ExpiryMonth != nil && !validMonth(*patch.ExpiryMonth) {
		return nil, apperr.Format("expiry_month must be 01-12")
	}
	if patch.ExpiryYear != nil && !validYear(*patch.ExpiryYear) {
		return nil, apperr.Format("expiry_year must be a four digit year between 2020 and 2099")
	}

	var updated *account.CreditCard
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := ownedCard(ctx, tx, userID, cardID)
		if err != nil {
			return err
		}
		if _, err := s.user(ctx, tx, userID); err != nil {
			return err
		}

		set(&c.CardholderName, patch.CardholderName)
		set(&c.ExpiryMonth, patch.ExpiryMonth)
		set(&c.ExpiryYear, patch.ExpiryYear)
		set(&c.IsDefault, patch.IsDefault)
		c.UpdatedAt = s.now()
		if err := tx.UpdateCreditCard(ctx, c); err != nil {
			return errors.Wrap(err, "update credit card")
		}

		if _, err := settle(ctx, tx, cards, userID, patchChoice(c.ID, patch.IsDefault)); err != nil {
			return err
		}
		updated, err = tx.GetCreditCard(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "reload credit card")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCreditCard removes one of the user's cards. A protected user keeps at
// least one card. Deleting the default promotes the oldest remaining one.
func (s *Service) DeleteCreditCard(ctx context.Context, userID, cardID uuid.UUID) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := ownedCard(ctx, tx, userID, cardID)
		if err != nil {
			return err
		}
		if c.IsProtected {
			return apperr.Forbidden("credit card %s is protected and cannot be deleted", c.ID)
		}

		u, err := tx.GetUser(ctx, userID)
		switch {
		case err == nil && u.IsProtected:
			list, err := tx.ListCreditCards(ctx, userID)
			if err != nil {
				return errors.Wrap(err, "list credit cards")
			}
			if len(list) <= 1 {
				return apperr.Forbidden("protected user %q must have at least one credit card; cannot delete the last one", u.Username)
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return errors.Wrap(err, "get user")
		}

		if err := tx.DeleteCreditCard(ctx, c.ID); err != nil {
			return errors.Wrap(err, "delete credit card")
		}
		if !c.IsDefault {
			return nil
		}

		promoted, err := settle(ctx, tx, cards, userID, choice{})
		if err != nil {
			return err
		}
		if promoted != uuid.Nil {
			zctx.From(ctx).Info("Default credit card promoted",
				zap.Stringer("user_id", userID),
				zap.Stringer("card_id", promoted),
			)
		}
		return nil
	})
}

func ownedCard(ctx context.Context, tx store.Tx, userID, cardID uuid.UUID) (*account.CreditCard, error) {
	c, err := tx.GetCreditCard(ctx, cardID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound(apperr.EntityCreditCard, cardID)
	case err != nil:
		return nil, errors.Wrap(err, "get credit card")
	case c.UserID != userID:
		return nil, apperr.NotFound(apperr.EntityCreditCard, cardID)
	}
	return c, nil
}
