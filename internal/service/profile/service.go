// Package profile manages a user's shipping addresses and payment cards while
// keeping exactly one default in each non-empty collection.
package profile

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/pkg/secret"
)

// Service is the profile service.
type Service struct {
	store  store.Store
	hasher *secret.Hasher
	now    func() time.Time
}

// NewService creates a Service backed by st.
func NewService(st store.Store, h *secret.Hasher) *Service {
	return &Service{
		store:  st,
		hasher: h,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddressInput is a new shipping address.
type AddressInput struct {
	Street    string
	City      string
	Country   string
	ZipCode   string
	IsDefault bool
}

// AddressPatch carries the fields to change; nil fields are left as is.
type AddressPatch struct {
	Street    *string
	City      *string
	Country   *string
	ZipCode   *string
	IsDefault *bool
}

func (p AddressPatch) empty() bool {
	return p.Street == nil && p.City == nil && p.Country == nil && p.ZipCode == nil && p.IsDefault == nil
}

// ListAddresses returns the user's addresses, oldest first.
func (s *Service) ListAddresses(ctx context.Context, userID uuid.UUID) ([]account.Address, error) {
	if _, err := s.user(ctx, s.store, userID); err != nil {
		return nil, err
	}
	list, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return list, nil
}

// CreateAddress adds an address to the user's collection. The first address
// always becomes the default.
func (s *Service) CreateAddress(ctx context.Context, userID uuid.UUID, in AddressInput) (*account.Address, error) {
	if in.Street == "" || in.City == "" || in.Country == "" || in.ZipCode == "" {
		return nil, apperr.Format("street, city, country and zip_code are required")
	}

	var created *account.Address
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := s.user(ctx, tx, userID); err != nil {
			return err
		}
		existing, err := tx.ListAddresses(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "list addresses")
		}

		now := s.now()
		a := account.Address{
			ID:        uuid.New(),
			UserID:    userID,
			Street:    in.Street,
			City:      in.City,
			Country:   in.Country,
			ZipCode:   in.ZipCode,
			IsDefault: in.IsDefault || len(existing) == 0,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, other := range existing {
			if other.SameLocation(a) {
				return apperr.Conflict("address already exists for this user")
			}
		}
		if err := tx.CreateAddress(ctx, &a); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Conflict("address already exists for this user")
			}
			return errors.Wrap(err, "create address")
		}

		var ch choice
		if a.IsDefault {
			ch.prefer = a.ID
		}
		if _, err := settle(ctx, tx, addresses, userID, ch); err != nil {
			return err
		}
		created, err = tx.GetAddress(ctx, a.ID)
		if err != nil {
			return errors.Wrap(err, "reload address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateAddress applies a partial patch to one of the user's addresses.
func (s *Service) UpdateAddress(ctx context.Context, userID, addressID uuid.UUID, patch AddressPatch) (*account.Address, error) {
	if patch.empty() {
		return nil, apperr.Format("no update data provided")
	}

	var updated *account.Address
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := ownedAddress(ctx, tx, userID, addressID)
		if err != nil {
			return err
		}
		if _, err := s.user(ctx, tx, userID); err != nil {
			return err
		}

		set(&a.Street, patch.Street)
		set(&a.City, patch.City)
		set(&a.Country, patch.Country)
		set(&a.ZipCode, patch.ZipCode)
		set(&a.IsDefault, patch.IsDefault)
		a.UpdatedAt = s.now()
		if err := tx.UpdateAddress(ctx, a); err != nil {
			return errors.Wrap(err, "update address")
		}

		if _, err := settle(ctx, tx, addresses, userID, patchChoice(a.ID, patch.IsDefault)); err != nil {
			return err
		}
		updated, err = tx.GetAddress(ctx, a.ID)
		if err != nil {
			return errors.Wrap(err, "reload address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAddress removes one of the user's addresses. A protected user keeps at
// least one address. Deleting the default promotes the oldest remaining one.
func (s *Service) DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := ownedAddress(ctx, tx, userID, addressID)
		if err != nil {
			return err
		}
		if a.IsProtected {
			return apperr.Forbidden("address %s is protected and cannot be deleted", a.ID)
		}

		u, err := tx.GetUser(ctx, userID)
		switch {
		case err == nil && u.IsProtected:
			list, err := tx.ListAddresses(ctx, userID)
			if err != nil {
				return errors.Wrap(err, "list addresses")
			}
			if len(list) <= 1 {
				return apperr.Forbidden("protected user %q must have at least one address; cannot delete the last one", u.Username)
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return errors.Wrap(err, "get user")
		}

		if err := tx.DeleteAddress(ctx, a.ID); err != nil {
			return errors.Wrap(err, "delete address")
		}
		if !a.IsDefault {
			return nil
		}

		promoted, err := settle(ctx, tx, addresses, userID, choice{})
		if err != nil {
			return err
		}
		if promoted != uuid.Nil {
			zctx.From(ctx).Info("Default address promoted",
				zap.Stringer("user_id", userID),
				zap.Stringer("address_id", promoted),
			)
		}
		return nil
	})
}

func ownedAddress(ctx context.Context, tx store.Tx, userID, addressID uuid.UUID) (*account.Address, error) {
	a, err := tx.GetAddress(ctx, addressID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound(apperr.EntityAddress, addressID)
	case err != nil:
		return nil, errors.Wrap(err, "get address")
	case a.UserID != userID:
		return nil, apperr.NotFound(apperr.EntityAddress, addressID)
	}
	return a, nil
}

func (s *Service) user(ctx context.Context, r store.Reader, userID uuid.UUID) (*account.User, error) {
	u, err := r.GetUser(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound(apperr.EntityUser, userID)
	case err != nil:
		return nil, errors.Wrap(err, "get user")
	}
	return u, nil
}

// patchChoice turns a default-flag patch into a maintainer choice. Clearing
// the flag on the current default hands it to another member when possible.
func patchChoice(id uuid.UUID, isDefault *bool) choice {
	switch {
	case isDefault == nil:
		return choice{}
	case *isDefault:
		return choice{prefer: id}
	default:
		return choice{avoid: id}
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
