package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/store"
)

const addressColumns = `id, user_id, street, city, country, zip_code, is_default, is_protected, created_at, updated_at`

const (
	getAddressSQL    = `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1`
	listAddressSQL   = `SELECT ` + addressColumns + ` FROM addresses WHERE user_id = $1 ORDER BY created_at, id`
	deleteAddressSQL = `DELETE FROM addresses WHERE id = $1`
	ownsAddressSQL   = `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $2 AND user_id = $1)`
)

const createAddressSQL = `INSERT INTO addresses (` + addressColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const updateAddressSQL = `UPDATE addresses SET
		street = $2, city = $3, country = $4, zip_code = $5,
		is_default = $6, is_protected = $7, updated_at = $8
	WHERE id = $1`

const setDefaultAddressSQL = `UPDATE addresses SET is_default = (id = $2)
	WHERE user_id = $1 AND is_default <> (id = $2)`

func scanAddress(row pgx.Row) (account.Address, error) {
	var a account.Address
	err := row.Scan(&a.ID, &a.UserID, &a.Street, &a.City, &a.Country, &a.ZipCode,
		&a.IsDefault, &a.IsProtected, &a.CreatedAt, &a.UpdatedAt)
	a.CreatedAt, a.UpdatedAt = utc(a.CreatedAt), utc(a.UpdatedAt)
	return a, err
}

func (q *queries) GetAddress(ctx context.Context, id uuid.UUID) (*account.Address, error) {
	a, err := scanAddress(q.q.QueryRow(ctx, getAddressSQL, id))
	if err != nil {
		return nil, mapErr(err, "get address")
	}
	return &a, nil
}

func (q *queries) ListAddresses(ctx context.Context, userID uuid.UUID) ([]account.Address, error) {
	rows, err := q.q.Query(ctx, listAddressSQL, userID)
	if err != nil {
		return nil, mapErr(err, "list addresses")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (account.Address, error) {
		return scanAddress(row)
	})
	if err != nil {
		return nil, mapErr(err, "scan addresses")
	}
	return out, nil
}

func (t *tx) CreateAddress(ctx context.Context, a *account.Address) error {
	_, err := t.q.Exec(ctx, createAddressSQL, a.ID, a.UserID, a.Street, a.City, a.Country, a.ZipCode,
		a.IsDefault, a.IsProtected, a.CreatedAt, a.UpdatedAt)
	return mapErr(err, "create address")
}

func (t *tx) UpdateAddress(ctx context.Context, a *account.Address) error {
	tag, err := t.q.Exec(ctx, updateAddressSQL, a.ID, a.Street, a.City, a.Country, a.ZipCode,
		a.IsDefault, a.IsProtected, a.UpdatedAt)
	if err != nil {
		return mapErr(err, "update address")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteAddress(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, deleteAddressSQL, id)
	if err != nil {
		return mapErr(err, "delete address")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) SetDefaultAddress(ctx context.Context, userID, id uuid.UUID) error {
	if id != uuid.Nil {
		var owns bool
		if err := t.q.QueryRow(ctx, ownsAddressSQL, userID, id).Scan(&owns); err != nil {
			return mapErr(err, "check address owner")
		}
		if !owns {
			return store.ErrNotFound
		}
	}
	_, err := t.q.Exec(ctx, setDefaultAddressSQL, userID, id)
	return mapErr(err, "set default address")
}

const cardColumns = `id, user_id, cardholder_name, expiry_month, expiry_year, number_hash, cvv_hash,
	last_four, is_default, is_protected, created_at, updated_at`

const (
	getCardSQL    = `SELECT ` + cardColumns + ` FROM credit_cards WHERE id = $1`
	listCardSQL   = `SELECT ` + cardColumns + ` FROM credit_cards WHERE user_id = $1 ORDER BY created_at, id`
	deleteCardSQL = `DELETE FROM credit_cards WHERE id = $1`
	ownsCardSQL   = `SELECT EXISTS (SELECT 1 FROM credit_cards WHERE id = $2 AND user_id = $1)`
)

const createCardSQL = `INSERT INTO credit_cards (` + cardColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const updateCardSQL = `UPDATE credit_cards SET
		cardholder_name = $2, expiry_month = $3, expiry_year = $4, number_hash = $5, cvv_hash = $6,
		last_four = $7, is_default = $8, is_protected = $9, updated_at = $10
	WHERE id = $1`

const setDefaultCardSQL = `UPDATE credit_cards SET is_default = (id = $2)
	WHERE user_id = $1 AND is_default <> (id = $2)`

func scanCard(row pgx.Row) (account.CreditCard, error) {
	var c account.CreditCard
	err := row.Scan(&c.ID, &c.UserID, &c.CardholderName, &c.ExpiryMonth, &c.ExpiryYear,
		&c.NumberHash, &c.CVVHash, &c.LastFour, &c.IsDefault, &c.IsProtected, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt, c.UpdatedAt = utc(c.CreatedAt), utc(c.UpdatedAt)
	return c, err
}

func (q *queries) GetCreditCard(ctx context.Context, id uuid.UUID) (*account.CreditCard, error) {
	c, err := scanCard(q.q.QueryRow(ctx, getCardSQL, id))
	if err != nil {
		return nil, mapErr(err, "get credit card")
	}
	return &c, nil
}

func (q *queries) ListCreditCards(ctx context.Context, userID uuid.UUID) ([]account.CreditCard, error) {
	rows, err := q.q.Query(ctx, listCardSQL, userID)
	if err != nil {
		return nil, mapErr(err, "list credit cards")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (account.CreditCard, error) {
		return scanCard(row)
	})
	if err != nil {
		return nil, mapErr(err, "scan credit cards")
	}
	return out, nil
}

func (t *tx) CreateCreditCard(ctx context.Context, c *account.CreditCard) error {
	_, err := t.q.Exec(ctx, createCardSQL, c.ID, c.UserID, c.CardholderName, c.ExpiryMonth, c.ExpiryYear,
		c.NumberHash, c.CVVHash, c.LastFour, c.IsDefault, c.IsProtected, c.CreatedAt, c.UpdatedAt)
	return mapErr(err, "create credit card")
}

func (t *tx) UpdateCreditCard(ctx context.Context, c *account.CreditCard) error {
	tag, err := t.q.Exec(ctx, updateCardSQL, c.ID, c.CardholderName, c.ExpiryMonth, c.ExpiryYear,
		c.NumberHash, c.CVVHash, c.LastFour, c.IsDefault, c.IsProtected, c.UpdatedAt)
	if err != nil {
		return mapErr(err, "update credit card")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteCreditCard(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, deleteCardSQL, id)
	if err != nil {
		return mapErr(err, "delete credit card")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) SetDefaultCreditCard(ctx context.Context, userID, id uuid.UUID) error {
	if id != uuid.Nil {
		var owns bool
		if err := t.q.QueryRow(ctx, ownsCardSQL, userID, id).Scan(&owns); err != nil {
			return mapErr(err, "check credit card owner")
		}
		if !owns {
			return store.ErrNotFound
		}
	}
	_, err := t.q.Exec(ctx, setDefaultCardSQL, userID, id)
	return mapErr(err, "set default credit card")
}
