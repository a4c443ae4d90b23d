// Package fixture loads a YAML description of users, catalog and coupons into
// a store. It backs the memory store's preload and the seed-db command.
package fixture

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/pkg/secret"
)

// Fixture is the root of a seed file.
type Fixture struct {
	Products []Product `yaml:"products"`
	Users    []User    `yaml:"users"`
	Coupons  []Coupon  `yaml:"coupons"`
}

type Product struct {
	ID            uuid.UUID       `yaml:"product_id"`
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description"`
	Price         decimal.Decimal `yaml:"price"`
	Category      string          `yaml:"category"`
	StockQuantity int             `yaml:"stock_quantity"`
	IsProtected   bool            `yaml:"is_protected"`
}

type User struct {
	ID          uuid.UUID    `yaml:"user_id"`
	Username    string       `yaml:"username"`
	Email       string       `yaml:"email"`
	IsAdmin     bool         `yaml:"is_admin"`
	IsProtected bool         `yaml:"is_protected"`
	APIKeys     []APIKey     `yaml:"api_keys"`
	Addresses   []Address    `yaml:"addresses"`
	CreditCards []CreditCard `yaml:"credit_cards"`
}

// APIKey carries the plain key; only its peppered hash is stored.
type APIKey struct {
	ID     string   `yaml:"id"`
	Key    string   `yaml:"key"`
	Name   string   `yaml:"name"`
	Scopes []string `yaml:"scopes"`
}

type Address struct {
	ID          uuid.UUID `yaml:"address_id"`
	Street      string    `yaml:"street"`
	City        string    `yaml:"city"`
	Country     string    `yaml:"country"`
	ZipCode     string    `yaml:"zip_code"`
	IsDefault   bool      `yaml:"is_default"`
	IsProtected bool      `yaml:"is_protected"`
}

// CreditCard carries the plain number and CVV; both are hashed on load.
type CreditCard struct {
	ID             uuid.UUID `yaml:"card_id"`
	CardholderName string    `yaml:"cardholder_name"`
	ExpiryMonth    string    `yaml:"expiry_month"`
	ExpiryYear     string    `yaml:"expiry_year"`
	Number         string    `yaml:"card_number"`
	CVV            string    `yaml:"cvv"`
	IsDefault      bool      `yaml:"is_default"`
	IsProtected    bool      `yaml:"is_protected"`
}

type Coupon struct {
	ID            uuid.UUID           `yaml:"coupon_id"`
	Code          string              `yaml:"code"`
	DiscountType  coupon.DiscountType `yaml:"discount_type"`
	DiscountValue decimal.Decimal     `yaml:"discount_value"`
	IsActive      *bool               `yaml:"is_active"`
	UsageLimit    *int                `yaml:"usage_limit"`
	ExpiresAt     *time.Time          `yaml:"expiration_date"`
	IsProtected   bool                `yaml:"is_protected"`
}

// Load reads and decodes the fixture at path.
func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open fixture")
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode parses a fixture and validates its references.
func Decode(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode fixture")
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func (fx *Fixture) validate() error {
	for i, p := range fx.Products {
		if p.ID == uuid.Nil {
			return errors.Errorf("products[%d]: product_id is required", i)
		}
		if !p.Price.IsPositive() {
			return errors.Errorf("product %s: price must be positive", p.ID)
		}
		if p.StockQuantity < 0 {
			return errors.Errorf("product %s: stock_quantity must not be negative", p.ID)
		}
	}
	for i, u := range fx.Users {
		if u.ID == uuid.Nil {
			return errors.Errorf("users[%d]: user_id is required", i)
		}
		for _, c := range u.CreditCards {
			if len(c.Number) < 4 {
				return errors.Errorf("card %s: card_number is too short", c.ID)
			}
		}
	}
	for i, c := range fx.Coupons {
		if c.Code == "" {
			return errors.Errorf("coupons[%d]: code is required", i)
		}
		if !c.DiscountType.Valid() {
			return errors.Errorf("coupon %s: unsupported discount type %q", c.Code, c.DiscountType)
		}
		if !c.DiscountValue.IsPositive() {
			return errors.Errorf("coupon %s: discount_value must be positive", c.Code)
		}
	}
	return nil
}

// Options control how secrets in a fixture are stored.
type Options struct {
	Hasher *secret.Hasher
	Pepper []byte
	Now    time.Time
}

// Apply upserts every record of fx in a single transaction.
func Apply(ctx context.Context, st store.Store, fx *Fixture, opts Options) error {
	if opts.Hasher == nil {
		opts.Hasher = secret.NewHasher(0)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	lg := zctx.From(ctx)

	return st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, p := range fx.Products {
			if err := applyProduct(ctx, tx, p, opts.Now); err != nil {
				return errors.Wrapf(err, "product %s", p.ID)
			}
		}
		lg.Info("Loaded products", zap.Int("count", len(fx.Products)))

		for _, u := range fx.Users {
			if err := applyUser(ctx, tx, u, opts); err != nil {
				return errors.Wrapf(err, "user %s", u.ID)
			}
		}
		lg.Info("Loaded users", zap.Int("count", len(fx.Users)))

		for _, c := range fx.Coupons {
			if err := tx.PutCoupon(ctx, c.toCoupon(opts.Now)); err != nil {
				return errors.Wrapf(err, "coupon %s", c.Code)
			}
		}
		lg.Info("Loaded coupons", zap.Int("count", len(fx.Coupons)))
		return nil
	})
}

func applyProduct(ctx context.Context, tx store.Tx, p Product, now time.Time) error {
	if err := tx.PutProduct(ctx, &catalog.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		IsProtected: p.IsProtected,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return err
	}
	return tx.PutStock(ctx, &catalog.Stock{ProductID: p.ID, Quantity: p.StockQuantity, LastUpdated: now})
}

func applyUser(ctx context.Context, tx store.Tx, u User, opts Options) error {
	if err := tx.PutUser(ctx, &account.User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsAdmin:     u.IsAdmin,
		IsProtected: u.IsProtected,
		CreatedAt:   opts.Now,
		UpdatedAt:   opts.Now,
	}); err != nil {
		return err
	}

	for _, k := range u.APIKeys {
		if err := tx.PutAPIKey(ctx, &account.APIKey{
			ID:      k.ID,
			KeyHash: secret.KeyHash(opts.Pepper, k.Key),
			Name:    k.Name,
			UserID:  u.ID,
			Scopes:  k.Scopes,
		}); err != nil {
			return errors.Wrapf(err, "api key %s", k.ID)
		}
	}

	// Successive records get increasing timestamps so that "oldest first"
	// follows file order.
	at := opts.Now
	for _, a := range u.Addresses {
		at = at.Add(time.Millisecond)
		addr := &account.Address{
			ID:          a.ID,
			UserID:      u.ID,
			Street:      a.Street,
			City:        a.City,
			Country:     a.Country,
			ZipCode:     a.ZipCode,
			IsDefault:   a.IsDefault,
			IsProtected: a.IsProtected,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if err := upsertAddress(ctx, tx, addr); err != nil {
			return errors.Wrapf(err, "address %s", a.ID)
		}
	}

	for _, c := range u.CreditCards {
		at = at.Add(time.Millisecond)
		card, err := c.toCard(u.ID, opts.Hasher, at)
		if err != nil {
			return errors.Wrapf(err, "card %s", c.ID)
		}
		if err := upsertCard(ctx, tx, card); err != nil {
			return errors.Wrapf(err, "card %s", c.ID)
		}
	}
	return nil
}

func upsertAddress(ctx context.Context, tx store.Tx, a *account.Address) error {
	existing, err := tx.GetAddress(ctx, a.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return tx.CreateAddress(ctx, a)
	case err != nil:
		return err
	}
	a.CreatedAt = existing.CreatedAt
	return tx.UpdateAddress(ctx, a)
}

func upsertCard(ctx context.Context, tx store.Tx, c *account.CreditCard) error {
	existing, err := tx.GetCreditCard(ctx, c.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return tx.CreateCreditCard(ctx, c)
	case err != nil:
		return err
	}
	c.CreatedAt = existing.CreatedAt
	return tx.UpdateCreditCard(ctx, c)
}

func (c CreditCard) toCard(userID uuid.UUID, h *secret.Hasher, at time.Time) (*account.CreditCard, error) {
	numberHash, err := h.Hash(c.Number)
	if err != nil {
		return nil, err
	}
	cvvHash, err := h.Hash(c.CVV)
	if err != nil {
		return nil, err
	}
	return &account.CreditCard{
		ID:             c.ID,
		UserID:         userID,
		CardholderName: c.CardholderName,
		ExpiryMonth:    c.ExpiryMonth,
		ExpiryYear:     c.ExpiryYear,
		NumberHash:     numberHash,
		CVVHash:        cvvHash,
		LastFour:       c.Number[len(c.Number)-4:],
		IsDefault:      c.IsDefault,
		IsProtected:    c.IsProtected,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

func (c Coupon) toCoupon(now time.Time) *coupon.Coupon {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return &coupon.Coupon{
		ID:            id,
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		IsActive:      active,
		UsageLimit:    c.UsageLimit,
		ExpiresAt:     c.ExpiresAt,
		IsProtected:   c.IsProtected,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
