// Package account holds users and their default-selectable collections:
// shipping addresses and payment cards.
package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a store customer. Protected users keep at least one address and one
// credit card at all times.
type User struct {
	ID          uuid.UUID
	Username    string
	Email       string
	IsAdmin     bool
	IsProtected bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Address is a shipping address owned by exactly one user.
type Address struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Street      string
	City        string
	Country     string
	ZipCode     string
	IsDefault   bool
	IsProtected bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SameLocation reports whether two addresses point to the same place.
func (a Address) SameLocation(other Address) bool {
	return a.Street == other.Street &&
		a.City == other.City &&
		a.Country == other.Country &&
		a.ZipCode == other.ZipCode
}

// CreditCard is a payment card owned by exactly one user. Only one-way hashes
// of the number and CVV are kept; the last four digits stay in clear text for
// display.
type CreditCard struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CardholderName string
	ExpiryMonth    string
	ExpiryYear     string
	NumberHash     string
	CVVHash        string
	LastFour       string
	IsDefault      bool
	IsProtected    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// APIKey binds a hashed API key to the user it authenticates.
type APIKey struct {
	ID      string
	KeyHash string
	Name    string
	UserID  uuid.UUID
	Scopes  []string
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uuid.UUID
	KeyID  string
}

type identityKey struct{}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller identity stored in ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
