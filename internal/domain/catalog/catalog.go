// Package catalog holds products and their warehouse stock. Catalog
// management is external; the order engine only reads products and
// decrements stock.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	IsProtected bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stock is the on-hand quantity of one product. Quantity never drops below
// zero.
type Stock struct {
	ProductID   uuid.UUID
	Quantity    int
	LastUpdated time.Time
}
