package order

import (
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// LineItem is a requested (product, quantity) pair.
type LineItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// MaxQuantity bounds the merged quantity of a single product in one order. It
// matches the width of the stored quantity columns.
const MaxQuantity = math.MaxInt32

// Lookup returns the raw value stored under key, or "" when absent.
type Lookup func(key string) string

// ParseLineItems reads product_id_<n>/quantity_<n> pairs for n = 1, 2, …
// and stops at the first index where either value is missing; later indices
// are ignored. Repeated products are merged by summing quantities, keeping the
// position of their first occurrence.
func ParseLineItems(get Lookup) ([]LineItem, error) {
	var items []LineItem
	pos := make(map[uuid.UUID]int)

	for n := 1; ; n++ {
		idx := strconv.Itoa(n)
		rawID := get("product_id_" + idx)
		rawQty := get("quantity_" + idx)
		if rawID == "" || rawQty == "" {
			break
		}

		productID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, apperr.Format("invalid format for product_id_%d or quantity_%d", n, n)
		}
		qty, err := strconv.Atoi(rawQty)
		if err != nil {
			return nil, apperr.Format("invalid format for product_id_%d or quantity_%d", n, n)
		}
		if qty <= 0 {
			return nil, apperr.Format("quantity for product_id_%d must be positive", n)
		}

		if i, ok := pos[productID]; ok {
			if !fits(items[i].Quantity, qty) {
				return nil, apperr.Format("quantity for product_id_%d is too large", n)
			}
			items[i].Quantity += qty
			continue
		}
		if !fits(0, qty) {
			return nil, apperr.Format("quantity for product_id_%d is too large", n)
		}
		pos[productID] = len(items)
		items = append(items, LineItem{ProductID: productID, Quantity: qty})
	}

	if len(items) == 0 {
		return nil, apperr.ErrEmptyOrder
	}
	return items, nil
}

// NormalizeLineItems validates an already structured line-item list and merges
// repeated products the same way ParseLineItems does.
func NormalizeLineItems(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, apperr.ErrEmptyOrder
	}

	merged := make([]LineItem, 0, len(items))
	pos := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, apperr.Format("product id is required")
		}
		if item.Quantity <= 0 {
			return nil, apperr.Format("quantity for product %s must be positive", item.ProductID)
		}
		if i, ok := pos[item.ProductID]; ok {
			if !fits(merged[i].Quantity, item.Quantity) {
				return nil, apperr.Format("quantity for product %s is too large", item.ProductID)
			}
			merged[i].Quantity += item.Quantity
			continue
		}
		if !fits(0, item.Quantity) {
			return nil, apperr.Format("quantity for product %s is too large", item.ProductID)
		}
		pos[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// fits reports whether total+qty stays within MaxQuantity without overflowing.
func fits(total, qty int) bool {
	return qty <= MaxQuantity && total <= MaxQuantity-qty
}
