// Package apperr defines the failure taxonomy shared by the order, coupon and
// profile services. Every failure surfaced to a caller classifies into exactly
// one Kind; anything unclassified is treated as internal.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindFormat
	KindEmptyOrder
	KindInsufficientStock
	KindForbidden
	KindInvalidState
	KindCouponInactive
	KindCouponLimitReached
	KindConflict
)

var kindNames = [...]string{
	KindInternal:           "internal",
	KindNotFound:           "not_found",
	KindFormat:             "format_error",
	KindEmptyOrder:         "empty_order",
	KindInsufficientStock:  "insufficient_stock",
	KindForbidden:          "forbidden",
	KindInvalidState:       "invalid_state",
	KindCouponInactive:     "coupon_inactive",
	KindCouponLimitReached: "coupon_limit_reached",
	KindConflict:           "conflict",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entity names used to scope NotFound errors.
const (
	EntityUser       = "user"
	EntityAddress    = "address"
	EntityCreditCard = "credit card"
	EntityProduct    = "product"
	EntityCoupon     = "coupon"
	EntityOrder      = "order"
)

// Error is a classified domain failure.
type Error struct {
	Kind    Kind
	Entity  string
	ID      string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Kind == KindNotFound && e.ID != "":
		return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
	case e.Kind == KindNotFound:
		return e.Entity + " not found"
	default:
		return e.Kind.String()
	}
}

// ErrEmptyOrder is returned when an order request carries no line items.
var ErrEmptyOrder = &Error{Kind: KindEmptyOrder, Message: "no products specified for the order"}

// NotFound reports a missing entity.
func NotFound(entity string, id fmt.Stringer) *Error {
	e := &Error{Kind: KindNotFound, Entity: entity}
	if id != nil {
		e.ID = id.String()
	}
	return e
}

// NotFoundCode reports a missing entity addressed by a human-entered key.
func NotFoundCode(entity, code string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: code}
}

// Format reports a malformed identifier or quantity.
func Format(format string, args ...any) *Error {
	return &Error{Kind: KindFormat, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports an ownership mismatch or a protected-resource violation.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidState reports an operation attempted from the wrong lifecycle state.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// CouponInactive reports a coupon that exists but cannot be used.
func CouponInactive(code, reason string) *Error {
	return &Error{Kind: KindCouponInactive, Entity: EntityCoupon, ID: code, Message: reason}
}

// CouponLimitReached reports a coupon whose usage counter hit its limit.
func CouponLimitReached(code string) *Error {
	return &Error{Kind: KindCouponLimitReached, Entity: EntityCoupon, ID: code, Message: "coupon usage limit reached"}
}

// InsufficientStockError indicates a line item requests more units than are
// on hand.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (ID: %s). Available: %d, Requested: %d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return KindInsufficientStock
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing text of err without any wrapping
// context added on the way up.
func Message(err error) string {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Error()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
