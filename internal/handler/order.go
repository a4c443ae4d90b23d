package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/service/couponing"
	"github.com/xenking/storefront/internal/service/fulfillment"
)

// createOrder reads line items from product_id_<n>/quantity_<n> query pairs.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	q := r.URL.Query()
	addressID, err := queryID(q, "address_id")
	if err != nil {
		return err
	}
	cardID, err := queryID(q, "credit_card_id")
	if err != nil {
		return err
	}
	req := fulfillment.CreateRequest{
		UserID:       userID,
		AddressID:    addressID,
		CreditCardID: cardID,
	}

	req.Items, err = order.ParseLineItems(q.Get)
	if err != nil {
		// Missing references take precedence over malformed items.
		if refErr := h.orders.CheckReferences(r.Context(), req); refErr != nil {
			return refErr
		}
		return err
	}

	receipt, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		return err
	}
	return respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeReceipt(e, receipt) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	receipts, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range receipts {
				encodeReceipt(e, &receipts[i])
			}
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return err
	}
	receipt, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) { encodeReceipt(e, receipt) })
}

// applyCoupon only lets callers act on their own user path.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return err
	}
	code := r.URL.Query().Get("coupon_code")
	if code == "" {
		return apperr.Format("coupon_code is required")
	}

	caller, _ := account.IdentityFrom(r.Context())
	if caller.UserID != userID {
		return apperr.Forbidden("not authorized to apply coupons for this user")
	}

	receipt, err := h.coupons.Apply(r.Context(), couponing.ApplyRequest{
		OrderID:  orderID,
		Code:     code,
		CallerID: caller.UserID,
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) { encodeReceipt(e, receipt) })
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) error {
	c, err := h.coupons.Lookup(r.Context(), r.PathValue("code"))
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}
