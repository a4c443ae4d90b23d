// Package handler is the HTTP boundary of the storefront API. It parses
// requests, resolves the caller identity and encodes domain results as JSON.
package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/service/couponing"
	"github.com/xenking/storefront/internal/service/fulfillment"
	"github.com/xenking/storefront/internal/service/profile"
)

// Handler serves the /api routes.
type Handler struct {
	orders  *fulfillment.Service
	coupons *couponing.Engine
	profile *profile.Service
	auth    *Authenticator

	mux *http.ServeMux
}

// NewHandler wires the API routes.
func NewHandler(
	orders *fulfillment.Service,
	coupons *couponing.Engine,
	prof *profile.Service,
	auth *Authenticator,
) *Handler {
	h := &Handler{
		orders:  orders,
		coupons: coupons,
		profile: prof,
		auth:    auth,
		mux:     http.NewServeMux(),
	}

	h.route("POST /api/users/{userID}/orders", h.createOrder)
	h.route("GET /api/users/{userID}/orders", h.listOrders)
	h.route("GET /api/users/{userID}/orders/{orderID}", h.getOrder)
	h.route("POST /api/users/{userID}/orders/{orderID}/apply-coupon", h.applyCoupon)

	h.route("GET /api/users/{userID}/addresses", h.listAddresses)
	h.route("POST /api/users/{userID}/addresses", h.createAddress)
	h.route("PUT /api/users/{userID}/addresses/{addressID}", h.updateAddress)
	h.route("DELETE /api/users/{userID}/addresses/{addressID}", h.deleteAddress)

	h.route("GET /api/users/{userID}/credit-cards", h.listCreditCards)
	h.route("POST /api/users/{userID}/credit-cards", h.createCreditCard)
	h.route("PUT /api/users/{userID}/credit-cards/{cardID}", h.updateCreditCard)
	h.route("DELETE /api/users/{userID}/credit-cards/{cardID}", h.deleteCreditCard)

	h.route("GET /api/coupons/{code}", h.getCoupon)

	return h
}

// apiFunc is a route handler that reports failures by returning them.
type apiFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) route(pattern string, fn apiFunc) {
	h.mux.Handle(pattern, h.auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})))
}

// Mux exposes the route table, for route-aware middleware.
func (h *Handler) Mux() *http.ServeMux {
	return h.mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}
