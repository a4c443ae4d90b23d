package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/service/profile"
)

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	list, err := h.profile.ListAddresses(r.Context(), userID)
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				encodeAddress(e, &list[i])
			}
		})
	})
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	q := r.URL.Query()
	isDefault, err := optBool(q, "is_default")
	if err != nil {
		return err
	}
	in := profile.AddressInput{
		Street:  q.Get("street"),
		City:    q.Get("city"),
		Country: q.Get("country"),
		ZipCode: q.Get("zip_code"),
	}
	if isDefault != nil {
		in.IsDefault = *isDefault
	}

	a, err := h.profile.CreateAddress(r.Context(), userID, in)
	if err != nil {
		return err
	}
	return respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeAddress(e, a) })
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	addressID, err := pathID(r, "addressID")
	if err != nil {
		return err
	}
	q := r.URL.Query()
	isDefault, err := optBool(q, "is_default")
	if err != nil {
		return err
	}

	a, err := h.profile.UpdateAddress(r.Context(), userID, addressID, profile.AddressPatch{
		Street:    optString(q, "street"),
		City:      optString(q, "city"),
		Country:   optString(q, "country"),
		ZipCode:   optString(q, "zip_code"),
		IsDefault: isDefault,
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) { encodeAddress(e, a) })
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	addressID, err := pathID(r, "addressID")
	if err != nil {
		return err
	}
	if err := h.profile.DeleteAddress(r.Context(), userID, addressID); err != nil {
		return err
	}
	return respond(w, http.StatusOK, message("Address deleted successfully"))
}

func (h *Handler) listCreditCards(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	list, err := h.profile.ListCreditCards(r.Context(), userID)
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				encodeCard(e, &list[i])
			}
		})
	})
}

func (h *Handler) createCreditCard(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	q := r.URL.Query()
	isDefault, err := optBool(q, "is_default")
	if err != nil {
		return err
	}
	in := profile.CardInput{
		CardholderName: q.Get("cardholder_name"),
		Number:         q.Get("card_number"),
		ExpiryMonth:    q.Get("expiry_month"),
		ExpiryYear:     q.Get("expiry_year"),
		CVV:            q.Get("cvv"),
	}
	if isDefault != nil {
		in.IsDefault = *isDefault
	}

	c, err := h.profile.CreateCreditCard(r.Context(), userID, in)
	if err != nil {
		return err
	}
	return respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeCard(e, c) })
}

func (h *Handler) updateCreditCard(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	cardID, err := pathID(r, "cardID")
	if err != nil {
		return err
	}
	q := r.URL.Query()
	isDefault, err := optBool(q, "is_default")
	if err != nil {
		return err
	}

	c, err := h.profile.UpdateCreditCard(r.Context(), userID, cardID, profile.CardPatch{
		CardholderName: optString(q, "cardholder_name"),
		ExpiryMonth:    optString(q, "expiry_month"),
		ExpiryYear:     optString(q, "expiry_year"),
		IsDefault:      isDefault,
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, func(e *jx.Encoder) { encodeCard(e, c) })
}

func (h *Handler) deleteCreditCard(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathID(r, "userID")
	if err != nil {
		return err
	}
	cardID, err := pathID(r, "cardID")
	if err != nil {
		return err
	}
	if err := h.profile.DeleteCreditCard(r.Context(), userID, cardID); err != nil {
		return err
	}
	return respond(w, http.StatusOK, message("Credit card deleted successfully"))
}

func message(msg string) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", str(msg))
		})
	}
}
