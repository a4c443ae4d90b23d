package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// statusOf maps a failure kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindFormat,
		apperr.KindEmptyOrder,
		apperr.KindInsufficientStock,
		apperr.KindInvalidState,
		apperr.KindCouponInactive,
		apperr.KindCouponLimitReached:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)

	msg := apperr.Message(err)
	if kind == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, kind.String(), msg)
}
