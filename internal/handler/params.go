package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/apperr"
)

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Format("invalid %s format", name)
	}
	return id, nil
}

// queryID parses a required UUID query parameter.
func queryID(q url.Values, name string) (uuid.UUID, error) {
	raw := q.Get(name)
	if raw == "" {
		return uuid.Nil, apperr.Format("%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Format("invalid %s format", name)
	}
	return id, nil
}

// optString returns nil when the parameter is absent.
func optString(q url.Values, name string) *string {
	if !q.Has(name) {
		return nil
	}
	v := q.Get(name)
	return &v
}

func optBool(q url.Values, name string) (*bool, error) {
	raw := optString(q, name)
	if raw == nil {
		return nil, nil
	}
	v, err := strconv.ParseBool(*raw)
	if err != nil {
		return nil, apperr.Format("invalid %s value", name)
	}
	return &v, nil
}
