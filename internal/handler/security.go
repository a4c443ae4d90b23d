package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/secret"
)

// ErrUnauthorized is returned for a missing or unknown API key.
var ErrUnauthorized = errors.New("unauthorized")

// KeyFinder looks API keys up by their peppered hash.
type KeyFinder interface {
	FindAPIKey(ctx context.Context, keyHash string) (*account.APIKey, error)
}

// Authenticator resolves API keys into caller identities.
type Authenticator struct {
	keys   KeyFinder
	pepper []byte
}

// NewAuthenticator creates an Authenticator over keys. Keys are stored as
// HMAC-SHA256 under pepper.
func NewAuthenticator(keys KeyFinder, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate returns the identity bound to the plain API key.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (account.Identity, error) {
	if key == "" {
		return account.Identity{}, ErrUnauthorized
	}
	hash := secret.KeyHash(a.pepper, key)

	info, err := a.keys.FindAPIKey(ctx, hash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return account.Identity{}, ErrUnauthorized
	case err != nil:
		return account.Identity{}, errors.Wrap(err, "find api key")
	}
	// Constant-time recheck of the stored hash.
	if !secret.KeyHashEqual(hash, info.KeyHash) {
		return account.Identity{}, ErrUnauthorized
	}
	return account.Identity{UserID: info.UserID, KeyID: info.ID}, nil
}

// Require rejects requests without a valid API key and stores the caller
// identity in the request context.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r.Context(), apiKey(r))
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				zctx.From(r.Context()).Error("Authenticate", zap.Error(err))
				httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
				return
			}
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(account.WithIdentity(r.Context(), id)))
	})
}

// apiKey reads the key from the api_key header or a bearer token.
func apiKey(r *http.Request) string {
	if key := r.Header.Get("api_key"); key != "" {
		return key
	}
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(key)
	}
	return ""
}
