package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/account"
)

const findAPIKeySQL = `SELECT id, key_hash, name, user_id, scopes
	FROM api_keys
	WHERE key_hash = $1`

const putAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, scopes)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash,
		name = EXCLUDED.name,
		user_id = EXCLUDED.user_id,
		scopes = EXCLUDED.scopes`

// FindAPIKey looks up an API key by its HMAC hash.
func (q *queries) FindAPIKey(ctx context.Context, keyHash string) (*account.APIKey, error) {
	var k account.APIKey
	err := q.q.QueryRow(ctx, findAPIKeySQL, keyHash).Scan(&k.ID, &k.KeyHash, &k.Name, &k.UserID, &k.Scopes)
	if err != nil {
		return nil, mapErr(err, "find api key")
	}
	return &k, nil
}

func (t *tx) PutAPIKey(ctx context.Context, k *account.APIKey) error {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := t.q.Exec(ctx, putAPIKeySQL, k.ID, k.KeyHash, k.Name, k.UserID, scopes)
	return mapErr(err, "put api key")
}

const getUserSQL = `SELECT id, username, email, is_admin, is_protected, created_at, updated_at
	FROM users
	WHERE id = $1`

const putUserSQL = `INSERT INTO users (id, username, email, is_admin, is_protected, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		username = EXCLUDED.username,
		email = EXCLUDED.email,
		is_admin = EXCLUDED.is_admin,
		is_protected = EXCLUDED.is_protected,
		updated_at = EXCLUDED.updated_at`

func (q *queries) GetUser(ctx context.Context, id uuid.UUID) (*account.User, error) {
	var u account.User
	err := q.q.QueryRow(ctx, getUserSQL, id).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.IsProtected, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "get user")
	}
	u.CreatedAt, u.UpdatedAt = utc(u.CreatedAt), utc(u.UpdatedAt)
	return &u, nil
}

func (t *tx) PutUser(ctx context.Context, u *account.User) error {
	_, err := t.q.Exec(ctx, putUserSQL, u.ID, u.Username, u.Email, u.IsAdmin, u.IsProtected, u.CreatedAt, u.UpdatedAt)
	return mapErr(err, "put user")
}
