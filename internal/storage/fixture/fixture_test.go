package fixture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/pkg/secret"
)

func TestLoad_SeedFile(t *testing.T) {
	fx, err := Load("../../../db/seed/storefront.yaml")
	require.NoError(t, err)

	assert.Len(t, fx.Products, 3)
	assert.Len(t, fx.Users, 2)
	assert.Len(t, fx.Coupons, 4)
	assert.True(t, decimal.RequireFromString("89.99").Equal(fx.Products[0].Price))
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	fx, err := Load("../../../db/seed/storefront.yaml")
	require.NoError(t, err)

	st := memory.New()
	pepper := []byte("pepper")
	hasher := secret.NewHasher(bcrypt.MinCost)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	opts := Options{Hasher: hasher, Pepper: pepper, Now: now}

	require.NoError(t, Apply(ctx, st, fx, opts))

	alice := uuid.MustParse("7a1d9e40-52b3-4f0e-8c6d-1e2f3a4b5c01")
	u, err := st.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.True(t, u.IsProtected)

	key, err := st.FindAPIKey(ctx, secret.KeyHash(pepper, "alice-secret-key"))
	require.NoError(t, err)
	assert.Equal(t, alice, key.UserID)

	cards, err := st.ListCreditCards(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "1111", cards[0].LastFour)
	assert.True(t, hasher.Verify(cards[0].NumberHash, "4111111111111111"))
	assert.True(t, hasher.Verify(cards[0].CVVHash, "123"))

	stock, err := st.GetStock(ctx, uuid.MustParse("0b6c2f52-3d4e-4c1a-9b1e-6d2a5f7c8e03"))
	require.NoError(t, err)
	assert.Equal(t, 5, stock.Quantity)

	old, err := st.GetCoupon(ctx, "OLDPROMO")
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	save, err := st.GetCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	assert.True(t, save.IsActive)
	require.NotNil(t, save.UsageLimit)
	assert.Equal(t, 100, *save.UsageLimit)

	// Re-applying is an upsert.
	require.NoError(t, Apply(ctx, st, fx, opts))
	addrs, err := st.ListAddresses(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "products:\n  - product_id: 0b6c2f52-3d4e-4c1a-9b1e-6d2a5f7c8e01\n    colour: red\n",
			want: "decode fixture",
		},
		{
			name: "non positive price",
			yaml: "products:\n  - product_id: 0b6c2f52-3d4e-4c1a-9b1e-6d2a5f7c8e01\n    price: \"0\"\n",
			want: "price must be positive",
		},
		{
			name: "unknown discount type",
			yaml: "coupons:\n  - code: X\n    discount_type: bogo\n    discount_value: \"1\"\n",
			want: "unsupported discount type",
		},
		{
			name: "missing user id",
			yaml: "users:\n  - username: nobody\n",
			want: "user_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	fx, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, fx.Products)
}
