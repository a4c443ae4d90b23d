package profile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/pkg/secret"
)

func newService(t *testing.T, users ...account.User) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i := range users {
			if err := tx.PutUser(ctx, &users[i]); err != nil {
				return err
			}
		}
		return nil
	}))

	svc := NewService(st, secret.NewHasher(bcrypt.MinCost))
	clock := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return svc, st
}

func address(street string) AddressInput {
	return AddressInput{Street: street, City: "Springfield", Country: "US", ZipCode: "12345"}
}

func defaultsOf(t *testing.T, list []account.Address) []uuid.UUID {
	t.Helper()
	var out []uuid.UUID
	for _, a := range list {
		if a.IsDefault {
			out = append(out, a.ID)
		}
	}
	return out
}

func TestCreateAddress_Defaults(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New(), Username: "bob"}
	svc, _ := newService(t, u)

	first, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first address is forced to default")

	second, err := svc.CreateAddress(ctx, u.ID, address("2 Main"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	in := address("3 Main")
	in.IsDefault = true
	third, err := svc.CreateAddress(ctx, u.ID, in)
	require.NoError(t, err)
	assert.True(t, third.IsDefault)

	list, err := svc.ListAddresses(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, []uuid.UUID{third.ID}, defaultsOf(t, list))
}

func TestCreateAddress_Rejections(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New()}
	svc, _ := newService(t, u)

	_, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
	require.NoError(t, err)

	_, err = svc.CreateAddress(ctx, u.ID, address("1 Main"))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.CreateAddress(ctx, u.ID, AddressInput{Street: "x"})
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))

	missing := uuid.New()
	_, err = svc.CreateAddress(ctx, missing, address("9 Main"))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "user with ID "+missing.String()+" not found", err.Error())
}

func TestUpdateAddress(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New()}
	svc, _ := newService(t, u)

	a, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
	require.NoError(t, err)
	b, err := svc.CreateAddress(ctx, u.ID, address("2 Main"))
	require.NoError(t, err)

	city := "Shelbyville"
	yes := true
	got, err := svc.UpdateAddress(ctx, u.ID, b.ID, AddressPatch{City: &city, IsDefault: &yes})
	require.NoError(t, err)
	assert.Equal(t, "Shelbyville", got.City)
	assert.Equal(t, "2 Main", got.Street)
	assert.True(t, got.IsDefault)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	list, err := svc.ListAddresses(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, defaultsOf(t, list))

	// Clearing the flag on the default hands it to the other address.
	no := false
	got, err = svc.UpdateAddress(ctx, u.ID, b.ID, AddressPatch{IsDefault: &no})
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
	list, err = svc.ListAddresses(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, defaultsOf(t, list))

	_, err = svc.UpdateAddress(ctx, u.ID, a.ID, AddressPatch{})
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))

	other := account.User{ID: uuid.New()}
	_, err = svc.UpdateAddress(ctx, other.ID, a.ID, AddressPatch{City: &city})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateAddress_OnlyAddressStaysDefault(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New()}
	svc, _ := newService(t, u)

	a, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
	require.NoError(t, err)

	no := false
	got, err := svc.UpdateAddress(ctx, u.ID, a.ID, AddressPatch{IsDefault: &no})
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestDeleteAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes remaining address", func(t *testing.T) {
		u := account.User{ID: uuid.New()}
		svc, _ := newService(t, u)

		a, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
		require.NoError(t, err)
		b, err := svc.CreateAddress(ctx, u.ID, address("2 Main"))
		require.NoError(t, err)
		require.True(t, a.IsDefault)

		require.NoError(t, svc.DeleteAddress(ctx, u.ID, a.ID))

		list, err := svc.ListAddresses(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, []uuid.UUID{b.ID}, defaultsOf(t, list))
	})

	t.Run("oldest remaining wins", func(t *testing.T) {
		u := account.User{ID: uuid.New()}
		svc, _ := newService(t, u)

		var ids []uuid.UUID
		for _, street := range []string{"1 Main", "2 Main", "3 Main"} {
			a, err := svc.CreateAddress(ctx, u.ID, address(street))
			require.NoError(t, err)
			ids = append(ids, a.ID)
		}
		yes := true
		_, err := svc.UpdateAddress(ctx, u.ID, ids[2], AddressPatch{IsDefault: &yes})
		require.NoError(t, err)

		require.NoError(t, svc.DeleteAddress(ctx, u.ID, ids[2]))
		list, err := svc.ListAddresses(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{ids[0]}, defaultsOf(t, list))
	})

	t.Run("non default leaves flags alone", func(t *testing.T) {
		u := account.User{ID: uuid.New()}
		svc, _ := newService(t, u)

		a, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
		require.NoError(t, err)
		b, err := svc.CreateAddress(ctx, u.ID, address("2 Main"))
		require.NoError(t, err)

		require.NoError(t, svc.DeleteAddress(ctx, u.ID, b.ID))
		list, err := svc.ListAddresses(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{a.ID}, defaultsOf(t, list))
	})

	t.Run("last address of protected user", func(t *testing.T) {
		u := account.User{ID: uuid.New(), Username: "demo", IsProtected: true}
		svc, _ := newService(t, u)

		a, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
		require.NoError(t, err)

		err = svc.DeleteAddress(ctx, u.ID, a.ID)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

		list, err := svc.ListAddresses(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		// With a second address one of them may go.
		_, err = svc.CreateAddress(ctx, u.ID, address("2 Main"))
		require.NoError(t, err)
		require.NoError(t, svc.DeleteAddress(ctx, u.ID, a.ID))
	})

	t.Run("protected address", func(t *testing.T) {
		u := account.User{ID: uuid.New()}
		svc, st := newService(t, u)

		protected := account.Address{ID: uuid.New(), UserID: u.ID, Street: "0 Main", IsDefault: true, IsProtected: true}
		require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreateAddress(ctx, &protected)
		}))
		_, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
		require.NoError(t, err)

		err = svc.DeleteAddress(ctx, u.ID, protected.ID)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("address of another user", func(t *testing.T) {
		u, other := account.User{ID: uuid.New()}, account.User{ID: uuid.New()}
		svc, _ := newService(t, u, other)

		a, err := svc.CreateAddress(ctx, u.ID, address("1 Main"))
		require.NoError(t, err)

		err = svc.DeleteAddress(ctx, other.ID, a.ID)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func card(number string) CardInput {
	return CardInput{
		CardholderName: "Bob Builder",
		Number:         number,
		ExpiryMonth:    "09",
		ExpiryYear:     "2029",
		CVV:            "123",
	}
}

func TestCreateCreditCard(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New()}
	svc, _ := newService(t, u)

	first, err := svc.CreateCreditCard(ctx, u.ID, card("4111111111111111"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Equal(t, "1111", first.LastFour)
	assert.NotContains(t, first.NumberHash, "4111111111111111")
	assert.True(t, svc.hasher.Verify(first.NumberHash, "4111111111111111"))
	assert.True(t, svc.hasher.Verify(first.CVVHash, "123"))

	in := card("5500000000000004")
	in.IsDefault = true
	in.CVV = ""
	second, err := svc.CreateCreditCard(ctx, u.ID, in)
	require.NoError(t, err)
	assert.True(t, second.IsDefault)
	assert.Empty(t, second.CVVHash)

	list, err := svc.ListCreditCards(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].IsDefault)
	assert.True(t, list[1].IsDefault)
}

func TestValidateCard(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CardInput)
		ok     bool
	}{
		{name: "valid", mutate: func(*CardInput) {}, ok: true},
		{name: "twelve digits", mutate: func(in *CardInput) { in.Number = "123456789012" }, ok: true},
		{name: "eleven digits", mutate: func(in *CardInput) { in.Number = "12345678901" }},
		{name: "twenty digits", mutate: func(in *CardInput) { in.Number = "12345678901234567890" }},
		{name: "spaces", mutate: func(in *CardInput) { in.Number = "4111 1111 1111 1111" }},
		{name: "no holder", mutate: func(in *CardInput) { in.CardholderName = "" }},
		{name: "month 00", mutate: func(in *CardInput) { in.ExpiryMonth = "00" }},
		{name: "month 13", mutate: func(in *CardInput) { in.ExpiryMonth = "13" }},
		{name: "month 12", mutate: func(in *CardInput) { in.ExpiryMonth = "12" }, ok: true},
		{name: "single digit month", mutate: func(in *CardInput) { in.ExpiryMonth = "9" }},
		{name: "year 2019", mutate: func(in *CardInput) { in.ExpiryYear = "2019" }},
		{name: "year 2099", mutate: func(in *CardInput) { in.ExpiryYear = "2099" }, ok: true},
		{name: "year 2100", mutate: func(in *CardInput) { in.ExpiryYear = "2100" }},
		{name: "two digit year", mutate: func(in *CardInput) { in.ExpiryYear = "29" }},
		{name: "short cvv", mutate: func(in *CardInput) { in.CVV = "12" }},
		{name: "no cvv", mutate: func(in *CardInput) { in.CVV = "" }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := card("4111111111111111")
			tt.mutate(&in)
			err := validateCard(in)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))
		})
	}
}

func TestUpdateCreditCard(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New()}
	svc, _ := newService(t, u)

	a, err := svc.CreateCreditCard(ctx, u.ID, card("4111111111111111"))
	require.NoError(t, err)
	b, err := svc.CreateCreditCard(ctx, u.ID, card("5500000000000004"))
	require.NoError(t, err)

	month, yes := "11", true
	got, err := svc.UpdateCreditCard(ctx, u.ID, b.ID, CardPatch{ExpiryMonth: &month, IsDefault: &yes})
	require.NoError(t, err)
	assert.Equal(t, "11", got.ExpiryMonth)
	assert.True(t, got.IsDefault)
	assert.Equal(t, b.NumberHash, got.NumberHash)

	list, err := svc.ListCreditCards(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, list[0].IsDefault, "card %s lost the default", a.ID)

	bad := "13"
	_, err = svc.UpdateCreditCard(ctx, u.ID, b.ID, CardPatch{ExpiryMonth: &bad})
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))

	_, err = svc.UpdateCreditCard(ctx, u.ID, b.ID, CardPatch{})
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))
}

func TestDeleteCreditCard(t *testing.T) {
	ctx := context.Background()

	t.Run("last card of protected user", func(t *testing.T) {
		u := account.User{ID: uuid.New(), Username: "demo", IsProtected: true}
		svc, _ := newService(t, u)

		c, err := svc.CreateCreditCard(ctx, u.ID, card("4111111111111111"))
		require.NoError(t, err)

		err = svc.DeleteCreditCard(ctx, u.ID, c.ID)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	})

	t.Run("promotes remaining card", func(t *testing.T) {
		u := account.User{ID: uuid.New()}
		svc, _ := newService(t, u)

		a, err := svc.CreateCreditCard(ctx, u.ID, card("4111111111111111"))
		require.NoError(t, err)
		b, err := svc.CreateCreditCard(ctx, u.ID, card("5500000000000004"))
		require.NoError(t, err)

		require.NoError(t, svc.DeleteCreditCard(ctx, u.ID, a.ID))
		list, err := svc.ListCreditCards(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, b.ID, list[0].ID)
		assert.True(t, list[0].IsDefault)
	})

	t.Run("missing card", func(t *testing.T) {
		u := account.User{ID: uuid.New()}
		svc, _ := newService(t, u)

		err := svc.DeleteCreditCard(ctx, u.ID, uuid.New())
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

// Exactly one default survives any sequence of mutations.
func TestDefaultInvariant_Sequence(t *testing.T) {
	ctx := context.Background()
	u := account.User{ID: uuid.New()}
	svc, _ := newService(t, u)

	check := func() {
		t.Helper()
		list, err := svc.ListAddresses(ctx, u.ID)
		require.NoError(t, err)
		if len(list) == 0 {
			return
		}
		assert.Len(t, defaultsOf(t, list), 1)
	}

	var ids []uuid.UUID
	for i, street := range []string{"1 Main", "2 Main", "3 Main", "4 Main"} {
		in := address(street)
		in.IsDefault = i%2 == 1
		a, err := svc.CreateAddress(ctx, u.ID, in)
		require.NoError(t, err)
		ids = append(ids, a.ID)
		check()
	}

	yes, no := true, false
	for _, step := range []struct {
		id    uuid.UUID
		patch AddressPatch
	}{
		{ids[0], AddressPatch{IsDefault: &yes}},
		{ids[0], AddressPatch{IsDefault: &no}},
		{ids[2], AddressPatch{IsDefault: &no}},
		{ids[3], AddressPatch{IsDefault: &yes}},
	} {
		_, err := svc.UpdateAddress(ctx, u.ID, step.id, step.patch)
		require.NoError(t, err)
		check()
	}

	for _, id := range []uuid.UUID{ids[3], ids[0], ids[1], ids[2]} {
		require.NoError(t, svc.DeleteAddress(ctx, u.ID, id))
		check()
	}
}
