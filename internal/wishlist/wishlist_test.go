package wishlist_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/postgres/pgtest"
	"github.com/ariefcatur/go-pharmacy-store/internal/wishlist"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RequiresUser(t *testing.T) {
	svc := wishlist.NewService(nil)
	ctx := context.Background()

	_, err := svc.List(ctx, uuid.Nil)
	assert.ErrorIs(t, err, identity.ErrAuthRequired)
	_, err = svc.Add(ctx, uuid.Nil, nil, uuid.New())
	assert.ErrorIs(t, err, identity.ErrAuthRequired)
	ok, err := svc.Contains(ctx, uuid.Nil, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_CreateRejectsBlankName(t *testing.T) {
	svc := wishlist.NewService(nil)
	_, err := svc.Create(context.Background(), uuid.New(), "   ", false)
	assert.ErrorIs(t, err, wishlist.ErrInvalidName)
}

func TestService_Postgres(t *testing.T) {
	db := pgtest.Open(t)
	ctx := context.Background()
	products := catalog.NewPostgresRepository(db)
	p := &catalog.Product{SKU: "W1", Slug: "w1", NameFR: "Crème", NameEN: "Cream", Price: 2500, Type: catalog.TypeOverCounter, IsActive: true}
	require.NoError(t, products.Create(ctx, p))

	svc := wishlist.NewService(wishlist.NewPostgresRepository(db))
	user, other := uuid.New(), uuid.New()

	lists, err := svc.Add(ctx, user, nil, p.ID)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.True(t, lists[0].IsDefault)
	assert.Equal(t, wishlist.DefaultName, lists[0].Name)
	require.Len(t, lists[0].Items, 1)
	assert.Equal(t, "Crème", lists[0].Items[0].Product.NameFR)

	_, err = svc.Add(ctx, user, nil, p.ID)
	assert.ErrorIs(t, err, wishlist.ErrAlreadyListed)

	_, err = svc.Add(ctx, user, nil, uuid.New())
	assert.ErrorIs(t, err, wishlist.ErrProductNotFound)

	defaultID := lists[0].ID
	_, err = svc.Add(ctx, other, &defaultID, p.ID)
	assert.ErrorIs(t, err, wishlist.ErrNotFound)

	in, err := svc.Contains(ctx, user, p.ID)
	require.NoError(t, err)
	assert.True(t, in)

	lists, err = svc.Create(ctx, user, "Voyage", true)
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	lists, err = svc.Remove(ctx, user, defaultID, p.ID)
	require.NoError(t, err)
	assert.Empty(t, lists[0].Items)
	_, err = svc.Remove(ctx, user, defaultID, p.ID)
	require.NoError(t, err)

	_, err = svc.Delete(ctx, other, defaultID)
	assert.ErrorIs(t, err, wishlist.ErrNotFound)
}
