package compare

import (
	"context"
	"os"
	"testing"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/redisx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[uuid.UUID][]uuid.UUID

func (m memStore) Add(_ context.Context, userID, productID uuid.UUID, limit int) error {
	for _, id := range m[userID] {
		if id == productID {
			return ErrAlreadyCompared
		}
	}
	if len(m[userID]) >= limit {
		return ErrCompareFull
	}
	m[userID] = append(m[userID], productID)
	return nil
}

func (m memStore) Remove(_ context.Context, userID, productID uuid.UUID) error {
	kept := []uuid.UUID{}
	for _, id := range m[userID] {
		if id != productID {
			kept = append(kept, id)
		}
	}
	m[userID] = kept
	return nil
}

func (m memStore) Clear(_ context.Context, userID uuid.UUID) error {
	delete(m, userID)
	return nil
}

func (m memStore) IDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), m[userID]...), nil
}

type productStub map[uuid.UUID]*catalog.Product

func (p productStub) GetByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	if pr, ok := p[id]; ok {
		return pr, nil
	}
	return nil, catalog.ErrNotFound
}

func (p productStub) add(active bool) uuid.UUID {
	id := uuid.New()
	p[id] = &catalog.Product{ID: id, IsActive: active}
	return id
}

func TestService_AddLimitsAndDuplicates(t *testing.T) {
	ctx := context.Background()
	products := productStub{}
	svc := NewService(memStore{}, products)
	user := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < MaxProducts; i++ {
		id := products.add(true)
		ids = append(ids, id)
		list, err := svc.Add(ctx, user, id)
		require.NoError(t, err)
		assert.Len(t, list, i+1)
	}

	_, err := svc.Add(ctx, user, ids[0])
	assert.ErrorIs(t, err, ErrAlreadyCompared)
	_, err = svc.Add(ctx, user, products.add(true))
	assert.ErrorIs(t, err, ErrCompareFull)

	list, err := svc.Remove(ctx, user, ids[1])
	require.NoError(t, err)
	require.Len(t, list, MaxProducts-1)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, ids[2], list[1].ID)
}

func TestService_Refusals(t *testing.T) {
	ctx := context.Background()
	products := productStub{}
	svc := NewService(memStore{}, products)

	_, err := svc.Add(ctx, uuid.Nil, products.add(true))
	assert.ErrorIs(t, err, identity.ErrAuthRequired)
	_, err = svc.Add(ctx, uuid.New(), products.add(false))
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = svc.Add(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestService_ListDropsDeletedProducts(t *testing.T) {
	ctx := context.Background()
	products := productStub{}
	store := memStore{}
	svc := NewService(store, products)
	user := uuid.New()

	keep, gone := products.add(true), products.add(true)
	_, err := svc.Add(ctx, user, keep)
	require.NoError(t, err)
	_, err = svc.Add(ctx, user, gone)
	require.NoError(t, err)
	delete(products, gone)

	list, err := svc.List(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []uuid.UUID{keep}, store[user])

	require.NoError(t, svc.Clear(ctx, user))
	list, err = svc.List(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PHARMACY_TEST_REDIS")
	if addr == "" {
		t.Skip("PHARMACY_TEST_REDIS not set, skipping redis test")
	}
	rdb := redisx.New(addr)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	s := NewRedisStore(rdb)
	user := uuid.New()
	t.Cleanup(func() { _ = s.Clear(ctx, user) })

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.Add(ctx, user, a, 2))
	assert.ErrorIs(t, s.Add(ctx, user, a, 2), ErrAlreadyCompared)
	require.NoError(t, s.Add(ctx, user, b, 2))
	assert.ErrorIs(t, s.Add(ctx, user, uuid.New(), 2), ErrCompareFull)

	ids, err := s.IDs(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	require.NoError(t, s.Remove(ctx, user, a))
	ids, err = s.IDs(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, ids)
}
