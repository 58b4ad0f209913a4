package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
)

type countingMenu struct {
	items map[uuid.UUID]catalog.MenuItem
	calls int
}

func (m *countingMenu) GetMenuItem(_ context.Context, id uuid.UUID) (*catalog.MenuItem, error) {
	m.calls++
	item, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("menu item", id)
	}
	return &item, nil
}

func newCache(t *testing.T, next catalog.MenuReader) (*catalog.CachedMenu, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return catalog.NewCachedMenu(next, client, time.Minute), mr
}

func TestCachedMenu_ReadThrough(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	next := &countingMenu{items: map[uuid.UUID]catalog.MenuItem{
		id: {ID: id, Name: "Sopa do dia", Price: decimal.RequireFromString("3.50"), Available: true},
	}}
	cache, mr := newCache(t, next)
	ctx := context.Background()

	first, err := cache.GetMenuItem(ctx, id)
	require.NoError(t, err)
	second, err := cache.GetMenuItem(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls, "second read is served from redis")
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, first.Price.Equal(second.Price))
	assert.True(t, mr.Exists("menu_item:"+id.String()))

	mr.FastForward(2 * time.Minute)
	_, err = cache.GetMenuItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "expired entry is reloaded")
}

func TestCachedMenu_Invalidate(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	next := &countingMenu{items: map[uuid.UUID]catalog.MenuItem{id: {ID: id, Name: "Café"}}}
	cache, mr := newCache(t, next)
	ctx := context.Background()

	_, err := cache.GetMenuItem(ctx, id)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, id))
	assert.False(t, mr.Exists("menu_item:"+id.String()))

	_, err = cache.GetMenuItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedMenu_NotFoundIsNotCached(t *testing.T) {
	next := &countingMenu{items: map[uuid.UUID]catalog.MenuItem{}}
	cache, mr := newCache(t, next)
	id := uuid.Must(uuid.NewV4())

	_, err := cache.GetMenuItem(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, mr.Exists("menu_item:"+id.String()))
}

func TestCachedMenu_RedisDownFallsBack(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	next := &countingMenu{items: map[uuid.UUID]catalog.MenuItem{id: {ID: id, Name: "Água"}}}
	cache, mr := newCache(t, next)
	mr.Close()

	item, err := cache.GetMenuItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Água", item.Name)
}
