package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute, zap.NewNop()), mr
}

func TestSubscribe_StoresBothDirections(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)
	article := uuid.New()

	require.NoError(t, reg.Subscribe(ctx, article, "conn-1", "client-1"))

	members, err := reg.SubscribersOf(ctx, article)
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1"}, members)

	assert.Equal(t, article.String(), mr.HGet("client:conn-1", "articleId"))
	assert.Equal(t, "client-1", mr.HGet("client:conn-1", "clientId"))
	assert.Equal(t, time.Minute, mr.TTL("client:conn-1"))

	got, ok, err := reg.articleOf(ctx, "conn-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, article, got)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)
	article := uuid.New()

	require.NoError(t, reg.Subscribe(ctx, article, "conn-1", "client-1"))
	require.NoError(t, reg.Subscribe(ctx, article, "conn-2", "client-2"))

	require.NoError(t, reg.Unsubscribe(ctx, article, "conn-1"))
	require.NoError(t, reg.Unsubscribe(ctx, article, "conn-1"))

	members, err := reg.SubscribersOf(ctx, article)
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-2"}, members)
	assert.False(t, mr.Exists("client:conn-1"))
}

func TestUnsubscribeConnection_UsesReverseLookup(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)
	article := uuid.New()

	require.NoError(t, reg.Subscribe(ctx, article, "conn-1", "client-1"))
	require.NoError(t, reg.UnsubscribeConnection(ctx, "conn-1"))
	require.NoError(t, reg.UnsubscribeConnection(ctx, "conn-1"))

	members, err := reg.SubscribersOf(ctx, article)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.False(t, mr.Exists("client:conn-1"))
}

func TestSubscribersOf_UnknownArticle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	members, err := reg.SubscribersOf(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSweep_RemovesExpiredConnections(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)
	a1, a2 := uuid.New(), uuid.New()

	require.NoError(t, reg.Subscribe(ctx, a1, "stale", "client-1"))
	mr.FastForward(2 * time.Minute)

	require.NoError(t, reg.Subscribe(ctx, a1, "live", "client-2"))
	require.NoError(t, reg.Subscribe(ctx, a2, "other", "client-3"))

	removed, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	members, err := reg.SubscribersOf(ctx, a1)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, members)

	members, err = reg.SubscribersOf(ctx, a2)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, members)
}

func TestRefresh_ExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)
	article := uuid.New()

	require.NoError(t, reg.Subscribe(ctx, article, "conn-1", "client-1"))
	mr.FastForward(50 * time.Second)
	require.NoError(t, reg.Refresh(ctx, article, "conn-1", "client-1"))
	mr.FastForward(50 * time.Second)

	assert.True(t, mr.Exists("client:conn-1"))
	removed, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestUnavailableStore(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t)
	article := uuid.New()
	mr.SetError("ERR backend down")

	assert.ErrorIs(t, reg.Subscribe(ctx, article, "conn-1", "c"), ErrRegistryUnavailable)
	assert.ErrorIs(t, reg.Unsubscribe(ctx, article, "conn-1"), ErrRegistryUnavailable)
	assert.ErrorIs(t, reg.Ping(ctx), ErrRegistryUnavailable)

	_, err := reg.SubscribersOf(ctx, article)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}
