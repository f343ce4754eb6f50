package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheServiceWithClient(client, "test:", nil), mr
}

type payload struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

func TestSetGetRoundTripWithPrefix(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "archetype:a1", payload{Name: "Skeptic", Level: 7}, time.Minute))
	assert.True(t, mr.Exists("test:archetype:a1"))

	var got payload
	found, err := svc.Get(ctx, "archetype:a1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "Skeptic", Level: 7}, got)
}

func TestGetMissingKey(t *testing.T) {
	svc, _ := newTestService(t)
	var got payload
	found, err := svc.Get(context.Background(), "nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetExpires(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", payload{Name: "x"}, time.Second))
	mr.FastForward(2 * time.Second)

	found, err := svc.Get(ctx, "k", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetMembersAndDelMany(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "a", 1, 0))
	require.NoError(t, svc.Set(ctx, "b", 2, 0))
	added, err := svc.SAdd(ctx, "index", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	members, err := svc.SMembers(ctx, "index")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	deleted, err := svc.DelMany(ctx, append(members, "index"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.False(t, mr.Exists("test:a"))
}

func TestGetCorruptValue(t *testing.T) {
	svc, mr := newTestService(t)
	require.NoError(t, mr.Set("test:bad", "{not json"))

	var got payload
	_, err := svc.Get(context.Background(), "bad", &got)
	assert.Error(t, err)
}
