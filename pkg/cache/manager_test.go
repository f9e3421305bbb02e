package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running. The integration suite uses testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestNewManager_NilClient(t *testing.T) {
	assert.Panics(t, func() { NewManager(nil) })
}

func TestManager_SetNil(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	assert.Error(t, NewManager(client).Set(context.Background(), Key{}, nil))
}

func TestManager_RoundTrip(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := Key{Scope: "columns", TenantName: "Acme"}

	data := []byte(`[{"value":"_id","title":"ID","active":true}]`)
	require.NoError(t, manager.Set(ctx, key, NewEntry(data).WithTTL(5*time.Minute)))

	got, err := manager.Get(ctx, Key{Scope: "columns", TenantName: "acme"})
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.False(t, got.IsExpired())
	assert.InDelta(t, (5 * time.Minute).Seconds(), got.TTL().Seconds(), 5)
}

func TestManager_Misses(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		entry *Entry
	}{
		{"absent", nil},
		{"no expiry", NewEntry([]byte("x"))},
		{"already expired", &Entry{Data: []byte("x"), Expires: time.Now().Add(-time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Key{Scope: "columns", TenantID: tt.name}
			if tt.entry != nil {
				require.NoError(t, manager.Set(ctx, key, tt.entry))
			}
			_, err := manager.Get(ctx, key)
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestManager_CorruptEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Scope: "columns", TenantID: "7"}

	require.NoError(t, client.Set(ctx, key.String(), "not json", time.Minute).Err())

	_, err := manager.Get(ctx, key)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := Key{Scope: "columns", TenantID: "1"}

	require.NoError(t, manager.Set(ctx, key, NewEntry([]byte("x")).WithTTL(time.Minute)))
	_, err := manager.Get(ctx, key)
	require.NoError(t, err)

	require.NoError(t, manager.Delete(ctx, key))
	_, err = manager.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Ping(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	assert.NoError(t, manager.Ping(context.Background()))
}

func TestManager_DeleteTenant(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	keys := []Key{
		{Scope: "columns", TenantName: "Acme"},
		{Scope: "columns", TenantID: "42", TenantName: "acme"},
		{Scope: "columns", TenantID: "43", TenantName: "ACME"},
		{Scope: "columns", TenantName: "Acme Store"},
		{Scope: "columns", TenantID: "42"},
	}
	for _, k := range keys {
		require.NoError(t, manager.Set(ctx, k, NewEntry([]byte("x")).WithTTL(time.Minute)))
	}

	require.NoError(t, manager.DeleteTenant(ctx, "columns", "acme"))

	for _, k := range keys[:3] {
		_, err := manager.Get(ctx, k)
		assert.ErrorIs(t, err, ErrCacheMiss, k.String())
	}
	for _, k := range keys[3:] {
		_, err := manager.Get(ctx, k)
		assert.NoError(t, err, k.String())
	}
}
