package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	store, err := NewRedisStorage(context.Background(), RedisOptions{
		Addr:      addr,
		Namespace: fmt.Sprintf("test-%d", time.Now().UnixNano()),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStorage_Contract(t *testing.T) {
	runStoreContract(t, newTestRedisStorage(t))
}

func TestRedisStorage_KeyLayout(t *testing.T) {
	store := NewRedisStorageFromClient(nil, "", 0)
	require.Equal(t, "claimflow:default:claim_record", store.key("claim_record"))
}
