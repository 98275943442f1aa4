// Package storetest provides a miniredis-backed store for package tests.
package storetest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aimd54/community-scoring-engine/internal/store"
)

// New starts an in-process Redis and returns a store bound to it.
// The server is shut down when the test finishes.
func New(t *testing.T, opts ...store.Option) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return store.NewRedisStore(client, opts...), mr
}
