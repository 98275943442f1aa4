// Package store is the key-value adapter every scoring component talks to.
// The production implementation is backed by Redis.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissing is returned by reads of keys or fields that do not exist.
	ErrMissing = errors.New("store: key not found")
	// ErrConflict is returned by Update when the optimistic write kept losing races.
	ErrConflict = errors.New("store: concurrent update conflict")
	// ErrNoChange may be returned by an UpdateFunc to skip the write.
	ErrNoChange = errors.New("store: no change")
)

// UpdateFunc receives the current value of a key and returns the value to store.
// Returning an empty string deletes the key.
type UpdateFunc func(current string, exists bool) (string, error)

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the set of operations the scoring engine needs from its key-value store.
// All operations may block on I/O and honour ctx cancellation.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	ZAdd(ctx context.Context, key string, members ...ScoredMember) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Run executes a server-side script atomically.
	Run(ctx context.Context, script *Script, keys []string, args ...interface{}) (interface{}, error)
	// Update performs an optimistic read-modify-write of a string key.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	Health(ctx context.Context) error
	Close() error
}
