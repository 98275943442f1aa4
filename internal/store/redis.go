package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

const defaultUpdateRetries = 10

// Script is a Lua script executed atomically by Redis.
type Script struct {
	script *redis.Script
}

// NewScript wraps Lua source. Scripts are cached server-side by SHA on first use.
func NewScript(src string) *Script {
	return &Script{script: redis.NewScript(src)}
}

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client        redis.UniversalClient
	timeout       time.Duration
	updateRetries int
}

// Option customises a RedisStore.
type Option func(*RedisStore)

// WithTimeout bounds every store call that has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *RedisStore) { s.timeout = d }
}

// WithUpdateRetries sets how many optimistic attempts Update makes before ErrConflict.
func WithUpdateRetries(n int) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.updateRetries = n
		}
	}
}

// NewRedisStore wraps an existing client. Used by tests with miniredis.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{client: client, updateRetries: defaultUpdateRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials Redis from configuration and verifies the connection.
func Connect(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr(), err)
	}

	log.Info().
		Str("addr", cfg.RedisAddr()).
		Int("db", cfg.DB).
		Msg("Connected to Redis")

	opts = append([]Option{WithTimeout(cfg.Timeout())}, opts...)
	return NewRedisStore(client, opts...), nil
}

// bound applies the default operation timeout when ctx has no deadline.
func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func translate(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrMissing
	}
	return err
}

// Get returns the string value of key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	return val, translate(err)
}

// Set stores value at key. A zero ttl means no expiration.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetNX stores value only if key does not exist yet.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// Del deletes keys.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.Del(ctx, keys...).Err()
}

// Expire sets a TTL on key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.Expire(ctx, key, ttl).Err()
}

// HGet returns a single hash field.
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	val, err := s.client.HGet(ctx, key, field).Result()
	return val, translate(err)
}

// HGetAll returns every field of a hash. A missing key yields an empty map.
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.HGetAll(ctx, key).Result()
}

// HSet writes hash fields.
func (s *RedisStore) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.HSet(ctx, key, values).Err()
}

// HIncrBy atomically adds incr to a hash field.
func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.HIncrBy(ctx, key, field, incr).Result()
}

func toZ(members []ScoredMember) []redis.Z {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	return zs
}

// ZAdd adds or updates sorted-set members.
func (s *RedisStore) ZAdd(ctx context.Context, key string, members ...ScoredMember) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.ZAdd(ctx, key, toZ(members)...).Err()
}

// ZRem removes sorted-set members.
func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

// ZRevRangeWithScores returns members ordered by score, highest first.
func (s *RedisStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}

	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

// ZCard returns the cardinality of a sorted set.
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.ZCard(ctx, key).Result()
}

// Run executes script via EVALSHA, loading it on first use.
func (s *RedisStore) Run(ctx context.Context, script *Script, keys []string, args ...interface{}) (interface{}, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := script.script.Run(ctx, s.client, keys, args...).Result()
	return res, translate(err)
}

// Update runs fn under WATCH and commits the result in MULTI/EXEC, retrying when another
// writer modified key in between.
func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == "" {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, next, ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.updateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil, errors.Is(err, ErrNoChange):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return err
		}
	}

	return ErrConflict
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
