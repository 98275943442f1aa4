package store_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/internal/store/storetest"
)

func TestKeys(t *testing.T) {
	k := store.NewKeys("se")
	board := models.BoardID{Window: models.WindowDaily, Purity: models.PurityPure}

	assert.Equal(t, "se:item:abc", k.Item("abc"))
	assert.Equal(t, "se:item:abc:votes", k.ItemVotes("abc"))
	assert.Equal(t, "se:index:drink:featured", k.StateIndex(models.KindDrink, models.StateFeatured))
	assert.Equal(t, "se:leaderboard:daily:pure", k.Leaderboard(board))
	assert.Equal(t, "se:leaderboard:archive:daily:pure:2026-10-18", k.Archive(board, "2026-10-18"))
	assert.Equal(t, "se:ratelimit:vote:u1", k.RateLimit("vote", "u1"))

	assert.Equal(t, "item:abc", store.NewKeys("").Item("abc"))
}

func TestRedisStore_StringsAndHashes(t *testing.T) {
	s, mr := storetest.New(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrMissing)

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	ok, err := s.SetNX(ctx, "k", "other", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.HSet(ctx, "h", map[string]interface{}{"score": 3, "state": "pending"}))
	n, err := s.HIncrBy(ctx, "h", "score", -5)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), n)

	fields, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "-2", fields["score"])

	_, err = s.HGet(ctx, "h", "nope")
	assert.ErrorIs(t, err, store.ErrMissing)

	require.NoError(t, s.Del(ctx, "k", "h"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_SortedSets(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "z",
		store.ScoredMember{Member: "a", Score: 1},
		store.ScoredMember{Member: "b", Score: 5},
		store.ScoredMember{Member: "c", Score: 3},
	))

	require.NoError(t, s.ZAdd(ctx, "z", store.ScoredMember{Member: "a", Score: 10}))

	members, err := s.ZRevRangeWithScores(ctx, "z", 0, -1)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "a", members[0].Member)
	assert.Equal(t, float64(10), members[0].Score)

	require.NoError(t, s.ZRem(ctx, "z", "a"))
	card, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)
}

func TestRedisStore_Run(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	script := store.NewScript(`return redis.call('INCRBY', KEYS[1], ARGV[1])`)
	res, err := s.Run(ctx, script, []string{"counter"}, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res)

	res, err = s.Run(ctx, script, []string{"counter"}, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res)
}

func TestRedisStore_Update(t *testing.T) {
	s, mr := storetest.New(t)
	ctx := context.Background()

	err := s.Update(ctx, "blob", time.Hour, func(current string, exists bool) (string, error) {
		assert.False(t, exists)
		return "1", nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, "blob", time.Hour, func(current string, exists bool) (string, error) {
		return "", store.ErrNoChange
	})
	require.NoError(t, err)
	got, _ := mr.Get("blob")
	assert.Equal(t, "1", got)

	boom := errors.New("boom")
	err = s.Update(ctx, "blob", 0, func(string, bool) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	// empty result deletes the key
	require.NoError(t, s.Update(ctx, "blob", 0, func(string, bool) (string, error) { return "", nil }))
	assert.False(t, mr.Exists("blob"))
}

func TestRedisStore_UpdateConcurrentIncrements(t *testing.T) {
	s, mr := storetest.New(t, store.WithUpdateRetries(1000))
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "n", 0, func(current string, exists bool) (string, error) {
				n := 0
				if exists {
					n, _ = strconv.Atoi(current)
				}
				return strconv.Itoa(n + 1), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := mr.Get("n")
	assert.Equal(t, strconv.Itoa(workers), got)
}

func TestRedisStore_ClosedServer(t *testing.T) {
	s, mr := storetest.New(t, store.WithTimeout(200*time.Millisecond))
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrMissing)
	assert.Error(t, s.Health(context.Background()))
}
