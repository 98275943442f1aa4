package items

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/service/ratelimit"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/internal/store/storetest"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

var testNow = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Espresso Martini", "espresso-martini"},
		{"  Rum & Coke!! ", "rum-coke"},
		{"ÉCLAIR tonic", "clair-tonic"},
		{"---", ""},
		{"a very long cocktail name that keeps going on", "a-very-long-cocktail-name-that-k"},
		{"thirty-one characters exactly x-y", "thirty-one-characters-exactly-x"},
	}

	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewID(t *testing.T) {
	id := NewID("Old Fashioned", testNow, "")
	assert.Equal(t, "old-fashioned-"+strconv.FormatInt(testNow.UnixMilli(), 36), id)

	seeded := NewID("Old Fashioned", testNow, "Fixture 1")
	assert.Equal(t, id+"-fixture-1", seeded)

	assert.Equal(t, "item-", NewID("", testNow, "")[:5])
}

func newTestService(t *testing.T, limited bool) (*Service, *store.RedisStore, store.Keys) {
	t.Helper()

	st, _ := storetest.New(t)
	keys := store.NewKeys("test")
	clock := clockwork.NewFakeClockAt(testNow)

	var limiter RateLimiter
	if limited {
		limiter = ratelimit.NewLimiter(st, keys, config.Default().RateLimits, clock, logger.Nop())
	}
	return NewService(st, keys, limiter, clock, logger.Nop()), st, keys
}

func TestCreateItem(t *testing.T) {
	s, _, _ := newTestService(t, false)
	ctx := context.Background()

	item, err := s.CreateItem(ctx, models.KindDrink, models.NewItem{
		Name:         "Espresso Martini",
		AuthorID:     "u1",
		Payload:      `{"ingredients":["vodka","coffee"]}`,
		ThumbnailURL: "https://cdn.example/em.png",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, item.State)
	assert.Equal(t, int64(0), item.Score)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, models.KindDrink, got.Kind)
	assert.Equal(t, models.StatePending, got.State)
	assert.Equal(t, "u1", got.AuthorID)
	assert.Equal(t, `{"ingredients":["vodka","coffee"]}`, got.Payload)
	assert.Equal(t, testNow, got.CreatedAt)

	pending, err := s.ListPending(ctx, models.KindDrink, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.RankedItem{ItemID: item.ID, Score: 0, Rank: 1}, pending[0])
}

func TestCreateItem_SameNameSameMillisecond(t *testing.T) {
	s, _, _ := newTestService(t, false)
	ctx := context.Background()

	first, err := s.CreateItem(ctx, models.KindComponent, models.NewItem{Category: "Citrus", AuthorID: "u1"})
	require.NoError(t, err)
	second, err := s.CreateItem(ctx, models.KindComponent, models.NewItem{Category: "Citrus", AuthorID: "u2"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	pending, err := s.ListPending(ctx, models.KindComponent, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCreateItem_InvalidInput(t *testing.T) {
	s, _, _ := newTestService(t, false)
	ctx := context.Background()

	_, err := s.CreateItem(ctx, "cocktail", models.NewItem{Name: "x", AuthorID: "u1"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.CreateItem(ctx, models.KindDrink, models.NewItem{Name: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.CreateItem(ctx, models.KindDrink, models.NewItem{Name: "!!!", AuthorID: "u1"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateItem_RateLimited(t *testing.T) {
	s, _, _ := newTestService(t, true)
	ctx := context.Background()

	_, err := s.CreateItem(ctx, models.KindComponent, models.NewItem{Name: "Lime", AuthorID: "u1"})
	require.NoError(t, err)

	_, err = s.CreateItem(ctx, models.KindComponent, models.NewItem{Name: "Mint", AuthorID: "u1"})
	assert.ErrorIs(t, err, models.ErrRateLimited)

	// Drink submissions use their own window.
	_, err = s.CreateItem(ctx, models.KindDrink, models.NewItem{Name: "Mojito", AuthorID: "u1"})
	assert.NoError(t, err)
}

func TestGetItem_NotFound(t *testing.T) {
	s, _, _ := newTestService(t, false)

	_, err := s.GetItem(context.Background(), "ghost-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetFeatured(t *testing.T) {
	s, st, keys := newTestService(t, false)
	ctx := context.Background()

	require.NoError(t, st.ZAdd(ctx, keys.StateIndex(models.KindDrink, models.StateFeatured),
		store.ScoredMember{Member: "a", Score: 26},
		store.ScoredMember{Member: "b", Score: 40},
		store.ScoredMember{Member: "c", Score: 30},
	))

	top, err := s.GetFeatured(ctx, models.KindDrink, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.RankedItem{
		{ItemID: "b", Score: 40, Rank: 1},
		{ItemID: "c", Score: 30, Rank: 2},
	}, top)

	approved, err := s.GetFeatured(ctx, models.KindComponent, 10)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = s.GetFeatured(ctx, "cocktail", 10)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
