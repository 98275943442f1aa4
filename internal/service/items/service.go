// Package items creates votable items and serves their pending and promoted rankings.
package items

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/service/lifecycle"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

const (
	// DefaultListLimit is used when a caller asks for a non-positive number of items.
	DefaultListLimit  = 50
	maxCreateAttempts = 3
)

// RateLimiter admits a user action or returns *models.RateLimitError.
type RateLimiter interface {
	Admit(ctx context.Context, action, userID string) error
}

// createScript writes the item hash and adds it to the pending index unless the ID is taken.
//
// KEYS[1] item hash, KEYS[2] pending index
// ARGV[1] item id, ARGV[2..] field/value pairs
var createScript = store.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('ZADD', KEYS[2], 0, ARGV[1])
return 1
`)

// Service manages items.
type Service struct {
	store   store.Store
	keys    store.Keys
	limiter RateLimiter
	clock   clockwork.Clock
	log     *logger.Logger
}

// NewService creates an item service. limiter may be nil to skip rate limiting.
func NewService(st store.Store, keys store.Keys, limiter RateLimiter, clock clockwork.Clock, log *logger.Logger) *Service {
	return &Service{
		store:   st,
		keys:    keys,
		limiter: limiter,
		clock:   clock,
		log:     log,
	}
}

// submissionAction is the rate-limited action for submitting an item of kind.
func submissionAction(kind models.Kind) string {
	if kind == models.KindComponent {
		return config.ActionComponentSubmission
	}
	return config.ActionSubmission
}

// CreateItem stores a new pending item with score zero and indexes it.
func (s *Service) CreateItem(ctx context.Context, kind models.Kind, in models.NewItem) (*models.Item, error) {
	if !kind.Valid() {
		return nil, models.InvalidInput("unknown item kind %q", kind)
	}
	if in.AuthorID == "" {
		return nil, models.InvalidInput("author id is required")
	}
	name := in.Name
	if name == "" {
		name = in.Category
	}
	if Slug(name) == "" {
		return nil, models.InvalidInput("item needs a name or category with at least one letter or digit")
	}

	if s.limiter != nil {
		if err := s.limiter.Admit(ctx, submissionAction(kind), in.AuthorID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now().UTC()
	item := &models.Item{
		Kind:         kind,
		Score:        0,
		State:        models.StatePending,
		AuthorID:     in.AuthorID,
		Payload:      in.Payload,
		ThumbnailURL: in.ThumbnailURL,
		OriginPostID: in.OriginPostID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	seed := in.Seed
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		item.ID = NewID(name, now, seed)

		created, err := s.create(ctx, item)
		if err != nil {
			return nil, err
		}
		if created {
			prommetrics.RecordItemCreated(string(kind))
			s.log.Info().
				Str("item_id", item.ID).
				Str("kind", string(kind)).
				Str("author_id", item.AuthorID).
				Msg("Item created")
			return item, nil
		}

		// Same name in the same millisecond; disambiguate and try again.
		seed = uuid.NewString()[:8]
	}

	return nil, fmt.Errorf("create item %s: id collision: %w", item.ID, models.ErrStorage)
}

func (s *Service) create(ctx context.Context, item *models.Item) (bool, error) {
	fields := item.Hash()
	args := make([]interface{}, 0, 1+2*len(fields))
	args = append(args, item.ID)
	for k, v := range fields {
		args = append(args, k, v)
	}

	res, err := s.store.Run(ctx, createScript,
		[]string{s.keys.Item(item.ID), s.keys.StateIndex(item.Kind, models.StatePending)}, args...)
	if err != nil {
		return false, models.StorageError("create item", err)
	}

	n, _ := res.(int64)
	return n == 1, nil
}

// GetItem returns the stored item.
func (s *Service) GetItem(ctx context.Context, id string) (*models.Item, error) {
	if id == "" {
		return nil, models.InvalidInput("item id is required")
	}

	fields, err := s.store.HGetAll(ctx, s.keys.Item(id))
	if err != nil {
		return nil, models.StorageError("get item", err)
	}
	return models.ItemFromHash(id, fields)
}

// ListPending ranks kind's pending items by score, highest first.
func (s *Service) ListPending(ctx context.Context, kind models.Kind, limit int) ([]models.RankedItem, error) {
	return s.ranked(ctx, kind, models.StatePending, limit)
}

// GetFeatured ranks kind's promoted items (featured drinks, approved components).
func (s *Service) GetFeatured(ctx context.Context, kind models.Kind, limit int) ([]models.RankedItem, error) {
	state, ok := lifecycle.PromotedState(kind)
	if !ok {
		return nil, models.InvalidInput("unknown item kind %q", kind)
	}
	return s.ranked(ctx, kind, state, limit)
}

func (s *Service) ranked(ctx context.Context, kind models.Kind, state models.State, limit int) ([]models.RankedItem, error) {
	if !kind.Valid() {
		return nil, models.InvalidInput("unknown item kind %q", kind)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	members, err := s.store.ZRevRangeWithScores(ctx, s.keys.StateIndex(kind, state), 0, int64(limit-1))
	if err != nil {
		return nil, models.StorageError("list items", err)
	}

	ranked := make([]models.RankedItem, len(members))
	for i, m := range members {
		ranked[i] = models.RankedItem{ItemID: m.Member, Score: int64(m.Score), Rank: i + 1}
	}
	return ranked, nil
}
