// Package voting records one vote per user per item and keeps item scores equal to the
// sum of current vote directions.
package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// RateLimiter admits a user action or returns *models.RateLimitError.
type RateLimiter interface {
	Admit(ctx context.Context, action, userID string) error
}

// StateMachine settles an item's lifecycle state after its score changed.
type StateMachine interface {
	Apply(ctx context.Context, itemID string) ([]models.Transition, error)
}

// VoteResult describes the effect of one vote.
type VoteResult struct {
	ItemID            string              `json:"item_id"`
	NewScore          int64               `json:"new_score"`
	PreviousDirection models.Direction    `json:"previous_direction"`
	Delta             int64               `json:"delta"`
	State             models.State        `json:"state"`
	Transitions       []models.Transition `json:"transitions,omitempty"`
}

// Changed reports whether the vote mutated the score.
func (r *VoteResult) Changed() bool {
	return r.Delta != 0
}

// voteScript swaps the user's recorded direction and applies the difference to the score
// in one step, so concurrent re-votes by the same user apply each delta exactly once.
//
// KEYS[1] item hash, KEYS[2] vote ledger
// ARGV[1] user id, ARGV[2] direction, ARGV[3] now ms
// Returns {-1} for a missing item, else {applied, previous, score, state, kind}.
var voteScript = store.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1}
end
local prev = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
local dir = tonumber(ARGV[2])
local state = redis.call('HGET', KEYS[1], 'state')
local kind = redis.call('HGET', KEYS[1], 'kind')
if dir == prev then
  local score = tonumber(redis.call('HGET', KEYS[1], 'score') or '0')
  return {0, prev, score, state, kind}
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
local score = redis.call('HINCRBY', KEYS[1], 'score', dir - prev)
redis.call('HSET', KEYS[1], 'updatedAt', ARGV[3])
return {1, prev, score, state, kind}
`)

// Service applies votes.
type Service struct {
	store   store.Store
	keys    store.Keys
	limiter RateLimiter
	machine StateMachine
	clock   clockwork.Clock
	log     *logger.Logger
}

// NewService creates a voting service. limiter may be nil to skip rate limiting.
func NewService(
	st store.Store,
	keys store.Keys,
	limiter RateLimiter,
	machine StateMachine,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		store:   st,
		keys:    keys,
		limiter: limiter,
		machine: machine,
		clock:   clock,
		log:     log,
	}
}

// ApplyVote records userID's vote on itemID. Repeating the current vote is a no-op;
// flipping it moves the score by two.
//
// A storage error means the outcome is unknown; the caller may retry since a repeated
// vote never double counts.
func (s *Service) ApplyVote(ctx context.Context, itemID, userID string, direction models.Direction) (*VoteResult, error) {
	if !direction.Valid() {
		return nil, models.InvalidInput("vote direction must be +1 or -1, got %d", direction)
	}
	if itemID == "" || userID == "" {
		return nil, models.InvalidInput("item id and user id are required")
	}

	if s.limiter != nil {
		if err := s.limiter.Admit(ctx, config.ActionVote, userID); err != nil {
			return nil, err
		}
	}

	res, err := s.store.Run(ctx, voteScript,
		[]string{s.keys.Item(itemID), s.keys.ItemVotes(itemID)},
		userID, int(direction), s.clock.Now().UnixMilli())
	if err != nil {
		return nil, models.StorageError("apply vote", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return nil, fmt.Errorf("apply vote: unexpected reply %v: %w", res, models.ErrStorage)
	}
	if flag, _ := vals[0].(int64); flag == -1 {
		return nil, fmt.Errorf("item %s: %w", itemID, models.ErrNotFound)
	}
	if len(vals) != 5 {
		return nil, fmt.Errorf("apply vote: unexpected reply %v: %w", res, models.ErrStorage)
	}

	applied, _ := vals[0].(int64)
	prev, _ := vals[1].(int64)
	score, _ := vals[2].(int64)
	state, _ := vals[3].(string)
	kind, _ := vals[4].(string)

	result := &VoteResult{
		ItemID:            itemID,
		NewScore:          score,
		PreviousDirection: models.Direction(prev),
		State:             models.State(state),
	}

	if applied == 0 {
		prommetrics.RecordVote(kind, "unchanged")
		return result, nil
	}

	result.Delta = int64(direction) - prev
	prommetrics.RecordVote(kind, "applied")

	s.log.Debug().
		Str("item_id", itemID).
		Str("user_id", userID).
		Int64("delta", result.Delta).
		Int64("score", score).
		Msg("Vote applied")

	transitions, err := s.machine.Apply(ctx, itemID)
	result.Transitions = transitions
	if n := len(transitions); n > 0 {
		result.State = transitions[n-1].To
	}
	if err != nil {
		// The vote itself is committed; the next vote or maintenance pass settles the state.
		s.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to settle item state after vote")
		return result, err
	}

	return result, nil
}

// PreviousVote returns userID's current vote on itemID, or NoVote.
func (s *Service) PreviousVote(ctx context.Context, itemID, userID string) (models.Direction, error) {
	if itemID == "" || userID == "" {
		return models.NoVote, models.InvalidInput("item id and user id are required")
	}

	v, err := s.store.HGet(ctx, s.keys.ItemVotes(itemID), userID)
	if errors.Is(err, store.ErrMissing) {
		return models.NoVote, nil
	}
	if err != nil {
		return models.NoVote, models.StorageError("read vote", err)
	}

	switch v {
	case "1":
		return models.Upvote, nil
	case "-1":
		return models.Downvote, nil
	default:
		return models.NoVote, fmt.Errorf("item %s: vote %q for %s: %w", itemID, v, userID, models.ErrIntegrity)
	}
}
