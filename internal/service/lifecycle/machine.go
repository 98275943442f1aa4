// Package lifecycle implements the per-item state machine driven by score thresholds.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// maxSettleSteps bounds how many chained transitions one Apply may apply
// (e.g. featured -> pending -> retired after a concurrent burst of downvotes).
const maxSettleSteps = 4

// Thresholds are the inclusive transition bounds for one item kind.
type Thresholds struct {
	Upper int64
	Lower int64
}

// Notifier is told about every applied transition. Failures are logged, never returned.
type Notifier interface {
	NotifyTransition(ctx context.Context, t models.Transition) error
}

// KindThresholds maps each kind to its bounds.
type KindThresholds map[models.Kind]Thresholds

// ThresholdsFromConfig converts scoring configuration.
func ThresholdsFromConfig(cfg *config.ScoringConfig) KindThresholds {
	return KindThresholds{
		models.KindDrink:     {Upper: cfg.Drink.Upper, Lower: cfg.Drink.Lower},
		models.KindComponent: {Upper: cfg.Component.Upper, Lower: cfg.Component.Lower},
	}
}

// PromotedState is the upper-threshold target for kind.
func PromotedState(kind models.Kind) (models.State, bool) {
	switch kind {
	case models.KindDrink:
		return models.StateFeatured, true
	case models.KindComponent:
		return models.StateApproved, true
	default:
		return "", false
	}
}

// DemotedState is the lower-threshold target for kind.
func DemotedState(kind models.Kind) (models.State, bool) {
	switch kind {
	case models.KindDrink:
		return models.StateRetired, true
	case models.KindComponent:
		return models.StateRejected, true
	default:
		return "", false
	}
}

// Indexed reports whether items in state are kept in a sorted index.
func Indexed(state models.State) bool {
	return state == models.StatePending || state.Promoted()
}

// Decide returns the state an item should move to given its literal current score.
// Only pending items cross thresholds; a featured drink falls back to pending once it
// drops below the upper bound. Retired and rejected are terminal.
//
// Approved components currently stay approved whatever their score. Whether they should
// fall back to pending like featured drinks is awaiting product sign-off.
func Decide(kind models.Kind, state models.State, score int64, t Thresholds) (models.State, bool) {
	switch state {
	case models.StatePending:
		if score >= t.Upper {
			return PromotedState(kind)
		}
		if score <= t.Lower {
			return DemotedState(kind)
		}
	case models.StateFeatured:
		if kind == models.KindDrink && score < t.Upper {
			return models.StatePending, true
		}
	}
	return state, false
}

// Machine applies lifecycle transitions to stored items.
type Machine struct {
	store       store.Store
	keys        store.Keys
	thresholds  KindThresholds
	promotedMax int
	notifier    Notifier
	clock       clockwork.Clock
	log         *logger.Logger
}

// NewMachine creates a state machine. notifier may be nil.
func NewMachine(
	st store.Store,
	keys store.Keys,
	cfg *config.ScoringConfig,
	notifier Notifier,
	clock clockwork.Clock,
	log *logger.Logger,
) *Machine {
	return &Machine{
		store:       st,
		keys:        keys,
		thresholds:  ThresholdsFromConfig(cfg),
		promotedMax: cfg.PromotedIndexMax,
		notifier:    notifier,
		clock:       clock,
		log:         log,
	}
}

// Thresholds returns the bounds configured for kind.
func (m *Machine) Thresholds(kind models.Kind) (Thresholds, bool) {
	t, ok := m.thresholds[kind]
	return t, ok
}

// transitionScript moves an item from ARGV[2] to ARGV[3] only if it is still in ARGV[2],
// updating index membership in the same step.
//
// KEYS[1] item hash, KEYS[2] source index, KEYS[3] target index
// ARGV[1] item id, ARGV[4] "1" to index the target, ARGV[5] target index bound, ARGV[6] now ms
var transitionScript = store.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'updatedAt', ARGV[6])
redis.call('ZREM', KEYS[2], ARGV[1])
if ARGV[4] == '1' then
  local score = tonumber(redis.call('HGET', KEYS[1], 'score') or '0')
  redis.call('ZADD', KEYS[3], score, ARGV[1])
  local max = tonumber(ARGV[5])
  if max > 0 then
    redis.call('ZREMRANGEBYRANK', KEYS[3], 0, -(max + 1))
  end
end
return 1
`)

// refreshScript sets the item's index score from its hash while it is still in ARGV[2].
// Promoted indexes are re-trimmed to ARGV[3] so membership follows the current ranking.
//
// KEYS[1] item hash, KEYS[2] state index
// ARGV[1] item id, ARGV[2] expected state, ARGV[3] index bound
var refreshScript = store.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state ~= ARGV[2] then
  return 0
end
local score = tonumber(redis.call('HGET', KEYS[1], 'score') or '0')
redis.call('ZADD', KEYS[2], score, ARGV[1])
local max = tonumber(ARGV[3])
if max > 0 then
  redis.call('ZREMRANGEBYRANK', KEYS[2], 0, -(max + 1))
end
return 1
`)

// Apply re-reads the item, refreshes its index entry and applies every transition its
// current score calls for. It returns the transitions applied, in order.
func (m *Machine) Apply(ctx context.Context, itemID string) ([]models.Transition, error) {
	var applied []models.Transition

	for step := 0; step < maxSettleSteps; step++ {
		fields, err := m.store.HGetAll(ctx, m.keys.Item(itemID))
		if err != nil {
			return applied, models.StorageError("read item state", err)
		}
		item, err := models.ItemFromHash(itemID, fields)
		if err != nil {
			return applied, err
		}

		t, ok := m.thresholds[item.Kind]
		if !ok {
			return applied, fmt.Errorf("item %s has unknown kind %q: %w", itemID, item.Kind, models.ErrIntegrity)
		}

		next, changed := Decide(item.Kind, item.State, item.Score, t)
		if !changed {
			ok, err = m.refreshIndex(ctx, item)
			if err != nil || ok {
				return applied, err
			}
			continue
		}

		ok, err = m.transition(ctx, item, next)
		if err != nil {
			return applied, err
		}
		if !ok {
			// Another writer moved the item first; re-read and decide again.
			continue
		}

		tr := models.Transition{ItemID: itemID, Kind: item.Kind, From: item.State, To: next, Score: item.Score}
		applied = append(applied, tr)
		m.announce(ctx, tr)
	}

	return applied, nil
}

func (m *Machine) transition(ctx context.Context, item *models.Item, next models.State) (bool, error) {
	indexTarget := "0"
	bound := 0
	if Indexed(next) {
		indexTarget = "1"
		if next.Promoted() {
			bound = m.promotedMax
		}
	}

	keys := []string{
		m.keys.Item(item.ID),
		m.keys.StateIndex(item.Kind, item.State),
		m.keys.StateIndex(item.Kind, next),
	}
	res, err := m.store.Run(ctx, transitionScript, keys,
		item.ID, string(item.State), string(next), indexTarget, bound, m.clock.Now().UnixMilli())
	if err != nil {
		return false, models.StorageError("apply transition", err)
	}

	n, _ := res.(int64)
	return n == 1, nil
}

// refreshIndex rewrites the item's index entry from the score stored in its hash.
// It reports false when the item has left state in the meantime.
func (m *Machine) refreshIndex(ctx context.Context, item *models.Item) (bool, error) {
	if !Indexed(item.State) {
		return true, nil
	}
	bound := 0
	if item.State.Promoted() {
		bound = m.promotedMax
	}

	keys := []string{m.keys.Item(item.ID), m.keys.StateIndex(item.Kind, item.State)}
	res, err := m.store.Run(ctx, refreshScript, keys, item.ID, string(item.State), bound)
	if err != nil {
		return false, models.StorageError("refresh index", err)
	}

	n, _ := res.(int64)
	return n == 1, nil
}

func (m *Machine) announce(ctx context.Context, tr models.Transition) {
	prommetrics.RecordStateTransition(string(tr.Kind), string(tr.From), string(tr.To))

	m.log.Info().
		Str("item_id", tr.ItemID).
		Str("kind", string(tr.Kind)).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Int64("score", tr.Score).
		Msg("Item state changed")

	if m.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.notifier.NotifyTransition(notifyCtx, tr); err != nil {
		m.log.Warn().Err(err).Str("item_id", tr.ItemID).Msg("Failed to send transition notification")
	}
}
