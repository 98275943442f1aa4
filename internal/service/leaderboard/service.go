// Package leaderboard provides bounded daily and weekly leaderboards with pure variants.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// DefaultMaxEntries bounds every live board unless configured otherwise.
const DefaultMaxEntries = 50

// Service handles leaderboard submissions and queries.
type Service struct {
	store      store.Store
	keys       store.Keys
	maxEntries int
	clock      clockwork.Clock
	log        *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new leaderboard service.
func NewService(
	st store.Store,
	keys store.Keys,
	cfg *config.LeaderboardConfig,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Service{
		store:      st,
		keys:       keys,
		maxEntries: maxEntries,
		clock:      clock,
		log:        log,
		locks:      make(map[string]*sync.Mutex),
	}
}

// MaxEntries returns the board length bound.
func (s *Service) MaxEntries() int {
	return s.maxEntries
}

// lock serializes writers of one board inside this process. Writers in other processes
// are handled by the store's optimistic retry.
func (s *Service) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// AddScore records a completed run on the window's all board and, when no power-up was
// used, on its pure board. A run that does not beat the user's existing score is a
// successful no-op.
//
// The boards are written one after the other, not atomically. When the pure write fails
// the all board already holds the run; retrying the same run is safe since an equal score
// never replaces an entry.
func (s *Service) AddScore(
	ctx context.Context,
	window models.Window,
	userID, displayName string,
	score int64,
	powerupUsed bool,
) (bool, error) {
	if !window.Valid() {
		return false, models.InvalidInput("unknown leaderboard window %q", window)
	}
	if userID == "" {
		return false, models.InvalidInput("user id is required")
	}

	run := models.Entry{
		UserID:      userID,
		DisplayName: displayName,
		Score:       score,
		PowerupUsed: powerupUsed,
		Timestamp:   s.clock.Now().UTC(),
	}

	purities := []models.Purity{models.PurityAll}
	if !powerupUsed {
		purities = append(purities, models.PurityPure)
	}

	for _, purity := range purities {
		board := models.BoardID{Window: window, Purity: purity}
		if _, err := s.submit(ctx, board, run); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (s *Service) submit(ctx context.Context, board models.BoardID, run models.Entry) (Outcome, error) {
	var outcome Outcome
	err := s.Rewrite(ctx, board, func(entries []models.Entry) ([]models.Entry, bool) {
		var next []models.Entry
		next, outcome = Submit(entries, run, s.maxEntries)
		return next, outcome != OutcomeIgnored && outcome != OutcomeDropped
	})
	if err != nil {
		return "", err
	}

	prommetrics.RecordLeaderboardSubmission(string(board.Window), string(board.Purity), string(outcome))
	s.log.Debug().
		Str("board", board.String()).
		Str("user_id", run.UserID).
		Int64("score", run.Score).
		Str("outcome", string(outcome)).
		Msg("Leaderboard submission")

	return outcome, nil
}

// Rewrite applies fn to a board under the board's write lock and an optimistic store
// transaction. fn returns the new entries and whether they should be written.
// fn may run more than once when another writer races it.
func (s *Service) Rewrite(ctx context.Context, board models.BoardID, fn func([]models.Entry) ([]models.Entry, bool)) error {
	key := s.keys.Leaderboard(board)
	unlock := s.lock(key)
	defer unlock()

	var written int
	err := s.store.Update(ctx, key, 0, func(current string, exists bool) (string, error) {
		entries, err := decode(current, exists)
		if err != nil {
			return "", err
		}

		next, changed := fn(entries)
		if !changed {
			return "", store.ErrNoChange
		}
		written = len(next)
		if len(next) == 0 {
			return "", nil
		}
		return encode(next)
	})
	if err != nil {
		if errors.Is(err, models.ErrIntegrity) {
			return fmt.Errorf("board %s: %w", board, err)
		}
		return models.StorageError("write leaderboard "+board.String(), err)
	}

	prommetrics.SetLeaderboardEntries(string(board.Window), string(board.Purity), written)
	return nil
}

// Board returns a board's stored entries as-is.
func (s *Service) Board(ctx context.Context, board models.BoardID) ([]models.Entry, error) {
	raw, err := s.store.Get(ctx, s.keys.Leaderboard(board))
	if errors.Is(err, store.ErrMissing) {
		return []models.Entry{}, nil
	}
	if err != nil {
		return nil, models.StorageError("read leaderboard "+board.String(), err)
	}
	return decode(raw, true)
}

// GetTopEntries returns up to limit ranked entries. A non-positive limit returns the whole board.
func (s *Service) GetTopEntries(ctx context.Context, window models.Window, limit int, purity models.Purity) ([]models.Entry, error) {
	board, err := boardID(window, purity)
	if err != nil {
		return nil, err
	}

	entries, err := s.Board(ctx, board)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetUserRank returns the user's 1-based rank on a board.
func (s *Service) GetUserRank(ctx context.Context, window models.Window, purity models.Purity, userID string) (int, error) {
	entry, err := s.findEntry(ctx, window, purity, userID)
	if err != nil {
		return 0, err
	}
	return entry.Rank, nil
}

// GetUserScore returns the user's best score on a board.
func (s *Service) GetUserScore(ctx context.Context, window models.Window, purity models.Purity, userID string) (int64, error) {
	entry, err := s.findEntry(ctx, window, purity, userID)
	if err != nil {
		return 0, err
	}
	return entry.Score, nil
}

func (s *Service) findEntry(ctx context.Context, window models.Window, purity models.Purity, userID string) (*models.Entry, error) {
	entries, err := s.GetTopEntries(ctx, window, 0, purity)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].UserID == userID {
			return &entries[i], nil
		}
	}

	return nil, fmt.Errorf("user %s on %s:%s leaderboard: %w", userID, window, purity, models.ErrNotFound)
}

// Reset clears both live boards of a window.
func (s *Service) Reset(ctx context.Context, window models.Window) error {
	if !window.Valid() {
		return models.InvalidInput("unknown leaderboard window %q", window)
	}

	for _, purity := range models.Purities() {
		board := models.BoardID{Window: window, Purity: purity}
		key := s.keys.Leaderboard(board)

		unlock := s.lock(key)
		err := s.store.Del(ctx, key)
		unlock()
		if err != nil {
			return models.StorageError("reset leaderboard "+board.String(), err)
		}
		prommetrics.SetLeaderboardEntries(string(window), string(purity), 0)
	}

	s.log.Info().Str("window", string(window)).Msg("Leaderboards reset")
	return nil
}

func boardID(window models.Window, purity models.Purity) (models.BoardID, error) {
	if !window.Valid() {
		return models.BoardID{}, models.InvalidInput("unknown leaderboard window %q", window)
	}
	if purity == "" {
		purity = models.PurityAll
	}
	if !purity.Valid() {
		return models.BoardID{}, models.InvalidInput("unknown leaderboard purity %q", purity)
	}
	return models.BoardID{Window: window, Purity: purity}, nil
}

// Decode parses a stored board blob.
func Decode(raw string) ([]models.Entry, error) {
	return decode(raw, true)
}

func decode(raw string, exists bool) ([]models.Entry, error) {
	if !exists || raw == "" {
		return []models.Entry{}, nil
	}
	var entries []models.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w: %w", models.ErrIntegrity, err)
	}
	return entries, nil
}

// Encode serializes board entries for storage.
func Encode(entries []models.Entry) (string, error) {
	return encode(entries)
}

func encode(entries []models.Entry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode leaderboard: %w", err)
	}
	return string(data), nil
}
