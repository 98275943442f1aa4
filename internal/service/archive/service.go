// Package archive snapshots, prunes and verifies the live leaderboards.
//
// Every maintenance operation reports failure through its result instead of an error so a
// scheduled batch always runs to the end.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/service/leaderboard"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// Boards is the leaderboard access the archive needs.
type Boards interface {
	Board(ctx context.Context, board models.BoardID) ([]models.Entry, error)
	Rewrite(ctx context.Context, board models.BoardID, fn func([]models.Entry) ([]models.Entry, bool)) error
	MaxEntries() int
}

// SnapshotRepository keeps durable copies of archived boards.
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.LeaderboardSnapshot) (bool, error)
	Get(ctx context.Context, window, purity, dateKey string) (*models.LeaderboardSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TaskResult is the outcome of one maintenance task.
type TaskResult struct {
	Task     string        `json:"task" yaml:"task"`
	Success  bool          `json:"success" yaml:"success"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// BoardReport is the integrity result of one board.
type BoardReport struct {
	Board      models.BoardID          `json:"board" yaml:"board"`
	Entries    int                     `json:"entries" yaml:"entries"`
	Violations []leaderboard.Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
	Error      string                  `json:"error,omitempty" yaml:"error,omitempty"`
}

// IntegrityReport covers every live board.
type IntegrityReport struct {
	Valid  bool          `json:"valid" yaml:"valid"`
	Boards []BoardReport `json:"boards" yaml:"boards"`
}

// Service performs archival and integrity maintenance.
type Service struct {
	store     store.Store
	keys      store.Keys
	boards    Boards
	snapshots SnapshotRepository
	retention time.Duration
	clock     clockwork.Clock
	log       *logger.Logger
}

// NewService creates an archive service. snapshots may be nil when no SQL database is configured.
func NewService(
	st store.Store,
	keys store.Keys,
	boards Boards,
	snapshots SnapshotRepository,
	cfg *config.LeaderboardConfig,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     st,
		keys:      keys,
		boards:    boards,
		snapshots: snapshots,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		clock:     clock,
		log:       log,
	}
}

// run times fn and turns its error into a failed result.
func (s *Service) run(task string, fn func() (string, error)) TaskResult {
	start := s.clock.Now()
	detail, err := fn()
	res := TaskResult{
		Task:     task,
		Success:  err == nil,
		Detail:   detail,
		Duration: s.clock.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
		s.log.Error().Err(err).Str("task", task).Msg("Maintenance task failed")
	}
	return res
}

// Archive copies the window's live boards to snapshots dated dateKey. The all board is
// always archived and the pure board only when it has entries. An existing snapshot is
// never overwritten. The live boards are left as they are.
func (s *Service) Archive(ctx context.Context, window models.Window, dateKey string) bool {
	return s.ArchiveTask(ctx, window, dateKey).Success
}

// ArchiveTask is Archive with a detailed result.
func (s *Service) ArchiveTask(ctx context.Context, window models.Window, dateKey string) TaskResult {
	return s.run("archive_"+string(window), func() (string, error) {
		if !window.Valid() {
			return "", models.InvalidInput("unknown leaderboard window %q", window)
		}
		if dateKey == "" {
			return "", models.InvalidInput("date key is required")
		}

		var archived []string
		for _, purity := range models.Purities() {
			board := models.BoardID{Window: window, Purity: purity}
			done, err := s.archiveBoard(ctx, board, dateKey)
			if err != nil {
				return "", err
			}
			if done {
				archived = append(archived, board.String())
			}
		}
		return fmt.Sprintf("archived %v as %s", archived, dateKey), nil
	})
}

func (s *Service) archiveBoard(ctx context.Context, board models.BoardID, dateKey string) (bool, error) {
	entries, err := s.boards.Board(ctx, board)
	if err != nil {
		return false, err
	}
	if board.Purity == models.PurityPure && len(entries) == 0 {
		return false, nil
	}

	raw, err := leaderboard.Encode(entries)
	if err != nil {
		return false, err
	}

	key := s.keys.Archive(board, dateKey)
	created, err := s.store.SetNX(ctx, key, raw, s.retention)
	if err != nil {
		return false, models.StorageError("archive "+board.String(), err)
	}
	if !created {
		// Keep the first snapshot; persist that one durably in case an earlier run
		// failed after writing it.
		raw, err = s.store.Get(ctx, key)
		if err != nil {
			return false, models.StorageError("read archive "+board.String(), err)
		}
		entries, err = leaderboard.Decode(raw)
		if err != nil {
			return false, err
		}
		s.log.Info().Str("board", board.String()).Str("date_key", dateKey).Msg("Snapshot already exists")
	}

	if s.snapshots != nil {
		_, err := s.snapshots.Save(ctx, &models.LeaderboardSnapshot{
			Window:     string(board.Window),
			Purity:     string(board.Purity),
			DateKey:    dateKey,
			Entries:    json.RawMessage(raw),
			EntryCount: len(entries),
			ArchivedAt: s.clock.Now().UTC(),
		})
		if err != nil {
			return false, fmt.Errorf("persist snapshot %s/%s: %w", board, dateKey, err)
		}
	}

	s.log.Info().
		Str("board", board.String()).
		Str("date_key", dateKey).
		Int("entries", len(entries)).
		Bool("created", created).
		Msg("Leaderboard archived")

	return true, nil
}

// GetSnapshot returns an archived board, falling back to the durable copy once the
// store snapshot has expired.
func (s *Service) GetSnapshot(ctx context.Context, board models.BoardID, dateKey string) ([]models.Entry, error) {
	raw, err := s.store.Get(ctx, s.keys.Archive(board, dateKey))
	switch {
	case err == nil:
		return leaderboard.Decode(raw)
	case !errors.Is(err, store.ErrMissing):
		return nil, models.StorageError("read archive "+board.String(), err)
	}

	if s.snapshots != nil {
		snap, err := s.snapshots.Get(ctx, string(board.Window), string(board.Purity), dateKey)
		if err != nil {
			return nil, models.StorageError("read durable snapshot", err)
		}
		if snap != nil {
			return leaderboard.Decode(string(snap.Entries))
		}
	}

	return nil, fmt.Errorf("snapshot %s/%s: %w", board, dateKey, models.ErrNotFound)
}

// CleanupOldEntries drops live entries older than daysToKeep days from all four boards.
func (s *Service) CleanupOldEntries(ctx context.Context, daysToKeep int) bool {
	return s.CleanupTask(ctx, daysToKeep).Success
}

// CleanupTask is CleanupOldEntries with a detailed result.
func (s *Service) CleanupTask(ctx context.Context, daysToKeep int) TaskResult {
	return s.run("cleanup_entries", func() (string, error) {
		if daysToKeep < 0 {
			return "", models.InvalidInput("days to keep must not be negative, got %d", daysToKeep)
		}
		cutoff := s.clock.Now().Add(-time.Duration(daysToKeep) * 24 * time.Hour)
		limit := s.boards.MaxEntries()

		removed := 0
		for _, board := range models.AllBoards() {
			dropped := 0
			err := s.boards.Rewrite(ctx, board, func(entries []models.Entry) ([]models.Entry, bool) {
				kept := make([]models.Entry, 0, len(entries))
				for _, e := range entries {
					if !e.Timestamp.Before(cutoff) {
						kept = append(kept, e)
					}
				}
				dropped = len(entries) - len(kept)
				if dropped == 0 {
					return entries, false
				}
				return leaderboard.Rank(kept, limit), true
			})
			if err != nil {
				return "", err
			}
			removed += dropped
		}

		s.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Old leaderboard entries cleaned up")
		return fmt.Sprintf("removed %d entries older than %s", removed, cutoff.Format(time.RFC3339)), nil
	})
}

// ValidateIntegrity checks every live board is sorted, correctly ranked, bounded, pure
// where required and free of duplicate users. It never modifies a board.
func (s *Service) ValidateIntegrity(ctx context.Context) bool {
	return s.Integrity(ctx).Valid
}

// Integrity is ValidateIntegrity with per-board detail.
func (s *Service) Integrity(ctx context.Context) IntegrityReport {
	report := IntegrityReport{Valid: true}
	limit := s.boards.MaxEntries()

	for _, board := range models.AllBoards() {
		br := BoardReport{Board: board}

		entries, err := s.boards.Board(ctx, board)
		if err != nil {
			br.Error = err.Error()
			report.Valid = false
			report.Boards = append(report.Boards, br)
			s.log.Error().Err(err).Str("board", board.String()).Msg("Failed to read leaderboard for integrity check")
			continue
		}

		br.Entries = len(entries)
		br.Violations = leaderboard.Check(entries, limit, board.Purity == models.PurityPure)
		if len(br.Violations) > 0 {
			report.Valid = false
		}
		for _, v := range br.Violations {
			prommetrics.RecordIntegrityViolation(string(board.Window), string(board.Purity), v.Check)
			s.log.Warn().
				Str("board", board.String()).
				Str("check", v.Check).
				Int("index", v.Index).
				Str("detail", v.Detail).
				Msg("Leaderboard integrity violation")
		}

		report.Boards = append(report.Boards, br)
	}

	return report
}

// ValidateTask runs the integrity check as a maintenance task. Violations fail the task.
func (s *Service) ValidateTask(ctx context.Context) TaskResult {
	return s.run("validate_integrity", func() (string, error) {
		report := s.Integrity(ctx)
		if report.Valid {
			return "all boards valid", nil
		}
		bad := 0
		for _, b := range report.Boards {
			if len(b.Violations) > 0 || b.Error != "" {
				bad++
			}
		}
		return "", fmt.Errorf("%d of %d boards failed: %w", bad, len(report.Boards), models.ErrIntegrity)
	})
}

// Repair re-sorts, dedupes, truncates and re-ranks every board that fails its checks.
func (s *Service) Repair(ctx context.Context) TaskResult {
	return s.run("repair", func() (string, error) {
		limit := s.boards.MaxEntries()
		var repaired []string

		for _, board := range models.AllBoards() {
			pure := board.Purity == models.PurityPure
			changed := false
			err := s.boards.Rewrite(ctx, board, func(entries []models.Entry) ([]models.Entry, bool) {
				changed = len(leaderboard.Check(entries, limit, pure)) > 0
				if !changed {
					return entries, false
				}
				return leaderboard.Normalize(entries, limit, pure), true
			})
			if err != nil {
				return "", err
			}
			if changed {
				repaired = append(repaired, board.String())
				s.log.Warn().Str("board", board.String()).Msg("Leaderboard repaired")
			}
		}

		return fmt.Sprintf("repaired %d boards %v", len(repaired), repaired), nil
	})
}

// PurgeSnapshots deletes durable snapshots older than the retention window. Store
// snapshots expire on their own.
func (s *Service) PurgeSnapshots(ctx context.Context) TaskResult {
	return s.run("purge_snapshots", func() (string, error) {
		if s.snapshots == nil {
			return "no durable snapshot store configured", nil
		}
		cutoff := s.clock.Now().Add(-s.retention)
		n, err := s.snapshots.DeleteBefore(ctx, cutoff)
		if err != nil {
			return "", fmt.Errorf("purge snapshots: %w", err)
		}
		s.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Expired snapshots purged")
		return fmt.Sprintf("deleted %d snapshots", n), nil
	})
}
