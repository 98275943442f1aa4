package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/community-scoring-engine/internal/models"
)

// SnapshotRepository stores archived leaderboards durably.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save inserts a snapshot unless one already exists for its window, purity and date.
// It reports whether a row was written.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *models.LeaderboardSnapshot) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(snapshot)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get retrieves a snapshot by its key. Returns (nil, nil) if none exists.
func (r *SnapshotRepository) Get(ctx context.Context, window, purity, dateKey string) (*models.LeaderboardSnapshot, error) {
	var snapshot models.LeaderboardSnapshot
	err := r.db.WithContext(ctx).
		Where("\"window\" = ? AND purity = ? AND date_key = ?", window, purity, dateKey).
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// List returns the most recent snapshots of a window and purity, newest first.
func (r *SnapshotRepository) List(ctx context.Context, window, purity string, limit int) ([]models.LeaderboardSnapshot, error) {
	var snapshots []models.LeaderboardSnapshot
	query := r.db.WithContext(ctx).
		Where("\"window\" = ? AND purity = ?", window, purity).
		Order("archived_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&snapshots).Error
	return snapshots, err
}

// DeleteBefore removes snapshots archived before cutoff and returns how many were removed.
func (r *SnapshotRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("archived_at < ?", cutoff).
		Delete(&models.LeaderboardSnapshot{})
	return res.RowsAffected, res.Error
}
