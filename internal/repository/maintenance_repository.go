package repository

import (
	"context"

	"github.com/aimd54/community-scoring-engine/internal/models"
)

// MaintenanceRepository records scheduled maintenance outcomes.
type MaintenanceRepository struct {
	db *DB
}

// NewMaintenanceRepository creates a new maintenance repository.
func NewMaintenanceRepository(db *DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// RecordRuns stores the task results of one batch.
func (r *MaintenanceRepository) RecordRuns(ctx context.Context, runs []models.MaintenanceRun) error {
	if len(runs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&runs).Error
}

// ListRecent returns the latest runs of a job, newest first. An empty job lists every job.
func (r *MaintenanceRepository) ListRecent(ctx context.Context, job string, limit int) ([]models.MaintenanceRun, error) {
	var runs []models.MaintenanceRun
	query := r.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if job != "" {
		query = query.Where("job = ?", job)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}

// ListBatch returns every run recorded under batchID in execution order.
func (r *MaintenanceRepository) ListBatch(ctx context.Context, batchID string) ([]models.MaintenanceRun, error) {
	var runs []models.MaintenanceRun
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&runs).Error
	return runs, err
}
