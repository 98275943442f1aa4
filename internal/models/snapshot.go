package models

import (
	"encoding/json"
	"time"
)

// LeaderboardSnapshot is the durable copy of an archived leaderboard.
type LeaderboardSnapshot struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Window     string          `gorm:"size:20;not null;uniqueIndex:ux_snapshot_key,priority:1" json:"window"`
	Purity     string          `gorm:"size:20;not null;uniqueIndex:ux_snapshot_key,priority:2" json:"purity"`
	DateKey    string          `gorm:"size:20;not null;uniqueIndex:ux_snapshot_key,priority:3" json:"date_key"`
	Entries    json.RawMessage `gorm:"type:text;not null" json:"entries"`
	EntryCount int             `gorm:"not null;default:0" json:"entry_count"`
	ArchivedAt time.Time       `gorm:"not null;index" json:"archived_at"`
}

// TableName specifies the table name for LeaderboardSnapshot model.
func (LeaderboardSnapshot) TableName() string {
	return "leaderboard_snapshots"
}

// MaintenanceRun records the outcome of one scheduled maintenance task.
type MaintenanceRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BatchID    string    `gorm:"size:36;not null;index" json:"batch_id"`
	Job        string    `gorm:"size:50;not null" json:"job"`  // 'daily', 'weekly', 'monthly'
	Task       string    `gorm:"size:100;not null" json:"task"` // e.g. 'archive_daily'
	Success    bool      `gorm:"not null" json:"success"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	DurationMs int64     `gorm:"not null;default:0" json:"duration_ms"`
	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
}

// TableName specifies the table name for MaintenanceRun model.
func (MaintenanceRun) TableName() string {
	return "maintenance_runs"
}

// Maintenance job names.
const (
	JobDaily   = "daily"
	JobWeekly  = "weekly"
	JobMonthly = "monthly"
)
