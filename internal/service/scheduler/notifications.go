package scheduler

import (
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/notify"
)

// buildRuns transforms a batch report into persisted run rows.
func buildRuns(r *Report) []models.MaintenanceRun {
	runs := make([]models.MaintenanceRun, 0, len(r.Tasks))

	for _, t := range r.Tasks {
		runs = append(runs, models.MaintenanceRun{
			BatchID:    r.BatchID,
			Job:        r.Job,
			Task:       t.Task,
			Success:    t.Success,
			Error:      t.Error,
			DurationMs: t.Duration.Milliseconds(),
			StartedAt:  r.StartedAt.UTC(),
		})
	}

	return runs
}

// buildAlert lists the failed tasks of a batch.
func buildAlert(r *Report) notify.MaintenanceAlert {
	alert := notify.MaintenanceAlert{
		Job:     r.Job,
		BatchID: r.BatchID,
		Total:   len(r.Tasks),
	}

	for _, t := range r.Failed() {
		alert.Failed = append(alert.Failed, notify.FailedTask{Task: t.Task, Error: t.Error})
	}

	return alert
}
