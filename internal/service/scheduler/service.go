// Package scheduler runs the daily, weekly and monthly leaderboard maintenance batches.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aimd54/community-scoring-engine/internal/config"
	prommetrics "github.com/aimd54/community-scoring-engine/internal/metrics"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/notify"
	"github.com/aimd54/community-scoring-engine/internal/service/archive"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// Maintainer runs the individual maintenance tasks.
type Maintainer interface {
	ArchiveTask(ctx context.Context, window models.Window, dateKey string) archive.TaskResult
	CleanupTask(ctx context.Context, daysToKeep int) archive.TaskResult
	ValidateTask(ctx context.Context) archive.TaskResult
	PurgeSnapshots(ctx context.Context) archive.TaskResult
	Repair(ctx context.Context) archive.TaskResult
}

// BoardResetter clears live leaderboards once they are archived.
type BoardResetter interface {
	Reset(ctx context.Context, window models.Window) error
}

// RunRecorder persists task outcomes.
type RunRecorder interface {
	RecordRuns(ctx context.Context, runs []models.MaintenanceRun) error
}

// AlertSender announces batches with failed tasks.
type AlertSender interface {
	SendMaintenanceAlert(ctx context.Context, alert notify.MaintenanceAlert) error
}

// JobRepair is the on-demand repair batch. It is never scheduled.
const JobRepair = "repair"

// Job statuses recorded in metrics.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Report is the outcome of one maintenance batch.
type Report struct {
	BatchID   string               `json:"batch_id" yaml:"batch_id"`
	Job       string               `json:"job" yaml:"job"`
	StartedAt time.Time            `json:"started_at" yaml:"started_at"`
	Duration  time.Duration        `json:"duration" yaml:"duration"`
	Success   bool                 `json:"success" yaml:"success"`
	Tasks     []archive.TaskResult `json:"tasks" yaml:"tasks"`
}

// add appends a task result and reports whether it succeeded.
func (r *Report) add(res archive.TaskResult) bool {
	r.Tasks = append(r.Tasks, res)
	return res.Success
}

// Failed returns the tasks that did not succeed.
func (r *Report) Failed() []archive.TaskResult {
	var failed []archive.TaskResult
	for _, t := range r.Tasks {
		if !t.Success {
			failed = append(failed, t)
		}
	}
	return failed
}

// Status summarises the batch for metrics.
func (r *Report) Status() string {
	switch failed := len(r.Failed()); {
	case failed == 0:
		return StatusSuccess
	case failed == len(r.Tasks):
		return StatusError
	default:
		return StatusPartial
	}
}

// Service schedules and runs maintenance batches.
type Service struct {
	config *config.Config
	maint  Maintainer
	boards BoardResetter
	runs   RunRecorder
	alerts AlertSender
	clock  clockwork.Clock
	log    *logger.Logger
	cron   *cron.Cron
}

// NewService creates a new scheduler service. runs and alerts may be nil.
func NewService(
	cfg *config.Config,
	maint Maintainer,
	boards BoardResetter,
	runs RunRecorder,
	alerts AlertSender,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		config: cfg,
		maint:  maint,
		boards: boards,
		runs:   runs,
		alerts: alerts,
		clock:  clock,
		log:    log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	jobs := []struct {
		name string
		expr string
	}{
		{models.JobDaily, s.config.Scheduler.DailyCron},
		{models.JobWeekly, s.config.Scheduler.WeeklyCron},
		{models.JobMonthly, s.config.Scheduler.MonthlyCron},
	}
	for _, job := range jobs {
		if job.expr == "" {
			s.log.Warn().Str("job", job.name).Msg("No schedule configured, job disabled")
			continue
		}
		name := job.name
		if _, err := s.cron.AddFunc(job.expr, func() {
			_, _ = s.Run(context.Background(), name)
		}); err != nil {
			return fmt.Errorf("failed to register %s maintenance job: %w", name, err)
		}
		s.log.Info().
			Str("job", name).
			Str("schedule", job.expr).
			Msg("Maintenance job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("timezone", s.config.Scheduler.Timezone).
		Int("jobs", len(s.cron.Entries())).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running batch to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// Run executes the named batch once.
func (s *Service) Run(ctx context.Context, job string) (*Report, error) {
	switch job {
	case models.JobDaily:
		return s.RunDaily(ctx), nil
	case models.JobWeekly:
		return s.RunWeekly(ctx), nil
	case models.JobMonthly:
		return s.RunMonthly(ctx), nil
	case JobRepair:
		return s.RunRepair(ctx), nil
	default:
		return nil, models.InvalidInput("unknown maintenance job %q", job)
	}
}

// RunDaily archives yesterday's daily boards, resets them and validates every board.
func (s *Service) RunDaily(ctx context.Context) *Report {
	r := s.begin(models.JobDaily)
	dateKey := DailyDateKey(r.StartedAt, s.location())

	archived := r.add(s.maint.ArchiveTask(ctx, models.WindowDaily, dateKey))
	r.add(s.reset(ctx, models.WindowDaily, archived))
	r.add(s.maint.ValidateTask(ctx))

	return s.finish(ctx, r)
}

// RunWeekly archives last week's weekly boards and resets them.
func (s *Service) RunWeekly(ctx context.Context) *Report {
	r := s.begin(models.JobWeekly)
	dateKey := WeeklyDateKey(r.StartedAt, s.location())

	archived := r.add(s.maint.ArchiveTask(ctx, models.WindowWeekly, dateKey))
	r.add(s.reset(ctx, models.WindowWeekly, archived))

	return s.finish(ctx, r)
}

// RunMonthly drops stale live entries, purges expired snapshots and validates.
func (s *Service) RunMonthly(ctx context.Context) *Report {
	r := s.begin(models.JobMonthly)

	r.add(s.maint.CleanupTask(ctx, s.config.Leaderboard.CleanupDays))
	r.add(s.maint.PurgeSnapshots(ctx))
	r.add(s.maint.ValidateTask(ctx))

	return s.finish(ctx, r)
}

// RunRepair normalizes broken boards and validates the result.
func (s *Service) RunRepair(ctx context.Context) *Report {
	r := s.begin(JobRepair)

	r.add(s.maint.Repair(ctx))
	r.add(s.maint.ValidateTask(ctx))

	return s.finish(ctx, r)
}

func (s *Service) begin(job string) *Report {
	s.log.Info().Str("job", job).Msg("Running maintenance job")
	return &Report{
		BatchID:   uuid.New().String(),
		Job:       job,
		StartedAt: s.clock.Now(),
	}
}

// reset clears a window's live boards. It is skipped when the archive failed so no
// unarchived entries are lost.
func (s *Service) reset(ctx context.Context, window models.Window, archived bool) archive.TaskResult {
	res := archive.TaskResult{Task: "reset_" + string(window)}
	if !archived {
		res.Error = "skipped: archive did not succeed"
		s.log.Warn().Str("window", string(window)).Msg("Leaderboard reset skipped")
		return res
	}

	start := s.clock.Now()
	err := s.boards.Reset(ctx, window)
	res.Duration = s.clock.Since(start)
	if err != nil {
		res.Error = err.Error()
		s.log.Error().Err(err).Str("task", res.Task).Msg("Maintenance task failed")
		return res
	}
	res.Success = true
	res.Detail = "live boards cleared"
	return res
}

func (s *Service) finish(ctx context.Context, r *Report) *Report {
	r.Duration = s.clock.Since(r.StartedAt)
	r.Success = len(r.Failed()) == 0
	status := r.Status()

	for _, t := range r.Tasks {
		prommetrics.RecordMaintenanceTask(t.Task, t.Success)
	}
	prommetrics.RecordMaintenanceJobRun(r.Job, status)
	prommetrics.ObserveMaintenanceJobDuration(r.Job, r.Duration.Seconds())
	prommetrics.SetMaintenanceLastRun(r.Job)

	if s.runs != nil {
		if err := s.runs.RecordRuns(ctx, buildRuns(r)); err != nil {
			s.log.Warn().Err(err).Str("batch_id", r.BatchID).Msg("Failed to record maintenance runs")
		}
	}

	if s.alerts != nil && !r.Success {
		if err := s.alerts.SendMaintenanceAlert(ctx, buildAlert(r)); err != nil {
			s.log.Warn().Err(err).Str("batch_id", r.BatchID).Msg("Failed to send maintenance alert")
		}
	}

	var event *zerolog.Event
	if r.Success {
		event = s.log.Info()
	} else {
		event = s.log.Warn()
	}
	event.
		Str("job", r.Job).
		Str("batch_id", r.BatchID).
		Str("status", status).
		Int("tasks", len(r.Tasks)).
		Int("failed", len(r.Failed())).
		Dur("duration", r.Duration).
		Msg("Maintenance job completed")

	return r
}

func (s *Service) location() *time.Location {
	loc, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return time.UTC
	}
	return loc
}

// DailyDateKey names the daily snapshot taken at now: the previous calendar day in loc.
func DailyDateKey(now time.Time, loc *time.Location) string {
	return now.In(loc).AddDate(0, 0, -1).Format("2006-01-02")
}

// WeeklyDateKey names the weekly snapshot taken at now: the previous ISO week in loc.
func WeeklyDateKey(now time.Time, loc *time.Location) string {
	year, week := now.In(loc).AddDate(0, 0, -7).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
