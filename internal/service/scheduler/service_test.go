package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/internal/models"
	"github.com/aimd54/community-scoring-engine/internal/notify"
	"github.com/aimd54/community-scoring-engine/internal/service/archive"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

func TestDailyDateKey(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		loc  *time.Location
		want string
	}{
		{
			name: "just after midnight UTC",
			now:  time.Date(2026, 10, 19, 0, 5, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2026-10-18",
		},
		{
			name: "first of the month",
			now:  time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2026-02-28",
		},
		{
			name: "new year",
			now:  time.Date(2027, 1, 1, 0, 5, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2026-12-31",
		},
		{
			name: "local day differs from UTC",
			now:  time.Date(2026, 10, 18, 22, 5, 0, 0, time.UTC),
			loc:  paris,
			want: "2026-10-18",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DailyDateKey(tt.now, tt.loc); got != tt.want {
				t.Errorf("DailyDateKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWeeklyDateKey(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			name: "monday after week 42",
			now:  time.Date(2026, 10, 19, 0, 10, 0, 0, time.UTC),
			want: "2026-W42",
		},
		{
			name: "single digit week is padded",
			now:  time.Date(2026, 1, 12, 0, 10, 0, 0, time.UTC),
			want: "2026-W02",
		},
		{
			name: "ISO year boundary",
			now:  time.Date(2027, 1, 4, 0, 10, 0, 0, time.UTC),
			want: "2026-W53",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeeklyDateKey(tt.now, time.UTC); got != tt.want {
				t.Errorf("WeeklyDateKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeMaintainer struct {
	archiveFails bool
	invalid      bool
	archived     []string
	cleanupDays  int
	calls        []string
}

func (f *fakeMaintainer) result(task string, ok bool) archive.TaskResult {
	f.calls = append(f.calls, task)
	res := archive.TaskResult{Task: task, Success: ok}
	if !ok {
		res.Error = "storage unavailable"
	}
	return res
}

func (f *fakeMaintainer) ArchiveTask(_ context.Context, window models.Window, dateKey string) archive.TaskResult {
	f.archived = append(f.archived, string(window)+"/"+dateKey)
	return f.result("archive_"+string(window), !f.archiveFails)
}

func (f *fakeMaintainer) CleanupTask(_ context.Context, daysToKeep int) archive.TaskResult {
	f.cleanupDays = daysToKeep
	return f.result("cleanup_entries", true)
}

func (f *fakeMaintainer) ValidateTask(context.Context) archive.TaskResult {
	return f.result("validate_integrity", !f.invalid)
}

func (f *fakeMaintainer) PurgeSnapshots(context.Context) archive.TaskResult {
	return f.result("purge_snapshots", true)
}

func (f *fakeMaintainer) Repair(context.Context) archive.TaskResult {
	return f.result("repair", true)
}

type fakeResetter struct {
	reset []models.Window
	err   error
}

func (f *fakeResetter) Reset(_ context.Context, window models.Window) error {
	if f.err != nil {
		return f.err
	}
	f.reset = append(f.reset, window)
	return nil
}

type fakeRecorder struct {
	runs []models.MaintenanceRun
}

func (f *fakeRecorder) RecordRuns(_ context.Context, runs []models.MaintenanceRun) error {
	f.runs = append(f.runs, runs...)
	return nil
}

type fakeAlerts struct {
	alerts []notify.MaintenanceAlert
}

func (f *fakeAlerts) SendMaintenanceAlert(_ context.Context, alert notify.MaintenanceAlert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

type fixture struct {
	svc      *Service
	maint    *fakeMaintainer
	resetter *fakeResetter
	recorder *fakeRecorder
	alerts   *fakeAlerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		maint:    &fakeMaintainer{},
		resetter: &fakeResetter{},
		recorder: &fakeRecorder{},
		alerts:   &fakeAlerts{},
	}
	cfg := config.Default()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 0, 5, 0, 0, time.UTC))
	f.svc = NewService(cfg, f.maint, f.resetter, f.recorder, f.alerts, clock, logger.Nop())
	return f
}

func taskNames(tasks []archive.TaskResult) []string {
	names := make([]string, len(tasks))
	for i, task := range tasks {
		names[i] = task.Task
	}
	return names
}

func TestRunDaily(t *testing.T) {
	f := newFixture(t)

	report := f.svc.RunDaily(context.Background())

	assert.True(t, report.Success)
	assert.Equal(t, StatusSuccess, report.Status())
	assert.NotEmpty(t, report.BatchID)
	assert.Equal(t, []string{"archive_daily", "reset_daily", "validate_integrity"}, taskNames(report.Tasks))
	assert.Equal(t, []string{"daily/2026-10-18"}, f.maint.archived)
	assert.Equal(t, []models.Window{models.WindowDaily}, f.resetter.reset)

	require.Len(t, f.recorder.runs, 3)
	for _, run := range f.recorder.runs {
		assert.Equal(t, report.BatchID, run.BatchID)
		assert.Equal(t, models.JobDaily, run.Job)
	}
	assert.Empty(t, f.alerts.alerts)
}

func TestRunDaily_SkipsResetWhenArchiveFails(t *testing.T) {
	f := newFixture(t)
	f.maint.archiveFails = true

	report := f.svc.RunDaily(context.Background())

	assert.False(t, report.Success)
	assert.Equal(t, StatusPartial, report.Status())
	assert.Empty(t, f.resetter.reset, "live board must survive a failed archive")
	assert.Contains(t, f.maint.calls, "validate_integrity", "batch must continue after a failure")

	require.Len(t, f.alerts.alerts, 1)
	alert := f.alerts.alerts[0]
	assert.Equal(t, 3, alert.Total)
	require.Len(t, alert.Failed, 2)
	assert.Equal(t, "archive_daily", alert.Failed[0].Task)
	assert.Equal(t, "reset_daily", alert.Failed[1].Task)
}

func TestRunWeekly(t *testing.T) {
	f := newFixture(t)
	f.resetter.err = errors.New("connection refused")

	report := f.svc.RunWeekly(context.Background())

	assert.Equal(t, []string{"archive_weekly", "reset_weekly"}, taskNames(report.Tasks))
	assert.Equal(t, []string{"weekly/2026-W42"}, f.maint.archived)
	assert.False(t, report.Tasks[1].Success)
	assert.Equal(t, "connection refused", report.Tasks[1].Error)
}

func TestRunMonthly(t *testing.T) {
	f := newFixture(t)
	f.maint.invalid = true

	report := f.svc.RunMonthly(context.Background())

	assert.Equal(t, []string{"cleanup_entries", "purge_snapshots", "validate_integrity"}, taskNames(report.Tasks))
	assert.Equal(t, 30, f.maint.cleanupDays)
	assert.Equal(t, StatusPartial, report.Status())
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.Run(ctx, JobRepair)
	require.NoError(t, err)
	assert.Equal(t, []string{"repair", "validate_integrity"}, taskNames(report.Tasks))

	_, err = f.svc.Run(ctx, "hourly")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestReportStatus(t *testing.T) {
	tests := []struct {
		name  string
		tasks []archive.TaskResult
		want  string
	}{
		{"all ok", []archive.TaskResult{{Success: true}, {Success: true}}, StatusSuccess},
		{"some failed", []archive.TaskResult{{Success: true}, {Success: false}}, StatusPartial},
		{"all failed", []archive.TaskResult{{Success: false}}, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Tasks: tt.tasks}
			if got := r.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStart_RegistersJobs(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	assert.Len(t, f.svc.cron.Entries(), 3)
}

func TestStart_Disabled(t *testing.T) {
	f := newFixture(t)
	f.svc.config.Scheduler.Enabled = false

	require.NoError(t, f.svc.Start())
	assert.Nil(t, f.svc.cron)
	f.svc.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	f := newFixture(t)
	f.svc.config.Scheduler.WeeklyCron = "every monday"

	assert.Error(t, f.svc.Start())
}
