// Package metrics provides Prometheus exporters for the scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the scoring engine.
var (
	// Voting.
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_votes_total",
			Help: "Total vote requests by item kind and outcome (applied, unchanged)",
		},
		[]string{"kind", "outcome"},
	)

	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_state_transitions_total",
			Help: "Total item lifecycle transitions",
		},
		[]string{"kind", "from", "to"},
	)

	ItemsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_items_created_total",
			Help: "Total items submitted",
		},
		[]string{"kind"},
	)

	// Rate limiting.
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_rate_limit_decisions_total",
			Help: "Rate limiter decisions by action and outcome (allowed, denied)",
		},
		[]string{"action", "outcome"},
	)

	// Leaderboards.
	LeaderboardSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_leaderboard_submissions_total",
			Help: "Leaderboard score submissions by board and outcome (inserted, replaced, ignored)",
		},
		[]string{"window", "purity", "outcome"},
	)

	LeaderboardEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scoring_leaderboard_entries",
			Help: "Current number of entries on a live leaderboard",
		},
		[]string{"window", "purity"},
	)

	IntegrityViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_integrity_violations_total",
			Help: "Leaderboard invariant violations detected by integrity checks",
		},
		[]string{"window", "purity", "check"},
	)

	// Maintenance.
	MaintenanceJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_maintenance_jobs_run_total",
			Help: "Total maintenance job executions",
		},
		[]string{"job", "status"},
	)

	MaintenanceTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_maintenance_tasks_total",
			Help: "Total maintenance task executions by task and status",
		},
		[]string{"task", "status"},
	)

	MaintenanceLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scoring_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance job run",
		},
		[]string{"job"},
	)

	MaintenanceJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoring_maintenance_job_duration_seconds",
			Help:    "Time taken to execute a maintenance job",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)
)

// RecordVote records a vote request outcome.
func RecordVote(kind, outcome string) {
	VotesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStateTransition records a lifecycle transition.
func RecordStateTransition(kind, from, to string) {
	StateTransitionsTotal.WithLabelValues(kind, from, to).Inc()
}

// RecordItemCreated records a new item submission.
func RecordItemCreated(kind string) {
	ItemsCreatedTotal.WithLabelValues(kind).Inc()
}

// RecordRateLimitDecision records an admission decision.
func RecordRateLimitDecision(action string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	RateLimitDecisionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordLeaderboardSubmission records a leaderboard submission outcome.
func RecordLeaderboardSubmission(window, purity, outcome string) {
	LeaderboardSubmissionsTotal.WithLabelValues(window, purity, outcome).Inc()
}

// SetLeaderboardEntries sets the current size of a leaderboard.
func SetLeaderboardEntries(window, purity string, count int) {
	LeaderboardEntries.WithLabelValues(window, purity).Set(float64(count))
}

// RecordIntegrityViolation records a failed invariant check.
func RecordIntegrityViolation(window, purity, check string) {
	IntegrityViolationsTotal.WithLabelValues(window, purity, check).Inc()
}

// RecordMaintenanceJobRun records a maintenance job execution.
func RecordMaintenanceJobRun(job, status string) {
	MaintenanceJobsRunTotal.WithLabelValues(job, status).Inc()
}

// RecordMaintenanceTask records a maintenance task execution.
func RecordMaintenanceTask(task string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	MaintenanceTasksTotal.WithLabelValues(task, status).Inc()
}

// SetMaintenanceLastRun sets the timestamp of the last job run.
func SetMaintenanceLastRun(job string) {
	MaintenanceLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveMaintenanceJobDuration observes the duration of a maintenance job.
func ObserveMaintenanceJobDuration(job string, seconds float64) {
	MaintenanceJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}
