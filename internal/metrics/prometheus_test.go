package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordVote(t *testing.T) {
	// Reset the counter before test
	VotesTotal.Reset()

	RecordVote("drink", "applied")
	RecordVote("drink", "applied")
	RecordVote("component", "unchanged")

	count := testutil.ToFloat64(VotesTotal.WithLabelValues("drink", "applied"))
	if count != 2 {
		t.Errorf("Expected drink applied count = 2, got %f", count)
	}

	count = testutil.ToFloat64(VotesTotal.WithLabelValues("component", "unchanged"))
	if count != 1 {
		t.Errorf("Expected component unchanged count = 1, got %f", count)
	}
}

func TestRecordStateTransition(t *testing.T) {
	StateTransitionsTotal.Reset()

	RecordStateTransition("drink", "pending", "featured")

	count := testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("drink", "pending", "featured"))
	if count != 1 {
		t.Errorf("Expected 1 transition, got %f", count)
	}
}

func TestRecordRateLimitDecision(t *testing.T) {
	RateLimitDecisionsTotal.Reset()

	RecordRateLimitDecision("vote", true)
	RecordRateLimitDecision("vote", false)
	RecordRateLimitDecision("vote", false)

	if got := testutil.ToFloat64(RateLimitDecisionsTotal.WithLabelValues("vote", "allowed")); got != 1 {
		t.Errorf("Expected 1 allowed, got %f", got)
	}
	if got := testutil.ToFloat64(RateLimitDecisionsTotal.WithLabelValues("vote", "denied")); got != 2 {
		t.Errorf("Expected 2 denied, got %f", got)
	}
}

func TestLeaderboardMetrics(t *testing.T) {
	LeaderboardSubmissionsTotal.Reset()

	RecordLeaderboardSubmission("daily", "all", "inserted")
	SetLeaderboardEntries("daily", "all", 42)

	if got := testutil.ToFloat64(LeaderboardSubmissionsTotal.WithLabelValues("daily", "all", "inserted")); got != 1 {
		t.Errorf("Expected 1 insert, got %f", got)
	}
	if got := testutil.ToFloat64(LeaderboardEntries.WithLabelValues("daily", "all")); got != 42 {
		t.Errorf("Expected 42 entries, got %f", got)
	}
}

func TestMaintenanceMetrics(t *testing.T) {
	MaintenanceTasksTotal.Reset()
	MaintenanceJobsRunTotal.Reset()

	RecordMaintenanceTask("archive_daily", true)
	RecordMaintenanceTask("archive_daily", false)
	RecordMaintenanceJobRun("daily", "partial")
	SetMaintenanceLastRun("daily")
	ObserveMaintenanceJobDuration("daily", 0.25)

	if got := testutil.ToFloat64(MaintenanceTasksTotal.WithLabelValues("archive_daily", "error")); got != 1 {
		t.Errorf("Expected 1 failed task, got %f", got)
	}
	if got := testutil.ToFloat64(MaintenanceJobsRunTotal.WithLabelValues("daily", "partial")); got != 1 {
		t.Errorf("Expected 1 partial job, got %f", got)
	}
	if got := testutil.ToFloat64(MaintenanceLastRunTimestamp.WithLabelValues("daily")); got <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", got)
	}
}
