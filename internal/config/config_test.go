package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(25), cfg.Scoring.Drink.Upper)
	assert.Equal(t, int64(-5), cfg.Scoring.Drink.Lower)
	assert.Equal(t, int64(15), cfg.Scoring.Component.Upper)
	assert.Equal(t, int64(-10), cfg.Scoring.Component.Lower)
	assert.Equal(t, 50, cfg.Leaderboard.MaxEntries)

	vote := cfg.RateLimits[ActionVote]
	assert.Equal(t, 60*time.Second, vote.Window())
	assert.Equal(t, 10, vote.Max)
	assert.Equal(t, 1, cfg.RateLimits[ActionComponentSubmission].Max)
	assert.Equal(t, 600*time.Second, cfg.RateLimits[ActionComponentSubmission].Window())
	assert.Equal(t, 3, cfg.RateLimits[ActionSubmission].Max)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  redis:
    host: redis.internal
    namespace: test
leaderboard:
  max_entries: 20
rate_limits:
  vote:
    window_seconds: 30
    max: 5
`)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SCORING_DRINK_UPPER", "30")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.Database.Redis.Host)
	assert.Equal(t, "redis.internal:6379", cfg.Database.Redis.RedisAddr())
	assert.Equal(t, "test", cfg.Database.Redis.Namespace)
	assert.Equal(t, 20, cfg.Leaderboard.MaxEntries)
	assert.Equal(t, 5, cfg.RateLimits[ActionVote].Max)
	assert.Equal(t, 30*time.Second, cfg.RateLimits[ActionVote].Window())
	// untouched actions keep their defaults
	assert.Equal(t, 3, cfg.RateLimits[ActionSubmission].Max)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int64(30), cfg.Scoring.Drink.Upper)
	assert.False(t, cfg.Database.Postgres.Enabled())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing redis host",
			mutate:  func(c *Config) { c.Database.Redis.Host = "" },
			wantErr: true,
		},
		{
			name:    "inverted drink thresholds",
			mutate:  func(c *Config) { c.Scoring.Drink.Upper = -10 },
			wantErr: true,
		},
		{
			name:    "postgres host without database",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "pg" },
			wantErr: true,
		},
		{
			name:    "missing vote limit",
			mutate:  func(c *Config) { delete(c.RateLimits, ActionVote) },
			wantErr: true,
		},
		{
			name:    "invalid cron",
			mutate:  func(c *Config) { c.Scheduler.DailyCron = "every day at noon" },
			wantErr: true,
		},
		{
			name: "invalid cron ignored when scheduler disabled",
			mutate: func(c *Config) {
				c.Scheduler.Enabled = false
				c.Scheduler.DailyCron = "nope"
			},
			wantErr: false,
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresURL(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "scores", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/scores?sslmode=disable", pg.URL())
	assert.Contains(t, pg.DSN(), "dbname=scores")
}
