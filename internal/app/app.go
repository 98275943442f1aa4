// Package app wires the scoring engine's services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/internal/notify"
	"github.com/aimd54/community-scoring-engine/internal/repository"
	"github.com/aimd54/community-scoring-engine/internal/service/archive"
	"github.com/aimd54/community-scoring-engine/internal/service/items"
	"github.com/aimd54/community-scoring-engine/internal/service/leaderboard"
	"github.com/aimd54/community-scoring-engine/internal/service/lifecycle"
	"github.com/aimd54/community-scoring-engine/internal/service/ratelimit"
	"github.com/aimd54/community-scoring-engine/internal/service/scheduler"
	"github.com/aimd54/community-scoring-engine/internal/service/voting"
	"github.com/aimd54/community-scoring-engine/internal/store"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

// App holds every wired service.
type App struct {
	Store       store.Store
	DB          *repository.DB // nil without PostgreSQL
	Runs        *repository.MaintenanceRepository
	Notifier    *notify.Client
	Limiter     *ratelimit.Limiter
	Machine     *lifecycle.Machine
	Items       *items.Service
	Votes       *voting.Service
	Leaderboard *leaderboard.Service
	Archive     *archive.Service
	Scheduler   *scheduler.Service
}

// New connects to the stores and builds the services. PostgreSQL is optional.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	st, err := store.Connect(ctx, &cfg.Database.Redis, log,
		store.WithUpdateRetries(cfg.Leaderboard.UpdateRetries))
	if err != nil {
		return nil, err
	}

	a := &App{Store: st}

	var (
		snapshots archive.SnapshotRepository
		runs      scheduler.RunRecorder
	)
	if cfg.Database.Postgres.Enabled() {
		if cfg.Database.Postgres.RunMigrations {
			if err := repository.Migrate(cfg.Database.Postgres.URL(), log); err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		db, err := repository.NewDB(&cfg.Database.Postgres, log)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.DB = db
		a.Runs = repository.NewMaintenanceRepository(db)
		snapshots = repository.NewSnapshotRepository(db)
		runs = a.Runs
	} else {
		log.Warn().Msg("PostgreSQL not configured, snapshots are kept in Redis only")
	}

	clock := clockwork.NewRealClock()
	keys := store.NewKeys(cfg.Database.Redis.Namespace)

	a.Notifier = notify.NewClient(&cfg.Notifications, log.Component("notify"))
	a.Limiter = ratelimit.NewLimiter(st, keys, cfg.RateLimits, clock, log.Component("ratelimit"))
	a.Machine = lifecycle.NewMachine(st, keys, &cfg.Scoring, a.Notifier, clock, log.Component("lifecycle"))
	a.Items = items.NewService(st, keys, a.Limiter, clock, log.Component("items"))
	a.Votes = voting.NewService(st, keys, a.Limiter, a.Machine, clock, log.Component("voting"))
	a.Leaderboard = leaderboard.NewService(st, keys, &cfg.Leaderboard, clock, log.Component("leaderboard"))
	a.Archive = archive.NewService(st, keys, a.Leaderboard, snapshots, &cfg.Leaderboard, clock, log.Component("archive"))
	a.Scheduler = scheduler.NewService(cfg, a.Archive, a.Leaderboard, runs, a.Notifier, clock, log.Component("scheduler"))

	return a, nil
}

// Close releases the store and database connections.
func (a *App) Close() error {
	var firstErr error
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
