// Command maintenance runs one leaderboard maintenance batch and prints its report.
//
// Usage:
//
//	maintenance -job daily|weekly|monthly|repair [-config config.yaml]
//	maintenance -check
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/community-scoring-engine/internal/app"
	"github.com/aimd54/community-scoring-engine/internal/config"
	"github.com/aimd54/community-scoring-engine/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run returns 0 when every task succeeded, 1 when any failed and 2 on usage or setup errors.
func run() int {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	job := flag.String("job", "", "Batch to run: daily, weekly, monthly or repair")
	check := flag.Bool("check", false, "Only report leaderboard integrity")
	timeout := flag.Duration("timeout", 5*time.Minute, "Maximum run time")
	flag.Parse()

	if *job == "" && !*check {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 2
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, "stderr")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize services")
		return 2
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close connections")
		}
	}()

	var (
		report interface{}
		ok     bool
	)
	if *check {
		r := a.Archive.Integrity(ctx)
		report, ok = r, r.Valid
	} else {
		r, err := a.Scheduler.Run(ctx, *job)
		if err != nil {
			log.Error().Err(err).Msg("Maintenance run failed")
			return 2
		}
		report, ok = r, r.Success
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		log.Error().Err(err).Msg("Failed to print report")
	}
	_ = enc.Close()

	if !ok {
		return 1
	}
	return 0
}
