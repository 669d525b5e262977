package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ntpoppe/textops/internal/config"
	"github.com/ntpoppe/textops/internal/orchestrator"
	"github.com/ntpoppe/textops/internal/repo"
	"github.com/ntpoppe/textops/internal/telemetry"
	"github.com/ntpoppe/textops/internal/worker"
)

func main() {
	flags := pflag.NewFlagSet("textops-worker", pflag.ExitOnError)
	flags.String("db-provider", "", "persistence provider: sqlite or postgres")
	flags.String("db-dsn", "", "persistence connection string")
	flags.String("worker-id", "", "stable worker identity")
	flags.Duration("poll-interval", 0, "queue poll interval")
	flags.Duration("error-retry-delay", 0, "delay before retrying after a claim_next error")
	flags.Int("max-attempts", 0, "max execution attempts before terminal failure")
	flags.Duration("lock-timeout", 0, "processing lock staleness threshold")
	flags.Duration("stale-check-interval", 0, "reclaim_stale poll interval")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: json or text")
	configFile := flags.String("config", "", "path to a YAML config file")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags, *configFile)
	if err != nil {
		panic(err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting textops-worker", "provider", cfg.Persistence.Provider)

	db, dialect, err := repo.Open(context.Background(), repo.Provider(cfg.Persistence.Provider), cfg.Persistence.ConnectionString)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repo.Migrate(db, repo.Provider(cfg.Persistence.Provider)); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	runRepo := repo.NewRunRepo(db, dialect)
	queueRepo := repo.NewQueueRepo(db, dialect)
	queueRepo.SetLogger(logger)
	orch := orchestrator.New(runRepo, queueRepo, logger)

	workerID := cfg.Worker.WorkerID
	if workerID == "" {
		workerID = worker.DefaultWorkerID()
	}

	w := worker.New(worker.Config{
		Queue:                  queueRepo,
		Orch:                   orch,
		Executor:               &worker.StubExecutor{},
		WorkerID:               workerID,
		PollInterval:           cfg.Worker.PollInterval,
		ErrorRetryDelay:        cfg.Worker.ErrorRetryDelay,
		MaxAttempts:            cfg.Worker.MaxAttempts,
		LockTimeout:            cfg.Worker.LockTimeout,
		StaleLockCheckInterval: cfg.Worker.StaleLockCheckInterval,
		Logger:                 logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}
