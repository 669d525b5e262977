package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ntpoppe/textops/internal/api"
	"github.com/ntpoppe/textops/internal/config"
	"github.com/ntpoppe/textops/internal/orchestrator"
	"github.com/ntpoppe/textops/internal/repo"
	"github.com/ntpoppe/textops/internal/telemetry"
)

func main() {
	flags := pflag.NewFlagSet("textops-server", pflag.ExitOnError)
	registerSharedFlags(flags)
	listen := flags.String("listen", "", "HTTP listen address (overrides config)")
	configFile := flags.String("config", "", "path to a YAML config file")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags, *configFile)
	if err != nil {
		panic(err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting textops-server", "provider", cfg.Persistence.Provider)

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

	handler := api.NewHandler(api.Config{
		Orch:   orch,
		Queue:  queueRepo,
		DB:     db,
		Logger: logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	addr := cfg.HTTP.ListenAddr
	if *listen != "" {
		addr = *listen
	}

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stopped")
}

// registerSharedFlags registers the persistence and logging flags common
// to every binary.
func registerSharedFlags(flags *pflag.FlagSet) {
	flags.String("db-provider", "", "persistence provider: sqlite or postgres")
	flags.String("db-dsn", "", "persistence connection string")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: json or text")
	flags.AddGoFlagSet(flag.CommandLine)
}
