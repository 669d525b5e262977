package api

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ntpoppe/textops/internal/orchestrator"
	"github.com/ntpoppe/textops/internal/repo"
)

// Handler is the HTTP API's dependency-injected entry point.
type Handler struct {
	orch   *orchestrator.Orchestrator
	queue  *repo.QueueRepo
	db     *sql.DB
	logger *slog.Logger

	// runCache is a short-TTL read-through cache in front of GET
	// /runs/{runId}. Pure optimization: every entry is invalidated by
	// TTL expiry alone, never explicitly, so a stale hit during a race
	// with a concurrent write only delays visibility of a status
	// change by at most its TTL — it never serves a value that wasn't
	// true at some point, and never blocks or alters a write.
	runCache *cache.Cache
}

// Config configures a Handler.
type Config struct {
	Orch        *orchestrator.Orchestrator
	Queue       *repo.QueueRepo
	DB          *sql.DB
	Logger      *slog.Logger
	RunCacheTTL time.Duration
}

// NewHandler builds a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.RunCacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Handler{
		orch:     cfg.Orch,
		queue:    cfg.Queue,
		db:       cfg.DB,
		logger:   logger,
		runCache: cache.New(ttl, 2*ttl),
	}
}
