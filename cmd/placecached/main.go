package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mealradar/placecache/internal/blacklist"
	"github.com/mealradar/placecache/internal/core/config"
	"github.com/mealradar/placecache/internal/core/server"
	"github.com/mealradar/placecache/internal/kv"
	"github.com/mealradar/placecache/internal/localcache"
	"github.com/mealradar/placecache/internal/logger"
	"github.com/mealradar/placecache/internal/orchestrator"
	"github.com/mealradar/placecache/internal/provider"
	"github.com/mealradar/placecache/internal/sharedcache"
	"github.com/mealradar/placecache/internal/tablestore"
	"github.com/mealradar/placecache/internal/tablestore/postgrest"
	"github.com/mealradar/placecache/internal/tablestore/redistable"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	_ = godotenv.Load()

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
		SampleN: envInt("LOG_SAMPLE_N", 0),
		Service: "placecached",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting placecached",
		"addr", cfg.Addr,
		"version", Version,
		"local_driver", cfg.Local.Driver,
		"shared_driver", cfg.Shared.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local, cleanup, err := buildLocal(cfg, appLog)
	if err != nil {
		appLog.Error("local cache setup failed", "err", err)
		return 1
	}
	defer cleanup()

	table := buildShared(ctx, cfg, appLog)
	shared := sharedcache.New(table, appLog, sharedcache.WithTTL(cfg.Shared.TTL))
	bl := blacklist.New(table, kv.NewMemory(4096, cfg.Local.TTL), appLog)

	var upstream provider.Client
	if cfg.Provider.BaseURL != "" {
		client, err := provider.NewHTTP(cfg.Provider.BaseURL, cfg.Provider.APIKey, appLog,
			provider.WithTimeout(cfg.Provider.Timeout))
		if err != nil {
			appLog.Error("provider setup failed", "err", err)
			return 1
		}
		upstream = client
	} else {
		appLog.Warn("no provider configured, serving from caches and placeholder data only")
	}

	orch := orchestrator.New(local, shared, upstream, bl, appLog,
		orchestrator.WithSharedWriteTimeout(cfg.Shared.OpTimeout))

	deps := server.Deps{
		Orchestrator: orch,
		Blacklist:    bl,
		Shared:       shared,
		Ready:        sharedReadiness{table: table},
	}
	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server failed", "err", err)
		return 1
	}
	return 0
}

func buildLocal(cfg config.Config, log *slog.Logger) (*localcache.Store, func(), error) {
	opts := []localcache.Option{localcache.WithTTL(cfg.Local.TTL)}

	if cfg.Local.Driver == "sqlite" {
		db, err := kv.OpenSQLite(cfg.Local.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return localcache.New(db, log, opts...), func() { _ = db.Close() }, nil
	}

	mem := kv.NewMemory(cfg.Local.MaxEntries, cfg.Local.TTL)
	return localcache.New(mem, log, opts...), func() {}, nil
}

// buildShared selects the shared backend. A backend that cannot be reached at
// startup degrades to the disabled store instead of failing the process; the
// local tier keeps working on its own.
func buildShared(ctx context.Context, cfg config.Config, log *slog.Logger) tablestore.Store {
	switch cfg.Shared.Driver {
	case "redis":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store, err := redistable.New(dialCtx, cfg.Shared.RedisAddr,
			redistable.WithDialTimeout(5*time.Second),
			redistable.WithReadTimeout(cfg.Shared.OpTimeout),
			redistable.WithWriteTimeout(cfg.Shared.OpTimeout))
		if err != nil {
			log.Warn("redis unreachable, shared tier disabled", "addr", cfg.Shared.RedisAddr, "err", err)
			return tablestore.Disabled{}
		}
		return store
	case "postgrest":
		store, err := postgrest.New(cfg.Shared.PostgrestURL, cfg.Shared.PostgrestKey)
		if err != nil {
			log.Warn("postgrest unreachable, shared tier disabled", "url", cfg.Shared.PostgrestURL, "err", err)
			return tablestore.Disabled{}
		}
		return store
	default:
		log.Info("shared tier disabled by configuration")
		return tablestore.Disabled{}
	}
}

type sharedReadiness struct {
	table tablestore.Store
}

// Readiness probes the shared backend with a cheap read. A deliberately
// disabled backend does not make the process unready.
func (r sharedReadiness) Readiness() bool {
	if !r.table.Configured() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := r.table.RecentBuckets(ctx, 1)
	return err == nil
}
