package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/backends/memory"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/backends/postgres"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/backends/redis"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
)

// Config selects the storage backend.
type Config struct {
	Backend     string // "memory", "redis", "postgres"
	RedisAddr   string
	PostgresDSN string
}

// Collection names shared by every backend.
const (
	CollectionPosts    = "posts"
	CollectionComments = "comments"
	CollectionUsers    = "users"
)

// Open constructs and connects the configured backend. When a remote
// backend cannot be reached the process still has to come up serving from
// memory, so connection failures degrade to the in-memory store with a
// warning rather than aborting startup.
func Open(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (interfaces.Database, error) {
	switch cfg.Backend {
	case "", "memory":
		mem := memory.NewDatabase()
		if err := mem.Connect(ctx); err != nil {
			return nil, fmt.Errorf("open memory backend: %w", err)
		}
		return mem, nil

	case "redis":
		rdb := redis.NewDatabase(cfg.RedisAddr)
		if err := rdb.Connect(ctx); err != nil {
			logger.Warnw("Redis storage unavailable; falling back to in-memory store",
				"addr", cfg.RedisAddr, "error", err)
			return Open(ctx, Config{Backend: "memory"}, logger)
		}
		return rdb, nil

	case "postgres":
		pg := postgres.NewDatabase(cfg.PostgresDSN)
		if err := pg.Connect(ctx); err != nil {
			logger.Warnw("Postgres storage unavailable; falling back to in-memory store",
				"error", err)
			return Open(ctx, Config{Backend: "memory"}, logger)
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// MustOpen is Open for call sites that cannot continue without storage.
func MustOpen(ctx context.Context, cfg Config, logger *zap.SugaredLogger) interfaces.Database {
	database, err := Open(ctx, cfg, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	return database
}
