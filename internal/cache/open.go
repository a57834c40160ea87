package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// Open builds the store named by rawURL:
//
//	redis://[:password@]host:port/db   Redis (also rediss://)
//	sqlite://path/to/cache.db           SQLite file
//	sqlite::memory:                     SQLite in memory
//	memory://                           in-process map
//
// An unreachable Redis is logged and tolerated: the proxy keeps serving from
// the origin and the client reconnects on its own.
func Open(ctx context.Context, rawURL string, logger *slog.Logger) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}

	switch u.Scheme {
	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		store := NewRedisStore(redis.NewClient(opts))

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			logger.Error("Redis connection failed", slog.String("addr", opts.Addr), slog.Any("err", err))
		} else {
			logger.Info("Redis connected successfully", slog.String("addr", opts.Addr))
		}
		return store, nil

	case "sqlite":
		filename := u.Opaque
		if filename == "" {
			filename = u.Host + u.Path
		}
		if filename == ":memory:" {
			filename = ""
		}
		store, err := NewSQLiteStore(filename)
		if err != nil {
			return nil, err
		}
		logger.Info("SQLite cache opened", slog.String("file", filename))
		return store, nil

	case "memory":
		logger.Info("Using in-memory cache")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported cache backend %q", u.Scheme)
	}
}
