package main

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/optionscope/internal/api/handlers"
	"github.com/irfndi/optionscope/internal/cache"
	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/database"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/sirupsen/logrus"
)

// sessionStore is what the server needs from a store: persistence for the
// session manager and counters for the admin endpoint.
type sessionStore interface {
	interfaces.SessionStore
	handlers.StoreStatsProvider
}

// backends holds the optional storage services. db and redis are nil when
// disabled; store is always set.
type backends struct {
	db      *database.PostgresDB
	redis   *database.RedisClient
	store   sessionStore
	journal *database.LookupRepository
}

// connectRetryPolicy covers a database or cache that starts after the server.
var connectRetryPolicy = services.RetryPolicy{
	MaxRetries:    4,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2,
	JitterEnabled: true,
}

// openBackends connects the enabled backends. Without Redis, session
// summaries live in memory; without Postgres, lookups are not journaled.
func openBackends(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Redis.Enabled {
		err := services.ExecuteWithRetry(ctx, logger, "redis_connect", connectRetryPolicy, nil, func(ctx context.Context) error {
			rc, err := database.NewRedisConnection(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			b.redis = rc
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.store = cache.NewRedisSessionStore(b.redis.Client, cfg.Session.SummaryTTL, cfg.Session.RecentTickers, logger)
	} else {
		logger.Info("Redis disabled, keeping session summaries in memory")
		b.store = cache.NewInMemorySessionStore(cfg.Session.SummaryTTL, cfg.Session.RecentTickers)
	}

	if cfg.Database.Enabled {
		err := services.ExecuteWithRetry(ctx, logger, "postgres_connect", connectRetryPolicy, nil, func(ctx context.Context) error {
			db, err := database.NewPostgresConnection(ctx, cfg.Database)
			if err != nil {
				return err
			}
			b.db = db
			return nil
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		repo := database.NewLookupRepository(database.NewTracedDB(b.db.Pool, logger))
		if err := repo.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.journal = repo
	} else {
		logger.Info("Database disabled, heatmap lookups are not journaled")
	}

	return b, nil
}

// healthCheckers returns untyped nils for disabled backends so the health
// handler reports them as disabled.
func (b *backends) healthCheckers() (db, redis handlers.HealthChecker) {
	if b.db != nil {
		db = b.db
	}
	if b.redis != nil {
		redis = b.redis
	}
	return db, redis
}

func (b *backends) Close() {
	if b.db != nil {
		b.db.Close()
	}
	if b.redis != nil {
		b.redis.Close()
	}
}
