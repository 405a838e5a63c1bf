package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stellar/go/clients/horizonclient"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/adapters/events"
	"github.com/layer-3/anchor/adapters/ledger"
	"github.com/layer-3/anchor/adapters/store"
	"github.com/layer-3/anchor/config"
	"github.com/layer-3/anchor/ports"
)

// infra holds the shared backends opened for a command.
type infra struct {
	transactions ports.TransactionStore
	cursors      ports.CursorStore
	events       ports.EventPublisher
	ledger       *ledger.HorizonClient

	closers []func()
}

func (i *infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func openInfra(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*infra, error) {
	i := &infra{ledger: newLedger(cfg.Horizon)}

	memory := store.NewMemoryStore()
	i.transactions = memory
	i.cursors = memory
	i.events = events.NopPublisher{}

	if cfg.Postgres.DSN != "" {
		pool, err := newPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			i.Close()
			return nil, err
		}
		i.closers = append(i.closers, pool.Close)

		pg := store.NewPostgresStore(pool)
		if cfg.Postgres.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				i.Close()
				return nil, err
			}
		}
		i.transactions = pg
	} else {
		log.Warn("postgres.dsn not set, transactions are kept in memory")
	}

	if cfg.Redis.URL != "" {
		client, err := newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			i.Close()
			return nil, err
		}
		i.closers = append(i.closers, func() { _ = client.Close() })
		i.cursors = store.NewRedisCursorStore(client, cfg.Redis.CursorPrefix)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			i.Close()
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		i.closers = append(i.closers, func() { _ = publisher.Close() })
		i.events = events.NewWatermillPublisher(publisher, cfg.Scheduler.EventsTopic)
	} else {
		log.Warn("redis.url not set, stream cursors are kept in memory and events are not published")
	}

	return i, nil
}

func newLedger(cfg config.HorizonSettings) *ledger.HorizonClient {
	client := &horizonclient.Client{
		HorizonURL: cfg.URL,
		HTTP:       http.DefaultClient,
	}
	if cfg.Timeout > 0 {
		client.SetHorizonTimeout(cfg.Timeout)
	}
	return ledger.NewHorizonClient(client)
}

func newPostgresPool(ctx context.Context, cfg config.PostgresSettings) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
