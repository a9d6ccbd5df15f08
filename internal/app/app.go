// Package app assembles the posting pipeline from configuration: stores,
// adapters, the orchestrator, the monitor, and the feedback analyzers.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/miclabs/posthunter/internal/channel"
	"github.com/miclabs/posthunter/internal/config"
	"github.com/miclabs/posthunter/internal/generate"
	"github.com/miclabs/posthunter/internal/knowledge"
	"github.com/miclabs/posthunter/internal/monitor"
	"github.com/miclabs/posthunter/internal/notify"
	"github.com/miclabs/posthunter/internal/orchestrator"
	"github.com/miclabs/posthunter/internal/patterns"
	"github.com/miclabs/posthunter/internal/pdca"
	"github.com/miclabs/posthunter/internal/persistence"
	"github.com/miclabs/posthunter/internal/persistence/memory"
	"github.com/miclabs/posthunter/internal/persistence/postgres"
	"github.com/miclabs/posthunter/internal/quality"
	"github.com/miclabs/posthunter/internal/stock"
	"github.com/miclabs/posthunter/internal/telemetry"
)

// App holds the assembled components for the CLI and the server.
type App struct {
	Config   config.Config
	Runner   *orchestrator.Runner
	Stock    *stock.Manager
	Monitor  *monitor.Monitor
	Learner  *patterns.Learner
	Analyzer *pdca.Analyzer
	Store    knowledge.Store
	Notifier *notify.Notifier
	Metrics  *telemetry.Metrics

	closers []func()
}

// ChannelEndpoints maps channel keys to their API endpoint and token,
// typically sourced from the environment at startup.
type ChannelEndpoints map[string]struct {
	BaseURL string
	Token   string
}

// New wires the full pipeline. Postgres and Redis are optional: without a
// DSN the in-memory stores serve a single-process deployment, and without a
// Redis address the knowledge store is in-memory too.
func New(ctx context.Context, cfg config.Config, endpoints ChannelEndpoints) (*App, error) {
	a := &App{Config: cfg, Metrics: telemetry.NewDefault()}

	var stockRepo persistence.StockRepo
	var postRepo persistence.PostRepo
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		stockRepo = postgres.NewStockRepo(db, cfg.Postgres.QueryTimeout)
		postRepo = postgres.NewPostRepo(db, cfg.Postgres.QueryTimeout)
		log.Info().Msg("using postgres record stores")
	} else {
		stockRepo = memory.NewStockRepo()
		postRepo = memory.NewPostRepo()
		log.Info().Msg("using in-memory record stores")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		a.Store = knowledge.NewRedisStore(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis knowledge store")
	} else {
		a.Store = knowledge.NewMemoryStore()
		log.Info().Msg("using in-memory knowledge store")
	}

	notifier, err := notify.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a.Notifier = notifier
	a.closers = append(a.closers, notifier.Close)

	adapters := make(map[string]channel.Adapter, len(endpoints))
	for key, ep := range endpoints {
		adapters[key] = channel.NewBreakerAdapter(key,
			channel.NewHTTPAdapter(ep.BaseURL, ep.Token, cfg.Monitor.FetchTimeout))
	}
	registry := channel.NewRegistry(adapters)

	gate := quality.NewGate(cfg.Quality.PassThreshold)
	loop := generate.NewLoop(
		generate.NewHTTPGenerator(cfg.Generate.Endpoint, cfg.Generate.Timeout),
		gate,
		generate.LoopConfig{
			MaxAttempts:  cfg.Generate.MaxAttempts,
			AttemptDelay: cfg.Generate.AttemptDelay,
			RatePerMin:   cfg.Generate.RatePerMin,
		})

	a.Stock = stock.NewManager(stockRepo, loop, stock.Config{
		MinPerAccount: cfg.Stock.MinPerAccount,
		MaxPerAccount: cfg.Stock.MaxPerAccount,
	})

	a.Runner = orchestrator.NewRunner(
		cfg.Accounts, a.Stock, loop, registry, postRepo, notifier, a.Metrics, cfg.Paused)

	a.Monitor = monitor.New(cfg.Accounts, registry, postRepo, notifier, a.Metrics, monitor.Config{
		Thresholds: monitor.Thresholds{
			Likes: cfg.Monitor.LikeThreshold,
			Rate:  cfg.Monitor.RateThreshold,
		},
		MaxPerAccount: cfg.Monitor.MaxPerAccount,
		FetchTimeout:  cfg.Monitor.FetchTimeout,
	})

	a.Learner = patterns.NewLearner(postRepo, a.Store)
	a.Analyzer = pdca.New(postRepo, a.Store, pdca.Config{
		HighScoreCutoff: cfg.PDCA.HighScoreCutoff,
		LowScoreCutoff:  cfg.PDCA.LowScoreCutoff,
		MinSamples:      cfg.PDCA.MinSamples,
		UnderperformPct: cfg.PDCA.UnderperformPct,
		MaxRecs:         cfg.PDCA.MaxRecs,
	})

	return a, nil
}

// Close releases external connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
