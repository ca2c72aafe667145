// Package main provides the dice resolution server binary: secure random
// pool, roll resolver, probability model, ETag-gated polling delivery, and
// the janitor that keeps session state bounded.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/sparc-rpg/rollcast/internal/api"
	"github.com/sparc-rpg/rollcast/internal/broadcast"
	"github.com/sparc-rpg/rollcast/internal/config"
	"github.com/sparc-rpg/rollcast/internal/dice"
	"github.com/sparc-rpg/rollcast/internal/observability"
	"github.com/sparc-rpg/rollcast/internal/server"
	"github.com/sparc-rpg/rollcast/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	// Randomness first: NewPooledSource panics if the platform cannot supply
	// secure random bytes, and a dice server that cannot roll fairly must not
	// come up at all.
	poolStart := time.Now()
	source := dice.NewPooledSource(cfg.Dice.PoolSize, cfg.Dice.PoolLowWater, logger)
	logger.Info("random pool filled",
		zap.Int("size", cfg.Dice.PoolSize),
		zap.Duration("elapsed", time.Since(poolStart)),
	)

	model := dice.NewModel()
	tracker := dice.NewTracker(cfg.Dice.TrackerWindow)
	stats := dice.NewStatsBook()

	levels := dice.DefaultLevels()
	if cfg.Dice.DifficultyFile != "" {
		levels, err = dice.LoadLevels(cfg.Dice.DifficultyFile)
		if err != nil {
			logger.Fatal("loading difficulty levels",
				zap.String("file", cfg.Dice.DifficultyFile),
				zap.Error(err),
			)
		}
		logger.Info("difficulty levels loaded",
			zap.String("file", cfg.Dice.DifficultyFile),
			zap.Int("count", len(levels.Levels())),
		)
	}

	broadcaster := broadcast.NewBroadcaster(cfg.Broadcast.LedgerCapacity, cfg.Broadcast.QueueCapacity, logger)

	// Roll history is optional. Without a database the dispatcher still feeds
	// the in-memory ledgers; only the persistence hop disappears.
	var store broadcast.RollStore
	var pool *postgres.Pool
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		store = postgres.NewRollRepository(pool.DB())
	}

	dispatcher := broadcast.NewDispatcher(broadcaster, store, cfg.Broadcast.QueueCapacity, logger)
	resolver := dice.NewResolver(source, tracker, stats, dispatcher, logger)
	janitor := broadcast.NewJanitor(
		broadcaster, stats,
		cfg.Broadcast.JanitorInterval, cfg.Broadcast.SessionTTL, cfg.Broadcast.BroadcastMaxAge,
		logger,
	)

	handler := api.NewHandler(resolver, model, tracker, stats, levels, broadcaster, dispatcher, source, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("dispatcher", dispatcher)
	lifecycle.Add("janitor", janitor)
	if pool != nil {
		p := pool
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				for {
					time.Sleep(30 * time.Second)
					if err := p.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			},
			StopFn: func() {
				p.Close()
			},
		})
	}
	// HTTP last: it stops first on shutdown, so the dispatcher drains after
	// the request flow has already ceased.
	lifecycle.Add("http", server.NewHTTPService(cfg.HTTP, handler.Routes(), logger))

	logger.Info("roll server initialized",
		zap.String("addr", cfg.HTTP.Addr()),
		zap.Bool("persistence", cfg.Database.Enabled),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
