package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/balance"
	"github.com/stbmp23/arbitrager/internal/board"
	"github.com/stbmp23/arbitrager/internal/broker"
	"github.com/stbmp23/arbitrager/internal/cache/redis"
	"github.com/stbmp23/arbitrager/internal/config"
	"github.com/stbmp23/arbitrager/internal/domain"
	"github.com/stbmp23/arbitrager/internal/notify"
	"github.com/stbmp23/arbitrager/internal/store/postgres"
)

// Dependencies bundles everything the main loop needs to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry *domain.Registry
	Adapters map[string]domain.BrokerAdapter
	Guard    *balance.Guard
	Analyzer *board.Analyzer

	// Stores; nil in monitor mode.
	ExchangeStore       domain.ExchangeStore
	BalanceHistoryStore domain.BalanceHistoryStore

	// Cache; nil when Redis is not configured.
	BoardCache domain.BoardCache

	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require persistence.
func needsPostgres(mode string) bool {
	return strings.ToLower(mode) == "trade"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Venues and adapters ---
	registry, err := config.BuildRegistry(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: venues: %w", err)
	}
	deps.Registry = registry

	baseURLs := make(map[string]string, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		baseURLs[vc.Code] = vc.BaseURL
	}

	adapters := make(map[string]domain.BrokerAdapter)
	for _, v := range registry.Enabled() {
		adapter, err := broker.New(v, baseURLs[v.Code])
		if err != nil {
			return nil, nil, fmt.Errorf("wire: adapters: %w", err)
		}
		adapters[v.Code] = adapter
	}
	deps.Adapters = adapters

	// --- Balance guard ---
	balCfg := balance.Config{
		ThresholdJPY:    decimal.NewFromFloat(cfg.Balancer.ThresholdJPY),
		ThresholdBTC:    decimal.NewFromFloat(cfg.Balancer.ThresholdBTC),
		RefreshInterval: cfg.Balancer.RefreshInterval.Duration,
		CheckDeadline:   cfg.Balancer.CheckDeadline.Duration,
	}
	perVenue := make(map[string]balance.Config)
	for _, vc := range cfg.Venues {
		if vc.ThresholdJPY == 0 && vc.ThresholdBTC == 0 {
			continue
		}
		override := balCfg
		if vc.ThresholdJPY != 0 {
			override.ThresholdJPY = decimal.NewFromFloat(vc.ThresholdJPY)
		}
		if vc.ThresholdBTC != 0 {
			override.ThresholdBTC = decimal.NewFromFloat(vc.ThresholdBTC)
		}
		perVenue[vc.Code] = override
	}
	guard, err := balance.NewGuard(registry, adapters, balCfg, perVenue, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: balancer: %w", err)
	}
	deps.Guard = guard

	// --- Boards and analyzer ---
	slippage := decimal.NewFromFloat(cfg.Trading.Slippage)
	boards := make([]*board.Board, 0, len(registry.Enabled()))
	for _, v := range registry.Enabled() {
		boards = append(boards, board.NewBoard(v, adapters[v.Code], slippage, logger))
	}
	deps.Analyzer = board.NewAnalyzer(boards, guard, board.AnalyzerConfig{
		Limits: board.Limits{
			MaxSize:          decimal.NewFromFloat(cfg.Trading.MaxSize),
			MinSize:          decimal.NewFromFloat(cfg.Trading.MinSize),
			MinProfit:        decimal.NewFromFloat(cfg.Trading.MinProfit),
			MinProfitPercent: decimal.NewFromFloat(cfg.Trading.MinProfitPercent),
		},
		MaxNetExposure:  decimal.NewFromFloat(cfg.Trading.MaxNetExposure),
		RefreshInterval: cfg.Trading.RefreshInterval.Duration,
	}, logger)

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ExchangeStore = postgres.NewExchangeStore(pool)
		deps.BalanceHistoryStore = postgres.NewBalanceHistoryStore(pool)
	}

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BoardCache = redis.NewCycleCache(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
