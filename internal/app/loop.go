package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/board"
	"github.com/stbmp23/arbitrager/internal/config"
	"github.com/stbmp23/arbitrager/internal/domain"
	"github.com/stbmp23/arbitrager/internal/exchange"
	"github.com/stbmp23/arbitrager/internal/notify"
)

// MainLoop drives one full trading cycle per poll interval: refresh boards,
// publish the cycle, select a position, gate on balances, execute the saga,
// and persist the outcome. An exceeded net-exposure ceiling halts the loop;
// everything else degrades to skipping the cycle.
type MainLoop struct {
	cfg    *config.Config
	deps   *Dependencies
	logger *slog.Logger
}

// NewMainLoop creates a MainLoop over wired dependencies.
func NewMainLoop(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *MainLoop {
	return &MainLoop{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "main_loop")),
	}
}

// Run blocks until the context is cancelled or trading is halted. In dry-run
// mode positions are selected and logged but never executed, which is how the
// monitor mode observes the market with real decision logic and no orders.
func (m *MainLoop) Run(ctx context.Context, dryRun bool) error {
	if err := m.deps.Guard.RefreshUntil(ctx); err != nil {
		return err
	}
	m.deps.Guard.Info()
	m.persistBalances(ctx, m.deps.Guard.Snapshot(), "")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.runCycle(ctx, dryRun); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Trading.PollInterval.Duration):
		}
	}
}

// runCycle performs one analysis-and-maybe-trade pass. Only halt conditions
// and context cancellation propagate as errors.
func (m *MainLoop) runCycle(ctx context.Context, dryRun bool) error {
	if err := m.deps.Analyzer.RefreshUntil(ctx); err != nil {
		return err
	}
	m.deps.Analyzer.Info()
	m.publishCycle(ctx)

	ok, err := m.deps.Analyzer.CanExchange()
	if err != nil {
		if errors.Is(err, domain.ErrNetExposureExceeded) {
			m.logger.Error("net exposure ceiling exceeded, halting trading",
				slog.String("error", err.Error()),
			)
			_ = m.deps.Notifier.Notify(ctx, notify.EventHalt, "Trading halted", err.Error())
			return err
		}
		m.logger.Warn("analysis failed, skipping cycle", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}

	pos, err := m.deps.Analyzer.SelectPosition()
	if err != nil || pos == nil {
		return nil
	}

	if dryRun {
		m.logger.Info("dry run, would execute position",
			slog.String("ask_venue", pos.Ask.Venue.Code),
			slog.String("bid_venue", pos.Bid.Venue.Code),
			slog.String("volume", pos.TargetVolume().String()),
			slog.String("profit", pos.Profit().String()),
		)
		return nil
	}

	if !m.deps.Guard.OK(ctx) {
		m.logger.Warn("balances below thresholds, skipping cycle")
		return nil
	}

	m.execute(ctx, pos)
	return nil
}

// execute runs the two-leg saga for the selected position and persists the
// audit trail.
func (m *MainLoop) execute(ctx context.Context, pos *board.Position) {
	before := m.deps.Guard.Snapshot()

	legCfg := exchange.LegConfig{
		ReverseOffsetPercent: decimal.NewFromFloat(m.cfg.Trading.ReverseOffsetPercent),
		PriceIncrement:       decimal.NewFromFloat(m.cfg.Trading.PriceIncrement),
		ReverseRetries:       m.cfg.Trading.ReverseRetries,
		CancelRetries:        m.cfg.Trading.CancelRetries,
		RetryInterval:        m.cfg.Trading.RetryInterval.Duration,
		ReconcileDeadline:    m.cfg.Trading.ExecutionWait.Duration,
	}

	askLeg := exchange.NewLeg(m.deps.Adapters[pos.Ask.Venue.Code], domain.SideAsk,
		pos.Ask.Price, pos.TargetVolume(), legCfg, m.logger)
	bidLeg := exchange.NewLeg(m.deps.Adapters[pos.Bid.Venue.Code], domain.SideBid,
		pos.Bid.Price, pos.TargetVolume(), legCfg, m.logger)

	exch := exchange.NewExchanger(askLeg, bidLeg, pos.Profit(), exchange.Config{
		SecondLegRetries: m.cfg.Trading.SecondLegRetries,
		RetryInterval:    m.cfg.Trading.RetryInterval.Duration,
		ExecutionWait:    m.cfg.Trading.ExecutionWait.Duration,
	}, m.logger, m.deps.Notifier)

	rec := exch.Start(ctx)

	if m.deps.ExchangeStore != nil {
		if err := m.deps.ExchangeStore.Create(ctx, rec); err != nil {
			m.logger.Error("failed to persist exchange record",
				slog.String("exchange_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	event := notify.EventTradeExecuted
	title := "Trade executed"
	if !rec.Result {
		event = notify.EventTradeFailed
		title = "Trade failed"
	}
	_ = m.deps.Notifier.Notify(ctx, event, title, fmt.Sprintf(
		"%s -> %s, volume %s, benefit %s (target %s)",
		pos.Ask.Venue.Code, pos.Bid.Venue.Code,
		pos.TargetVolume().String(), rec.Benefit.String(), rec.TargetBenefit.String(),
	))

	// Re-read the balances so the history rows carry the post-trade funds
	// next to the pre-trade ones.
	if err := m.deps.Guard.RefreshUntil(ctx); err != nil {
		return
	}
	after := m.deps.Guard.Snapshot()
	for i := range after {
		for _, b := range before {
			if b.VenueCode == after[i].VenueCode {
				after[i].BeforeJPY = b.JPY
				after[i].BeforeBTC = b.BTC
			}
		}
	}
	m.persistBalances(ctx, after, rec.ID)
}

// publishCycle pushes the current cycle to the cache, if one is configured.
// Publishing failures are logged and never block trading.
func (m *MainLoop) publishCycle(ctx context.Context) {
	if m.deps.BoardCache == nil {
		return
	}
	cycle, err := m.deps.Analyzer.Cycle()
	if err != nil {
		return
	}
	if err := m.deps.BoardCache.SetCycle(ctx, cycle); err != nil {
		m.logger.Warn("cycle publish failed", slog.String("error", err.Error()))
	}
}

// persistBalances writes a balance history batch, if a store is configured.
func (m *MainLoop) persistBalances(ctx context.Context, rows []domain.BalanceHistory, exchangeID string) {
	if m.deps.BalanceHistoryStore == nil || len(rows) == 0 {
		return
	}
	for i := range rows {
		rows[i].ExchangeID = exchangeID
	}
	if err := m.deps.BalanceHistoryStore.CreateBatch(ctx, rows); err != nil {
		m.logger.Error("failed to persist balance history", slog.String("error", err.Error()))
	}
}
