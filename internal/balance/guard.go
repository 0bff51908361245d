package balance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// Guard aggregates every enabled venue's Balance. Refreshes fan out
// concurrently and succeed only if every venue succeeds; partial balance data
// is never published as a successful cycle.
type Guard struct {
	balances []*Balance
	cfg      Config
	logger   *slog.Logger
}

// NewGuard builds a Guard with one Balance per enabled venue.
func NewGuard(registry *domain.Registry, adapters map[string]domain.BrokerAdapter, cfg Config, perVenue map[string]Config, logger *slog.Logger) (*Guard, error) {
	enabled := registry.Enabled()
	balances := make([]*Balance, 0, len(enabled))
	for _, v := range enabled {
		adapter, ok := adapters[v.Code]
		if !ok {
			return nil, fmt.Errorf("balance: no adapter for venue %s", v.Code)
		}
		vcfg := cfg
		if override, ok := perVenue[v.Code]; ok {
			vcfg = override
		}
		balances = append(balances, New(v, adapter, vcfg, logger))
	}
	return &Guard{
		balances: balances,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "balancer")),
	}, nil
}

// Balances returns the per-venue balances in venue priority order.
func (g *Guard) Balances() []*Balance { return g.balances }

// Find returns the balance for the given venue code.
func (g *Guard) Find(code string) (*Balance, error) {
	for _, b := range g.balances {
		if b.venue.Code == code {
			return b, nil
		}
	}
	return nil, fmt.Errorf("balance: venue %q: %w", code, domain.ErrNotFound)
}

// Refresh refreshes every venue's balance concurrently, one attempt per
// venue; retrying lives in RefreshUntil and OK. Any individual failure
// aborts the whole batch; already-published balances from this batch are
// harmless because each venue's value is only swapped in on its own success.
func (g *Guard) Refresh(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	for _, b := range g.balances {
		b := b
		grp.Go(func() error {
			return b.Refresh(ctx)
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("balancer: refresh: %w", err)
	}
	return nil
}

// RefreshUntil retries Refresh at a fixed interval until it succeeds. The
// loop has no wall-clock bound; cancelling ctx is the only way out. Market
// data is assumed to eventually come back, and trading on partial balances
// is considered worse than waiting.
func (g *Guard) RefreshUntil(ctx context.Context) error {
	for {
		err := g.Refresh(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		g.logger.Warn("balance refresh failed, retrying",
			slog.Duration("retry_in", g.cfg.RefreshInterval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.cfg.RefreshInterval):
		}
	}
}

// OK retries Refresh until it succeeds or the health-check deadline elapses,
// then reports whether every venue holds at least its thresholds. A deadline
// hit reports false.
func (g *Guard) OK(ctx context.Context) bool {
	start := time.Now()
	for {
		err := g.Refresh(ctx)
		if err == nil {
			break
		}

		if time.Since(start) > g.cfg.CheckDeadline || ctx.Err() != nil {
			g.logger.Warn("balance health check deadline elapsed",
				slog.String("error", err.Error()),
			)
			return false
		}

		g.logger.Info("balance health check refresh failed, retrying",
			slog.Duration("retry_in", g.cfg.RefreshInterval),
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(g.cfg.RefreshInterval):
		}
	}

	for _, b := range g.balances {
		if !b.OK() {
			g.logger.Warn("venue below balance threshold",
				slog.String("venue", b.venue.Code),
				slog.String("jpy", b.JPY().String()),
				slog.String("btc", b.BTC().String()),
			)
			return false
		}
	}
	return true
}

// Snapshot captures the current amounts per venue, used as the
// before-balances of a balance history row.
func (g *Guard) Snapshot() []domain.BalanceHistory {
	now := time.Now().UTC()
	rows := make([]domain.BalanceHistory, 0, len(g.balances))
	for _, b := range g.balances {
		rows = append(rows, domain.BalanceHistory{
			VenueCode:  b.venue.Code,
			JPY:        b.JPY(),
			BTC:        b.BTC(),
			RecordedAt: now,
		})
	}
	return rows
}

// Info logs the current funds of every venue.
func (g *Guard) Info() {
	for _, b := range g.balances {
		g.logger.Info("balance",
			slog.String("venue", b.venue.Code),
			slog.String("jpy", b.JPY().String()),
			slog.String("btc", b.BTC().String()),
		)
	}
}
