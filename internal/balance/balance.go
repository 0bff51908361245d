// Package balance tracks per-venue funds and gates trading on sufficient
// balances across every venue.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// Config holds the per-venue thresholds and the retry cadence shared by all
// balances.
type Config struct {
	ThresholdJPY    decimal.Decimal
	ThresholdBTC    decimal.Decimal
	RefreshInterval time.Duration
	// CheckDeadline bounds RefreshWithRetry and Guard.OK by wall clock.
	CheckDeadline time.Duration
}

// Balance holds one venue's current JPY/BTC amounts. It is mutated only by
// its own refresh; readers observe the last published value through an
// atomic pointer swap, so no locking is needed between cycles.
type Balance struct {
	venue   *domain.Venue
	adapter domain.BrokerAdapter
	cfg     Config
	logger  *slog.Logger

	current atomic.Pointer[domain.RawBalance]
}

// New creates a Balance for the given venue.
func New(venue *domain.Venue, adapter domain.BrokerAdapter, cfg Config, logger *slog.Logger) *Balance {
	return &Balance{
		venue:   venue,
		adapter: adapter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "balance"), slog.String("venue", venue.Code)),
	}
}

// Venue returns the venue this balance belongs to.
func (b *Balance) Venue() *domain.Venue { return b.venue }

// Refresh fetches the venue's funds once. It does not retry.
func (b *Balance) Refresh(ctx context.Context) error {
	raw, err := b.adapter.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %s: refresh: %w", b.venue.Code, err)
	}
	b.current.Store(&raw)
	return nil
}

// RefreshWithRetry retries Refresh at the configured interval until it
// succeeds or the check deadline elapses.
func (b *Balance) RefreshWithRetry(ctx context.Context) error {
	start := time.Now()
	for {
		err := b.Refresh(ctx)
		if err == nil {
			return nil
		}

		if time.Since(start) >= b.cfg.CheckDeadline {
			return fmt.Errorf("balance: %s: refresh deadline elapsed: %w", b.venue.Code, err)
		}

		b.logger.Warn("balance refresh failed, retrying",
			slog.Duration("retry_in", b.cfg.RefreshInterval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.RefreshInterval):
		}
	}
}

// JPY returns the last refreshed JPY amount, zero before any refresh.
func (b *Balance) JPY() decimal.Decimal {
	if cur := b.current.Load(); cur != nil {
		return cur.JPY
	}
	return decimal.Zero
}

// BTC returns the last refreshed BTC amount, zero before any refresh.
func (b *Balance) BTC() decimal.Decimal {
	if cur := b.current.Load(); cur != nil {
		return cur.BTC
	}
	return decimal.Zero
}

// ThresholdJPY returns the minimum JPY this venue must hold.
func (b *Balance) ThresholdJPY() decimal.Decimal { return b.cfg.ThresholdJPY }

// ThresholdBTC returns the minimum BTC this venue must hold.
func (b *Balance) ThresholdBTC() decimal.Decimal { return b.cfg.ThresholdBTC }

// OK reports whether both amounts are at or above their thresholds, given the
// last successful refresh.
func (b *Balance) OK() bool {
	return b.JPY().GreaterThanOrEqual(b.cfg.ThresholdJPY) &&
		b.BTC().GreaterThanOrEqual(b.cfg.ThresholdBTC)
}
