// Package board aggregates per-venue order books and selects the most
// profitable feasible arbitrage position each cycle.
package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// Board extracts the best ask/bid of one venue's order book, with slippage
// applied toward guaranteed fills. Snapshots are published by pointer swap;
// readers between refresh cycles never observe a partially-updated board.
type Board struct {
	venue    *domain.Venue
	adapter  domain.BrokerAdapter
	slippage decimal.Decimal
	logger   *slog.Logger

	snap atomic.Pointer[domain.BoardSnapshot]
}

// NewBoard creates a Board for the given venue. slippage is added to the best
// ask and subtracted from the best bid.
func NewBoard(venue *domain.Venue, adapter domain.BrokerAdapter, slippage decimal.Decimal, logger *slog.Logger) *Board {
	return &Board{
		venue:    venue,
		adapter:  adapter,
		slippage: slippage,
		logger:   logger.With(slog.String("component", "board"), slog.String("venue", venue.Code)),
	}
}

// Venue returns the venue this board belongs to.
func (b *Board) Venue() *domain.Venue { return b.venue }

// Refresh fetches the raw order book once and publishes a new snapshot. It
// does not retry; retry policy belongs to the caller.
func (b *Board) Refresh(ctx context.Context) error {
	book, err := b.adapter.GetOrderBook(ctx)
	if err != nil {
		return fmt.Errorf("board: %s: refresh: %w", b.venue.Code, err)
	}
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return &domain.ValidationError{Venue: b.venue.Code, Op: "get_order_book", Detail: "empty book side"}
	}

	bestAsk := book.Asks[0]
	bestBid := book.Bids[0]
	askVolume := decimal.Zero
	bidVolume := decimal.Zero
	for _, lv := range book.Asks {
		if lv.Price.LessThan(bestAsk.Price) {
			bestAsk = lv
		}
		askVolume = askVolume.Add(lv.Volume)
	}
	for _, lv := range book.Bids {
		if lv.Price.GreaterThan(bestBid.Price) {
			bestBid = lv
		}
		bidVolume = bidVolume.Add(lv.Volume)
	}

	b.snap.Store(&domain.BoardSnapshot{
		Venue: b.venue,
		BestAsk: domain.Quote{
			Venue:  b.venue,
			Price:  bestAsk.Price.Add(b.slippage),
			Volume: bestAsk.Volume,
		},
		BestBid: domain.Quote{
			Venue:  b.venue,
			Price:  bestBid.Price.Sub(b.slippage),
			Volume: bestBid.Volume,
		},
		NetExposure: bidVolume.Sub(askVolume),
		FetchedAt:   time.Now().UTC(),
	})
	return nil
}

// Snapshot returns the last published snapshot, or ErrNoSnapshot before the
// first successful refresh.
func (b *Board) Snapshot() (*domain.BoardSnapshot, error) {
	snap := b.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("board: %s: %w", b.venue.Code, domain.ErrNoSnapshot)
	}
	return snap, nil
}

// BestAsk returns the slippage-adjusted best ask of the last refresh.
func (b *Board) BestAsk() (domain.Quote, error) {
	snap, err := b.Snapshot()
	if err != nil {
		return domain.Quote{}, err
	}
	return snap.BestAsk, nil
}

// BestBid returns the slippage-adjusted best bid of the last refresh.
func (b *Board) BestBid() (domain.Quote, error) {
	snap, err := b.Snapshot()
	if err != nil {
		return domain.Quote{}, err
	}
	return snap.BestBid, nil
}
