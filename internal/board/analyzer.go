package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"golang.org/x/sync/errgroup"

	"github.com/stbmp23/arbitrager/internal/balance"
	"github.com/stbmp23/arbitrager/internal/domain"
)

// AnalyzerConfig holds the analyzer's selection limits and cadence.
type AnalyzerConfig struct {
	Limits          Limits
	MaxNetExposure  decimal.Decimal
	RefreshInterval time.Duration
}

// Analyzer refreshes every enabled venue's board concurrently, enumerates all
// ordered venue pairs, and caches the most profitable feasible position until
// the next successful refresh.
type Analyzer struct {
	boards []*Board
	guard  *balance.Guard
	cfg    AnalyzerConfig
	logger *slog.Logger

	mu       sync.Mutex
	selected *Position
	analyzed bool
}

// NewAnalyzer creates an Analyzer over the given boards.
func NewAnalyzer(boards []*Board, guard *balance.Guard, cfg AnalyzerConfig, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		boards: boards,
		guard:  guard,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "analyzer")),
	}
}

// Boards returns the analyzer's boards in venue priority order.
func (a *Analyzer) Boards() []*Board { return a.boards }

// Refresh refreshes every board concurrently. A single failing refresh fails
// the whole cycle: partial market data is considered worse than no decision.
// Cached derived state is cleared whether or not the cycle succeeds.
func (a *Analyzer) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.selected = nil
	a.analyzed = false
	a.mu.Unlock()

	grp, ctx := errgroup.WithContext(ctx)
	for _, b := range a.boards {
		b := b
		grp.Go(func() error {
			return b.Refresh(ctx)
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("analyzer: refresh: %w", err)
	}
	return nil
}

// RefreshUntil retries Refresh at a fixed interval until it succeeds.
// The loop has no wall-clock bound; cancelling ctx is the only other way
// out. A permanently unreachable venue therefore wedges the caller.
func (a *Analyzer) RefreshUntil(ctx context.Context) error {
	for {
		err := a.Refresh(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.logger.Info("board refresh failed, retrying",
			slog.Duration("retry_in", a.cfg.RefreshInterval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.RefreshInterval):
		}
	}
}

// SelectPosition enumerates every ordered pair of venues (ask source, bid
// source), discards infeasible candidates, and returns the one with maximal
// profit, or nil when nothing is tradable. Equal-profit ties go to the first
// candidate found; the ordering among ties is deliberately unspecified.
// The result is cached until the next Refresh.
func (a *Analyzer) SelectPosition() (*Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.analyzed {
		return a.selected, nil
	}

	var best *Position
	for _, askBoard := range a.boards {
		for _, bidBoard := range a.boards {
			if askBoard.Venue().Code == bidBoard.Venue().Code {
				continue
			}
			pos, err := a.buildPosition(askBoard, bidBoard)
			if err != nil {
				return nil, err
			}
			if !pos.CanExchange() {
				continue
			}
			if best == nil || pos.Profit().GreaterThan(best.Profit()) {
				best = pos
			}
		}
	}

	a.selected = best
	a.analyzed = true
	return best, nil
}

func (a *Analyzer) buildPosition(askBoard, bidBoard *Board) (*Position, error) {
	ask, err := askBoard.BestAsk()
	if err != nil {
		return nil, err
	}
	bid, err := bidBoard.BestBid()
	if err != nil {
		return nil, err
	}
	askBal, err := a.guard.Find(askBoard.Venue().Code)
	if err != nil {
		return nil, err
	}
	bidBal, err := a.guard.Find(bidBoard.Venue().Code)
	if err != nil {
		return nil, err
	}
	return NewPosition(ask, bid, askBal, bidBal, a.cfg.Limits), nil
}

// NetExposure sums every board's net exposure.
func (a *Analyzer) NetExposure() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, b := range a.boards {
		snap, err := b.Snapshot()
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(snap.NetExposure)
	}
	return total, nil
}

// CanExchange reports whether a feasible position exists. A net exposure
// above the configured ceiling returns ErrNetExposureExceeded instead; that
// is a stop-trading condition, not a retryable failure.
func (a *Analyzer) CanExchange() (bool, error) {
	exposure, err := a.NetExposure()
	if err != nil {
		return false, err
	}
	if exposure.GreaterThan(a.cfg.MaxNetExposure) {
		return false, fmt.Errorf("analyzer: net exposure %s over ceiling %s: %w",
			exposure.String(), a.cfg.MaxNetExposure.String(), domain.ErrNetExposureExceeded)
	}

	pos, err := a.SelectPosition()
	if err != nil {
		return false, err
	}
	return pos != nil, nil
}

// Cycle summarises the current boards and selection for the ops cache.
func (a *Analyzer) Cycle() (domain.CycleSnapshot, error) {
	snap := domain.CycleSnapshot{At: time.Now().UTC()}
	for _, b := range a.boards {
		bs, err := b.Snapshot()
		if err != nil {
			return domain.CycleSnapshot{}, err
		}
		snap.Boards = append(snap.Boards, *bs)
	}

	exposure, err := a.NetExposure()
	if err != nil {
		return domain.CycleSnapshot{}, err
	}
	snap.NetExposure = exposure

	pos, err := a.SelectPosition()
	if err != nil {
		return domain.CycleSnapshot{}, err
	}
	if pos != nil {
		snap.AskVenue = pos.Ask.Venue.Code
		snap.BidVenue = pos.Bid.Venue.Code
		snap.Profit = pos.Profit()
	}
	return snap, nil
}

// Info logs the boards, every pairwise spread, and the chosen position at
// debug level.
func (a *Analyzer) Info() {
	for _, b := range a.boards {
		snap, err := b.Snapshot()
		if err != nil {
			continue
		}
		a.logger.Debug("board",
			slog.String("venue", snap.Venue.Code),
			slog.String("best_ask", snap.BestAsk.Price.String()),
			slog.String("ask_volume", snap.BestAsk.Volume.String()),
			slog.String("best_bid", snap.BestBid.Price.String()),
			slog.String("bid_volume", snap.BestBid.Volume.String()),
		)
	}

	for _, askBoard := range a.boards {
		for _, bidBoard := range a.boards {
			if askBoard.Venue().Code == bidBoard.Venue().Code {
				continue
			}
			pos, err := a.buildPosition(askBoard, bidBoard)
			if err != nil {
				continue
			}
			a.logger.Debug("spread",
				slog.String("ask_venue", pos.Ask.Venue.Code),
				slog.String("bid_venue", pos.Bid.Venue.Code),
				slog.String("spread", pos.Bid.Price.Sub(pos.Ask.Price).String()),
				slog.String("profit", pos.Profit().String()),
			)
		}
	}

	pos, err := a.SelectPosition()
	if err != nil || pos == nil {
		a.logger.Debug("no tradable position this cycle")
		return
	}
	a.logger.Info("selected position",
		slog.String("ask_venue", pos.Ask.Venue.Code),
		slog.String("ask_price", pos.Ask.Price.String()),
		slog.String("bid_venue", pos.Bid.Venue.Code),
		slog.String("bid_price", pos.Bid.Price.String()),
		slog.String("volume", pos.TargetVolume().String()),
		slog.String("profit", pos.Profit().String()),
		slog.String("profit_percent", pos.ProfitPercent().Round(2).String()),
	)
}
