// Package exchange executes the two-legged arbitrage trade as a saga:
// ordered submission, retry, execution polling, and compensation of whichever
// leg ends up unmatched.
package exchange

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// LegConfig holds the timing and compensation knobs shared by all legs.
type LegConfig struct {
	// ReverseOffsetPercent moves a compensating order's price against the
	// original direction to make it fill.
	ReverseOffsetPercent decimal.Decimal
	// PriceIncrement is the venue tick size the offset is rounded down to.
	PriceIncrement decimal.Decimal
	ReverseRetries int
	CancelRetries  int
	RetryInterval  time.Duration
	// ReconcileDeadline bounds the history back-fill after execution.
	ReconcileDeadline time.Duration
}

// Leg is the mutable record of one order's life on one venue: submit,
// poll-until-executed, cancel, reverse, reconcile. A leg may own at most one
// compensating reverse leg; a reverse leg is terminal and never reverses
// again.
type Leg struct {
	venue   *domain.Venue
	adapter domain.BrokerAdapter
	cfg     LegConfig
	logger  *slog.Logger

	id           string
	side         domain.Side
	targetPrice  decimal.Decimal
	targetVolume decimal.Decimal

	state        domain.LegState
	acceptanceID string
	rawResponse  string
	submitOK     bool
	executed     bool
	isReverse    bool
	reverse      *Leg
	startedAt    time.Time
	canceledAt   *time.Time

	// Realized values back-filled by Reconcile.
	price      decimal.Decimal
	volume     decimal.Decimal
	fee        decimal.Decimal
	reconciled bool
}

// NewLeg creates an unsubmitted leg.
func NewLeg(adapter domain.BrokerAdapter, side domain.Side, price, volume decimal.Decimal, cfg LegConfig, logger *slog.Logger) *Leg {
	venue := adapter.Venue()
	return &Leg{
		venue:        venue,
		adapter:      adapter,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "leg"), slog.String("venue", venue.Code), slog.String("side", string(side))),
		id:           uuid.New().String(),
		side:         side,
		targetPrice:  price,
		targetVolume: volume,
		state:        domain.LegCreated,
		startedAt:    time.Now().UTC(),
	}
}

// Venue returns the leg's venue.
func (l *Leg) Venue() *domain.Venue { return l.venue }

// Side returns the leg's side.
func (l *Leg) Side() domain.Side { return l.side }

// State returns the leg's current lifecycle state.
func (l *Leg) State() domain.LegState { return l.state }

// Submitted reports whether the venue accepted the submission.
func (l *Leg) Submitted() bool { return l.submitOK }

// ReverseLeg returns the compensating leg placed by Reverse, or nil.
func (l *Leg) ReverseLeg() *Leg { return l.reverse }

// Submit sends the order once. On success the acceptance id and raw response
// are stored; on failure the leg is marked failed and false is returned.
// Retry policy lives in the saga, not here.
func (l *Leg) Submit(ctx context.Context) bool {
	res, err := l.adapter.SubmitOrder(ctx, l.side, l.targetPrice, l.targetVolume)
	if err != nil {
		l.logger.Error("order submission failed",
			slog.Bool("transient", domain.IsTransient(err)),
			slog.String("error", err.Error()),
		)
		l.state = domain.LegFailed
		return false
	}

	l.acceptanceID = res.AcceptanceID
	l.rawResponse = res.Raw
	l.submitOK = true
	l.state = domain.LegSubmitted

	l.logger.Info("order submitted",
		slog.String("acceptance_id", l.acceptanceID),
		slog.String("price", l.targetPrice.String()),
		slog.String("volume", l.targetVolume.String()),
	)
	return true
}

// Executed polls the venue for the order's fill status. Once it has reported
// true it is cached and the venue is never queried again.
func (l *Leg) Executed(ctx context.Context) bool {
	if l.executed {
		return true
	}
	if l.acceptanceID == "" {
		return false
	}

	status, err := l.adapter.GetOrderStatus(ctx, l.acceptanceID)
	if err != nil {
		l.logger.Warn("execution check failed",
			slog.Bool("transient", domain.IsTransient(err)),
			slog.String("error", err.Error()),
		)
		return false
	}

	if status.State == domain.OrderCompleted {
		l.executed = true
		l.state = domain.LegExecuted
	}
	return l.executed
}

// ReversePrice computes the compensating order's price: the target price
// moved against the original direction by the configured percent, with the
// offset rounded down to the venue's price increment.
func (l *Leg) ReversePrice() decimal.Decimal {
	offset := l.targetPrice.Mul(l.cfg.ReverseOffsetPercent).Div(decimal.NewFromInt(100))
	offset = offset.Sub(offset.Mod(l.cfg.PriceIncrement))

	if l.side == domain.SideAsk {
		return l.targetPrice.Add(offset)
	}
	return l.targetPrice.Sub(offset)
}

// Reverse submits a compensating order in the opposite direction at the
// original target volume. The reverse leg is terminal: attempting to reverse
// a reverse leg is a programming error and returns false.
func (l *Leg) Reverse(ctx context.Context) bool {
	if l.isReverse {
		l.logger.Error("refusing to reverse a reverse leg")
		return false
	}

	l.logger.Info("placing reverse order", slog.String("price", l.ReversePrice().String()))

	rev := NewLeg(l.adapter, l.side.Opposite(), l.ReversePrice(), l.targetVolume, l.cfg, l.logger)
	rev.isReverse = true
	l.reverse = rev

	if !rev.Submit(ctx) {
		return false
	}
	l.state = domain.LegReversed
	return true
}

// Cancel requests cancellation. A venue that no longer knows the order
// (already filled or expired) counts as a successful cancel: the order is
// gone from the book either way.
func (l *Leg) Cancel(ctx context.Context) bool {
	if l.acceptanceID == "" {
		l.logger.Error("cancel requested before submission", slog.String("error", domain.ErrNotSubmitted.Error()))
		return false
	}

	l.logger.Info("canceling order", slog.String("acceptance_id", l.acceptanceID))

	ok, err := l.adapter.CancelOrder(ctx, l.acceptanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			ok = true
		} else {
			l.logger.Warn("cancel failed",
				slog.Bool("transient", domain.IsTransient(err)),
				slog.String("error", err.Error()),
			)
			return false
		}
	}
	if !ok {
		return false
	}

	now := time.Now().UTC()
	l.canceledAt = &now
	l.state = domain.LegCanceled
	return true
}

// Rollback is the compensating action the saga invokes when this leg cannot
// be matched with its counterpart: reverse if already executed, cancel
// otherwise, each with a bounded number of attempts.
func (l *Leg) Rollback(ctx context.Context) bool {
	l.logger.Info("rolling back leg")
	if l.Executed(ctx) {
		return l.retry(ctx, l.cfg.ReverseRetries, l.Reverse)
	}
	return l.retry(ctx, l.cfg.CancelRetries, l.Cancel)
}

func (l *Leg) retry(ctx context.Context, attempts int, op func(context.Context) bool) bool {
	for i := 0; i < attempts; i++ {
		if op(ctx) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Reconcile back-fills the realized price, volume, and fee from the venue's
// trade history, retrying until the reconcile deadline. Fill prices can
// differ from the limit price requested, so the audit record uses what the
// venue reports.
func (l *Leg) Reconcile(ctx context.Context) bool {
	if l.acceptanceID == "" {
		return false
	}
	if l.reconciled {
		return true
	}

	start := time.Now()
	for {
		if l.reconcileOnce(ctx) {
			return true
		}

		if time.Since(start) >= l.cfg.ReconcileDeadline || ctx.Err() != nil {
			l.logger.Warn("reconciliation deadline elapsed", slog.String("acceptance_id", l.acceptanceID))
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

func (l *Leg) reconcileOnce(ctx context.Context) bool {
	fills, err := l.adapter.GetOrderHistory(ctx, l.startedAt)
	if err != nil {
		l.logger.Warn("order history fetch failed",
			slog.Bool("transient", domain.IsTransient(err)),
			slog.String("error", err.Error()),
		)
		return false
	}

	volume := decimal.Zero
	fee := decimal.Zero
	notional := decimal.Zero
	for _, f := range fills {
		if f.AcceptanceID != l.acceptanceID {
			continue
		}
		volume = volume.Add(f.Volume)
		fee = fee.Add(f.Fee)
		notional = notional.Add(f.Price.Mul(f.Volume))
	}
	if volume.IsZero() {
		return false
	}

	l.price = notional.Div(volume)
	l.volume = volume
	l.fee = fee
	l.reconciled = true

	l.logger.Info("leg reconciled",
		slog.String("price", l.price.String()),
		slog.String("volume", l.volume.String()),
		slog.String("fee", l.fee.String()),
	)
	return true
}

// Record returns the persisted view of this leg.
func (l *Leg) Record() domain.LegRecord {
	return domain.LegRecord{
		ID:           l.id,
		VenueCode:    l.venue.Code,
		Side:         l.side,
		TargetPrice:  l.targetPrice,
		TargetVolume: l.targetVolume,
		Price:        l.price,
		Volume:       l.volume,
		Fee:          l.fee,
		AcceptanceID: l.acceptanceID,
		RawResponse:  l.rawResponse,
		State:        l.state,
		Result:       l.submitOK,
		Reverse:      l.isReverse,
		StartedAt:    l.startedAt,
		CanceledAt:   l.canceledAt,
	}
}
