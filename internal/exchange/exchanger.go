package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/domain"
	"github.com/stbmp23/arbitrager/internal/notify"
)

// Config holds the saga's retry and wait parameters.
type Config struct {
	SecondLegRetries int
	RetryInterval    time.Duration
	// ExecutionWait bounds how long the saga polls for both legs to fill
	// before compensating.
	ExecutionWait time.Duration
}

// Exchanger coordinates the two legs of one arbitrage trade. The venues
// cannot commit atomically, so the saga orders the legs by venue priority,
// retries the second submission, and compensates whichever leg ends up
// unmatched: an executed leg is reversed, an unexecuted one canceled.
// Reversing a filled leg costs slippage, but that is the price of never
// carrying a naked position.
type Exchanger struct {
	first  *Leg
	second *Leg
	cfg    Config
	logger *slog.Logger
	// notifier may be nil; compensation failures are still logged at the
	// highest severity.
	notifier *notify.Notifier

	record domain.ExchangeRecord
}

// NewExchanger orders the ask and bid legs by venue priority (ascending) and
// prepares the audit record with the benefit targeted at decision time.
func NewExchanger(askLeg, bidLeg *Leg, targetBenefit decimal.Decimal, cfg Config, logger *slog.Logger, notifier *notify.Notifier) *Exchanger {
	first, second := askLeg, bidLeg
	if bidLeg.Venue().Priority < askLeg.Venue().Priority {
		first, second = bidLeg, askLeg
	}

	return &Exchanger{
		first:    first,
		second:   second,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "exchanger")),
		notifier: notifier,
		record: domain.ExchangeRecord{
			ID:            uuid.New().String(),
			TargetBenefit: targetBenefit,
			StartedAt:     time.Now().UTC(),
		},
	}
}

// First returns the leg submitted first.
func (e *Exchanger) First() *Leg { return e.first }

// Second returns the leg submitted after the first is confirmed.
func (e *Exchanger) Second() *Leg { return e.second }

// Start runs the saga to completion and returns the finalized exchange
// record. It never returns an error: every failure mode degrades to a failed
// record, and only the enclosing loop decides whether to keep trading.
func (e *Exchanger) Start(ctx context.Context) domain.ExchangeRecord {
	e.logger.Info("starting exchange",
		slog.String("exchange_id", e.record.ID),
		slog.String("first_venue", e.first.Venue().Code),
		slog.String("second_venue", e.second.Venue().Code),
		slog.String("target_benefit", e.record.TargetBenefit.String()),
	)

	// Nothing is placed if the first leg is refused, so there is nothing to
	// compensate.
	if !e.first.Submit(ctx) {
		e.logger.Warn("first leg rejected, aborting exchange")
		return e.finalize(ctx, false)
	}

	if !e.submitSecondWithRetry(ctx) {
		e.compensate(ctx, e.first)
		return e.finalize(ctx, false)
	}

	bothExecuted := e.awaitExecution(ctx)
	if !bothExecuted {
		// At most one leg filled within the window. Both are rolled back:
		// the filled one is reversed, the resting one canceled.
		e.compensate(ctx, e.first)
		e.compensate(ctx, e.second)
	}

	return e.finalize(ctx, bothExecuted)
}

// submitSecondWithRetry retries the second submission at a fixed interval up
// to the configured attempt count.
func (e *Exchanger) submitSecondWithRetry(ctx context.Context) bool {
	attempts := 0
	for !e.second.Submit(ctx) {
		attempts++
		if attempts >= e.cfg.SecondLegRetries {
			e.logger.Warn("second leg failed after all retries",
				slog.Int("attempts", attempts),
				slog.String("venue", e.second.Venue().Code),
			)
			return false
		}
		if ctx.Err() != nil {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.cfg.RetryInterval):
		}
	}
	return true
}

// awaitExecution polls both legs at a fixed interval until both are executed
// or the execution-wait window elapses.
func (e *Exchanger) awaitExecution(ctx context.Context) bool {
	deadline := time.Now().Add(e.cfg.ExecutionWait)
	for {
		if e.first.Executed(ctx) && e.second.Executed(ctx) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			e.logger.Warn("execution wait elapsed with unmatched leg",
				slog.String("first_state", string(e.first.State())),
				slog.String("second_state", string(e.second.State())),
			)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.cfg.RetryInterval):
		}
	}
}

// compensate rolls a leg back. A rollback that exhausts its retries leaves a
// real unmatched position; that is surfaced with an error log plus a
// notification and then left to the operator.
func (e *Exchanger) compensate(ctx context.Context, leg *Leg) {
	if !leg.Submitted() {
		return
	}
	if leg.Rollback(ctx) {
		return
	}

	compErr := &domain.CompensationError{
		Venue:        leg.Venue().Code,
		Side:         leg.Side(),
		AcceptanceID: leg.Record().AcceptanceID,
	}
	e.logger.Error("COMPENSATION FAILED, unmatched position remains",
		slog.String("exchange_id", e.record.ID),
		slog.String("error", compErr.Error()),
	)
	if e.notifier != nil {
		_ = e.notifier.NotifyAll(ctx, notify.EventRollbackFailed, "Compensation failed", compErr.Error())
	}
}

// finalize reconciles every participating leg (reverse legs included),
// computes the realized benefit as the signed sum of leg prices, and seals
// the record.
func (e *Exchanger) finalize(ctx context.Context, result bool) domain.ExchangeRecord {
	benefit := decimal.Zero
	for _, leg := range []*Leg{e.first, e.second} {
		for _, l := range []*Leg{leg, leg.ReverseLeg()} {
			if l == nil {
				continue
			}
			if l.Submitted() {
				l.Reconcile(ctx)
			}
			rec := l.Record()
			e.record.Legs = append(e.record.Legs, rec)

			if !rec.Result {
				continue
			}
			if rec.Side == domain.SideAsk {
				benefit = benefit.Sub(rec.Price)
			} else {
				benefit = benefit.Add(rec.Price)
			}
		}
	}

	now := time.Now().UTC()
	e.record.Result = result
	e.record.Benefit = benefit
	e.record.CompletedAt = &now

	e.logger.Info("exchange finished",
		slog.String("exchange_id", e.record.ID),
		slog.Bool("result", result),
		slog.String("benefit", benefit.String()),
		slog.Int("legs", len(e.record.Legs)),
	)
	return e.record
}
