package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is one side of a two-legged arbitrage trade. An ask leg buys from the
// sell board; a bid leg sells into the buy board.
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// Opposite returns the compensating side.
func (s Side) Opposite() Side {
	if s == SideAsk {
		return SideBid
	}
	return SideAsk
}

// BookLevel is a single price level of a raw order book.
type BookLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// RawBook is an unprocessed order book as returned by a venue.
type RawBook struct {
	Asks []BookLevel
	Bids []BookLevel
}

// RawBalance is the funds held at a venue.
type RawBalance struct {
	JPY decimal.Decimal
	BTC decimal.Decimal
}

// OrderState is the venue-reported lifecycle state of a submitted order.
type OrderState string

const (
	OrderActive    OrderState = "active"
	OrderCompleted OrderState = "completed"
	OrderCanceled  OrderState = "canceled"
	OrderUnknown   OrderState = "unknown"
)

// OrderStatus is the result of polling a venue for a submitted order.
type OrderStatus struct {
	State          OrderState
	AveragePrice   decimal.Decimal
	ExecutedVolume decimal.Decimal
	Fee            decimal.Decimal
}

// SubmitResult is a venue's acknowledgment of an order submission.
type SubmitResult struct {
	AcceptanceID string
	Raw          string
}

// Fill is one executed trade from a venue's history.
type Fill struct {
	AcceptanceID string
	Side         Side
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Fee          decimal.Decimal
	ExecutedAt   time.Time
}

// BrokerAdapter is the per-venue I/O boundary. One implementation exists per
// exchange; everything above it is venue-agnostic.
//
// Every method surfaces timeouts wrapped in ErrTimeout and malformed
// responses as *ValidationError, so callers can branch retryable failures
// from fatal ones.
type BrokerAdapter interface {
	Venue() *Venue

	GetOrderBook(ctx context.Context) (RawBook, error)
	GetBalance(ctx context.Context) (RawBalance, error)

	// SubmitOrder places a limit order. An ask side submits a buy, a bid
	// side submits a sell.
	SubmitOrder(ctx context.Context, side Side, price, volume decimal.Decimal) (SubmitResult, error)

	// CancelOrder requests cancellation. Implementations return ErrNotFound
	// when the venue no longer knows the order (already filled or expired);
	// callers treat that as a successful cancel because the order is gone
	// from the book either way.
	CancelOrder(ctx context.Context, acceptanceID string) (bool, error)

	GetOrderStatus(ctx context.Context, acceptanceID string) (OrderStatus, error)

	// GetOrderHistory returns the venue's executed trades since the given
	// time, used to reconcile realized prices after execution.
	GetOrderHistory(ctx context.Context, since time.Time) ([]Fill, error)
}
