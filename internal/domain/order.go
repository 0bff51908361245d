package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegState is the lifecycle state of one order leg.
type LegState string

const (
	LegCreated   LegState = "created"
	LegSubmitted LegState = "submitted"
	LegExecuted  LegState = "executed"
	LegCanceled  LegState = "canceled"
	LegReversed  LegState = "reversed"
	LegFailed    LegState = "failed"
)

// LegRecord is the persisted view of one order leg's life, including any
// compensating leg placed during rollback.
type LegRecord struct {
	ID           string
	VenueCode    string
	Side         Side
	TargetPrice  decimal.Decimal
	TargetVolume decimal.Decimal

	// Realized values, back-filled from the venue's history once the order
	// is confirmed. The fill price may differ from the limit price.
	Price  decimal.Decimal
	Volume decimal.Decimal
	Fee    decimal.Decimal

	AcceptanceID string
	RawResponse  string
	State        LegState
	// Result records whether submission was accepted by the venue.
	Result bool
	// Reverse marks a compensating leg. A reverse leg never owns a reverse
	// of its own.
	Reverse    bool
	StartedAt  time.Time
	CanceledAt *time.Time
}
