package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRecord is the audit row for one saga execution: the benefit targeted
// at decision time, the outcome, and every participating leg in order,
// reverse legs included. It is finalized when the saga concludes and is
// immutable thereafter.
type ExchangeRecord struct {
	ID            string
	TargetBenefit decimal.Decimal
	// Benefit is the realized sum of signed leg prices: ask legs subtracted,
	// bid legs added.
	Benefit     decimal.Decimal
	Result      bool
	Legs        []LegRecord
	StartedAt   time.Time
	CompletedAt *time.Time
}

// BalanceHistory captures one venue's funds around a saga execution.
type BalanceHistory struct {
	VenueCode  string
	ExchangeID string
	JPY        decimal.Decimal
	BTC        decimal.Decimal
	BeforeJPY  decimal.Decimal
	BeforeBTC  decimal.Decimal
	RecordedAt time.Time
}
