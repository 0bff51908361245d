package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeStore persists exchange records with their legs.
type ExchangeStore interface {
	Create(ctx context.Context, rec ExchangeRecord) error
	GetByID(ctx context.Context, id string) (ExchangeRecord, error)
}

// BalanceHistoryStore persists per-venue balance rows around saga executions.
type BalanceHistoryStore interface {
	CreateBatch(ctx context.Context, rows []BalanceHistory) error
}

// CycleSnapshot is the per-analysis-cycle summary published for operational
// visibility: every venue's board plus the chosen position, if any.
type CycleSnapshot struct {
	Boards      []BoardSnapshot
	AskVenue    string
	BidVenue    string
	Profit      decimal.Decimal
	NetExposure decimal.Decimal
	At          time.Time
}

// BoardCache publishes the latest analysis cycle to a shared cache.
type BoardCache interface {
	SetCycle(ctx context.Context, snap CycleSnapshot) error
}
