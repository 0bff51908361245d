package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one side of a venue's board after slippage adjustment.
type Quote struct {
	Venue  *Venue
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// BoardSnapshot is the per-venue view of one refresh cycle. A snapshot is
// published wholesale and never mutated afterwards; the previous snapshot is
// simply discarded.
type BoardSnapshot struct {
	Venue   *Venue
	BestAsk Quote
	BestBid Quote
	// NetExposure is the sum of bid volumes minus the sum of ask volumes
	// over the full book.
	NetExposure decimal.Decimal
	FetchedAt   time.Time
}
