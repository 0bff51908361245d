package board

import (
	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/balance"
	"github.com/stbmp23/arbitrager/internal/domain"
)

// Limits are the configured feasibility bounds shared by all candidate
// positions.
type Limits struct {
	MaxSize          decimal.Decimal
	MinSize          decimal.Decimal
	MinProfit        decimal.Decimal
	MinProfitPercent decimal.Decimal
}

// Position pairs one venue's best ask with another venue's best bid and
// derives the tradable volume, fee-inclusive prices, and profit. Positions
// are ephemeral; they are recomputed every analysis cycle and never persisted
// directly.
type Position struct {
	Ask domain.Quote
	Bid domain.Quote

	askBalance *balance.Balance
	bidBalance *balance.Balance
	limits     Limits

	volume decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// NewPosition builds a candidate position. The ask and bid quotes must come
// from different venues; the caller enumerates only such pairs.
func NewPosition(ask, bid domain.Quote, askBal, bidBal *balance.Balance, limits Limits) *Position {
	volume := decimal.Min(ask.Volume, bid.Volume, limits.MaxSize)
	return &Position{
		Ask:        ask,
		Bid:        bid,
		askBalance: askBal,
		bidBalance: bidBal,
		limits:     limits,
		volume:     volume,
	}
}

// TargetVolume is min(ask volume, bid volume, configured max size).
func (p *Position) TargetVolume() decimal.Decimal { return p.volume }

func (p *Position) basePrice(q domain.Quote) decimal.Decimal {
	return q.Price.Mul(p.volume)
}

func (p *Position) commission(q domain.Quote) decimal.Decimal {
	return p.basePrice(q).Mul(q.Venue.CommissionPercent).Div(oneHundred)
}

// AskExchangePrice is the fee-inclusive cost of buying the target volume from
// the ask board.
func (p *Position) AskExchangePrice() decimal.Decimal {
	return p.basePrice(p.Ask).Add(p.commission(p.Ask))
}

// BidExchangePrice is the fee-inclusive proceeds of selling the target volume
// into the bid board.
func (p *Position) BidExchangePrice() decimal.Decimal {
	return p.basePrice(p.Bid).Sub(p.commission(p.Bid))
}

// Profit is the fee-inclusive benefit of executing both legs.
func (p *Position) Profit() decimal.Decimal {
	return p.BidExchangePrice().Sub(p.AskExchangePrice())
}

// ProfitPercent relates the profit to the mid-price notional of the trade.
func (p *Position) ProfitPercent() decimal.Decimal {
	mid := p.Ask.Price.Add(p.Bid.Price).Div(decimal.NewFromInt(2))
	notional := mid.Mul(p.volume)
	if notional.IsZero() {
		return decimal.Zero
	}
	return p.Profit().Div(notional).Mul(oneHundred)
}

// CanAsk reports whether the ask venue holds enough JPY: above its threshold
// and above the fee-inclusive cost.
func (p *Position) CanAsk() bool {
	jpy := p.askBalance.JPY()
	return jpy.GreaterThan(p.askBalance.ThresholdJPY()) &&
		jpy.GreaterThan(p.AskExchangePrice())
}

// CanBid reports whether the bid venue holds enough BTC: above its threshold
// and above the target volume.
func (p *Position) CanBid() bool {
	btc := p.bidBalance.BTC()
	return btc.GreaterThan(p.bidBalance.ThresholdBTC()) &&
		btc.GreaterThan(p.volume)
}

// ProfitOK reports whether the fee-inclusive profit clears the configured
// minimum.
func (p *Position) ProfitOK() bool {
	return p.Profit().GreaterThan(p.limits.MinProfit)
}

// ProfitPercentOK reports whether the profit percentage clears the configured
// minimum.
func (p *Position) ProfitPercentOK() bool {
	return p.ProfitPercent().GreaterThan(p.limits.MinProfitPercent)
}

// VolumeOK reports whether the target volume lies within the configured
// size bounds.
func (p *Position) VolumeOK() bool {
	return p.volume.GreaterThanOrEqual(p.limits.MinSize) &&
		p.volume.LessThanOrEqual(p.limits.MaxSize)
}

// CanExchange is the conjunction of every feasibility check.
func (p *Position) CanExchange() bool {
	return p.CanAsk() &&
		p.CanBid() &&
		p.ProfitOK() &&
		p.ProfitPercentOK() &&
		p.VolumeOK()
}
