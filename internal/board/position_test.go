package board

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/balance"
	"github.com/stbmp23/arbitrager/internal/domain"
)

// fakeAdapter serves a fixed order book and balance for one venue.
type fakeAdapter struct {
	venue   *domain.Venue
	book    domain.RawBook
	bookErr error
	funds   domain.RawBalance
}

func (f *fakeAdapter) Venue() *domain.Venue { return f.venue }

func (f *fakeAdapter) GetOrderBook(ctx context.Context) (domain.RawBook, error) {
	if f.bookErr != nil {
		return domain.RawBook{}, f.bookErr
	}
	return f.book, nil
}

func (f *fakeAdapter) GetBalance(ctx context.Context) (domain.RawBalance, error) {
	return f.funds, nil
}

func (f *fakeAdapter) SubmitOrder(ctx context.Context, side domain.Side, price, volume decimal.Decimal) (domain.SubmitResult, error) {
	return domain.SubmitResult{}, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, acceptanceID string) (bool, error) {
	return true, nil
}

func (f *fakeAdapter) GetOrderStatus(ctx context.Context, acceptanceID string) (domain.OrderStatus, error) {
	return domain.OrderStatus{State: domain.OrderUnknown}, nil
}

func (f *fakeAdapter) GetOrderHistory(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testVenue(code string, priority int, commissionPct string) *domain.Venue {
	return &domain.Venue{
		Code:              code,
		Name:              code,
		CommissionPercent: dec(commissionPct),
		Priority:          priority,
		Enabled:           true,
	}
}

// testBalance builds a refreshed Balance holding the given funds.
func testBalance(t *testing.T, venue *domain.Venue, jpy, btc string, cfg balance.Config) *balance.Balance {
	t.Helper()
	adapter := &fakeAdapter{
		venue: venue,
		funds: domain.RawBalance{JPY: dec(jpy), BTC: dec(btc)},
	}
	b := balance.New(venue, adapter, cfg, testLogger())
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh balance: %v", err)
	}
	return b
}

func testLimits() Limits {
	return Limits{
		MaxSize:          dec("1"),
		MinSize:          dec("0.001"),
		MinProfit:        decimal.Zero,
		MinProfitPercent: decimal.Zero,
	}
}

func TestPositionProfit(t *testing.T) {
	askVenue := testVenue("a", 1, "0")
	bidVenue := testVenue("b", 2, "0")
	balCfg := balance.Config{}

	pos := NewPosition(
		domain.Quote{Venue: askVenue, Price: dec("1000000"), Volume: dec("1")},
		domain.Quote{Venue: bidVenue, Price: dec("1200000"), Volume: dec("1")},
		testBalance(t, askVenue, "10000000", "10", balCfg),
		testBalance(t, bidVenue, "10000000", "10", balCfg),
		testLimits(),
	)

	if !pos.Profit().Equal(dec("200000")) {
		t.Fatalf("profit = %s, want 200000", pos.Profit())
	}
	if got := pos.ProfitPercent().Round(2); !got.Equal(dec("18.18")) {
		t.Fatalf("profit percent = %s, want 18.18", got)
	}
	if !pos.CanExchange() {
		t.Fatal("CanExchange() = false, want true")
	}
}

func TestPositionCommission(t *testing.T) {
	askVenue := testVenue("a", 1, "0.1")
	bidVenue := testVenue("b", 2, "0.1")
	balCfg := balance.Config{}

	pos := NewPosition(
		domain.Quote{Venue: askVenue, Price: dec("1000000"), Volume: dec("1")},
		domain.Quote{Venue: bidVenue, Price: dec("1200000"), Volume: dec("1")},
		testBalance(t, askVenue, "10000000", "10", balCfg),
		testBalance(t, bidVenue, "10000000", "10", balCfg),
		testLimits(),
	)

	if !pos.AskExchangePrice().Equal(dec("1001000")) {
		t.Fatalf("ask exchange price = %s, want 1001000", pos.AskExchangePrice())
	}
	if !pos.BidExchangePrice().Equal(dec("1198800")) {
		t.Fatalf("bid exchange price = %s, want 1198800", pos.BidExchangePrice())
	}
	if !pos.Profit().Equal(dec("197800")) {
		t.Fatalf("profit = %s, want 197800", pos.Profit())
	}
}

func TestPositionTargetVolume(t *testing.T) {
	tests := []struct {
		name      string
		askVolume string
		bidVolume string
		maxSize   string
		want      string
	}{
		{name: "ask side caps", askVolume: "0.3", bidVolume: "2", maxSize: "1", want: "0.3"},
		{name: "bid side caps", askVolume: "2", bidVolume: "0.4", maxSize: "1", want: "0.4"},
		{name: "max size caps", askVolume: "2", bidVolume: "3", maxSize: "1", want: "1"},
	}

	askVenue := testVenue("a", 1, "0")
	bidVenue := testVenue("b", 2, "0")
	balCfg := balance.Config{}
	askBal := testBalance(t, askVenue, "10000000", "10", balCfg)
	bidBal := testBalance(t, bidVenue, "10000000", "10", balCfg)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := testLimits()
			limits.MaxSize = dec(tt.maxSize)
			pos := NewPosition(
				domain.Quote{Venue: askVenue, Price: dec("1000000"), Volume: dec(tt.askVolume)},
				domain.Quote{Venue: bidVenue, Price: dec("1200000"), Volume: dec(tt.bidVolume)},
				askBal, bidBal, limits,
			)
			if !pos.TargetVolume().Equal(dec(tt.want)) {
				t.Fatalf("TargetVolume() = %s, want %s", pos.TargetVolume(), tt.want)
			}
		})
	}
}

func TestPositionFeasibility(t *testing.T) {
	askVenue := testVenue("a", 1, "0")
	bidVenue := testVenue("b", 2, "0")
	threshold := balance.Config{ThresholdJPY: dec("50000"), ThresholdBTC: dec("0.1")}

	quoteAsk := domain.Quote{Venue: askVenue, Price: dec("1000000"), Volume: dec("1")}
	quoteBid := domain.Quote{Venue: bidVenue, Price: dec("1200000"), Volume: dec("1")}

	t.Run("insufficient jpy blocks the ask leg", func(t *testing.T) {
		pos := NewPosition(quoteAsk, quoteBid,
			testBalance(t, askVenue, "900000", "10", threshold),
			testBalance(t, bidVenue, "10000000", "10", threshold),
			testLimits(),
		)
		if pos.CanAsk() {
			t.Fatal("CanAsk() = true with JPY below the trade cost")
		}
		if pos.CanExchange() {
			t.Fatal("CanExchange() = true with an infeasible leg")
		}
	})

	t.Run("insufficient btc blocks the bid leg", func(t *testing.T) {
		pos := NewPosition(quoteAsk, quoteBid,
			testBalance(t, askVenue, "10000000", "10", threshold),
			testBalance(t, bidVenue, "10000000", "0.5", threshold),
			testLimits(),
		)
		if pos.CanBid() {
			t.Fatal("CanBid() = true with BTC below the target volume")
		}
	})

	t.Run("volume below minimum is infeasible", func(t *testing.T) {
		limits := testLimits()
		limits.MinSize = dec("0.5")
		small := domain.Quote{Venue: askVenue, Price: dec("1000000"), Volume: dec("0.1")}
		pos := NewPosition(small, quoteBid,
			testBalance(t, askVenue, "10000000", "10", threshold),
			testBalance(t, bidVenue, "10000000", "10", threshold),
			limits,
		)
		if pos.VolumeOK() {
			t.Fatal("VolumeOK() = true below min size")
		}
	})

	t.Run("unprofitable spread is infeasible", func(t *testing.T) {
		limits := testLimits()
		limits.MinProfit = dec("300000")
		pos := NewPosition(quoteAsk, quoteBid,
			testBalance(t, askVenue, "10000000", "10", threshold),
			testBalance(t, bidVenue, "10000000", "10", threshold),
			limits,
		)
		if pos.ProfitOK() {
			t.Fatal("ProfitOK() = true below min profit")
		}
	})
}
