package balance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// fakeAdapter serves a fixed balance for one venue.
type fakeAdapter struct {
	venue        *domain.Venue
	funds        domain.RawBalance
	fundsErr     error
	balanceCalls int
}

func (f *fakeAdapter) Venue() *domain.Venue { return f.venue }

func (f *fakeAdapter) GetOrderBook(ctx context.Context) (domain.RawBook, error) {
	return domain.RawBook{}, nil
}

func (f *fakeAdapter) GetBalance(ctx context.Context) (domain.RawBalance, error) {
	f.balanceCalls++
	if f.fundsErr != nil {
		return domain.RawBalance{}, f.fundsErr
	}
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

func testVenue(code string, priority int) *domain.Venue {
	return &domain.Venue{Code: code, Name: code, Priority: priority, Enabled: true}
}

func TestBalanceZeroBeforeRefresh(t *testing.T) {
	v := testVenue("a", 1)
	b := New(v, &fakeAdapter{venue: v}, Config{}, testLogger())

	if !b.JPY().IsZero() || !b.BTC().IsZero() {
		t.Fatalf("amounts before refresh = %s JPY / %s BTC, want zero", b.JPY(), b.BTC())
	}
}

func TestBalanceRefresh(t *testing.T) {
	v := testVenue("a", 1)
	adapter := &fakeAdapter{
		venue: v,
		funds: domain.RawBalance{JPY: dec("123456.78"), BTC: dec("1.5")},
	}
	b := New(v, adapter, Config{}, testLogger())

	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !b.JPY().Equal(dec("123456.78")) {
		t.Fatalf("JPY = %s, want 123456.78", b.JPY())
	}
	if !b.BTC().Equal(dec("1.5")) {
		t.Fatalf("BTC = %s, want 1.5", b.BTC())
	}
}

func TestBalanceOK(t *testing.T) {
	tests := []struct {
		name string
		jpy  string
		btc  string
		want bool
	}{
		{name: "both above thresholds", jpy: "100000", btc: "1", want: true},
		{name: "exactly at thresholds", jpy: "50000", btc: "0.1", want: true},
		{name: "jpy below", jpy: "49999", btc: "1", want: false},
		{name: "btc below", jpy: "100000", btc: "0.09", want: false},
	}

	cfg := Config{ThresholdJPY: dec("50000"), ThresholdBTC: dec("0.1")}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testVenue("a", 1)
			adapter := &fakeAdapter{
				venue: v,
				funds: domain.RawBalance{JPY: dec(tt.jpy), BTC: dec(tt.btc)},
			}
			b := New(v, adapter, cfg, testLogger())
			if err := b.Refresh(context.Background()); err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if got := b.OK(); got != tt.want {
				t.Fatalf("OK() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBalanceRefreshWithRetryDeadline(t *testing.T) {
	v := testVenue("a", 1)
	adapter := &fakeAdapter{venue: v, fundsErr: errors.New("venue unreachable")}
	cfg := Config{RefreshInterval: time.Millisecond, CheckDeadline: 5 * time.Millisecond}
	b := New(v, adapter, cfg, testLogger())

	if err := b.RefreshWithRetry(context.Background()); err == nil {
		t.Fatal("RefreshWithRetry succeeded against an unreachable venue")
	}
}

func newTestGuard(t *testing.T, adapters ...*fakeAdapter) *Guard {
	t.Helper()

	venues := make([]*domain.Venue, 0, len(adapters))
	domainAdapters := make(map[string]domain.BrokerAdapter, len(adapters))
	for _, a := range adapters {
		venues = append(venues, a.venue)
		domainAdapters[a.venue.Code] = a
	}

	cfg := Config{
		ThresholdJPY:    dec("50000"),
		ThresholdBTC:    dec("0.1"),
		RefreshInterval: time.Millisecond,
		CheckDeadline:   5 * time.Millisecond,
	}
	g, err := NewGuard(domain.NewRegistry(venues), domainAdapters, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return g
}

func TestGuardRefreshAllOrNothing(t *testing.T) {
	healthy := &fakeAdapter{
		venue: testVenue("a", 1),
		funds: domain.RawBalance{JPY: dec("100000"), BTC: dec("1")},
	}
	broken := &fakeAdapter{venue: testVenue("b", 2), fundsErr: errors.New("venue unreachable")}

	g := newTestGuard(t, healthy, broken)
	if err := g.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded with one venue down")
	}
}

func TestGuardRefreshSingleAttemptPerVenue(t *testing.T) {
	broken := &fakeAdapter{venue: testVenue("a", 1), fundsErr: errors.New("venue unreachable")}

	g := newTestGuard(t, broken)
	if err := g.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded with the venue down")
	}
	// One fan-out attempt per venue; per-venue retry loops here would let
	// OK overrun its health-check deadline.
	if broken.balanceCalls != 1 {
		t.Fatalf("balance calls = %d, want 1", broken.balanceCalls)
	}
}

func TestGuardOK(t *testing.T) {
	t.Run("all venues above thresholds", func(t *testing.T) {
		g := newTestGuard(t,
			&fakeAdapter{venue: testVenue("a", 1), funds: domain.RawBalance{JPY: dec("100000"), BTC: dec("1")}},
			&fakeAdapter{venue: testVenue("b", 2), funds: domain.RawBalance{JPY: dec("200000"), BTC: dec("2")}},
		)
		if !g.OK(context.Background()) {
			t.Fatal("OK() = false, want true")
		}
	})

	t.Run("one venue below threshold", func(t *testing.T) {
		g := newTestGuard(t,
			&fakeAdapter{venue: testVenue("a", 1), funds: domain.RawBalance{JPY: dec("100000"), BTC: dec("1")}},
			&fakeAdapter{venue: testVenue("b", 2), funds: domain.RawBalance{JPY: dec("100"), BTC: dec("2")}},
		)
		if g.OK(context.Background()) {
			t.Fatal("OK() = true with a venue below threshold")
		}
	})
}

func TestGuardFind(t *testing.T) {
	g := newTestGuard(t,
		&fakeAdapter{venue: testVenue("a", 1), funds: domain.RawBalance{JPY: dec("100000"), BTC: dec("1")}},
	)

	if _, err := g.Find("a"); err != nil {
		t.Fatalf("Find(a): %v", err)
	}
	if _, err := g.Find("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Find(nope) error = %v, want ErrNotFound", err)
	}
}

func TestGuardSnapshot(t *testing.T) {
	g := newTestGuard(t,
		&fakeAdapter{venue: testVenue("a", 1), funds: domain.RawBalance{JPY: dec("100000"), BTC: dec("1")}},
		&fakeAdapter{venue: testVenue("b", 2), funds: domain.RawBalance{JPY: dec("200000"), BTC: dec("2")}},
	)
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	rows := g.Snapshot()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].VenueCode != "a" || !rows[0].JPY.Equal(dec("100000")) {
		t.Fatalf("row[0] = %s %s, want a 100000", rows[0].VenueCode, rows[0].JPY)
	}
}
