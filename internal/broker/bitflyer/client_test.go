package bitflyer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/crypto"
	"github.com/stbmp23/arbitrager/internal/domain"
)

func testVenue() *domain.Venue {
	return &domain.Venue{
		Code:     "bitflyer",
		Name:     "bitFlyer",
		Priority: 1,
		Enabled:  true,
		Credentials: domain.Credentials{
			Key:    "test-key",
			Secret: "test-secret",
		},
	}
}

func TestGetOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/board" {
			t.Errorf("path = %s, want /v1/board", r.URL.Path)
		}
		if got := r.URL.Query().Get("product_code"); got != "BTC_JPY" {
			t.Errorf("product_code = %s, want BTC_JPY", got)
		}
		w.Write([]byte(`{
			"mid_price": 1000500,
			"asks": [{"price": 1001000, "size": 0.5}, {"price": 1002000, "size": 1.0}],
			"bids": [{"price": 1000000, "size": 0.3}]
		}`))
	}))
	defer srv.Close()

	c := New(testVenue(), srv.URL)
	book, err := c.GetOrderBook(context.Background())
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}

	if len(book.Asks) != 2 || len(book.Bids) != 1 {
		t.Fatalf("levels = %d asks / %d bids, want 2/1", len(book.Asks), len(book.Bids))
	}
	if !book.Asks[0].Price.Equal(decimal.NewFromInt(1001000)) {
		t.Fatalf("ask price = %s, want 1001000", book.Asks[0].Price)
	}
	if !book.Bids[0].Volume.Equal(decimal.NewFromFloat(0.3)) {
		t.Fatalf("bid volume = %s, want 0.3", book.Bids[0].Volume)
	}
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ACCESS-KEY") != "test-key" {
			t.Errorf("ACCESS-KEY = %q, want test-key", r.Header.Get("ACCESS-KEY"))
		}
		ts := r.Header.Get("ACCESS-TIMESTAMP")
		want := crypto.SignHMACSHA256Hex("test-secret", ts+"GET"+"/v1/me/getbalance")
		if got := r.Header.Get("ACCESS-SIGN"); got != want {
			t.Errorf("ACCESS-SIGN = %q, want %q", got, want)
		}
		w.Write([]byte(`[
			{"currency_code": "JPY", "amount": 123456.78, "available": 100000},
			{"currency_code": "BTC", "amount": 1.5, "available": 1.0},
			{"currency_code": "ETH", "amount": 99, "available": 99}
		]`))
	}))
	defer srv.Close()

	c := New(testVenue(), srv.URL)
	bal, err := c.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.JPY.Equal(decimal.NewFromFloat(123456.78)) {
		t.Fatalf("JPY = %s, want 123456.78", bal.JPY)
	}
	if !bal.BTC.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("BTC = %s, want 1.5", bal.BTC)
	}
}

func TestSubmitOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["side"] != "BUY" {
			t.Errorf("side = %v, want BUY", req["side"])
		}
		if req["child_order_type"] != "LIMIT" {
			t.Errorf("order type = %v, want LIMIT", req["child_order_type"])
		}
		w.Write([]byte(`{"child_order_acceptance_id": "JRF20260901-000001"}`))
	}))
	defer srv.Close()

	c := New(testVenue(), srv.URL)
	res, err := c.SubmitOrder(context.Background(), domain.SideAsk,
		decimal.NewFromInt(1000000), decimal.NewFromFloat(0.01))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if res.AcceptanceID != "JRF20260901-000001" {
		t.Fatalf("acceptance id = %s, want JRF20260901-000001", res.AcceptanceID)
	}
}

func TestSubmitOrderMissingAcceptanceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(testVenue(), srv.URL)
	_, err := c.SubmitOrder(context.Background(), domain.SideAsk,
		decimal.NewFromInt(1000000), decimal.NewFromFloat(0.01))

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
}

func TestCancelOrder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := New(testVenue(), srv.URL)
		ok, err := c.CancelOrder(context.Background(), "JRF-1")
		if err != nil || !ok {
			t.Fatalf("CancelOrder = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("unknown order maps to ErrNotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status": -110, "error_message": "Order not found"}`))
		}))
		defer srv.Close()

		c := New(testVenue(), srv.URL)
		_, err := c.CancelOrder(context.Background(), "JRF-gone")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestGetOrderStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.OrderState
	}{
		{name: "completed", body: `[{"child_order_state": "COMPLETED", "average_price": 1000100, "executed_size": 0.01, "total_commission": 0.0000015}]`, want: domain.OrderCompleted},
		{name: "active", body: `[{"child_order_state": "ACTIVE"}]`, want: domain.OrderActive},
		{name: "canceled", body: `[{"child_order_state": "CANCELED"}]`, want: domain.OrderCanceled},
		{name: "not visible yet", body: `[]`, want: domain.OrderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(testVenue(), srv.URL)
			status, err := c.GetOrderStatus(context.Background(), "JRF-1")
			if err != nil {
				t.Fatalf("GetOrderStatus: %v", err)
			}
			if status.State != tt.want {
				t.Fatalf("state = %s, want %s", status.State, tt.want)
			}
		})
	}
}

func TestGetOrderHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"side": "BUY", "price": 1000100, "size": 0.01, "commission": 0.0000015,
			 "exec_date": "2026-09-01T02:43:34.773", "child_order_acceptance_id": "JRF-1"},
			{"side": "SELL", "price": 999000, "size": 0.02, "commission": 0,
			 "exec_date": "2020-01-01T00:00:00.000", "child_order_acceptance_id": "JRF-old"}
		]`))
	}))
	defer srv.Close()

	c := New(testVenue(), srv.URL)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fills, err := c.GetOrderHistory(context.Background(), since)
	if err != nil {
		t.Fatalf("GetOrderHistory: %v", err)
	}

	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1 (older execution filtered)", len(fills))
	}
	if fills[0].AcceptanceID != "JRF-1" {
		t.Fatalf("acceptance id = %s, want JRF-1", fills[0].AcceptanceID)
	}
	if fills[0].Side != domain.SideAsk {
		t.Fatalf("side = %s, want ask", fills[0].Side)
	}
}

func TestServerErrorIsValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error_message": "internal"}`))
	}))
	defer srv.Close()

	c := New(testVenue(), srv.URL)
	_, err := c.GetOrderBook(context.Background())

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if ve.Venue != "bitflyer" {
		t.Fatalf("venue = %s, want bitflyer", ve.Venue)
	}
}
