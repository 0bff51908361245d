// Package coincheck implements the broker adapter for the Coincheck REST
// API.
package coincheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/crypto"
	"github.com/stbmp23/arbitrager/internal/domain"
)

const (
	defaultBaseURL = "https://coincheck.com"
	pair           = "btc_jpy"
)

// Client implements domain.BrokerAdapter against Coincheck.
type Client struct {
	venue      *domain.Venue
	baseURL    string
	httpClient *http.Client
}

// New creates a Coincheck adapter for the given venue. An empty baseURL uses
// the production API.
func New(venue *domain.Venue, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		venue:   venue,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Venue returns the venue this adapter serves.
func (c *Client) Venue() *domain.Venue { return c.venue }

// GetOrderBook fetches the BTC/JPY board. Coincheck encodes levels as
// [price, volume] string pairs.
func (c *Client) GetOrderBook(ctx context.Context) (domain.RawBook, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/order_books", nil, false)
	if err != nil {
		return domain.RawBook{}, err
	}

	var resp struct {
		Asks [][2]string `json:"asks"`
		Bids [][2]string `json:"bids"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawBook{}, c.validationErr("get_order_book", err.Error())
	}

	parse := func(pairs [][2]string) ([]domain.BookLevel, error) {
		levels := make([]domain.BookLevel, 0, len(pairs))
		for _, p := range pairs {
			price, err := decimal.NewFromString(p[0])
			if err != nil {
				return nil, c.validationErr("get_order_book", "bad price "+p[0])
			}
			volume, err := decimal.NewFromString(p[1])
			if err != nil {
				return nil, c.validationErr("get_order_book", "bad volume "+p[1])
			}
			levels = append(levels, domain.BookLevel{Price: price, Volume: volume})
		}
		return levels, nil
	}

	asks, err := parse(resp.Asks)
	if err != nil {
		return domain.RawBook{}, err
	}
	bids, err := parse(resp.Bids)
	if err != nil {
		return domain.RawBook{}, err
	}
	return domain.RawBook{Asks: asks, Bids: bids}, nil
}

// GetBalance fetches the account's JPY and BTC amounts.
func (c *Client) GetBalance(ctx context.Context) (domain.RawBalance, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/accounts/balance", nil, true)
	if err != nil {
		return domain.RawBalance{}, err
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		JPY     string `json:"jpy"`
		BTC     string `json:"btc"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawBalance{}, c.validationErr("get_balance", err.Error())
	}
	if !resp.Success {
		return domain.RawBalance{}, c.validationErr("get_balance", resp.Error)
	}

	jpy, err := decimal.NewFromString(resp.JPY)
	if err != nil {
		return domain.RawBalance{}, c.validationErr("get_balance", "bad jpy "+resp.JPY)
	}
	btc, err := decimal.NewFromString(resp.BTC)
	if err != nil {
		return domain.RawBalance{}, c.validationErr("get_balance", "bad btc "+resp.BTC)
	}
	return domain.RawBalance{JPY: jpy, BTC: btc}, nil
}

// SubmitOrder places a limit order. An ask leg buys, a bid leg sells.
func (c *Client) SubmitOrder(ctx context.Context, side domain.Side, price, volume decimal.Decimal) (domain.SubmitResult, error) {
	orderType := "buy"
	if side == domain.SideBid {
		orderType = "sell"
	}

	req := map[string]any{
		"pair":       pair,
		"order_type": orderType,
		"rate":       json.Number(price.String()),
		"amount":     json.Number(volume.String()),
	}

	body, err := c.do(ctx, http.MethodPost, "/api/exchange/orders", req, true)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		ID      int64  `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SubmitResult{}, c.validationErr("submit_order", err.Error())
	}
	if !resp.Success || resp.ID == 0 {
		return domain.SubmitResult{}, c.validationErr("submit_order", resp.Error)
	}

	return domain.SubmitResult{
		AcceptanceID: strconv.FormatInt(resp.ID, 10),
		Raw:          string(body),
	}, nil
}

// CancelOrder cancels an open order by id. An order Coincheck no longer knows
// maps to ErrNotFound so callers can treat it as gone from the book.
func (c *Client) CancelOrder(ctx context.Context, acceptanceID string) (bool, error) {
	body, err := c.do(ctx, http.MethodDelete, "/api/exchange/orders/"+acceptanceID, nil, true)
	if err != nil {
		return false, err
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, c.validationErr("cancel_order", err.Error())
	}
	if !resp.Success {
		if strings.Contains(strings.ToLower(resp.Error), "not found") {
			return false, fmt.Errorf("coincheck: cancel %s: %w", acceptanceID, domain.ErrNotFound)
		}
		return false, c.validationErr("cancel_order", resp.Error)
	}
	return true, nil
}

// GetOrderStatus reports whether an order is still resting. Coincheck only
// exposes open orders, so an order absent from the open list is treated as
// completed; the reconcile pass against trade history settles the realized
// values either way.
func (c *Client) GetOrderStatus(ctx context.Context, acceptanceID string) (domain.OrderStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/exchange/orders/opens", nil, true)
	if err != nil {
		return domain.OrderStatus{}, err
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Orders  []struct {
			ID int64 `json:"id"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderStatus{}, c.validationErr("get_order_status", err.Error())
	}
	if !resp.Success {
		return domain.OrderStatus{}, c.validationErr("get_order_status", resp.Error)
	}

	for _, o := range resp.Orders {
		if strconv.FormatInt(o.ID, 10) == acceptanceID {
			return domain.OrderStatus{State: domain.OrderActive}, nil
		}
	}
	return domain.OrderStatus{State: domain.OrderCompleted}, nil
}

// GetOrderHistory returns executions since the given time.
func (c *Client) GetOrderHistory(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/exchange/orders/transactions", nil, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success      bool   `json:"success"`
		Error        string `json:"error"`
		Transactions []struct {
			OrderID   int64  `json:"order_id"`
			CreatedAt string `json:"created_at"`
			Funds     struct {
				BTC string `json:"btc"`
				JPY string `json:"jpy"`
			} `json:"funds"`
			Rate string `json:"rate"`
			Fee  string `json:"fee"`
			Side string `json:"side"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.validationErr("get_order_history", err.Error())
	}
	if !resp.Success {
		return nil, c.validationErr("get_order_history", resp.Error)
	}

	fills := make([]domain.Fill, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		executedAt, _ := time.Parse(time.RFC3339, tx.CreatedAt)
		if !since.IsZero() && !executedAt.IsZero() && executedAt.Before(since) {
			continue
		}

		price, err := decimal.NewFromString(tx.Rate)
		if err != nil {
			return nil, c.validationErr("get_order_history", "bad rate "+tx.Rate)
		}
		volume, err := decimal.NewFromString(tx.Funds.BTC)
		if err != nil {
			return nil, c.validationErr("get_order_history", "bad btc funds "+tx.Funds.BTC)
		}
		fee := decimal.Zero
		if tx.Fee != "" {
			fee, err = decimal.NewFromString(tx.Fee)
			if err != nil {
				return nil, c.validationErr("get_order_history", "bad fee "+tx.Fee)
			}
		}

		side := domain.SideAsk
		if tx.Side == "sell" {
			side = domain.SideBid
		}
		fills = append(fills, domain.Fill{
			AcceptanceID: strconv.FormatInt(tx.OrderID, 10),
			Side:         side,
			Price:        price,
			Volume:       volume.Abs(),
			Fee:          fee.Abs(),
			ExecutedAt:   executedAt,
		})
	}
	return fills, nil
}

// do performs one HTTP request. Private endpoints carry the Coincheck HMAC
// headers: the signature covers nonce+url+body.
func (c *Client) do(ctx context.Context, method, path string, reqBody any, signed bool) ([]byte, error) {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("coincheck: marshal request: %w", err)
		}
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("coincheck: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
		sign := crypto.SignHMACSHA256Hex(c.venue.Credentials.Secret, nonce+fullURL+string(bodyBytes))
		req.Header.Set("ACCESS-KEY", c.venue.Credentials.Key)
		req.Header.Set("ACCESS-NONCE", nonce)
		req.Header.Set("ACCESS-SIGNATURE", sign)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("coincheck: %s %s: %w", method, path, domain.ErrTimeout)
		}
		return nil, fmt.Errorf("coincheck: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coincheck: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("coincheck: %s %s: %w", method, path, domain.ErrNotFound)
		}
		return nil, c.validationErr(method+" "+path, fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}

func (c *Client) validationErr(op, detail string) error {
	return &domain.ValidationError{Venue: c.venue.Code, Op: op, Detail: detail}
}
