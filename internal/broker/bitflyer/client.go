// Package bitflyer implements the broker adapter for the bitFlyer Lightning
// REST API.
package bitflyer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/crypto"
	"github.com/stbmp23/arbitrager/internal/domain"
)

const (
	defaultBaseURL = "https://api.bitflyer.com"
	productCode    = "BTC_JPY"
	// execDateLayout is bitFlyer's naive-UTC timestamp format.
	execDateLayout = "2006-01-02T15:04:05.999999999"
)

// Client implements domain.BrokerAdapter against bitFlyer.
type Client struct {
	venue      *domain.Venue
	baseURL    string
	httpClient *http.Client
}

// New creates a bitFlyer adapter for the given venue. An empty baseURL uses
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

// GetOrderBook fetches the full BTC/JPY board.
func (c *Client) GetOrderBook(ctx context.Context) (domain.RawBook, error) {
	q := url.Values{"product_code": {productCode}}
	body, err := c.do(ctx, http.MethodGet, "/v1/board", q, nil, false)
	if err != nil {
		return domain.RawBook{}, err
	}

	var resp struct {
		Asks []struct {
			Price float64 `json:"price"`
			Size  float64 `json:"size"`
		} `json:"asks"`
		Bids []struct {
			Price float64 `json:"price"`
			Size  float64 `json:"size"`
		} `json:"bids"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawBook{}, c.validationErr("get_order_book", err.Error())
	}

	book := domain.RawBook{
		Asks: make([]domain.BookLevel, 0, len(resp.Asks)),
		Bids: make([]domain.BookLevel, 0, len(resp.Bids)),
	}
	for _, lv := range resp.Asks {
		book.Asks = append(book.Asks, domain.BookLevel{
			Price:  decimal.NewFromFloat(lv.Price),
			Volume: decimal.NewFromFloat(lv.Size),
		})
	}
	for _, lv := range resp.Bids {
		book.Bids = append(book.Bids, domain.BookLevel{
			Price:  decimal.NewFromFloat(lv.Price),
			Volume: decimal.NewFromFloat(lv.Size),
		})
	}
	return book, nil
}

// GetBalance fetches the account's JPY and BTC amounts.
func (c *Client) GetBalance(ctx context.Context) (domain.RawBalance, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/me/getbalance", nil, nil, true)
	if err != nil {
		return domain.RawBalance{}, err
	}

	var resp []struct {
		CurrencyCode string  `json:"currency_code"`
		Amount       float64 `json:"amount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawBalance{}, c.validationErr("get_balance", err.Error())
	}

	var bal domain.RawBalance
	for _, entry := range resp {
		switch entry.CurrencyCode {
		case "JPY":
			bal.JPY = decimal.NewFromFloat(entry.Amount)
		case "BTC":
			bal.BTC = decimal.NewFromFloat(entry.Amount)
		}
	}
	return bal, nil
}

// SubmitOrder places a limit child order. An ask leg buys, a bid leg sells.
func (c *Client) SubmitOrder(ctx context.Context, side domain.Side, price, volume decimal.Decimal) (domain.SubmitResult, error) {
	bfSide := "BUY"
	if side == domain.SideBid {
		bfSide = "SELL"
	}

	req := map[string]any{
		"product_code":     productCode,
		"child_order_type": "LIMIT",
		"side":             bfSide,
		"price":            json.Number(price.String()),
		"size":             json.Number(volume.String()),
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/me/sendchildorder", nil, req, true)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	var resp struct {
		ChildOrderAcceptanceID string `json:"child_order_acceptance_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SubmitResult{}, c.validationErr("submit_order", err.Error())
	}
	if resp.ChildOrderAcceptanceID == "" {
		return domain.SubmitResult{}, c.validationErr("submit_order", "missing child_order_acceptance_id")
	}

	return domain.SubmitResult{AcceptanceID: resp.ChildOrderAcceptanceID, Raw: string(body)}, nil
}

// CancelOrder cancels a child order by acceptance id. bitFlyer answers an
// unknown or already-settled order with an error body; that maps to
// ErrNotFound so callers can treat the order as gone.
func (c *Client) CancelOrder(ctx context.Context, acceptanceID string) (bool, error) {
	req := map[string]any{
		"product_code":              productCode,
		"child_order_acceptance_id": acceptanceID,
	}

	_, err := c.do(ctx, http.MethodPost, "/v1/me/cancelchildorder", nil, req, true)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) && strings.Contains(strings.ToLower(ve.Detail), "not found") {
			return false, fmt.Errorf("bitflyer: cancel %s: %w", acceptanceID, domain.ErrNotFound)
		}
		return false, err
	}
	return true, nil
}

// GetOrderStatus polls a child order. An order not yet visible in the listing
// reports OrderUnknown without an error.
func (c *Client) GetOrderStatus(ctx context.Context, acceptanceID string) (domain.OrderStatus, error) {
	q := url.Values{
		"product_code":              {productCode},
		"child_order_acceptance_id": {acceptanceID},
	}
	body, err := c.do(ctx, http.MethodGet, "/v1/me/getchildorders", q, nil, true)
	if err != nil {
		return domain.OrderStatus{}, err
	}

	var resp []struct {
		ChildOrderState string  `json:"child_order_state"`
		AveragePrice    float64 `json:"average_price"`
		ExecutedSize    float64 `json:"executed_size"`
		TotalCommission float64 `json:"total_commission"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderStatus{}, c.validationErr("get_order_status", err.Error())
	}
	if len(resp) == 0 {
		return domain.OrderStatus{State: domain.OrderUnknown}, nil
	}

	entry := resp[0]
	status := domain.OrderStatus{
		AveragePrice:   decimal.NewFromFloat(entry.AveragePrice),
		ExecutedVolume: decimal.NewFromFloat(entry.ExecutedSize),
		Fee:            decimal.NewFromFloat(entry.TotalCommission),
	}
	switch entry.ChildOrderState {
	case "COMPLETED":
		status.State = domain.OrderCompleted
	case "CANCELED", "EXPIRED", "REJECTED":
		status.State = domain.OrderCanceled
	case "ACTIVE":
		status.State = domain.OrderActive
	default:
		status.State = domain.OrderUnknown
	}
	return status, nil
}

// GetOrderHistory returns executions since the given time.
func (c *Client) GetOrderHistory(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	q := url.Values{
		"product_code": {productCode},
		"count":        {"100"},
	}
	body, err := c.do(ctx, http.MethodGet, "/v1/me/getexecutions", q, nil, true)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Side                   string  `json:"side"`
		Price                  float64 `json:"price"`
		Size                   float64 `json:"size"`
		Commission             float64 `json:"commission"`
		ExecDate               string  `json:"exec_date"`
		ChildOrderAcceptanceID string  `json:"child_order_acceptance_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.validationErr("get_order_history", err.Error())
	}

	fills := make([]domain.Fill, 0, len(resp))
	for _, e := range resp {
		executedAt, _ := time.Parse(execDateLayout, e.ExecDate)
		if !since.IsZero() && executedAt.Before(since) {
			continue
		}
		side := domain.SideAsk
		if e.Side == "SELL" {
			side = domain.SideBid
		}
		fills = append(fills, domain.Fill{
			AcceptanceID: e.ChildOrderAcceptanceID,
			Side:         side,
			Price:        decimal.NewFromFloat(e.Price),
			Volume:       decimal.NewFromFloat(e.Size),
			Fee:          decimal.NewFromFloat(e.Commission),
			ExecutedAt:   executedAt,
		})
	}
	return fills, nil
}

// do performs one HTTP request. Private endpoints are signed with
// HMAC-SHA256 over timestamp+method+path+body per the bitFlyer API contract.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody any, signed bool) ([]byte, error) {
	fullPath := path
	if len(query) > 0 {
		fullPath += "?" + query.Encode()
	}

	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("bitflyer: marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("bitflyer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		sign := crypto.SignHMACSHA256Hex(c.venue.Credentials.Secret, ts+method+fullPath+string(bodyBytes))
		req.Header.Set("ACCESS-KEY", c.venue.Credentials.Key)
		req.Header.Set("ACCESS-TIMESTAMP", ts)
		req.Header.Set("ACCESS-SIGN", sign)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("bitflyer: %s %s: %w", method, path, domain.ErrTimeout)
		}
		return nil, fmt.Errorf("bitflyer: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bitflyer: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.validationErr(method+" "+path, fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}

func (c *Client) validationErr(op, detail string) error {
	return &domain.ValidationError{Venue: c.venue.Code, Op: op, Detail: detail}
}
