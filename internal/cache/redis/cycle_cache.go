package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stbmp23/arbitrager/internal/domain"
)

const cycleTTL = 1 * time.Minute

// CycleCache implements domain.BoardCache using Redis. Each analysis cycle
// overwrites the previous one, so dashboards always read the latest view.
//
// Key schema:
//
//	cycle:latest       - hash with field "data" containing the JSON cycle
//	board:{venue_code} - hash with field "data" containing that venue's board
type CycleCache struct {
	rdb *redis.Client
}

// NewCycleCache creates a CycleCache backed by the given Client.
func NewCycleCache(c *Client) *CycleCache {
	return &CycleCache{rdb: c.rdb}
}

func boardKey(code string) string { return "board:" + code }

// cycleDoc is the serialized shape of a cycle. Decimals travel as strings so
// readers in any language can parse them losslessly.
type cycleDoc struct {
	Boards      []boardDoc `json:"boards"`
	AskVenue    string     `json:"ask_venue,omitempty"`
	BidVenue    string     `json:"bid_venue,omitempty"`
	Profit      string     `json:"profit,omitempty"`
	NetExposure string     `json:"net_exposure"`
	At          time.Time  `json:"at"`
}

type boardDoc struct {
	Venue       string    `json:"venue"`
	AskPrice    string    `json:"ask_price"`
	AskVolume   string    `json:"ask_volume"`
	BidPrice    string    `json:"bid_price"`
	BidVolume   string    `json:"bid_volume"`
	NetExposure string    `json:"net_exposure"`
	FetchedAt   time.Time `json:"fetched_at"`
}

func newCycleDoc(snap domain.CycleSnapshot) cycleDoc {
	doc := cycleDoc{
		AskVenue:    snap.AskVenue,
		BidVenue:    snap.BidVenue,
		NetExposure: snap.NetExposure.String(),
		At:          snap.At,
	}
	if snap.AskVenue != "" {
		doc.Profit = snap.Profit.String()
	}
	for _, b := range snap.Boards {
		doc.Boards = append(doc.Boards, boardDoc{
			Venue:       b.Venue.Code,
			AskPrice:    b.BestAsk.Price.String(),
			AskVolume:   b.BestAsk.Volume.String(),
			BidPrice:    b.BestBid.Price.String(),
			BidVolume:   b.BestBid.Volume.String(),
			NetExposure: b.NetExposure.String(),
			FetchedAt:   b.FetchedAt,
		})
	}
	return doc
}

// SetCycle publishes the latest analysis cycle and each venue's board.
func (c *CycleCache) SetCycle(ctx context.Context, snap domain.CycleSnapshot) error {
	doc := newCycleDoc(snap)

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redis: marshal cycle: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, "cycle:latest", "data", data)
	pipe.Expire(ctx, "cycle:latest", cycleTTL)

	for i, b := range snap.Boards {
		boardData, err := json.Marshal(doc.Boards[i])
		if err != nil {
			return fmt.Errorf("redis: marshal board %s: %w", b.Venue.Code, err)
		}
		key := boardKey(b.Venue.Code)
		pipe.HSet(ctx, key, "data", boardData)
		pipe.Expire(ctx, key, cycleTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set cycle: %w", err)
	}
	return nil
}
