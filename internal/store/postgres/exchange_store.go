package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// ExchangeStore implements domain.ExchangeStore using PostgreSQL.
type ExchangeStore struct {
	pool *pgxpool.Pool
}

// NewExchangeStore creates a new ExchangeStore.
func NewExchangeStore(pool *pgxpool.Pool) *ExchangeStore {
	return &ExchangeStore{pool: pool}
}

// Create inserts an exchange record and its legs in one transaction. Decimals
// travel as text so no precision is lost in the NUMERIC columns.
func (s *ExchangeStore) Create(ctx context.Context, rec domain.ExchangeRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO exchanges (id, target_benefit, benefit, result, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.TargetBenefit.String(), rec.Benefit.String(), rec.Result,
		rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert exchange: %w", err)
	}

	for i, leg := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO exchange_legs (id, exchange_id, venue_code, side, target_price, target_volume, price, volume, fee, acceptance_id, raw_response, state, result, reverse, started_at, canceled_at, seq)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			leg.ID, rec.ID, leg.VenueCode, string(leg.Side),
			leg.TargetPrice.String(), leg.TargetVolume.String(),
			leg.Price.String(), leg.Volume.String(), leg.Fee.String(),
			leg.AcceptanceID, leg.RawResponse, string(leg.State),
			leg.Result, leg.Reverse, leg.StartedAt, leg.CanceledAt, i,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert exchange_leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an exchange record with its legs in submission order.
func (s *ExchangeStore) GetByID(ctx context.Context, id string) (domain.ExchangeRecord, error) {
	var rec domain.ExchangeRecord
	var targetBenefit, benefit string
	var completedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, target_benefit::text, benefit::text, result, started_at, completed_at
		FROM exchanges WHERE id = $1`,
		id,
	).Scan(&rec.ID, &targetBenefit, &benefit, &rec.Result, &rec.StartedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExchangeRecord{}, domain.ErrNotFound
		}
		return domain.ExchangeRecord{}, fmt.Errorf("postgres: get exchange %s: %w", id, err)
	}
	if rec.TargetBenefit, err = decimal.NewFromString(targetBenefit); err != nil {
		return domain.ExchangeRecord{}, fmt.Errorf("postgres: parse target_benefit: %w", err)
	}
	if rec.Benefit, err = decimal.NewFromString(benefit); err != nil {
		return domain.ExchangeRecord{}, fmt.Errorf("postgres: parse benefit: %w", err)
	}
	rec.CompletedAt = completedAt

	rows, err := s.pool.Query(ctx, `
		SELECT id, venue_code, side, target_price::text, target_volume::text, price::text, volume::text, fee::text, acceptance_id, raw_response, state, result, reverse, started_at, canceled_at
		FROM exchange_legs WHERE exchange_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return domain.ExchangeRecord{}, fmt.Errorf("postgres: get exchange_legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var leg domain.LegRecord
		var side, state string
		var targetPrice, targetVolume, price, volume, fee string
		if err := rows.Scan(&leg.ID, &leg.VenueCode, &side,
			&targetPrice, &targetVolume, &price, &volume, &fee,
			&leg.AcceptanceID, &leg.RawResponse, &state,
			&leg.Result, &leg.Reverse, &leg.StartedAt, &leg.CanceledAt); err != nil {
			return domain.ExchangeRecord{}, err
		}
		leg.Side = domain.Side(side)
		leg.State = domain.LegState(state)
		if err := parseDecimals(
			pair{&leg.TargetPrice, targetPrice},
			pair{&leg.TargetVolume, targetVolume},
			pair{&leg.Price, price},
			pair{&leg.Volume, volume},
			pair{&leg.Fee, fee},
		); err != nil {
			return domain.ExchangeRecord{}, fmt.Errorf("postgres: parse leg decimal: %w", err)
		}
		rec.Legs = append(rec.Legs, leg)
	}
	if err := rows.Err(); err != nil {
		return domain.ExchangeRecord{}, err
	}
	return rec, nil
}

type pair struct {
	dst *decimal.Decimal
	src string
}

func parseDecimals(pairs ...pair) error {
	for _, p := range pairs {
		d, err := decimal.NewFromString(p.src)
		if err != nil {
			return err
		}
		*p.dst = d
	}
	return nil
}
