package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stbmp23/arbitrager/internal/domain"
)

// BalanceHistoryStore implements domain.BalanceHistoryStore using PostgreSQL.
type BalanceHistoryStore struct {
	pool *pgxpool.Pool
}

// NewBalanceHistoryStore creates a new BalanceHistoryStore.
func NewBalanceHistoryStore(pool *pgxpool.Pool) *BalanceHistoryStore {
	return &BalanceHistoryStore{pool: pool}
}

// CreateBatch inserts the balance rows in one transaction so a cycle's
// snapshot is recorded for all venues or none.
func (s *BalanceHistoryStore) CreateBatch(ctx context.Context, rows []domain.BalanceHistory) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, row := range rows {
		_, err = tx.Exec(ctx, `
			INSERT INTO balance_histories (venue_code, exchange_id, jpy, btc, before_jpy, before_btc, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.VenueCode, row.ExchangeID,
			row.JPY.String(), row.BTC.String(),
			row.BeforeJPY.String(), row.BeforeBTC.String(),
			row.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert balance_history: %w", err)
		}
	}

	return tx.Commit(ctx)
}
