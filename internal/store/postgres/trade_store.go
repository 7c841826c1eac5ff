package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// TradeStore implements domain.TradeJournal on the append-only
// trade_records table.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore appends fills to trade_records.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, signal_id, source, token_id, condition_id, grp, outcome, question,
	ask_price, amount, order_id, dry_run, latency_ms, open_positions, exposure, created_at`

// Append inserts rec. Re-appending the same id is a no-op.
func (s *TradeStore) Append(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_records (` + tradeSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.SignalID, rec.Source, rec.TokenID, rec.ConditionID, rec.Group, rec.Outcome, rec.Question,
		rec.AskPrice, rec.Amount, rec.OrderID, rec.DryRun, rec.LatencyMs, rec.OpenPositions, rec.Exposure, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListSince returns records created at or after since, oldest first.
func (s *TradeStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + tradeSelectCols + ` FROM trade_records
		WHERE created_at >= $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	recs, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return recs, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		if err := rows.Scan(
			&r.ID, &r.SignalID, &r.Source, &r.TokenID, &r.ConditionID, &r.Group, &r.Outcome, &r.Question,
			&r.AskPrice, &r.Amount, &r.OrderID, &r.DryRun, &r.LatencyMs, &r.OpenPositions, &r.Exposure, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

var _ domain.TradeJournal = (*TradeStore)(nil)
