package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

const tradeLedgerSchema = `
CREATE TABLE IF NOT EXISTS trade_ledger (
	created_seq BIGSERIAL,
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL DEFAULT '',
	crypto      TEXT NOT NULL DEFAULT '',
	amount      TEXT NOT NULL DEFAULT '',
	price       TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	traded_at   TIMESTAMPTZ NOT NULL,
	trading_day DATE NOT NULL
)`

const tradeColumns = `id, type, crypto, amount, price, value, status, traded_at`

// TradeRepo stores ledger records in Postgres. It satisfies ledger.Store.
type TradeRepo struct {
	pool *pgxpool.Pool
	// tradingDay maps a timestamp to the trading day column
	tradingDay func(time.Time) string
}

func NewTradeRepo(pool *pgxpool.Pool, tradingDay func(time.Time) string) *TradeRepo {
	return &TradeRepo{pool: pool, tradingDay: tradingDay}
}

func (r *TradeRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, tradeLedgerSchema); err != nil {
		return fmt.Errorf("create trade_ledger: %w", err)
	}
	return nil
}

func (r *TradeRepo) Find(ctx context.Context, id string) (models.TradeRecord, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trade_ledger WHERE id = $1`, id)
	rec, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TradeRecord{}, false, nil
	}
	if err != nil {
		return models.TradeRecord{}, false, err
	}
	return rec, true, nil
}

// Insert writes rec. A row already present under the same id, written by
// another process, only has its status replaced.
func (r *TradeRepo) Insert(ctx context.Context, rec models.TradeRecord) error {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trade_ledger
		 (id, type, crypto, amount, price, value, status, traded_at, trading_day)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		rec.ID, rec.Type, rec.Asset, rec.Amount, rec.Price, rec.Value, rec.Status,
		ts.UTC(), r.tradingDay(ts),
	)
	return err
}

func (r *TradeRepo) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE trade_ledger SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no record %s", id)
	}
	return nil
}

// All returns every record in insertion order.
func (r *TradeRepo) All(ctx context.Context) ([]models.TradeRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trade_ledger ORDER BY created_seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetByDay returns records of one trading day, oldest first.
func (r *TradeRepo) GetByDay(ctx context.Context, tradingDay string) ([]models.TradeRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trade_ledger WHERE trading_day = $1 ORDER BY created_seq ASC`,
		tradingDay,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (r *TradeRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (r *TradeRepo) Close() error { return nil }

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTrade(row scannable) (models.TradeRecord, error) {
	var t models.TradeRecord
	err := row.Scan(&t.ID, &t.Type, &t.Asset, &t.Amount, &t.Price, &t.Value, &t.Status, &t.Time)
	if err != nil {
		return models.TradeRecord{}, err
	}
	return t, nil
}

func collectTrades(rows rowsIter) ([]models.TradeRecord, error) {
	var out []models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
