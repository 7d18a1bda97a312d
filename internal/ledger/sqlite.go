package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT '',
	crypto TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL DEFAULT '',
	price TEXT NOT NULL DEFAULT '',
	value TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	time TEXT NOT NULL DEFAULT ''
);
`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Find(ctx context.Context, id string) (models.TradeRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, crypto, amount, price, value, status, time FROM trades WHERE id = ?`, id)
	rec, err := scanSQLite(row)
	if err == sql.ErrNoRows {
		return models.TradeRecord{}, false, nil
	}
	if err != nil {
		return models.TradeRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec models.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, type, crypto, amount, price, value, status, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Type, rec.Asset, rec.Amount, rec.Price, rec.Value, rec.Status,
		rec.Time.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE trades SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no record %s", id)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, crypto, amount, price, value, status, time FROM trades ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (models.TradeRecord, error) {
	var rec models.TradeRecord
	var ts string
	if err := row.Scan(&rec.ID, &rec.Type, &rec.Asset, &rec.Amount, &rec.Price, &rec.Value, &rec.Status, &ts); err != nil {
		return models.TradeRecord{}, err
	}
	if ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return models.TradeRecord{}, fmt.Errorf("parse time %q: %w", ts, err)
		}
		rec.Time = t
	}
	return rec, nil
}
