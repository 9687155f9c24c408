package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Reader provides read-only access to the candle store. It implements
// model.HistoricalSource for replay runs.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Fetch reads candles for symbol/interval with from <= ts < to, ordered by
// timestamp ascending for correct replay order.
func (r *Reader) Fetch(ctx context.Context, symbol, interval string, from, to time.Time) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, interval, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Count returns the number of stored candles for symbol/interval.
func (r *Reader) Count(ctx context.Context, symbol, interval string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&n)
	return n, err
}

func scanPoint(rows *sql.Rows) (model.PricePoint, error) {
	var (
		p          model.PricePoint
		tsMs       int64
		o, h, l, c string
		v          sql.NullString
		err        error
	)
	if err = rows.Scan(&p.Symbol, &tsMs, &o, &h, &l, &c, &v); err != nil {
		return p, err
	}
	p.TS = time.UnixMilli(tsMs).UTC()
	if p.Open, err = decimal.NewFromString(o); err != nil {
		return p, err
	}
	if p.High, err = decimal.NewFromString(h); err != nil {
		return p, err
	}
	if p.Low, err = decimal.NewFromString(l); err != nil {
		return p, err
	}
	if p.Close, err = decimal.NewFromString(c); err != nil {
		return p, err
	}
	if v.Valid && v.String != "" {
		if p.Volume, err = decimal.NewFromString(v.String); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
