package execution

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Journal persists committed orders to SQLite for analysis and audit.
// Decimal fields are stored as TEXT to keep exact precision.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id       TEXT NOT NULL,
		run_id         TEXT NOT NULL,
		symbol         TEXT NOT NULL,
		side           TEXT NOT NULL,
		qty            TEXT NOT NULL,
		price          TEXT NOT NULL,
		fee            TEXT NOT NULL,
		balance_delta  TEXT NOT NULL,
		holdings_delta TEXT NOT NULL,
		balance_after  TEXT NOT NULL,
		reason         TEXT,
		ts             TEXT NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_orders_run ON orders(run_id);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(ts);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened order journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordOrder implements model.TradeJournal.
func (j *Journal) RecordOrder(o model.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO orders (order_id, run_id, symbol, side, qty, price, fee, balance_delta, holdings_delta, balance_after, reason, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID,
		o.RunID,
		o.Symbol,
		string(o.Side),
		o.Qty.String(),
		o.Price.String(),
		o.Fee.String(),
		o.BalanceDelta.String(),
		o.HoldingsDelta.String(),
		o.BalanceAfter.String(),
		o.Reason,
		o.TS.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", o.OrderID, err)
	}
	return nil
}

// GetOrders returns the last limit orders of a run, newest first. An empty
// runID returns orders of every run.
func (j *Journal) GetOrders(runID string, limit int) ([]model.Order, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT order_id, run_id, symbol, side, qty, price, fee, balance_delta, holdings_delta, balance_after, reason, ts
		 FROM orders WHERE (? = '' OR run_id = ?) ORDER BY id DESC LIMIT ?`, runID, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o                                           model.Order
			side, reason, ts                            string
			qty, price, fee, balDelta, holdDelta, after string
		)
		if err := rows.Scan(&o.OrderID, &o.RunID, &o.Symbol, &side, &qty, &price, &fee,
			&balDelta, &holdDelta, &after, &reason, &ts); err != nil {
			return nil, err
		}
		o.Side = model.Side(side)
		o.Reason = reason
		for _, f := range []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"qty", qty, &o.Qty},
			{"price", price, &o.Price},
			{"fee", fee, &o.Fee},
			{"balance_delta", balDelta, &o.BalanceDelta},
			{"holdings_delta", holdDelta, &o.HoldingsDelta},
			{"balance_after", after, &o.BalanceAfter},
		} {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return nil, fmt.Errorf("journal: order %s %s: %w", o.OrderID, f.name, err)
			}
			*f.dst = v
		}
		if o.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("journal: order %s ts: %w", o.OrderID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
