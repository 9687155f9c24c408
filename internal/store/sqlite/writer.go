package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath   string // path to SQLite database file, e.g. "data/candles.db"
	Interval string // interval label stored with each candle, e.g. "1m"

	// OnCommit, if set, is called after each committed batch.
	OnCommit func(n int, d time.Duration)
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db  *sql.DB
	cfg WriterConfig
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, cfg: cfg}, nil
}

// Prices are stored as decimal strings so reads reproduce them exactly.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     TEXT    NOT NULL,
			high     TEXT    NOT NULL,
			low      TEXT    NOT NULL,
			close    TEXT    NOT NULL,
			volume   TEXT,
			PRIMARY KEY (symbol, interval, ts)
		);
	`)
	return err
}

// SaveCandles inserts points in one transaction. Existing rows with the same
// (symbol, interval, ts) are replaced.
func (w *Writer) SaveCandles(points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(p.Symbol, w.cfg.Interval, p.TS.UnixMilli(),
			p.Open.String(), p.High.String(), p.Low.String(), p.Close.String(), p.Volume.String())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s@%s: %w", p.Symbol, p.TS.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// Run reads points from ch and inserts them in batched transactions.
// Flushes every batchSize points OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.PricePoint) {
	batch := make([]model.PricePoint, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.SaveCandles(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.cfg.OnCommit != nil {
			w.cfg.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case p, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, p)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// GetLastTimestamp returns the last stored candle time for a symbol.
// Returns the zero time if no candles exist.
func (w *Writer) GetLastTimestamp(symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, w.cfg.Interval,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
