// Command importer loads historical klines into the SQLite candle store used
// by backtests.
//
// Two input layouts are accepted:
//
//	csv   Binance kline export rows: openTime,open,high,low,close,volume,...
//	json  a saved Binance REST /api/v3/klines response (array of arrays)
//
// Usage:
//
//	importer --file BTCUSDT-1m-2023-01.csv --symbol BTCUSDT --interval 1m
//	importer --file klines.json --format json --db data/candles.db
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	sqlitestore "github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/store/sqlite"
)

const batchSize = 1000

func main() {
	file := flag.String("file", "", "input file (required)")
	format := flag.String("format", "", "input format: csv or json (default: from file extension)")
	dbPath := flag.String("db", "data/candles.db", "SQLite candle store path")
	symbol := flag.String("symbol", "BTCUSDT", "symbol the klines belong to")
	interval := flag.String("interval", "1m", "kline interval")
	skipHeader := flag.Bool("skip-header", false, "skip the first CSV row")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	f := strings.ToLower(*format)
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(*file)), ".")
	}

	in, err := os.Open(*file)
	if err != nil {
		log.Fatalf("[importer] %v", err)
	}
	defer in.Close()

	if dir := filepath.Dir(*dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("[importer] %v", err)
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath, Interval: *interval})
	if err != nil {
		log.Fatalf("[importer] open store: %v", err)
	}
	defer w.Close()

	sym := strings.ToUpper(*symbol)
	start := time.Now()
	var n int
	switch f {
	case "csv":
		n, err = importCSV(in, sym, *skipHeader, w.SaveCandles)
	case "json":
		n, err = importREST(in, sym, w.SaveCandles)
	default:
		err = fmt.Errorf("unknown format %q (want csv or json)", f)
	}
	if err != nil {
		log.Fatalf("[importer] %v", err)
	}

	last, _ := w.GetLastTimestamp(sym)
	log.Printf("[importer] imported %d %s %s candles in %s (latest %s)",
		n, sym, *interval, time.Since(start).Round(time.Millisecond), last.Format(time.RFC3339))
}

// importCSV decodes kline rows and saves them in batches. Blank lines are
// skipped by encoding/csv; a malformed row aborts with its line number.
func importCSV(r io.Reader, symbol string, skipHeader bool, save func([]model.PricePoint) error) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	batch := make([]model.PricePoint, 0, batchSize)
	total := 0
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && skipHeader {
			continue
		}
		p, err := model.KlineFromStrings(symbol, rec)
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, p)
		if len(batch) == batchSize {
			if err := save(batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := save(batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}

// importREST decodes a REST klines array and saves it in batches.
func importREST(r io.Reader, symbol string, save func([]model.PricePoint) error) (int, error) {
	var rows [][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return 0, fmt.Errorf("decode klines: %w", err)
	}
	total := 0
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		batch := make([]model.PricePoint, 0, end-i)
		for j, row := range rows[i:end] {
			p, err := model.KlineFromREST(symbol, row)
			if err != nil {
				return total, fmt.Errorf("row %d: %w", i+j, err)
			}
			batch = append(batch, p)
		}
		if err := save(batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}
