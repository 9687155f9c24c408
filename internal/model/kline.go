package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// KlineEvent is the Binance websocket kline stream payload.
//
//	{"e":"kline","E":1672515782136,"s":"BTCUSDT","k":{"t":...,"o":"...","x":true}}
type KlineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     KlineBody `json:"k"`
}

// KlineBody is the nested "k" object of a kline event.
type KlineBody struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

// PricePoint converts the kline body into a PricePoint.
func (k *KlineBody) PricePoint() (PricePoint, error) {
	return buildPoint(k.Symbol, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
}

// KlineFromREST decodes one row of the Binance REST /klines response:
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func KlineFromREST(symbol string, row []json.RawMessage) (PricePoint, error) {
	if len(row) < 6 {
		return PricePoint{}, fmt.Errorf("kline row: want at least 6 fields, got %d", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return PricePoint{}, fmt.Errorf("kline row: open time: %w", err)
	}
	fields := make([]string, 5)
	for i := range fields {
		if err := json.Unmarshal(row[i+1], &fields[i]); err != nil {
			return PricePoint{}, fmt.Errorf("kline row: field %d: %w", i+1, err)
		}
	}
	return buildPoint(symbol, openTime, fields[0], fields[1], fields[2], fields[3], fields[4])
}

// KlineFromStrings decodes a CSV-style kline record where the first six
// columns follow the REST layout.
func KlineFromStrings(symbol string, rec []string) (PricePoint, error) {
	if len(rec) < 6 {
		return PricePoint{}, fmt.Errorf("kline record: want at least 6 columns, got %d", len(rec))
	}
	var openTime int64
	if _, err := fmt.Sscan(rec[0], &openTime); err != nil {
		return PricePoint{}, fmt.Errorf("kline record: open time %q: %w", rec[0], err)
	}
	return buildPoint(symbol, openTime, rec[1], rec[2], rec[3], rec[4], rec[5])
}

func buildPoint(symbol string, openTimeMs int64, o, h, l, c, v string) (PricePoint, error) {
	var (
		p   PricePoint
		err error
	)
	p.Symbol = symbol
	p.TS = time.UnixMilli(openTimeMs).UTC()
	if p.Open, err = decimal.NewFromString(o); err != nil {
		return PricePoint{}, fmt.Errorf("kline open %q: %w", o, err)
	}
	if p.High, err = decimal.NewFromString(h); err != nil {
		return PricePoint{}, fmt.Errorf("kline high %q: %w", h, err)
	}
	if p.Low, err = decimal.NewFromString(l); err != nil {
		return PricePoint{}, fmt.Errorf("kline low %q: %w", l, err)
	}
	if p.Close, err = decimal.NewFromString(c); err != nil {
		return PricePoint{}, fmt.Errorf("kline close %q: %w", c, err)
	}
	if v != "" {
		if p.Volume, err = decimal.NewFromString(v); err != nil {
			return PricePoint{}, fmt.Errorf("kline volume %q: %w", v, err)
		}
	}
	return p, nil
}
