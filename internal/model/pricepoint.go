package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidPricePoint is returned when a sample fails basic OHLC sanity checks.
var ErrInvalidPricePoint = errors.New("invalid price point")

// PricePoint is one OHLC sample for a single symbol.
// All prices use fixed-precision decimals; a PricePoint is never mutated
// after construction.
type PricePoint struct {
	Symbol string          `json:"symbol"`
	TS     time.Time       `json:"ts"` // sample open time (UTC)
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// NewPricePoint builds a PricePoint from float inputs. Intended for tests and
// synthetic feeds; decoders should parse decimal strings directly.
func NewPricePoint(symbol string, ts time.Time, open, high, low, close float64) PricePoint {
	return PricePoint{
		Symbol: symbol,
		TS:     ts.UTC(),
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(close),
	}
}

// Validate checks that the close is positive and the range is consistent.
func (p *PricePoint) Validate() error {
	if p.TS.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidPricePoint)
	}
	if !p.Close.IsPositive() {
		return fmt.Errorf("%w: close %s must be positive", ErrInvalidPricePoint, p.Close)
	}
	if p.High.LessThan(p.Low) {
		return fmt.Errorf("%w: high %s below low %s", ErrInvalidPricePoint, p.High, p.Low)
	}
	return nil
}

// JSON returns the JSON-encoded point (ignoring errors for hot-path usage).
func (p *PricePoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}
