// Package indicator provides incremental technical indicator calculations
// over a stream of price points.
//
// Every indicator updates in O(1) per point from its own running state and
// never rescans history. Values are fixed-precision decimals; a value is
// undefined until the indicator has seen its minimum sample size.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Value is an indicator reading. Valid is false while the indicator has
// insufficient data. Encodes to JSON null when undefined.
type Value = decimal.NullDecimal

// Undefined is the "insufficient data" reading.
var Undefined = Value{}

// Defined wraps d as a defined reading.
func Defined(d decimal.Decimal) Value {
	return Value{Decimal: d, Valid: true}
}

// Indicator is the extension contract for all technical indicators.
type Indicator interface {
	// Name returns the indicator key (e.g. "SMA_20", "MACD_12_26_9").
	Name() string

	// MinSamples is the number of points required before Value is defined.
	MinSamples() int

	// Update feeds the next price point. O(1).
	Update(p model.PricePoint)

	// Value returns the current reading without mutating state.
	Value() Value

	// Ready reports whether MinSamples points have been seen.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}

// MultiOutput is implemented by indicators that produce more than one
// series. Value() returns the primary series; Outputs returns the rest
// keyed by suffix (e.g. "signal", "hist").
type MultiOutput interface {
	Outputs() map[string]Value
}

// valuePrecision bounds the decimal places of recursively smoothed values
// so their size stays constant per update.
var valuePrecision = int32(decimal.DivisionPrecision)

var (
	dZero    = decimal.Zero
	dOne     = decimal.NewFromInt(1)
	dTwo     = decimal.NewFromInt(2)
	dHundred = decimal.NewFromInt(100)
)
