package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// EMA calculates Exponential Moving Average with k = 2/(period+1).
// The first value is the simple average of the first period inputs.
type EMA struct {
	period  int
	k       decimal.Decimal
	count   int
	sum     decimal.Decimal // seed accumulator
	current decimal.Decimal
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		k:      dTwo.Div(decimal.NewFromInt(int64(period + 1))),
	}
}

func (e *EMA) Name() string    { return "EMA_" + strconv.Itoa(e.period) }
func (e *EMA) MinSamples() int { return e.period }
func (e *EMA) Ready() bool     { return e.count >= e.period }

// Update feeds the close of p.
func (e *EMA) Update(p model.PricePoint) {
	e.Add(p.Close)
}

// Add feeds a raw value. Used directly when smoothing a derived series.
func (e *EMA) Add(x decimal.Decimal) {
	e.count++
	if e.count <= e.period {
		e.sum = e.sum.Add(x)
		if e.count == e.period {
			e.current = e.sum.Div(decimal.NewFromInt(int64(e.period)))
		}
		return
	}
	// EMA = (price - prev) * k + prev
	e.current = x.Sub(e.current).Mul(e.k).Add(e.current).Round(valuePrecision)
}

func (e *EMA) Value() Value {
	if !e.Ready() {
		return Undefined
	}
	return Defined(e.current)
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.count = 0
	e.sum = dZero
	e.current = dZero
}
