package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// The first averages are simple means over the first period deltas, so the
// value is defined once period+1 closes have been seen. Update is O(1).
type RSI struct {
	period    int
	count     int
	prevClose decimal.Decimal
	avgGain   decimal.Decimal
	avgLoss   decimal.Decimal
	current   decimal.Decimal
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string    { return "RSI_" + strconv.Itoa(r.period) }
func (r *RSI) MinSamples() int { return r.period + 1 }
func (r *RSI) Ready() bool     { return r.count > r.period }

func (r *RSI) Update(p model.PricePoint) {
	price := p.Close
	r.count++

	if r.count == 1 {
		// First close: no delta yet
		r.prevClose = price
		return
	}

	delta := price.Sub(r.prevClose)
	r.prevClose = price

	gain, loss := dZero, dZero
	if delta.IsPositive() {
		gain = delta
	} else {
		loss = delta.Neg()
	}

	n := decimal.NewFromInt(int64(r.period))
	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain = r.avgGain.Add(gain)
		r.avgLoss = r.avgLoss.Add(loss)

		if r.count == r.period+1 {
			r.avgGain = r.avgGain.Div(n)
			r.avgLoss = r.avgLoss.Div(n)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avg = (prevAvg * (period-1) + x) / period
	nm1 := n.Sub(dOne)
	r.avgGain = r.avgGain.Mul(nm1).Add(gain).Div(n)
	r.avgLoss = r.avgLoss.Mul(nm1).Add(loss).Div(n)
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *RSI) Value() Value {
	if !r.Ready() {
		return Undefined
	}
	return Defined(r.current)
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = dZero
	r.avgGain = dZero
	r.avgLoss = dZero
	r.current = dZero
}

// rsiFrom computes 100 - 100/(1+RS) clamped to [0, 100].
// A zero average loss maps to 100.
func rsiFrom(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return dHundred
	}
	rs := avgGain.Div(avgLoss)
	v := dHundred.Sub(dHundred.Div(dOne.Add(rs)))
	if v.IsNegative() {
		return dZero
	}
	if v.GreaterThan(dHundred) {
		return dHundred
	}
	return v
}
