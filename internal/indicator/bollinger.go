package indicator

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Bollinger computes middle = SMA(period) and upper/lower = middle ± k·σ,
// where σ is the sample standard deviation (n-1 denominator) of the last
// period closes. Σy and Σy² are kept over a circular buffer.
type Bollinger struct {
	period int
	k      decimal.Decimal
	buf    []decimal.Decimal
	idx    int
	count  int
	sumY   decimal.Decimal
	sumYY  decimal.Decimal
}

// NewBollinger creates Bollinger bands (typically 20, 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		period: period,
		k:      decimal.NewFromFloat(k),
		buf:    make([]decimal.Decimal, period),
	}
}

func (b *Bollinger) Name() string {
	return "BB_" + strconv.Itoa(b.period) + "_" + b.k.String()
}

func (b *Bollinger) MinSamples() int { return b.period }
func (b *Bollinger) Ready() bool     { return b.count >= b.period }

func (b *Bollinger) Update(p model.PricePoint) {
	y := p.Close
	if b.count >= b.period {
		old := b.buf[b.idx]
		b.sumY = b.sumY.Sub(old)
		b.sumYY = b.sumYY.Sub(old.Mul(old))
	}
	b.buf[b.idx] = y
	b.sumY = b.sumY.Add(y)
	b.sumYY = b.sumYY.Add(y.Mul(y))
	b.idx = (b.idx + 1) % b.period
	b.count++
}

// Value returns the middle band.
func (b *Bollinger) Value() Value {
	if !b.Ready() {
		return Undefined
	}
	return Defined(b.middle())
}

func (b *Bollinger) middle() decimal.Decimal {
	return b.sumY.Div(decimal.NewFromInt(int64(b.period)))
}

// stddev returns the sample standard deviation of the window.
// decimal has no square root, so the root is taken in float64.
func (b *Bollinger) stddev() decimal.Decimal {
	if b.period < 2 {
		return dZero
	}
	n := decimal.NewFromInt(int64(b.period))
	variance := b.sumYY.Sub(b.sumY.Mul(b.sumY).Div(n)).Div(n.Sub(dOne))
	if !variance.IsPositive() {
		return dZero
	}
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

func (b *Bollinger) Outputs() map[string]Value {
	if !b.Ready() {
		return map[string]Value{"upper": Undefined, "lower": Undefined}
	}
	mid := b.middle()
	band := b.stddev().Mul(b.k)
	return map[string]Value{
		"upper": Defined(mid.Add(band)),
		"lower": Defined(mid.Sub(band)),
	}
}

// Reset clears the band state for reuse.
func (b *Bollinger) Reset() {
	b.idx = 0
	b.count = 0
	b.sumY = dZero
	b.sumYY = dZero
	for i := range b.buf {
		b.buf[i] = dZero
	}
}
