package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Slope is the least-squares slope of close over the last period points,
// with x = 0..m-1 for the m points currently held.
//
// Σy and Σxy are maintained incrementally. When the window slides, every
// remaining point's x drops by one, so
//
//	Σxy' = Σxy - (Σy - y0) + (n-1)·ynew
//	Σy'  = Σy - y0 + ynew
//
// Σx and Σx² depend only on m and are computed in closed form.
type Slope struct {
	period int
	buf    []decimal.Decimal
	head   int // index of the oldest point once full
	m      int // points held (≤ period)
	sumY   decimal.Decimal
	sumXY  decimal.Decimal
}

// NewSlope creates a slope indicator over the given period (original default 5).
func NewSlope(period int) *Slope {
	return &Slope{
		period: period,
		buf:    make([]decimal.Decimal, period),
	}
}

func (s *Slope) Name() string    { return "SLOPE_" + strconv.Itoa(s.period) }
func (s *Slope) MinSamples() int { return 2 }
func (s *Slope) Ready() bool     { return s.m >= 2 }

func (s *Slope) Update(p model.PricePoint) {
	y := p.Close
	if s.m < s.period {
		s.buf[s.m] = y
		s.sumXY = s.sumXY.Add(y.Mul(decimal.NewFromInt(int64(s.m))))
		s.sumY = s.sumY.Add(y)
		s.m++
		return
	}

	y0 := s.buf[s.head]
	s.sumXY = s.sumXY.Sub(s.sumY.Sub(y0)).Add(y.Mul(decimal.NewFromInt(int64(s.period - 1))))
	s.sumY = s.sumY.Sub(y0).Add(y)
	s.buf[s.head] = y
	s.head = (s.head + 1) % s.period
}

func (s *Slope) Value() Value {
	if !s.Ready() {
		return Undefined
	}
	m := int64(s.m)
	sumX := decimal.NewFromInt(m * (m - 1) / 2)
	sumXX := decimal.NewFromInt((m - 1) * m * (2*m - 1) / 6)
	dm := decimal.NewFromInt(m)

	num := dm.Mul(s.sumXY).Sub(sumX.Mul(s.sumY))
	den := dm.Mul(sumXX).Sub(sumX.Mul(sumX))
	return Defined(num.Div(den))
}

// Reset clears the slope state for reuse.
func (s *Slope) Reset() {
	s.head = 0
	s.m = 0
	s.sumY = dZero
	s.sumXY = dZero
	for i := range s.buf {
		s.buf[i] = dZero
	}
}
