package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     decimal.Decimal
	current decimal.Decimal
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string    { return "SMMA_" + strconv.Itoa(s.period) }
func (s *SMMA) MinSamples() int { return s.period }
func (s *SMMA) Ready() bool     { return s.count >= s.period }

func (s *SMMA) Update(p model.PricePoint) {
	price := p.Close
	n := decimal.NewFromInt(int64(s.period))
	s.count++

	if s.count <= s.period {
		s.sum = s.sum.Add(price)
		if s.count == s.period {
			s.current = s.sum.Div(n)
		}
		return
	}
	s.current = s.current.Mul(n.Sub(dOne)).Add(price).Div(n)
}

func (s *SMMA) Value() Value {
	if !s.Ready() {
		return Undefined
	}
	return Defined(s.current)
}

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = dZero
	s.current = dZero
}
