package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer and a running sum.
type SMA struct {
	period  int
	buf     []decimal.Decimal
	idx     int // next write position
	count   int // total values received
	sum     decimal.Decimal
	current decimal.Decimal
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]decimal.Decimal, period),
	}
}

func (s *SMA) Name() string    { return "SMA_" + strconv.Itoa(s.period) }
func (s *SMA) MinSamples() int { return s.period }
func (s *SMA) Ready() bool     { return s.count >= s.period }
func (s *SMA) Period() int     { return s.period }

// Update feeds the close of p.
func (s *SMA) Update(p model.PricePoint) {
	s.Add(p.Close)
}

// Add feeds a raw value.
func (s *SMA) Add(x decimal.Decimal) {
	if s.count >= s.period {
		s.sum = s.sum.Sub(s.buf[s.idx])
	}
	s.buf[s.idx] = x
	s.sum = s.sum.Add(x)
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum.Div(decimal.NewFromInt(int64(s.period)))
	}
}

func (s *SMA) Value() Value {
	if !s.Ready() {
		return Undefined
	}
	return Defined(s.current)
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = dZero
	s.current = dZero
	for i := range s.buf {
		s.buf[i] = dZero
	}
}
