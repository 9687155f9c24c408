package indicator

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// MACD computes MACDLine = EMA(fast) - EMA(slow) and
// SignalLine = EMA(MACDLine, signal).
//
// The signal EMA is fed MACD line values from the first point where the
// slow EMA is defined. The indicator reports defined values from
// slow+signal points on.
type MACD struct {
	fast, slow, signal int

	fastEMA   *EMA
	slowEMA   *EMA
	signalEMA *EMA

	count int
	line  decimal.Decimal
}

// NewMACD creates a MACD indicator (typically 12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:      fast,
		slow:      slow,
		signal:    signal,
		fastEMA:   NewEMA(fast),
		slowEMA:   NewEMA(slow),
		signalEMA: NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return "MACD_" + strconv.Itoa(m.fast) + "_" + strconv.Itoa(m.slow) + "_" + strconv.Itoa(m.signal)
}

func (m *MACD) MinSamples() int { return m.slow + m.signal }
func (m *MACD) Ready() bool     { return m.count >= m.slow+m.signal }

func (m *MACD) Update(p model.PricePoint) {
	m.count++
	m.fastEMA.Add(p.Close)
	m.slowEMA.Add(p.Close)
	if !m.slowEMA.Ready() {
		return
	}
	m.line = m.fastEMA.current.Sub(m.slowEMA.current)
	m.signalEMA.Add(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() Value {
	if !m.Ready() {
		return Undefined
	}
	return Defined(m.line)
}

// Signal returns the signal line.
func (m *MACD) Signal() Value {
	if !m.Ready() {
		return Undefined
	}
	return Defined(m.signalEMA.current)
}

// Histogram returns line - signal.
func (m *MACD) Histogram() Value {
	if !m.Ready() {
		return Undefined
	}
	return Defined(m.line.Sub(m.signalEMA.current))
}

func (m *MACD) Outputs() map[string]Value {
	return map[string]Value{
		"signal": m.Signal(),
		"hist":   m.Histogram(),
	}
}

// Reset clears the MACD state for reuse.
func (m *MACD) Reset() {
	m.count = 0
	m.line = dZero
	m.fastEMA.Reset()
	m.slowEMA.Reset()
	m.signalEMA.Reset()
}
