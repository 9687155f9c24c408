package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// RoundTrip is one completed entry/exit pair.
type RoundTrip struct {
	EntryID   string          `json:"entry_id"`
	ExitID    string          `json:"exit_id"`
	EntryTS   time.Time       `json:"entry_ts"`
	ExitTS    time.Time       `json:"exit_ts"`
	Qty       decimal.Decimal `json:"qty"`
	Cost      decimal.Decimal `json:"cost"`     // quote spent including fees
	Proceeds  decimal.Decimal `json:"proceeds"` // quote received net of fees
	PnL       decimal.Decimal `json:"pnl"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}

// PnLTracker tracks realized P&L per round trip plus equity drawdown.
// Fed with committed orders, so fees are already included.
type PnLTracker struct {
	mu sync.RWMutex

	initial     decimal.Decimal
	realizedPnL decimal.Decimal
	trips       []RoundTrip

	// Open cost basis
	openQty  decimal.Decimal
	openCost decimal.Decimal
	openID   string
	openTS   time.Time

	// Equity high-water mark for drawdown
	peakEquity  decimal.Decimal
	maxDrawdown decimal.Decimal // fraction of peak
}

// NewPnLTracker creates a tracker for a wallet funded with initial.
func NewPnLTracker(initial decimal.Decimal) *PnLTracker {
	return &PnLTracker{
		initial:    initial,
		trips:      make([]RoundTrip, 0, 32),
		peakEquity: initial,
	}
}

// RecordOrder updates cost basis and returns the realized P&L of a sell
// (zero for buys).
func (p *PnLTracker) RecordOrder(o model.Order) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o.Side == model.SideBuy {
		if p.openQty.IsZero() {
			p.openID = o.OrderID
			p.openTS = o.TS
		}
		p.openQty = p.openQty.Add(o.Qty)
		p.openCost = p.openCost.Add(o.BalanceDelta.Neg())
		return decimal.Zero
	}

	if !p.openQty.IsPositive() {
		return decimal.Zero
	}
	sold := o.Qty
	if sold.GreaterThan(p.openQty) {
		sold = p.openQty
	}
	cost := p.openCost.Mul(sold).Div(p.openQty)
	pnl := o.BalanceDelta.Sub(cost)

	ret := decimal.Zero
	if cost.IsPositive() {
		ret = pnl.Div(cost).Mul(decimal.NewFromInt(100))
	}
	p.trips = append(p.trips, RoundTrip{
		EntryID:   p.openID,
		ExitID:    o.OrderID,
		EntryTS:   p.openTS,
		ExitTS:    o.TS,
		Qty:       sold,
		Cost:      cost,
		Proceeds:  o.BalanceDelta,
		PnL:       pnl,
		ReturnPct: ret,
	})
	p.realizedPnL = p.realizedPnL.Add(pnl)

	p.openQty = p.openQty.Sub(sold)
	p.openCost = p.openCost.Sub(cost)
	if !p.openQty.IsPositive() {
		p.openQty = decimal.Zero
		p.openCost = decimal.Zero
		p.openID = ""
	}
	return pnl
}

// MarkEquity records the wallet equity at a tick for drawdown tracking.
func (p *PnLTracker) MarkEquity(equity decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if equity.GreaterThan(p.peakEquity) {
		p.peakEquity = equity
		return
	}
	if p.peakEquity.IsPositive() {
		dd := p.peakEquity.Sub(equity).Div(p.peakEquity)
		if dd.GreaterThan(p.maxDrawdown) {
			p.maxDrawdown = dd
		}
	}
}

// RealizedPnL returns the total realized P&L.
func (p *PnLTracker) RealizedPnL() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// RoundTrips returns a copy of completed round trips.
func (p *PnLTracker) RoundTrips() []RoundTrip {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]RoundTrip, len(p.trips))
	copy(cp, p.trips)
	return cp
}

// PnLSummary aggregates round-trip statistics.
type PnLSummary struct {
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	RoundTrips     int             `json:"round_trips"`
	Wins           int             `json:"wins"`
	Losses         int             `json:"losses"`
	WinRatePct     decimal.Decimal `json:"win_rate_pct"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
}

// Summary returns the current P&L summary, valuing any open quantity at
// lastPrice.
func (p *PnLTracker) Summary(lastPrice decimal.Decimal) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	unrealized := decimal.Zero
	if p.openQty.IsPositive() {
		unrealized = p.openQty.Mul(lastPrice).Sub(p.openCost)
	}
	s := PnLSummary{
		RealizedPnL:    p.realizedPnL,
		UnrealizedPnL:  unrealized,
		TotalPnL:       p.realizedPnL.Add(unrealized),
		RoundTrips:     len(p.trips),
		MaxDrawdownPct: p.maxDrawdown.Mul(decimal.NewFromInt(100)),
	}
	for _, t := range p.trips {
		if t.PnL.IsPositive() {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.RoundTrips > 0 {
		s.WinRatePct = decimal.NewFromInt(int64(s.Wins * 100)).Div(decimal.NewFromInt(int64(s.RoundTrips)))
	}
	return s
}
