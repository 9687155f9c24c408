package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
)

// MARSIKind is the simple moving average + RSI strategy.
//
// Buy while Flat: close crosses from below to at/above MA and RSI > oversold guard.
// Sell while Long: close crosses from above to at/below MA and RSI > overbought
// guard, or close ≥ entry × (1 + profit threshold).
type MARSIKind struct {
	maPeriod   int
	rsiPeriod  int
	oversold   decimal.Decimal
	overbought decimal.Decimal
	takeProfit decimal.Decimal // 1 + threshold

	maKey, rsiKey string
}

// MARSIID is the registry identifier; it is also the default strategy.
const MARSIID = "ma_rsi"

func maRSIFactory() Factory {
	return Factory{
		ID:          MARSIID,
		Description: "Simple moving average cross filtered by RSI, with take-profit",
		Params: []ParamSpec{
			{Name: "ma_period", Default: 20, Min: 2, Max: 500, Integer: true, Description: "moving average period"},
			{Name: "rsi_period", Default: 14, Min: 2, Max: 200, Integer: true, Description: "RSI period"},
			{Name: "oversold_guard", Default: 30, Min: 0, Max: 100, Description: "buy only when RSI is above this"},
			{Name: "overbought_guard", Default: 60, Min: 0, Max: 100, Description: "cross-down sell only when RSI is above this"},
			{Name: "profit_threshold", Default: 0.05, Min: 0, Max: 10, Description: "take-profit as a fraction of entry"},
		},
		Build: func(p Params) (Kind, error) {
			return NewMARSI(p.Int("ma_period"), p.Int("rsi_period"),
				p.Decimal("oversold_guard"), p.Decimal("overbought_guard"), p.Decimal("profit_threshold")), nil
		},
	}
}

// NewMARSI builds the kind directly, bypassing parameter validation.
func NewMARSI(maPeriod, rsiPeriod int, oversold, overbought, profitThreshold decimal.Decimal) *MARSIKind {
	k := &MARSIKind{
		maPeriod:   maPeriod,
		rsiPeriod:  rsiPeriod,
		oversold:   oversold,
		overbought: overbought,
		takeProfit: decimal.NewFromInt(1).Add(profitThreshold),
	}
	k.maKey = indicator.NewSMA(maPeriod).Name()
	k.rsiKey = indicator.NewRSI(rsiPeriod).Name()
	return k
}

func (k *MARSIKind) ID() string { return MARSIID }

func (k *MARSIKind) Indicators() []indicator.Indicator {
	return []indicator.Indicator{indicator.NewSMA(k.maPeriod), indicator.NewRSI(k.rsiPeriod)}
}

func (k *MARSIKind) Required() []string { return []string{k.maKey, k.rsiKey} }

func (k *MARSIKind) Evaluate(in Input) (Action, string) {
	px := in.Point.Close
	ma := in.Current.Get(k.maKey).Decimal
	rsi := in.Current.Get(k.rsiKey).Decimal

	// A cross needs two defined MA readings.
	crossedUp, crossedDown := false, false
	if prevMA := in.Previous.Get(k.maKey); prevMA.Valid {
		prevDiff := in.PrevClose.Sub(prevMA.Decimal)
		diff := px.Sub(ma)
		crossedUp = crossUp(prevDiff, diff)
		crossedDown = crossDown(prevDiff, diff)
	}

	switch in.Position {
	case PositionFlat:
		if crossedUp && rsi.GreaterThan(k.oversold) {
			return ActionBuy, fmt.Sprintf("close %s crossed above %s %s, RSI %s > %s",
				px, k.maKey, ma.StringFixed(4), rsi.StringFixed(2), k.oversold)
		}
	case PositionLong:
		if in.EntryPrice.Valid {
			target := in.EntryPrice.Decimal.Mul(k.takeProfit)
			if px.GreaterThanOrEqual(target) {
				return ActionSell, fmt.Sprintf("take-profit: close %s ≥ target %s", px, target.StringFixed(4))
			}
		}
		if crossedDown && rsi.GreaterThan(k.overbought) {
			return ActionSell, fmt.Sprintf("close %s crossed below %s %s, RSI %s > %s",
				px, k.maKey, ma.StringFixed(4), rsi.StringFixed(2), k.overbought)
		}
	}
	return ActionNone, ""
}
