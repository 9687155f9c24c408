package strategy

import (
	"fmt"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
)

// MACDCrossID is the registry identifier of MACDCrossKind.
const MACDCrossID = "macd_cross"

// MACDCrossKind buys when the MACD line crosses above its signal line and
// sells when it crosses below.
type MACDCrossKind struct {
	fast, slow, signal int
	lineKey, sigKey    string
}

func macdCrossFactory() Factory {
	return Factory{
		ID:          MACDCrossID,
		Description: "MACD line / signal line crossover",
		Params: []ParamSpec{
			{Name: "fast", Default: 12, Min: 2, Max: 200, Integer: true, Description: "fast EMA period"},
			{Name: "slow", Default: 26, Min: 3, Max: 400, Integer: true, Description: "slow EMA period"},
			{Name: "signal", Default: 9, Min: 2, Max: 200, Integer: true, Description: "signal EMA period"},
		},
		Build: func(p Params) (Kind, error) {
			if p["fast"] >= p["slow"] {
				return nil, fmt.Errorf("%w: fast %v must be below slow %v", ErrInvalidParam, p["fast"], p["slow"])
			}
			return NewMACDCross(p.Int("fast"), p.Int("slow"), p.Int("signal")), nil
		},
	}
}

// NewMACDCross builds the kind directly.
func NewMACDCross(fast, slow, signal int) *MACDCrossKind {
	name := indicator.NewMACD(fast, slow, signal).Name()
	return &MACDCrossKind{
		fast: fast, slow: slow, signal: signal,
		lineKey: name,
		sigKey:  name + ".signal",
	}
}

func (k *MACDCrossKind) ID() string { return MACDCrossID }

func (k *MACDCrossKind) Indicators() []indicator.Indicator {
	return []indicator.Indicator{indicator.NewMACD(k.fast, k.slow, k.signal)}
}

func (k *MACDCrossKind) Required() []string { return []string{k.lineKey, k.sigKey} }

func (k *MACDCrossKind) Evaluate(in Input) (Action, string) {
	if !in.Previous.AllDefined(k.lineKey, k.sigKey) {
		return ActionNone, ""
	}
	prevDiff := in.Previous.Get(k.lineKey).Decimal.Sub(in.Previous.Get(k.sigKey).Decimal)
	diff := in.Current.Get(k.lineKey).Decimal.Sub(in.Current.Get(k.sigKey).Decimal)

	switch in.Position {
	case PositionFlat:
		if !prevDiff.IsPositive() && diff.IsPositive() {
			return ActionBuy, fmt.Sprintf("MACD crossed above signal (hist %s)", diff.StringFixed(6))
		}
	case PositionLong:
		if !prevDiff.IsNegative() && diff.IsNegative() {
			return ActionSell, fmt.Sprintf("MACD crossed below signal (hist %s)", diff.StringFixed(6))
		}
	}
	return ActionNone, ""
}
