package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
)

// RSIThresholdID is the registry identifier of RSIThresholdKind.
const RSIThresholdID = "rsi_threshold"

// RSIThresholdKind buys when RSI ≤ lower while Flat and sells when
// RSI ≥ upper while Long.
type RSIThresholdKind struct {
	period       int
	lower, upper decimal.Decimal
	key          string
}

func rsiThresholdFactory() Factory {
	return Factory{
		ID:          RSIThresholdID,
		Description: "Mean reversion on RSI thresholds",
		Params: []ParamSpec{
			{Name: "rsi_period", Default: 14, Min: 2, Max: 200, Integer: true, Description: "RSI period"},
			{Name: "lower", Default: 30, Min: 0, Max: 100, Description: "buy at or below"},
			{Name: "upper", Default: 70, Min: 0, Max: 100, Description: "sell at or above"},
		},
		Build: func(p Params) (Kind, error) {
			if p["lower"] >= p["upper"] {
				return nil, fmt.Errorf("%w: lower %v must be below upper %v", ErrInvalidParam, p["lower"], p["upper"])
			}
			return NewRSIThreshold(p.Int("rsi_period"), p.Decimal("lower"), p.Decimal("upper")), nil
		},
	}
}

// NewRSIThreshold builds the kind directly.
func NewRSIThreshold(period int, lower, upper decimal.Decimal) *RSIThresholdKind {
	return &RSIThresholdKind{
		period: period,
		lower:  lower,
		upper:  upper,
		key:    indicator.NewRSI(period).Name(),
	}
}

func (k *RSIThresholdKind) ID() string { return RSIThresholdID }

func (k *RSIThresholdKind) Indicators() []indicator.Indicator {
	return []indicator.Indicator{indicator.NewRSI(k.period)}
}

func (k *RSIThresholdKind) Required() []string { return []string{k.key} }

func (k *RSIThresholdKind) Evaluate(in Input) (Action, string) {
	rsi := in.Current.Get(k.key).Decimal
	switch in.Position {
	case PositionFlat:
		if rsi.LessThanOrEqual(k.lower) {
			return ActionBuy, fmt.Sprintf("RSI %s ≤ %s", rsi.StringFixed(2), k.lower)
		}
	case PositionLong:
		if rsi.GreaterThanOrEqual(k.upper) {
			return ActionSell, fmt.Sprintf("RSI %s ≥ %s", rsi.StringFixed(2), k.upper)
		}
	}
	return ActionNone, ""
}
