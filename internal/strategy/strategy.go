// Package strategy turns indicator readings into trading signals.
//
// A Kind is a pure decision rule over (current readings, previous readings,
// position). The Machine owns the per-run lifecycle and position sub-state
// and feeds the Kind one tick at a time.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Action represents a trading action. The zero value means "no signal".
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Side maps the action to an order side.
func (a Action) Side() model.Side {
	if a == ActionSell {
		return model.SideSell
	}
	return model.SideBuy
}

// Position is the run's position sub-state.
type Position string

const (
	PositionFlat Position = "FLAT"
	PositionLong Position = "LONG"
)

// Signal is emitted at most once per tick.
type Signal struct {
	Strategy string          `json:"strategy"`
	Action   Action          `json:"action"`
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"` // close of the triggering tick
	TS       time.Time       `json:"ts"`
	Reason   string          `json:"reason"`
}

// Input is everything a Kind sees when evaluating one tick.
type Input struct {
	Point    model.PricePoint
	Current  indicator.Snapshot
	Previous indicator.Snapshot // nil on the first evaluated tick

	// PrevClose is the close of the previous tick, valid when Previous != nil.
	PrevClose decimal.Decimal

	Position   Position
	EntryPrice decimal.NullDecimal // valid only while Long
}

// Kind is one strategy variant.
type Kind interface {
	// ID returns the registry identifier (e.g. "ma_rsi").
	ID() string

	// Indicators returns fresh indicator instances the kind reads.
	Indicators() []indicator.Indicator

	// Required lists snapshot keys that must be defined before Evaluate runs.
	Required() []string

	// Evaluate is a pure function of its input. It returns ActionNone or a
	// single action valid for the current position, plus a reason.
	Evaluate(in Input) (Action, string)
}

// crossUp reports whether a - b moved from below zero to at/above zero.
func crossUp(prevDiff, diff decimal.Decimal) bool {
	return prevDiff.IsNegative() && !diff.IsNegative()
}

// crossDown reports whether a - b moved from above zero to at/below zero.
func crossDown(prevDiff, diff decimal.Decimal) bool {
	return prevDiff.IsPositive() && !diff.IsPositive()
}
