package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType classifies outward events emitted by a run.
type EventType string

const (
	EventTick      EventType = "tick"
	EventTrade     EventType = "trade"
	EventRejected  EventType = "rejected"
	EventLifecycle EventType = "lifecycle"
)

// RunState is the lifecycle state reported in lifecycle events.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
	StateStopped RunState = "stopped"
	StateFailed  RunState = "failed"
)

// Event is the envelope published on the event bus.
// Exactly one of the payload pointers is set, matching Type.
type Event struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Seq       int64           `json:"seq"`
	TS        time.Time       `json:"ts"`
	Tick      *TickEvent      `json:"tick,omitempty"`
	Trade     *Order          `json:"trade,omitempty"`
	Rejection *Rejection      `json:"rejection,omitempty"`
	Lifecycle *LifecycleEvent `json:"lifecycle,omitempty"`
}

// TickEvent reports one processed price point and the indicator values
// computed for it. Undefined indicators encode as null.
type TickEvent struct {
	Point      PricePoint                     `json:"point"`
	Indicators map[string]decimal.NullDecimal `json:"indicators"`
	Position   string                         `json:"position"`
	Signal     string                         `json:"signal,omitempty"`
}

// Rejection reports a signal that could not be executed.
type Rejection struct {
	Side   Side   `json:"side"`
	Reason string `json:"reason"`
}

// LifecycleEvent reports a run state transition.
type LifecycleEvent struct {
	State    RunState    `json:"state"`
	Mode     string      `json:"mode"`
	Strategy string      `json:"strategy"`
	Symbol   string      `json:"symbol"`
	Error    string      `json:"error,omitempty"`
	Summary  *RunSummary `json:"summary,omitempty"`
}

// RunSummary is emitted when a run stops.
type RunSummary struct {
	RunID          string          `json:"run_id"`
	Mode           string          `json:"mode"`
	Strategy       string          `json:"strategy"`
	Symbol         string          `json:"symbol"`
	Ticks          int64           `json:"ticks"`
	Skipped        int64           `json:"skipped"`
	Overruns       int64           `json:"overruns"`
	Trades         int             `json:"trades"`
	Rejections     int64           `json:"rejections"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	FinalBalance   decimal.Decimal `json:"final_balance"`
	Holdings       decimal.Decimal `json:"holdings"`
	LastPrice      decimal.Decimal `json:"last_price"`
	Equity         decimal.Decimal `json:"equity"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	ROIPct         decimal.Decimal `json:"roi_pct"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        time.Time       `json:"ended_at"`
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Channel returns the pub/sub channel name for this event: "events:<type>".
func (e *Event) Channel() string {
	return "events:" + string(e.Type)
}
