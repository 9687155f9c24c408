package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/window"
)

var (
	// ErrNotIdle is returned by Start unless the machine is Idle.
	ErrNotIdle = errors.New("strategy: not idle")
	// ErrNotRunning is returned when a tick arrives outside Running.
	ErrNotRunning = errors.New("strategy: not running")
	// ErrWindowNotEmpty is returned by Start when the window holds points.
	ErrWindowNotEmpty = errors.New("strategy: window not empty")
)

// Machine drives one strategy kind over one price window.
//
// Lifecycle: Idle → Running → Stopped → (Reset) → Idle.
// Position:  Flat ↔ Long, changed only through Confirm after the wallet
// has committed the order.
//
// Not safe for concurrent use.
type Machine struct {
	kind   Kind
	symbol string
	win    *window.Window
	log    *slog.Logger

	state    model.RunState
	position Position
	entry    decimal.NullDecimal

	prev      indicator.Snapshot // readings of the previous ingested tick
	prevClose decimal.Decimal
	havePrev  bool
}

// NewMachine binds kind to win and registers the kind's indicators.
// win must be empty.
func NewMachine(kind Kind, symbol string, win *window.Window, logger *slog.Logger) (*Machine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, ind := range kind.Indicators() {
		if _, err := win.Register(ind); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", kind.ID(), err)
		}
	}
	return &Machine{
		kind:     kind,
		symbol:   symbol,
		win:      win,
		log:      logger.With(slog.String("strategy", kind.ID()), slog.String("symbol", symbol)),
		state:    model.StateIdle,
		position: PositionFlat,
	}, nil
}

// Start moves Idle → Running. The window must be empty.
func (m *Machine) Start() error {
	if m.state != model.StateIdle {
		return fmt.Errorf("%w: state %s", ErrNotIdle, m.state)
	}
	if !m.win.Empty() {
		return ErrWindowNotEmpty
	}
	m.state = model.StateRunning
	m.log.Info("strategy started")
	return nil
}

// Stop moves Running → Stopped. No further ticks are accepted.
func (m *Machine) Stop() {
	if m.state == model.StateRunning {
		m.state = model.StateStopped
		m.log.Info("strategy stopped", slog.String("position", string(m.position)))
	}
}

// Reset returns a stopped machine to Idle with an empty window and a Flat
// position.
func (m *Machine) Reset() {
	m.win.Reset()
	m.state = model.StateIdle
	m.position = PositionFlat
	m.entry = decimal.NullDecimal{}
	m.prev = nil
	m.prevClose = decimal.Zero
	m.havePrev = false
}

// OnTick ingests p and evaluates the kind. It returns at most one signal
// together with the readings computed for p. A nil signal with a nil error
// covers both "no action" and "insufficient data".
func (m *Machine) OnTick(ctx context.Context, p model.PricePoint) (*Signal, indicator.Snapshot, error) {
	if m.state != model.StateRunning {
		return nil, nil, ErrNotRunning
	}

	cur := m.win.Ingest(p)
	var prev indicator.Snapshot
	if m.havePrev {
		prev = m.prev
	}
	prevClose := m.prevClose
	defer func() {
		m.prev = cur
		m.prevClose = p.Close
		m.havePrev = true
	}()

	if !cur.AllDefined(m.kind.Required()...) {
		m.log.DebugContext(ctx, "insufficient data",
			slog.Int("window_size", m.win.Size()),
			slog.Time("ts", p.TS))
		return nil, cur, nil
	}

	action, reason := m.kind.Evaluate(Input{
		Point:      p,
		Current:    cur,
		Previous:   prev,
		PrevClose:  prevClose,
		Position:   m.position,
		EntryPrice: m.entry,
	})
	if action == ActionNone {
		return nil, cur, nil
	}
	// A kind may only open from Flat and close from Long.
	if (action == ActionBuy) != (m.position == PositionFlat) {
		m.log.WarnContext(ctx, "dropping signal inconsistent with position",
			slog.String("action", string(action)), slog.String("position", string(m.position)))
		return nil, cur, nil
	}

	return &Signal{
		Strategy: m.kind.ID(),
		Action:   action,
		Symbol:   m.symbol,
		Price:    p.Close,
		TS:       p.TS,
		Reason:   reason,
	}, cur, nil
}

// Confirm applies a signal whose order the wallet has committed.
// Buy ⇒ Long with entry = price; Sell ⇒ Flat with entry cleared.
func (m *Machine) Confirm(sig Signal, fillPrice decimal.Decimal) {
	switch sig.Action {
	case ActionBuy:
		m.position = PositionLong
		m.entry = decimal.NullDecimal{Decimal: fillPrice, Valid: true}
	case ActionSell:
		m.position = PositionFlat
		m.entry = decimal.NullDecimal{}
	}
}

func (m *Machine) Kind() Kind                      { return m.kind }
func (m *Machine) State() model.RunState           { return m.state }
func (m *Machine) Position() Position              { return m.position }
func (m *Machine) EntryPrice() decimal.NullDecimal { return m.entry }
func (m *Machine) Window() *window.Window          { return m.win }
