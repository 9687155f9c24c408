// Package window holds the bounded rolling price window a strategy run
// consumes, together with the indicators maintained over it.
package window

import (
	"errors"
	"fmt"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// ErrNotEmpty is returned when indicators are registered after ingest began.
var ErrNotEmpty = errors.New("window: not empty")

// Config selects which cached readings the window maintains.
// A zero period disables that cache.
type Config struct {
	Capacity    int // max points held; 0 = largest indicator warm-up
	MAPeriod    int
	RSIPeriod   int
	SlopePeriod int
}

// Window is a bounded FIFO of price points. Ingest is the only mutator.
// Not safe for concurrent use; the engine drives it from one goroutine.
type Window struct {
	cfg      Config
	sizeAuto bool // capacity tracks the largest warm-up

	buf  []model.PricePoint
	head int // index of oldest point
	size int

	set *indicator.Set

	ma, rsi, slope indicator.Indicator

	lastMA    indicator.Value
	lastRSI   indicator.Value
	lastSlope indicator.Value
	snap      indicator.Snapshot
}

// New creates an empty window. Extra indicators are updated on every ingest
// alongside the cached MA/RSI/slope.
func New(cfg Config, extra ...indicator.Indicator) (*Window, error) {
	if cfg.Capacity < 0 || cfg.MAPeriod < 0 || cfg.RSIPeriod < 0 || cfg.SlopePeriod < 0 {
		return nil, fmt.Errorf("window: negative size in %+v", cfg)
	}
	if cfg.SlopePeriod == 1 {
		return nil, fmt.Errorf("window: slope period must be at least 2")
	}

	w := &Window{cfg: cfg, set: indicator.NewSet()}
	if cfg.MAPeriod > 0 {
		w.ma = w.set.Add(indicator.NewSMA(cfg.MAPeriod))
	}
	if cfg.RSIPeriod > 0 {
		w.rsi = w.set.Add(indicator.NewRSI(cfg.RSIPeriod))
	}
	if cfg.SlopePeriod > 0 {
		w.slope = w.set.Add(indicator.NewSlope(cfg.SlopePeriod))
	}
	for _, ind := range extra {
		w.set.Add(ind)
	}

	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = w.maxWarmup()
	}
	if capacity == 0 {
		return nil, fmt.Errorf("window: capacity is zero and no indicators configured")
	}
	w.cfg.Capacity = capacity
	w.sizeAuto = cfg.Capacity == 0
	w.buf = make([]model.PricePoint, capacity)
	w.snap = w.set.Snapshot()
	return w, nil
}

// Register adds an indicator. Only allowed while the window is empty so
// every indicator sees the same history. A window sized from warm-up grows
// to cover the new indicator.
func (w *Window) Register(ind indicator.Indicator) (indicator.Indicator, error) {
	if w.size > 0 {
		return nil, fmt.Errorf("register %s: %w", ind.Name(), ErrNotEmpty)
	}
	got := w.set.Add(ind)
	if n := w.maxWarmup(); w.sizeAuto && n > len(w.buf) {
		w.buf = make([]model.PricePoint, n)
		w.head = 0
		w.cfg.Capacity = n
	}
	w.snap = w.set.Snapshot()
	return got, nil
}

// Ingest appends p, evicting the oldest point when full, updates every
// indicator once and refreshes the cached readings. Returns the snapshot
// after the update.
func (w *Window) Ingest(p model.PricePoint) indicator.Snapshot {
	capacity := len(w.buf)
	if w.size < capacity {
		w.buf[(w.head+w.size)%capacity] = p
		w.size++
	} else {
		w.buf[w.head] = p
		w.head = (w.head + 1) % capacity
	}

	w.set.Update(p)
	w.snap = w.set.Snapshot()
	if w.ma != nil {
		w.lastMA = w.ma.Value()
	}
	if w.rsi != nil {
		w.lastRSI = w.rsi.Value()
	}
	if w.slope != nil {
		w.lastSlope = w.slope.Value()
	}
	return w.snap
}

// Reset clears points, indicator state and cached readings.
func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = model.PricePoint{}
	}
	w.head = 0
	w.size = 0
	w.set.Reset()
	w.lastMA = indicator.Undefined
	w.lastRSI = indicator.Undefined
	w.lastSlope = indicator.Undefined
	w.snap = w.set.Snapshot()
}

func (w *Window) Size() int     { return w.size }
func (w *Window) Capacity() int { return len(w.buf) }
func (w *Window) IsFull() bool  { return w.size == len(w.buf) }
func (w *Window) Empty() bool   { return w.size == 0 }

// Latest returns the most recent point.
func (w *Window) Latest() (model.PricePoint, bool) {
	if w.size == 0 {
		return model.PricePoint{}, false
	}
	return w.buf[(w.head+w.size-1)%len(w.buf)], true
}

// Points returns a copy of the held points, oldest first.
func (w *Window) Points() []model.PricePoint {
	out := make([]model.PricePoint, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

func (w *Window) LastMovingAverage() indicator.Value { return w.lastMA }
func (w *Window) LastRSI() indicator.Value           { return w.lastRSI }
func (w *Window) LastSlope() indicator.Value         { return w.lastSlope }

// Snapshot returns the readings of all indicators after the last ingest.
func (w *Window) Snapshot() indicator.Snapshot { return w.snap }

// Indicators exposes the registered indicator set.
func (w *Window) Indicators() *indicator.Set { return w.set }

// MAKey, RSIKey and SlopeKey return the snapshot keys of the cached
// readings, or "" when that cache is disabled.
func (w *Window) MAKey() string    { return keyOf(w.ma) }
func (w *Window) RSIKey() string   { return keyOf(w.rsi) }
func (w *Window) SlopeKey() string { return keyOf(w.slope) }

func keyOf(ind indicator.Indicator) string {
	if ind == nil {
		return ""
	}
	return ind.Name()
}

func (w *Window) maxWarmup() int {
	n := 0
	for _, name := range w.set.Names() {
		ind, _ := w.set.Get(name)
		if m := ind.MinSamples(); m > n {
			n = m
		}
	}
	return n
}
