package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/execution"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/marketdata/replay"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/portfolio"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/ringbuf"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
)

// Mode selects how price points reach a run.
type Mode string

const (
	ModeReplay Mode = "replay"
	ModeLive   Mode = "live"
)

var hundred = decimal.NewFromInt(100)

// Run is one strategy execution. The pipeline (process) runs on a single
// goroutine; accessors are safe to call concurrently.
type Run struct {
	id   string
	mode Mode
	cfg  RunConfig
	deps Deps
	log  *slog.Logger

	machine *strategy.Machine
	wallet  *portfolio.Wallet
	exec    execution.Executor
	pnl     *portfolio.PnLTracker

	player *replay.Player // replay only
	ring   *ringbuf.Ring  // live only

	// pipeline-goroutine state
	lastTS time.Time

	seq atomic.Int64

	mu         sync.RWMutex
	state      model.RunState
	position   strategy.Position
	ticks      int64
	skipped    int64
	overruns   int64
	rejections int64
	lastPrice  decimal.Decimal
	startedAt  time.Time
	endedAt    time.Time
	err        error
	summary    *model.RunSummary

	stop    context.CancelFunc
	release func()
	done    chan struct{}
}

func (r *Run) ID() string       { return r.id }
func (r *Run) Mode() Mode       { return r.mode }
func (r *Run) Symbol() string   { return r.cfg.Symbol }
func (r *Run) Strategy() string { return r.cfg.Strategy }

// Wallet returns the run's wallet; it stays queryable after the run ends.
func (r *Run) Wallet() *portfolio.Wallet { return r.wallet }

// PnL returns the tracker fed with the run's committed orders.
func (r *Run) PnL() *portfolio.PnLTracker { return r.pnl }

// Done is closed when the run has ended.
func (r *Run) Done() <-chan struct{} { return r.done }

// State returns the lifecycle state.
func (r *Run) State() model.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error that ended the run, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Position returns the strategy position as of the last processed tick.
func (r *Run) Position() strategy.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position
}

// Wait blocks until the run ends or ctx is done, then returns the summary
// and the error that ended the run.
func (r *Run) Wait(ctx context.Context) (model.RunSummary, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return r.Summary(), ctx.Err()
	}
	return r.Summary(), r.Err()
}

// Stop requests a cooperative stop. The in-flight tick completes.
func (r *Run) Stop() {
	r.stop()
}

// Pause holds a replay before its next tick.
func (r *Run) Pause() error {
	if r.player == nil {
		return fmt.Errorf("pause %s run: %w", r.mode, ErrNotPausable)
	}
	r.mu.Lock()
	if r.state != model.StateRunning {
		st := r.state
		r.mu.Unlock()
		return fmt.Errorf("pause: run is %s", st)
	}
	r.player.Pause()
	r.state = model.StatePaused
	r.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	r.lifecycle(ctx, model.StatePaused, nil, nil)
	return nil
}

// Resume continues a paused replay.
func (r *Run) Resume() error {
	if r.player == nil {
		return fmt.Errorf("resume %s run: %w", r.mode, ErrNotPausable)
	}
	r.mu.Lock()
	if r.state != model.StatePaused {
		st := r.state
		r.mu.Unlock()
		return fmt.Errorf("resume: run is %s", st)
	}
	r.state = model.StateRunning
	r.player.Resume()
	r.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	r.lifecycle(ctx, model.StateRunning, nil, nil)
	return nil
}

// SetDelay changes the replay per-tick delay.
func (r *Run) SetDelay(d time.Duration) error {
	if r.player == nil {
		return fmt.Errorf("set delay on %s run: %w", r.mode, ErrNotPausable)
	}
	r.player.SetDelay(d)
	r.log.Info("replay delay changed", slog.Duration("delay", d))
	return nil
}

// Delay returns the replay per-tick delay (zero for live runs).
func (r *Run) Delay() time.Duration {
	if r.player == nil {
		return 0
	}
	return r.player.Delay()
}

// Summary returns the final summary once the run ended, or a live view.
func (r *Run) Summary() model.RunSummary {
	r.mu.RLock()
	if r.summary != nil {
		s := *r.summary
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()
	return r.buildSummary()
}

func (r *Run) buildSummary() model.RunSummary {
	r.mu.RLock()
	s := model.RunSummary{
		RunID:      r.id,
		Mode:       string(r.mode),
		Strategy:   r.cfg.Strategy,
		Symbol:     r.cfg.Symbol,
		Ticks:      r.ticks,
		Skipped:    r.skipped,
		Overruns:   r.overruns,
		Rejections: r.rejections,
		LastPrice:  r.lastPrice,
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
	}
	r.mu.RUnlock()

	ws := r.wallet.Snapshot()
	s.Trades = ws.Trades
	s.InitialBalance = ws.InitialBalance
	s.FinalBalance = ws.Balance
	s.Holdings = ws.Holdings
	s.Equity = ws.Equity(s.LastPrice)
	s.RealizedPnL = r.pnl.RealizedPnL()
	if ws.InitialBalance.IsPositive() {
		s.ROIPct = s.Equity.Sub(ws.InitialBalance).Div(ws.InitialBalance).Mul(hundred).Round(4)
	}
	return s
}

// process runs one tick through the pipeline: window and indicators,
// strategy, execution, confirmation and events. Only a non-recoverable
// failure is returned; rejected orders are reported as events.
func (r *Run) process(ctx context.Context, p model.PricePoint) error {
	start := time.Now()

	if err := p.Validate(); err != nil {
		r.skip()
		r.log.WarnContext(ctx, "skipping invalid price point", slog.Any("error", err))
		return nil
	}
	if !r.lastTS.IsZero() && !p.TS.After(r.lastTS) {
		r.skip()
		r.log.DebugContext(ctx, "skipping duplicate or older timestamp",
			slog.Time("ts", p.TS), slog.Time("last_ts", r.lastTS))
		return nil
	}
	r.lastTS = p.TS

	sig, snap, err := r.machine.OnTick(ctx, p)
	if err != nil {
		return err
	}
	action := ""
	if sig != nil {
		action = string(sig.Action)
		r.execute(ctx, *sig)
	}

	ws := r.wallet.Snapshot()
	equity := ws.Equity(p.Close)
	r.pnl.MarkEquity(equity)

	position := r.machine.Position()
	r.mu.Lock()
	r.ticks++
	r.lastPrice = p.Close
	r.position = position
	r.mu.Unlock()

	r.deps.Metrics.ObserveTick(string(r.mode), time.Since(start))
	r.deps.Metrics.SetWallet(ws.Balance.InexactFloat64(), equity.InexactFloat64())
	if r.deps.Health != nil {
		r.deps.Health.SetLastTickTime(time.Now())
	}

	r.publish(ctx, model.Event{
		Type: model.EventTick,
		TS:   p.TS,
		Tick: &model.TickEvent{
			Point:      p,
			Indicators: map[string]decimal.NullDecimal(snap),
			Position:   string(position),
			Signal:     action,
		},
	})
	return nil
}

func (r *Run) execute(ctx context.Context, sig strategy.Signal) {
	side := sig.Action.Side()
	r.deps.Metrics.IncSignal(sig.Strategy, string(sig.Action))

	order, err := r.exec.Execute(ctx, sig)
	if err != nil {
		r.mu.Lock()
		r.rejections++
		r.mu.Unlock()
		r.deps.Metrics.IncRejection(string(side), rejectionReason(err))
		r.log.WarnContext(ctx, "signal not executed",
			slog.String("action", string(sig.Action)),
			slog.String("price", sig.Price.String()),
			slog.Any("error", err))
		r.publish(ctx, model.Event{
			Type:      model.EventRejected,
			TS:        sig.TS,
			Rejection: &model.Rejection{Side: side, Reason: err.Error()},
		})
		return
	}

	r.machine.Confirm(sig, order.Price)
	r.pnl.RecordOrder(order)
	if r.deps.Journal != nil {
		if err := r.deps.Journal.RecordOrder(order); err != nil {
			r.log.ErrorContext(ctx, "journal write failed", slog.String("order_id", order.OrderID), slog.Any("error", err))
		}
	}
	r.deps.Metrics.IncTrade(string(side))
	r.log.InfoContext(ctx, "order filled",
		slog.String("order_id", order.OrderID),
		slog.String("side", string(side)),
		slog.String("qty", order.Qty.String()),
		slog.String("price", order.Price.String()),
		slog.String("balance", order.BalanceAfter.String()),
		slog.String("reason", order.Reason))

	r.publish(ctx, model.Event{Type: model.EventTrade, TS: order.TS, Trade: &order})
}

func (r *Run) skip() {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
	r.deps.Metrics.IncSkipped()
}

// enqueue is the live feed callback. It never blocks: a full queue drops
// the oldest pending tick.
func (r *Run) enqueue(p model.PricePoint) {
	evicted, dropped := r.ring.Push(p)
	if dropped {
		r.mu.Lock()
		r.overruns++
		r.mu.Unlock()
		r.deps.Metrics.IncOverrun()
		r.log.Warn("live queue overrun, dropped oldest pending tick",
			slog.Time("dropped_ts", evicted.TS), slog.Int("queue_cap", r.ring.Cap()))
	}
	r.deps.Metrics.SetQueueDepth(r.ring.Len())
}

func (r *Run) publish(ctx context.Context, ev model.Event) {
	if r.deps.Events == nil {
		return
	}
	ev.RunID = r.id
	ev.Seq = r.seq.Add(1)
	if err := r.deps.Events.Publish(ctx, ev); err != nil {
		r.log.Warn("event publish failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}

func (r *Run) lifecycle(ctx context.Context, state model.RunState, runErr error, summary *model.RunSummary) {
	r.deps.Metrics.SetRunState(string(state))
	if r.deps.Health != nil {
		r.deps.Health.SetRunState(string(state))
	}
	lc := &model.LifecycleEvent{
		State:    state,
		Mode:     string(r.mode),
		Strategy: r.cfg.Strategy,
		Symbol:   r.cfg.Symbol,
		Summary:  summary,
	}
	if runErr != nil {
		lc.Error = runErr.Error()
	}
	r.publish(ctx, model.Event{Type: model.EventLifecycle, TS: time.Now().UTC(), Lifecycle: lc})
}

// lifecycleTimeout bounds how long a lifecycle event published outside the
// caller's context waits for a slow subscriber.
var lifecycleTimeout = 5 * time.Second

// finish records the final state, emits the summary and frees the slot.
func (r *Run) finish(runErr error) {
	r.machine.Stop()

	r.mu.Lock()
	r.endedAt = time.Now().UTC()
	r.mu.Unlock()
	summary := r.buildSummary()

	state := model.StateStopped
	if runErr != nil {
		state = model.StateFailed
		r.log.Error("run failed", slog.Any("error", runErr))
	} else {
		r.log.Info("run stopped",
			slog.Int64("ticks", summary.Ticks),
			slog.Int("trades", summary.Trades),
			slog.String("final_balance", summary.FinalBalance.String()),
			slog.String("roi_pct", summary.ROIPct.String()))
	}

	r.mu.Lock()
	r.state = state
	r.err = runErr
	r.summary = &summary
	r.mu.Unlock()

	// The caller's context may already be cancelled; lifecycle events
	// still get a bounded chance to reach subscribers.
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	r.lifecycle(ctx, state, runErr, &summary)
	cancel()

	r.release()
	r.stop()
	close(r.done)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, portfolio.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, portfolio.ErrNoHoldings):
		return "no_holdings"
	case errors.Is(err, execution.ErrOrderRejected):
		return "order_rejected"
	case errors.Is(err, execution.ErrPartialFill):
		return "partial_fill"
	default:
		return "error"
	}
}
