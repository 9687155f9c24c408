// Package engine drives strategy runs: it owns the single active-run slot,
// feeds price points through the per-tick pipeline in replay or live mode,
// and reports outcomes as events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/execution"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/indicator"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/logger"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/marketdata/replay"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/metrics"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/portfolio"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/ringbuf"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/window"
)

// Feed streams live price points. Stream calls emit for every point and
// returns when ctx is done (nil or ctx.Err()), when the source ends (nil),
// or on an unrecoverable error. Transient errors are retried inside Stream.
type Feed interface {
	Stream(ctx context.Context, emit func(model.PricePoint)) error
}

// DefaultExtras are the indicators reported in tick events besides the
// strategy's own.
var DefaultExtras = []indicator.Config{
	{Type: "EMA", Period: 12},
	{Type: "EMA", Period: 26},
	{Type: "BB", Period: 20, K: 2},
}

// Deps are the collaborators shared by every run. All are optional.
type Deps struct {
	Strategies *strategy.Registry // nil: strategy.DefaultRegistry()
	Events     model.EventPublisher
	Journal    model.TradeJournal
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Logger     *slog.Logger
}

// RunConfig describes one run.
type RunConfig struct {
	Symbol   string
	Interval string
	Strategy string
	Params   map[string]float64

	// Window is derived from the strategy parameters when zero.
	Window window.Config
	// Extra indicators for tick events; nil selects DefaultExtras.
	Extra []indicator.Config

	Wallet portfolio.WalletConfig

	// NewExecutor builds the executor for the run's wallet. Nil selects
	// simulated fills at the tick close.
	NewExecutor func(w *portfolio.Wallet) execution.Executor
}

// Engine owns the active-run slot.
type Engine struct {
	deps Deps
	slot Registry

	mu   sync.RWMutex
	last *Run
}

// New creates an engine.
func New(deps Deps) *Engine {
	if deps.Strategies == nil {
		deps.Strategies = strategy.DefaultRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{deps: deps}
}

// Strategies returns the kind registry.
func (e *Engine) Strategies() *strategy.Registry { return e.deps.Strategies }

// Active returns the running run, or nil.
func (e *Engine) Active() *Run { return e.slot.Active() }

// Last returns the most recently started run (running or ended), or nil.
func (e *Engine) Last() *Run {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// StartReplay validates cfg, claims the slot and replays src's data for
// [from, to) in the background. Configuration errors and ErrAlreadyRunning
// are returned synchronously; a fetch failure ends the run with a RunError.
// Stop during the fetch cancels it and ends the run as stopped.
func (e *Engine) StartReplay(ctx context.Context, cfg RunConfig, src model.HistoricalSource, from, to time.Time, delay time.Duration) (*Run, error) {
	r, err := e.newRun(cfg, ModeReplay)
	if err != nil {
		return nil, err
	}
	r.player = replay.New(nil, delay)

	runCtx, stopCtx, err := e.start(ctx, r)
	if err != nil {
		return nil, err
	}

	go func() {
		pts, err := src.Fetch(stopCtx, cfg.Symbol, cfg.Interval, from, to)
		if err != nil {
			if stopCtx.Err() != nil {
				r.finish(nil)
				return
			}
			r.finish(&RunError{RunID: r.id, Phase: "fetch", Err: fmt.Errorf("%w: %v", ErrHistoricalFetch, err)})
			return
		}
		r.log.Info("historical data loaded", slog.Int("points", len(pts)),
			slog.Time("from", from), slog.Time("to", to))
		r.player.Load(pts)

		err = r.player.Run(stopCtx, func(p model.PricePoint) error {
			return r.process(runCtx, p)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.finish(&RunError{RunID: r.id, Phase: "tick", Err: err})
			return
		}
		r.finish(nil)
	}()
	return r, nil
}

// StartLive validates cfg, claims the slot and processes points from feed
// in the background. The feed pushes into a bounded queue of queueSize
// (drop-oldest) drained by a single worker in arrival order.
func (e *Engine) StartLive(ctx context.Context, cfg RunConfig, feed Feed, queueSize int) (*Run, error) {
	r, err := e.newRun(cfg, ModeLive)
	if err != nil {
		return nil, err
	}
	r.ring = ringbuf.New(queueSize)

	runCtx, stopCtx, err := e.start(ctx, r)
	if err != nil {
		return nil, err
	}

	go func() {
		feedDone := make(chan error, 1)
		go func() { feedDone <- feed.Stream(stopCtx, r.enqueue) }()

		var runErr error
	loop:
		for {
			if err := r.drain(runCtx, stopCtx); err != nil {
				runErr = &RunError{RunID: r.id, Phase: "tick", Err: err}
				break
			}
			select {
			case <-stopCtx.Done():
				break loop
			case <-r.ring.Notify():
			case err := <-feedDone:
				// Source ended: process what is already queued, then stop.
				if derr := r.drain(runCtx, stopCtx); derr != nil {
					runErr = &RunError{RunID: r.id, Phase: "tick", Err: derr}
				} else if err != nil && !errors.Is(err, context.Canceled) {
					runErr = &RunError{RunID: r.id, Phase: "feed", Err: fmt.Errorf("%w: %v", ErrFeed, err)}
				}
				break loop
			}
		}
		r.stop()
		r.finish(runErr)
	}()
	return r, nil
}

// drain processes queued points in FIFO order, checking for stop between
// ticks.
func (r *Run) drain(ctx, stopCtx context.Context) error {
	for stopCtx.Err() == nil {
		p, ok := r.ring.Pop()
		if !ok {
			return nil
		}
		r.deps.Metrics.SetQueueDepth(r.ring.Len())
		if err := r.process(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) newRun(cfg RunConfig, mode Mode) (*Run, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", strategy.ErrInvalidParam)
	}
	kind, params, err := e.deps.Strategies.Build(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}

	wcfg := cfg.Window
	if wcfg == (window.Config{}) {
		wcfg = window.Config{
			MAPeriod:    orDefault(params.Int("ma_period"), 20),
			RSIPeriod:   orDefault(params.Int("rsi_period"), 14),
			SlopePeriod: 5,
		}
	}
	extraCfg := cfg.Extra
	if extraCfg == nil {
		extraCfg = DefaultExtras
	}
	extras := make([]indicator.Indicator, 0, len(extraCfg))
	for _, ic := range extraCfg {
		ind, err := indicator.New(ic)
		if err != nil {
			return nil, err
		}
		extras = append(extras, ind)
	}
	win, err := window.New(wcfg, extras...)
	if err != nil {
		return nil, err
	}

	id := logger.NewRunID()
	log := e.deps.Logger.With(slog.String("run_id", id), slog.String("mode", string(mode)))

	machine, err := strategy.NewMachine(kind, cfg.Symbol, win, log)
	if err != nil {
		return nil, err
	}

	walletCfg := cfg.Wallet
	walletCfg.Symbol = cfg.Symbol
	wallet, err := portfolio.NewWallet(walletCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", strategy.ErrInvalidParam, err)
	}
	wallet.SetRunID(id)

	var exec execution.Executor = execution.NewSimExecutor(wallet)
	if cfg.NewExecutor != nil {
		exec = cfg.NewExecutor(wallet)
	}

	cfg.Params = params
	return &Run{
		id:       id,
		mode:     mode,
		cfg:      cfg,
		deps:     e.deps,
		log:      log,
		machine:  machine,
		wallet:   wallet,
		exec:     exec,
		pnl:      portfolio.NewPnLTracker(wallet.Balance()),
		state:    model.StateIdle,
		position: strategy.PositionFlat,
		done:     make(chan struct{}),
	}, nil
}

// start claims the slot and moves the run to Running. runCtx carries the
// run id for logging; stopCtx is cancelled by Stop.
func (e *Engine) start(ctx context.Context, r *Run) (context.Context, context.Context, error) {
	if err := e.slot.Acquire(r); err != nil {
		return nil, nil, err
	}
	if err := r.machine.Start(); err != nil {
		e.slot.Release(r)
		return nil, nil, err
	}

	runCtx := logger.WithRunID(ctx, r.id)
	stopCtx, stop := context.WithCancel(runCtx)
	r.stop = stop
	r.release = func() { e.slot.Release(r) }

	r.mu.Lock()
	r.state = model.StateRunning
	r.startedAt = time.Now().UTC()
	r.mu.Unlock()

	e.mu.Lock()
	e.last = r
	e.mu.Unlock()

	r.log.Info("run started",
		slog.String("strategy", r.cfg.Strategy),
		slog.String("symbol", r.cfg.Symbol),
		slog.Any("params", r.cfg.Params))
	r.lifecycle(runCtx, model.StateRunning, nil, nil)
	return runCtx, stopCtx, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
