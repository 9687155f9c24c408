package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/config"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/api"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/circuit"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/engine"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/events"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/execution"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/gateway"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/logger"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/marketdata/resample"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/marketdata/wsfeed"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/metrics"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/notification"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/portfolio"
	redisstore "github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/store/redis"
	sqlitestore "github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/store/sqlite"
)

// app holds the process-wide collaborators around the engine.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	prom    *metrics.Metrics
	health  *metrics.HealthStatus
	metrics *metrics.Server
	apiSrv  *http.Server

	bus     *events.Bus
	journal *execution.Journal
	redis   *redisstore.Writer
	hub     *gateway.Hub
	eng     *engine.Engine

	// Event consumers run on their own context so they can drain the bus
	// after the run's context is cancelled.
	consumerCtx   context.Context
	stopConsumers context.CancelFunc
	consumers     sync.WaitGroup
}

func newApp(cfg *config.Config, live bool) (*app, error) {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		logger: logger.InitWriter(os.Stdout, "tradebot", level, cfg.Logging.Format),
	}
	a.consumerCtx, a.stopConsumers = context.WithCancel(context.Background())

	// ---- Metrics & health ----
	a.prom = metrics.NewMetrics(nil)
	a.health = metrics.NewHealthStatus()
	a.health.Expect(live, cfg.Storage.RedisAddr != "", true)
	if cfg.Server.MetricsAddr != "" {
		a.metrics = metrics.NewServer(cfg.Server.MetricsAddr, a.health)
		a.metrics.Start()
	}

	// ---- Order journal ----
	if err := ensureDir(cfg.Storage.JournalPath); err != nil {
		return nil, err
	}
	a.journal, err = execution.NewJournal(cfg.Storage.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	a.health.SetSQLiteOK(true)

	// ---- Event bus ----
	a.bus = events.NewBus(4096)
	a.bus.OnDrop = func(idx int, _ model.Event) {
		a.prom.IncEventDrop(strconv.Itoa(idx))
	}

	// ---- Redis publisher (optional) ----
	if cfg.Storage.RedisAddr != "" {
		if err := a.startRedis(); err != nil {
			log.Printf("[tradebot] WARNING: redis init failed: %v (continuing without redis)", err)
			a.health.SetRedisConnected(false)
		}
	}
	a.health.StartLivenessChecker(a.consumerCtx, a.redisClientOrNil(), a.journal.DB(), 10*time.Second)

	// ---- WebSocket hub + notifications ----
	a.hub = gateway.NewHub()
	a.consume(func(ctx context.Context, ch <-chan model.Event) { a.hub.Run(ctx, ch) })
	go a.hub.StartMetricsBroadcast(a.consumerCtx, time.Now(), 2*time.Second)

	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.Notify.WebhookURL != "" {
		wh := notification.NewWebhookNotifier(cfg.Notify.WebhookURL)
		wh.MinLevel = notification.AlertLevel(strings.ToUpper(cfg.Notify.MinLevel))
		notifiers = append(notifiers, wh)
	}
	a.consume(func(ctx context.Context, ch <-chan model.Event) { notification.Run(ctx, ch, notifiers) })

	// ---- Engine ----
	a.eng = engine.New(engine.Deps{
		Events:  a.bus,
		Journal: a.journal,
		Metrics: a.prom,
		Health:  a.health,
		Logger:  a.logger,
	})

	// ---- Control API ----
	if cfg.Server.APIAddr != "" {
		mux := api.NewRouter(a.eng, a.journal)
		gateway.RegisterRoutes(mux, a.hub)
		a.apiSrv = &http.Server{Addr: cfg.Server.APIAddr, Handler: mux}
		go func() {
			log.Printf("[tradebot] api listening on %s", cfg.Server.APIAddr)
			if err := a.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[tradebot] api server error: %v", err)
			}
		}()
	}

	return a, nil
}

func (a *app) startRedis() error {
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:         a.cfg.Storage.RedisAddr,
		Password:     a.cfg.Storage.RedisPassword,
		DB:           a.cfg.Storage.RedisDB,
		StreamMaxLen: a.cfg.Storage.StreamMaxLen,
		OnWrite:      a.prom.ObserveRedisWrite,
	})
	if err != nil {
		return err
	}
	a.redis = w
	a.health.SetRedisConnected(true)

	cb := circuit.New(5, 10*time.Second)
	cb.OnStateChange = func(from, to circuit.State) {
		log.Printf("[tradebot] redis breaker %s -> %s", from, to)
		a.prom.SetBreakerState("redis", int(to), to == circuit.StateOpen)
		a.health.SetRedisConnected(to != circuit.StateOpen)
	}
	bw := redisstore.NewBufferedWriter(w, cb, 10000)
	bw.OnBuffer = a.prom.IncRedisBuffered
	a.consume(func(ctx context.Context, ch <-chan model.Event) { events.Forward(ctx, ch, bw) })
	return nil
}

func (a *app) redisClientOrNil() *goredis.Client {
	if a.redis == nil {
		return nil
	}
	return a.redis.Client()
}

// consume subscribes fn to the bus. Subscriptions are made before any run
// starts so no event is missed.
func (a *app) consume(fn func(ctx context.Context, ch <-chan model.Event)) {
	ch := a.bus.Subscribe()
	a.consumers.Add(1)
	go func() {
		defer a.consumers.Done()
		fn(a.consumerCtx, ch)
	}()
}

func (a *app) runConfig() engine.RunConfig {
	t := a.cfg.Trading
	return engine.RunConfig{
		Symbol:   t.Symbol,
		Interval: t.Interval,
		Strategy: t.Strategy,
		Params:   a.cfg.StrategyParams(t.Strategy),
		Wallet: portfolio.WalletConfig{
			Symbol:         t.Symbol,
			InitialBalance: decimal.NewFromFloat(t.InitialBalance),
			FeeRate:        decimal.NewNullDecimal(decimal.NewFromFloat(t.FeeRate)),
			LotSize:        decimal.NewFromFloat(t.LotSize),
			FixedQty:       decimal.NewFromFloat(t.Quantity),
		},
	}
}

// backtest replays the configured date range from the candle store.
func (a *app) backtest(ctx context.Context) error {
	reader, err := sqlitestore.NewReader(a.cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	from, to, err := a.cfg.BacktestRange()
	if err != nil {
		return err
	}
	log.Printf("[tradebot] backtest %s %s %s..%s strategy=%s delay=%s",
		a.cfg.Trading.Symbol, a.cfg.Trading.Interval, from.Format("2006-01-02"),
		to.Add(-time.Nanosecond).Format("2006-01-02"), a.cfg.Trading.Strategy, a.cfg.ProcessingDelay())

	src := resample.NewSource(reader, a.cfg.Backtesting.BaseInterval)
	run, err := a.eng.StartReplay(ctx, a.runConfig(), src, from, to, a.cfg.ProcessingDelay())
	if err != nil {
		return err
	}
	return a.wait(ctx, run)
}

// live trades against the WebSocket feed through the paper gateway until
// interrupted. Incoming points are also persisted to the candle store.
func (a *app) live(ctx context.Context) error {
	lc := a.cfg.Live
	feed, err := wsfeed.New(wsfeed.Config{
		URL:               lc.FeedURL,
		Symbol:            a.cfg.Trading.Symbol,
		Format:            lc.FeedFormat,
		ReconnectDelay:    time.Duration(lc.ReconnectMinMs) * time.Millisecond,
		MaxReconnectDelay: time.Duration(lc.ReconnectMaxMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	feed.OnConnect = func() { a.health.SetFeedConnected(true) }
	feed.OnDisconnect = func(error) { a.health.SetFeedConnected(false) }
	feed.OnReconnect = a.prom.IncReconnect

	// Candle persistence, off the hot path.
	if err := ensureDir(a.cfg.Storage.SQLitePath); err != nil {
		return err
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   a.cfg.Storage.SQLitePath,
		Interval: a.cfg.Trading.Interval,
		OnCommit: func(_ int, d time.Duration) { a.prom.ObserveSQLiteCommit(d) },
	})
	if err != nil {
		return err
	}
	defer writer.Close()
	// The feed goroutine may still emit after the run ends, so the channel
	// is never closed; cancelling persistCtx flushes the pending batch.
	persistCh := make(chan model.PricePoint, 1024)
	persistCtx, stopPersist := context.WithCancel(context.Background())
	persistDone := make(chan struct{})
	go func() {
		writer.Run(persistCtx, persistCh)
		close(persistDone)
	}()
	defer func() {
		stopPersist()
		<-persistDone
	}()

	// Paper gateway → rate limit → circuit breaker.
	cb := circuit.New(lc.BreakerMaxFailures, time.Duration(lc.BreakerResetSec)*time.Second)
	cb.IsFailure = func(err error) bool {
		return !errors.Is(err, execution.ErrOrderRejected) &&
			!errors.Is(err, execution.ErrPartialFill) &&
			!errors.Is(err, context.Canceled)
	}
	cb.OnStateChange = func(from, to circuit.State) {
		log.Printf("[tradebot] order gateway breaker %s -> %s", from, to)
		a.prom.SetBreakerState("gateway", int(to), to == circuit.StateOpen)
	}
	gw := execution.NewGuarded(
		execution.NewRateLimited(execution.NewPaperGateway(lc.SlippageBps), lc.OrdersPerSecond, 1),
		cb,
	)

	cfg := a.runConfig()
	cfg.NewExecutor = func(w *portfolio.Wallet) execution.Executor {
		return execution.NewLiveExecutor(w, gw, lc.HeadroomBps, a.logger)
	}

	log.Printf("[tradebot] live %s via %s strategy=%s", a.cfg.Trading.Symbol, lc.FeedURL, a.cfg.Trading.Strategy)
	run, err := a.eng.StartLive(ctx, cfg, teeFeed{Feed: feed, out: persistCh}, lc.QueueSize)
	if err != nil {
		return err
	}
	return a.wait(ctx, run)
}

// wait blocks until the run ends, stopping it when ctx is cancelled.
func (a *app) wait(ctx context.Context, run *engine.Run) error {
	go func() {
		select {
		case <-ctx.Done():
			run.Stop()
		case <-run.Done():
		}
	}()
	sum, err := run.Wait(context.Background())
	printSummary(sum)
	return err
}

// close drains event consumers and shuts servers down.
func (a *app) close() {
	a.bus.Close()
	done := make(chan struct{})
	go func() {
		a.consumers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Println("[tradebot] WARNING: event consumers did not drain in time")
	}
	a.stopConsumers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.apiSrv != nil {
		a.apiSrv.Shutdown(shutdownCtx)
	}
	if a.metrics != nil {
		a.metrics.Stop(shutdownCtx)
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.journal.Close()
	log.Println("[tradebot] shutdown complete")
}

// teeFeed copies every live point to out without blocking the feed.
type teeFeed struct {
	engine.Feed
	out chan<- model.PricePoint
}

func (t teeFeed) Stream(ctx context.Context, emit func(model.PricePoint)) error {
	return t.Feed.Stream(ctx, func(p model.PricePoint) {
		emit(p)
		select {
		case t.out <- p:
		default:
		}
	})
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func printSummary(s model.RunSummary) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Printf("║  %-6s RUN COMPLETE                      ║\n", s.Mode)
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Strategy:        %-22s ║\n", s.Strategy)
	fmt.Printf("║  Symbol:          %-22s ║\n", s.Symbol)
	fmt.Printf("║  Ticks:           %-22d ║\n", s.Ticks)
	fmt.Printf("║  Skipped:         %-22d ║\n", s.Skipped)
	fmt.Printf("║  Trades:          %-22d ║\n", s.Trades)
	fmt.Printf("║  Rejections:      %-22d ║\n", s.Rejections)
	fmt.Printf("║  Initial balance: %-22s ║\n", s.InitialBalance.StringFixed(2))
	fmt.Printf("║  Final balance:   %-22s ║\n", s.FinalBalance.StringFixed(2))
	fmt.Printf("║  Holdings:        %-22s ║\n", s.Holdings.String())
	fmt.Printf("║  Equity:          %-22s ║\n", s.Equity.StringFixed(2))
	fmt.Printf("║  Realized P&L:    %-22s ║\n", s.RealizedPnL.StringFixed(2))
	fmt.Printf("║  ROI:             %-22s ║\n", s.ROIPct.StringFixed(2)+"%")
	fmt.Println("╚══════════════════════════════════════════╝")
}
