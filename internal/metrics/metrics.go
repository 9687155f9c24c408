// Package metrics exposes Prometheus metrics and the /healthz endpoint for
// the trading engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	TicksTotal      *prometheus.CounterVec // labels: mode
	SkippedTicks    prometheus.Counter     // duplicate/older timestamps, invalid points
	TickProcessDur  prometheus.Histogram
	SignalsTotal    *prometheus.CounterVec // labels: strategy, action
	TradesTotal     *prometheus.CounterVec // labels: side
	RejectionsTotal *prometheus.CounterVec // labels: side, reason
	Equity          prometheus.Gauge
	Balance         prometheus.Gauge
	RunState        prometheus.Gauge // 0=idle, 1=running, 2=paused, 3=stopped, 4=failed

	// Live feed
	QueueOverruns  prometheus.Counter
	QueueDepth     prometheus.Gauge
	FeedReconnects prometheus.Counter

	// Event fan-out
	EventDropsTotal *prometheus.CounterVec // labels: subscriber

	// Circuit breakers
	BreakerState        *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips        *prometheus.CounterVec // labels: name
	RedisBufferedWrites prometheus.Counter
	RedisWriteDur       prometheus.Histogram
	SQLiteCommitDur     prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_ticks_total",
			Help: "Price points processed by the run pipeline",
		}, []string{"mode"}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_skipped_ticks_total",
			Help: "Price points skipped (invalid, duplicate or older timestamp)",
		}),
		TickProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_tick_process_duration_seconds",
			Help:    "Per-tick pipeline latency (indicators, strategy, execution)",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_signals_total",
			Help: "Signals emitted by the strategy",
		}, []string{"strategy", "action"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_trades_total",
			Help: "Orders committed to the wallet",
		}, []string{"side"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_rejections_total",
			Help: "Signals that could not be executed",
		}, []string{"side", "reason"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_equity",
			Help: "Wallet equity marked at the last close",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_balance",
			Help: "Wallet quote-currency balance",
		}),
		RunState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_run_state",
			Help: "Run state (0=idle, 1=running, 2=paused, 3=stopped, 4=failed)",
		}),

		QueueOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_queue_overruns_total",
			Help: "Pending live ticks dropped because the queue was full",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_queue_depth",
			Help: "Pending live ticks",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_feed_reconnects_total",
			Help: "Live feed reconnection attempts",
		}),

		EventDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_event_drops_total",
			Help: "Events dropped per slow subscriber",
		}, []string{"subscriber"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradebot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_redis_buffered_writes_total",
			Help: "Events buffered locally while the Redis breaker was open",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.SkippedTicks,
		m.TickProcessDur,
		m.SignalsTotal,
		m.TradesTotal,
		m.RejectionsTotal,
		m.Equity,
		m.Balance,
		m.RunState,
		m.QueueOverruns,
		m.QueueDepth,
		m.FeedReconnects,
		m.EventDropsTotal,
		m.BreakerState,
		m.BreakerTrips,
		m.RedisBufferedWrites,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
	)

	return m
}

// ObserveTick records one processed tick.
func (m *Metrics) ObserveTick(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(mode).Inc()
	m.TickProcessDur.Observe(d.Seconds())
}

// IncSkipped records a skipped tick.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

// IncSignal records a strategy signal.
func (m *Metrics) IncSignal(strategy, action string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(strategy, action).Inc()
}

// IncTrade records a committed order.
func (m *Metrics) IncTrade(side string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
}

// IncRejection records a signal that was not executed.
func (m *Metrics) IncRejection(side, reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(side, reason).Inc()
}

// SetWallet updates the balance and equity gauges.
func (m *Metrics) SetWallet(balance, equity float64) {
	if m == nil {
		return
	}
	m.Balance.Set(balance)
	m.Equity.Set(equity)
}

// SetRunState maps a run state name to the gauge value.
func (m *Metrics) SetRunState(state string) {
	if m == nil {
		return
	}
	v := map[string]float64{"idle": 0, "running": 1, "paused": 2, "stopped": 3, "failed": 4}[state]
	m.RunState.Set(v)
}

// IncOverrun records a dropped pending live tick.
func (m *Metrics) IncOverrun() {
	if m == nil {
		return
	}
	m.QueueOverruns.Inc()
}

// SetQueueDepth updates the pending live tick gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncReconnect records a live feed reconnect attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.FeedReconnects.Inc()
}

// IncEventDrop records an event dropped for a subscriber.
func (m *Metrics) IncEventDrop(subscriber string) {
	if m == nil {
		return
	}
	m.EventDropsTotal.WithLabelValues(subscriber).Inc()
}

// SetBreakerState records a breaker transition. tripped is true on a move
// into the open state.
func (m *Metrics) SetBreakerState(name string, state int, tripped bool) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
	if tripped {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// IncRedisBuffered records an event buffered while the Redis breaker was open.
func (m *Metrics) IncRedisBuffered() {
	if m == nil {
		return
	}
	m.RedisBufferedWrites.Inc()
}

func (m *Metrics) ObserveRedisWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.RedisWriteDur.Observe(d.Seconds())
}

func (m *Metrics) ObserveSQLiteCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.SQLiteCommitDur.Observe(d.Seconds())
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	RunState       string    `json:"run_state"`

	// Which dependencies count toward overall health.
	needFeed, needRedis, needSQLite bool

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		RunState:  "idle",
		StartedAt: time.Now(),
	}
}

// Expect declares which dependencies the process uses. Unused dependencies
// do not degrade health.
func (h *HealthStatus) Expect(feed, redis, sqlite bool) {
	h.mu.Lock()
	h.needFeed, h.needRedis, h.needSQLite = feed, redis, sqlite
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRunState(s string) {
	h.mu.Lock()
	h.RunState = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are
// skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	down := 0
	if h.needFeed && !h.FeedConnected {
		down++
	}
	if h.needRedis && !h.RedisConnected {
		down++
	}
	if h.needSQLite && !h.SQLiteOK {
		down++
	}
	if down > 0 || h.RunState == "failed" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if down > 1 {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RunState        string  `json:"run_state"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RunState:        h.RunState,
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
