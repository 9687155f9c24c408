package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick("replay", time.Millisecond)
	m.IncSignal("ma_rsi", "BUY")
	m.IncOverrun()
	m.SetBreakerState("gateway", 1, true)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveTick("live", time.Millisecond)
	m.ObserveTick("live", time.Millisecond)
	m.IncTrade("BUY")
	m.IncRejection("SELL", "no_holdings")
	m.SetBreakerState("redis", 1, true)
	m.SetBreakerState("redis", 2, false)
	m.SetRunState("stopped")

	if got := testutil.ToFloat64(m.TicksTotal.WithLabelValues("live")); got != 2 {
		t.Errorf("ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("BUY")); got != 1 {
		t.Errorf("trades = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BreakerTrips.WithLabelValues("redis")); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("redis")); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunState); got != 3 {
		t.Errorf("run state = %v, want 3", got)
	}
}

func TestHealth_OnlyExpectedDependenciesCount(t *testing.T) {
	h := NewHealthStatus()
	h.Expect(false, false, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503 with sqlite down", rec.Code)
	}

	h.SetSQLiteOK(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
}

func TestHealth_FailedRunDegrades(t *testing.T) {
	h := NewHealthStatus()
	h.SetRunState("failed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
}
