package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/engine"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type sliceSource []model.PricePoint

func (s sliceSource) Fetch(context.Context, string, string, time.Time, time.Time) ([]model.PricePoint, error) {
	return s, nil
}

func points(n int) sliceSource {
	levels := []float64{100, 95, 90, 85, 90, 95}
	pts := make(sliceSource, n)
	for i := range pts {
		c := levels[i%len(levels)]
		pts[i] = model.NewPricePoint("BTCUSDT", t0.Add(time.Duration(i)*time.Minute), c, c, c, c)
	}
	return pts
}

func runConfig() engine.RunConfig {
	return engine.RunConfig{
		Symbol:   "BTCUSDT",
		Interval: "1m",
		Strategy: "rsi_threshold",
		Params:   map[string]float64{"rsi_period": 2, "lower": 30, "upper": 70},
	}
}

func do(t *testing.T, mux http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestNoRun(t *testing.T) {
	mux := NewRouter(engine.New(engine.Deps{}), nil)

	if rec := do(t, mux, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/run", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status without run = %d, want 404", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/run/stop", nil); rec.Code != http.StatusConflict {
		t.Errorf("stop without run = %d, want 409", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/run/stop", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET stop = %d, want 405", rec.Code)
	}

	rec := do(t, mux, http.MethodGet, "/api/v1/strategies", nil)
	var kinds []StrategyInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &kinds); err != nil {
		t.Fatalf("strategies: %v (%s)", err, rec.Body)
	}
	if len(kinds) != 3 {
		t.Errorf("strategies = %d, want 3", len(kinds))
	}
}

func TestReplayControls(t *testing.T) {
	eng := engine.New(engine.Deps{})
	mux := NewRouter(eng, nil)

	run, err := eng.StartReplay(context.Background(), runConfig(), points(10000), t0, t0.Add(time.Hour*24*30), 2*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, mux, http.MethodPost, "/api/v1/run/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause = %d %s", rec.Code, rec.Body)
	}
	if run.State() != model.StatePaused {
		t.Errorf("state = %s, want paused", run.State())
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/run/pause", nil); rec.Code != http.StatusConflict {
		t.Errorf("second pause = %d, want 409", rec.Code)
	}

	if rec := do(t, mux, http.MethodPost, "/api/v1/run/delay", map[string]int64{"delay_ms": 0}); rec.Code != http.StatusOK {
		t.Errorf("delay = %d %s", rec.Code, rec.Body)
	}
	if run.Delay() != 0 {
		t.Errorf("delay = %v, want 0", run.Delay())
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/run/delay", map[string]int64{"delay_ms": -5}); rec.Code != http.StatusBadRequest {
		t.Errorf("negative delay = %d, want 400", rec.Code)
	}

	if rec := do(t, mux, http.MethodPost, "/api/v1/run/resume", nil); rec.Code != http.StatusOK {
		t.Fatalf("resume = %d %s", rec.Code, rec.Body)
	}

	var st RunStatus
	rec = do(t, mux, http.MethodGet, "/api/v1/run", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.ID != run.ID() || st.Mode != "replay" || st.Strategy != "rsi_threshold" {
		t.Errorf("status = %+v", st)
	}

	if rec := do(t, mux, http.MethodPost, "/api/v1/run/stop", nil); rec.Code != http.StatusAccepted {
		t.Errorf("stop = %d", rec.Code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run.Wait(ctx)
	if run.State() != model.StateStopped {
		t.Errorf("state after stop = %s", run.State())
	}
}

func TestLiveRunNotPausable(t *testing.T) {
	eng := engine.New(engine.Deps{})
	mux := NewRouter(eng, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	run, err := eng.StartLive(ctx, runConfig(), blockingFeed{}, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer run.Stop()

	if rec := do(t, mux, http.MethodPost, "/api/v1/run/pause", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("pause live = %d, want 422", rec.Code)
	}
}

type blockingFeed struct{}

func (blockingFeed) Stream(ctx context.Context, _ func(model.PricePoint)) error {
	<-ctx.Done()
	return nil
}

func TestWalletAndTrades(t *testing.T) {
	eng := engine.New(engine.Deps{})
	mux := NewRouter(eng, nil)

	run, err := eng.StartReplay(context.Background(), runConfig(), points(60), t0, t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := run.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var ws WalletStatus
	rec := do(t, mux, http.MethodGet, "/api/v1/wallet", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &ws); err != nil {
		t.Fatalf("wallet: %v (%s)", err, rec.Body)
	}
	if !ws.Balance.Equal(sum.FinalBalance) || !ws.Equity.Equal(sum.Equity) {
		t.Errorf("wallet = %+v, summary = %+v", ws, sum)
	}

	var orders []model.Order
	rec = do(t, mux, http.MethodGet, "/api/v1/trades?limit=2", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Fatalf("trades = %d, want 2", len(orders))
	}
	if !orders[0].TS.After(orders[1].TS) {
		t.Error("trades should be newest first")
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/trades?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/roundtrips", nil); rec.Code != http.StatusOK {
		t.Errorf("roundtrips = %d", rec.Code)
	}
}

type stubLister struct{ runID string }

func (s *stubLister) GetOrders(runID string, limit int) ([]model.Order, error) {
	s.runID = runID
	return []model.Order{{OrderID: "SIM-1", RunID: runID}}, nil
}

func TestTradesFromJournal(t *testing.T) {
	lister := &stubLister{}
	mux := NewRouter(engine.New(engine.Deps{}), lister)

	rec := do(t, mux, http.MethodGet, "/api/v1/trades?run_id=abc", nil)
	var orders []model.Order
	json.Unmarshal(rec.Body.Bytes(), &orders)
	if lister.runID != "abc" || len(orders) != 1 || orders[0].OrderID != "SIM-1" {
		t.Errorf("runID=%q orders=%+v", lister.runID, orders)
	}
}
