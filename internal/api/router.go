// Package api serves the HTTP control surface for strategy runs: status,
// stop, pause/resume, replay speed, wallet and trade history.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/engine"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/portfolio"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
)

// TradeLister reads persisted orders, newest first. An empty runID means
// every run.
type TradeLister interface {
	GetOrders(runID string, limit int) ([]model.Order, error)
}

const defaultTradeLimit = 100

// RunStatus is the response of GET /api/v1/run.
type RunStatus struct {
	ID       string           `json:"id"`
	Mode     string           `json:"mode"`
	State    model.RunState   `json:"state"`
	Symbol   string           `json:"symbol"`
	Strategy string           `json:"strategy"`
	Position string           `json:"position"`
	DelayMs  int64            `json:"delay_ms"`
	Error    string           `json:"error,omitempty"`
	Summary  model.RunSummary `json:"summary"`
}

// StrategyInfo describes a registered strategy kind.
type StrategyInfo struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Params      []strategy.ParamSpec `json:"params"`
}

// WalletStatus is the response of GET /api/v1/wallet.
type WalletStatus struct {
	portfolio.WalletSnapshot
	LastPrice decimal.Decimal      `json:"last_price"`
	Equity    decimal.Decimal      `json:"equity"`
	PnL       portfolio.PnLSummary `json:"pnl"`
}

// NewRouter sets up HTTP routes for the API server. trades may be nil, in
// which case trade history comes from the current run's wallet.
//
//	GET  /api/v1/health
//	GET  /api/v1/strategies
//	GET  /api/v1/run
//	POST /api/v1/run/stop
//	POST /api/v1/run/pause
//	POST /api/v1/run/resume
//	POST /api/v1/run/delay      {"delay_ms": 50}
//	GET  /api/v1/wallet
//	GET  /api/v1/trades?run_id=&limit=
//	GET  /api/v1/roundtrips
func NewRouter(eng *engine.Engine, trades TradeLister) *http.ServeMux {
	mux := http.NewServeMux()
	h := &handlers{eng: eng, trades: trades}

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/api/v1/strategies", only(http.MethodGet, h.strategies))
	mux.HandleFunc("/api/v1/run", only(http.MethodGet, h.status))
	mux.HandleFunc("/api/v1/run/stop", only(http.MethodPost, h.stop))
	mux.HandleFunc("/api/v1/run/pause", only(http.MethodPost, h.control(func(r *engine.Run) error { return r.Pause() })))
	mux.HandleFunc("/api/v1/run/resume", only(http.MethodPost, h.control(func(r *engine.Run) error { return r.Resume() })))
	mux.HandleFunc("/api/v1/run/delay", only(http.MethodPost, h.delay))
	mux.HandleFunc("/api/v1/wallet", only(http.MethodGet, h.wallet))
	mux.HandleFunc("/api/v1/trades", only(http.MethodGet, h.tradeHistory))
	mux.HandleFunc("/api/v1/roundtrips", only(http.MethodGet, h.roundTrips))

	return mux
}

type handlers struct {
	eng    *engine.Engine
	trades TradeLister
}

func (h *handlers) strategies(w http.ResponseWriter, r *http.Request) {
	kinds := h.eng.Strategies().Kinds()
	out := make([]StrategyInfo, len(kinds))
	for i, k := range kinds {
		out[i] = StrategyInfo{ID: k.ID, Description: k.Description, Params: k.Params}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	run := h.eng.Last()
	if run == nil {
		writeError(w, http.StatusNotFound, "no run")
		return
	}
	st := RunStatus{
		ID:       run.ID(),
		Mode:     string(run.Mode()),
		State:    run.State(),
		Symbol:   run.Symbol(),
		Strategy: run.Strategy(),
		Position: string(run.Position()),
		DelayMs:  run.Delay().Milliseconds(),
		Summary:  run.Summary(),
	}
	if err := run.Err(); err != nil {
		st.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	run := h.eng.Active()
	if run == nil {
		writeError(w, http.StatusConflict, "no active run")
		return
	}
	run.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID(), "status": "stopping"})
}

func (h *handlers) control(fn func(*engine.Run) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := h.eng.Active()
		if run == nil {
			writeError(w, http.StatusConflict, "no active run")
			return
		}
		if err := fn(run); err != nil {
			writeRunError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"run_id": run.ID(), "state": string(run.State())})
	}
}

func (h *handlers) delay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DelayMs *int64 `json:"delay_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DelayMs == nil || *req.DelayMs < 0 {
		writeError(w, http.StatusBadRequest, "body must be {\"delay_ms\": <non-negative int>}")
		return
	}
	run := h.eng.Active()
	if run == nil {
		writeError(w, http.StatusConflict, "no active run")
		return
	}
	if err := run.SetDelay(time.Duration(*req.DelayMs) * time.Millisecond); err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"delay_ms": run.Delay().Milliseconds()})
}

func (h *handlers) wallet(w http.ResponseWriter, r *http.Request) {
	run := h.eng.Last()
	if run == nil {
		writeError(w, http.StatusNotFound, "no run")
		return
	}
	snap := run.Wallet().Snapshot()
	last := run.Summary().LastPrice
	writeJSON(w, http.StatusOK, WalletStatus{
		WalletSnapshot: snap,
		LastPrice:      last,
		Equity:         snap.Equity(last),
		PnL:            run.PnL().Summary(last),
	})
}

func (h *handlers) tradeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultTradeLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if h.trades != nil {
		orders, err := h.trades.GetOrders(q.Get("run_id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, orders)
		return
	}

	run := h.eng.Last()
	if run == nil {
		writeJSON(w, http.StatusOK, []model.Order{})
		return
	}
	all := run.Wallet().Trades()
	// Newest first, like the journal.
	out := make([]model.Order, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) roundTrips(w http.ResponseWriter, r *http.Request) {
	run := h.eng.Last()
	if run == nil {
		writeJSON(w, http.StatusOK, []portfolio.RoundTrip{})
		return
	}
	writeJSON(w, http.StatusOK, run.PnL().RoundTrips())
}

func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotPausable) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(w, http.StatusConflict, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
