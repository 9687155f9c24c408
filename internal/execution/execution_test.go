package execution

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/circuit"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/portfolio"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newWallet(t *testing.T) *portfolio.Wallet {
	t.Helper()
	w, err := portfolio.NewWallet(portfolio.WalletConfig{
		Symbol:  "BTCUSDT",
		FeeRate: decimal.NewNullDecimal(d("0.001")),
		LotSize: d("0.01"),
	})
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	return w
}

func signal(action strategy.Action, price string, sec int64) strategy.Signal {
	return strategy.Signal{
		Strategy: "ma_rsi",
		Action:   action,
		Symbol:   "BTCUSDT",
		Price:    d(price),
		TS:       time.Unix(sec, 0).UTC(),
		Reason:   "test",
	}
}

// stubGateway returns a scripted response.
type stubGateway struct {
	status FillStatus
	ratio  decimal.Decimal // filled fraction for partial fills
	err    error
	calls  int
}

func (s *stubGateway) Submit(_ context.Context, req OrderRequest) (Fill, error) {
	s.calls++
	if s.err != nil {
		return Fill{}, s.err
	}
	f := Fill{OrderID: "VENUE-1", ClientID: req.ClientID, Status: s.status, AvgPrice: req.RefPrice}
	switch s.status {
	case StatusFilled:
		f.FilledQty = req.Qty
	case StatusPartial:
		f.FilledQty = req.Qty.Mul(s.ratio)
	case StatusRejected:
		f.Message = "venue says no"
	}
	return f, nil
}

func TestSimExecutor_RoundTrip(t *testing.T) {
	w := newWallet(t)
	ex := NewSimExecutor(w)
	ctx := context.Background()

	buy, err := ex.Execute(ctx, signal(strategy.ActionBuy, "100", 1))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.OrderID != "SIM-1" || !buy.Qty.Equal(d("9.99")) {
		t.Errorf("buy = %s qty %s, want SIM-1 qty 9.99", buy.OrderID, buy.Qty)
	}

	sell, err := ex.Execute(ctx, signal(strategy.ActionSell, "110", 2))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if sell.OrderID != "SIM-2" {
		t.Errorf("sell id = %s, want SIM-2", sell.OrderID)
	}
	if !w.Balance().Equal(d("1097.8021")) {
		t.Errorf("balance = %s, want 1097.8021", w.Balance())
	}
}

func TestSimExecutor_SellWithoutHoldings(t *testing.T) {
	ex := NewSimExecutor(newWallet(t))
	_, err := ex.Execute(context.Background(), signal(strategy.ActionSell, "100", 1))
	if !errors.Is(err, portfolio.ErrNoHoldings) {
		t.Fatalf("expected ErrNoHoldings, got %v", err)
	}
}

func TestLiveExecutor_FullFillCommitsAtFillPrice(t *testing.T) {
	w := newWallet(t)
	gw := NewPaperGateway(10) // 0.1%
	ex := NewLiveExecutor(w, gw, 10, nil)

	o, err := ex.Execute(context.Background(), signal(strategy.ActionBuy, "100", 1))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if o.OrderID != "PAPER-1" {
		t.Errorf("order id = %s, want gateway id PAPER-1", o.OrderID)
	}
	if !o.Price.Equal(d("100.1")) {
		t.Errorf("fill price = %s, want 100.1", o.Price)
	}
	if !o.Qty.Equal(d("9.98")) {
		t.Errorf("qty = %s, want 9.98 (sized with headroom)", o.Qty)
	}
	if !w.Holdings().Equal(o.Qty) {
		t.Errorf("holdings %s != filled qty %s", w.Holdings(), o.Qty)
	}
	if w.Balance().IsNegative() {
		t.Errorf("balance went negative: %s", w.Balance())
	}
}

func TestLiveExecutor_RejectAndPartialNotApplied(t *testing.T) {
	cases := []struct {
		name string
		gw   *stubGateway
		want error
	}{
		{"rejected", &stubGateway{status: StatusRejected}, ErrOrderRejected},
		{"partial", &stubGateway{status: StatusPartial, ratio: d("0.5")}, ErrPartialFill},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newWallet(t)
			ex := NewLiveExecutor(w, tc.gw, 0, nil)
			_, err := ex.Execute(context.Background(), signal(strategy.ActionBuy, "100", 1))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !w.Balance().Equal(d("1000")) || !w.Holdings().IsZero() || len(w.Trades()) != 0 {
				t.Errorf("wallet changed: balance=%s holdings=%s trades=%d",
					w.Balance(), w.Holdings(), len(w.Trades()))
			}
		})
	}
}

func TestLiveExecutor_NoSubmitWithoutHoldings(t *testing.T) {
	gw := &stubGateway{status: StatusFilled}
	ex := NewLiveExecutor(newWallet(t), gw, 0, nil)
	_, err := ex.Execute(context.Background(), signal(strategy.ActionSell, "100", 1))
	if !errors.Is(err, portfolio.ErrNoHoldings) {
		t.Fatalf("expected ErrNoHoldings, got %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times, want 0", gw.calls)
	}
}

func TestGuarded_OpensOnTransportErrors(t *testing.T) {
	stub := &stubGateway{err: errors.New("connection reset")}
	g := NewGuarded(stub, circuit.New(2, time.Hour))
	ctx := context.Background()
	req := OrderRequest{Symbol: "BTCUSDT", Side: model.SideBuy, Qty: d("1"), RefPrice: d("100")}

	g.Submit(ctx, req)
	g.Submit(ctx, req)
	if _, err := g.Submit(ctx, req); !errors.Is(err, circuit.ErrOpen) {
		t.Fatalf("expected circuit.ErrOpen, got %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("gateway calls = %d, want 2", stub.calls)
	}
}

func TestRateLimited_HonoursContext(t *testing.T) {
	rl := NewRateLimited(&stubGateway{status: StatusFilled}, 0.001, 1)
	req := OrderRequest{Symbol: "BTCUSDT", Side: model.SideBuy, Qty: d("1"), RefPrice: d("100")}

	if _, err := rl.Submit(context.Background(), req); err != nil {
		t.Fatalf("first submit uses the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rl.Submit(ctx, req); err == nil {
		t.Fatal("second submit should fail waiting for a token")
	}
}

func TestPaperGateway_SlippageDirection(t *testing.T) {
	gw := NewPaperGateway(50) // 0.5%
	ctx := context.Background()

	buy, _ := gw.Submit(ctx, OrderRequest{Side: model.SideBuy, Qty: d("1"), RefPrice: d("200")})
	sell, _ := gw.Submit(ctx, OrderRequest{Side: model.SideSell, Qty: d("1"), RefPrice: d("200")})
	bad, _ := gw.Submit(ctx, OrderRequest{Side: model.SideBuy, Qty: d("0"), RefPrice: d("200")})

	if !buy.AvgPrice.Equal(d("201")) {
		t.Errorf("buy price = %s, want 201", buy.AvgPrice)
	}
	if !sell.AvgPrice.Equal(d("199")) {
		t.Errorf("sell price = %s, want 199", sell.AvgPrice)
	}
	if bad.Status != StatusRejected {
		t.Errorf("zero qty status = %s, want REJECTED", bad.Status)
	}
	if n := len(gw.Fills()); n != 3 {
		t.Errorf("fills = %d, want 3", n)
	}
}

func TestJournal_RecordAndGet(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	w := newWallet(t)
	w.SetRunID("run-a")
	ex := NewSimExecutor(w)
	for _, s := range []strategy.Signal{
		signal(strategy.ActionBuy, "100", 1),
		signal(strategy.ActionSell, "110", 2),
	} {
		o, err := ex.Execute(context.Background(), s)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if err := j.RecordOrder(o); err != nil {
			t.Fatalf("RecordOrder: %v", err)
		}
	}

	got, err := j.GetOrders("run-a", 10)
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(got))
	}
	if got[0].OrderID != "SIM-2" || got[0].Side != model.SideSell {
		t.Errorf("newest = %s %s, want SIM-2 SELL", got[0].OrderID, got[0].Side)
	}
	if !got[1].Qty.Equal(d("9.99")) || !got[0].BalanceAfter.Equal(d("1097.8021")) {
		t.Errorf("decimal round trip lost precision: qty=%s after=%s", got[1].Qty, got[0].BalanceAfter)
	}
	if !got[1].TS.Equal(time.Unix(1, 0)) {
		t.Errorf("ts = %v", got[1].TS)
	}

	other, _ := j.GetOrders("run-b", 10)
	if len(other) != 0 {
		t.Errorf("run-b orders = %d, want 0", len(other))
	}
}

func TestJournal_CorruptRowIsAnError(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	for _, row := range []struct{ id, price, ts string }{
		{"BAD-PRICE", "abc", "2024-01-01T00:00:00Z"},
		{"BAD-TS", "100", "yesterday"},
	} {
		if _, err := j.DB().Exec(
			`INSERT INTO orders (order_id, run_id, symbol, side, qty, price, fee, balance_delta, holdings_delta, balance_after, reason, ts)
			 VALUES (?, ?, 'BTCUSDT', 'BUY', '1', ?, '0', '-100', '1', '900', '', ?)`,
			row.id, row.id, row.price, row.ts); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := j.GetOrders(row.id, 10); err == nil {
			t.Errorf("%s: GetOrders returned no error for corrupt row", row.id)
		}
	}
}
