package portfolio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

var ts = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestWallet(t *testing.T, cfg WalletConfig) *Wallet {
	t.Helper()
	w, err := NewWallet(cfg)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	return w
}

func TestWallet_BuyThenSellExample(t *testing.T) {
	// 1000 balance, fee 0.001, lot 0.01:
	//   qty = floor(1000 / (100·1.001), 0.01) = 9.99
	//   cost = 9.99·100·1.001 = 999.999 → balance 0.001
	//   sell 9.99 @ 110 → 1098.9·0.999 = 1097.8011 → balance 1097.8021
	w := newTestWallet(t, WalletConfig{Symbol: "BTCUSDT", LotSize: dec("0.01")})

	buy, err := w.Apply(model.SideBuy, dec("100"), ts, "test")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !buy.Qty.Equal(dec("9.99")) {
		t.Errorf("buy qty = %s, want 9.99", buy.Qty)
	}
	if !w.Balance().Equal(dec("0.001")) {
		t.Errorf("balance after buy = %s, want 0.001", w.Balance())
	}
	if !w.Holdings().Equal(dec("9.99")) {
		t.Errorf("holdings after buy = %s, want 9.99", w.Holdings())
	}

	sell, err := w.Apply(model.SideSell, dec("110"), ts.Add(time.Minute), "test")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !sell.Qty.Equal(dec("9.99")) {
		t.Errorf("sell qty = %s, want full holding 9.99", sell.Qty)
	}
	if !w.Balance().Equal(dec("1097.8021")) {
		t.Errorf("balance after sell = %s, want 1097.8021", w.Balance())
	}
	if !w.Holdings().IsZero() {
		t.Errorf("holdings after sell = %s, want 0", w.Holdings())
	}
	if buy.OrderID != "SIM-1" || sell.OrderID != "SIM-2" {
		t.Errorf("order ids = %s, %s; want SIM-1, SIM-2", buy.OrderID, sell.OrderID)
	}
}

func TestWallet_Conservation(t *testing.T) {
	w := newTestWallet(t, WalletConfig{InitialBalance: dec("500")})
	prices := []string{"100", "104.5", "98.25", "101", "97.3", "120.01"}
	for i, p := range prices {
		side := model.SideBuy
		if i%2 == 1 {
			side = model.SideSell
		}
		if _, err := w.Apply(side, dec(p), ts.Add(time.Duration(i)*time.Minute), ""); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
	}

	balance, holdings := dec("500"), decimal.Zero
	for _, o := range w.Trades() {
		balance = balance.Add(o.BalanceDelta)
		holdings = holdings.Add(o.HoldingsDelta)
		if !o.BalanceAfter.Equal(balance) {
			t.Errorf("%s: BalanceAfter %s, replayed %s", o.OrderID, o.BalanceAfter, balance)
		}
	}
	if !balance.Equal(w.Balance()) || !holdings.Equal(w.Holdings()) {
		t.Errorf("replayed (%s, %s) != wallet (%s, %s)", balance, holdings, w.Balance(), w.Holdings())
	}
	if w.Balance().IsNegative() || w.Holdings().IsNegative() {
		t.Errorf("negative state: balance %s holdings %s", w.Balance(), w.Holdings())
	}
}

func TestWallet_Rejections(t *testing.T) {
	t.Run("sell with no holdings", func(t *testing.T) {
		w := newTestWallet(t, WalletConfig{})
		_, err := w.Apply(model.SideSell, dec("100"), ts, "")
		if !errors.Is(err, ErrNoHoldings) {
			t.Errorf("err = %v, want ErrNoHoldings", err)
		}
		if len(w.Trades()) != 0 || !w.Balance().Equal(DefaultInitialBalance) {
			t.Error("rejected sell mutated the wallet")
		}
	})

	t.Run("buy below one lot", func(t *testing.T) {
		w := newTestWallet(t, WalletConfig{InitialBalance: dec("5"), LotSize: dec("1")})
		_, err := w.Apply(model.SideBuy, dec("100"), ts, "")
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Errorf("err = %v, want ErrInsufficientFunds", err)
		}
	})

	t.Run("fixed quantity too large", func(t *testing.T) {
		w := newTestWallet(t, WalletConfig{FixedQty: dec("10")})
		_, err := w.Apply(model.SideBuy, dec("100"), ts, "")
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Errorf("err = %v, want ErrInsufficientFunds (10·100·1.001 > 1000)", err)
		}
		if !w.Balance().Equal(DefaultInitialBalance) {
			t.Errorf("balance = %s after rejection", w.Balance())
		}
	})

	t.Run("non-positive price", func(t *testing.T) {
		w := newTestWallet(t, WalletConfig{})
		if _, err := w.Apply(model.SideBuy, decimal.Zero, ts, ""); !errors.Is(err, ErrInvalidPrice) {
			t.Errorf("err = %v, want ErrInvalidPrice", err)
		}
	})
}

func TestWallet_FixedQuantityPolicy(t *testing.T) {
	w := newTestWallet(t, WalletConfig{FixedQty: dec("2")})
	o, err := w.Apply(model.SideBuy, dec("100"), ts, "")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !o.Qty.Equal(dec("2")) {
		t.Errorf("qty = %s, want 2", o.Qty)
	}
	if !w.Balance().Equal(dec("799.8")) {
		t.Errorf("balance = %s, want 799.8", w.Balance())
	}
}

func TestWallet_ZeroFeeHonoured(t *testing.T) {
	w := newTestWallet(t, WalletConfig{FeeRate: decimal.NewNullDecimal(decimal.Zero)})
	o, err := w.Apply(model.SideBuy, dec("100"), ts, "")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !o.Qty.Equal(dec("10")) {
		t.Errorf("qty = %s, want 10", o.Qty)
	}
	if !o.Fee.IsZero() {
		t.Errorf("fee = %s, want 0", o.Fee)
	}
	if !w.Balance().IsZero() {
		t.Errorf("balance = %s, want 0", w.Balance())
	}
	if got := w.Snapshot().FeeRate; !got.IsZero() {
		t.Errorf("snapshot fee rate = %s, want 0", got)
	}
}

func TestWallet_CommitExternalFill(t *testing.T) {
	w := newTestWallet(t, WalletConfig{})
	o, err := w.Commit("EXCH-42", model.SideBuy, dec("1.5"), dec("200"), ts, "live")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if o.OrderID != "EXCH-42" {
		t.Errorf("order id = %s, want gateway id", o.OrderID)
	}
	if _, err := w.Commit("EXCH-43", model.SideSell, dec("2"), dec("200"), ts, "live"); !errors.Is(err, ErrNoHoldings) {
		t.Errorf("oversell err = %v, want ErrNoHoldings", err)
	}
}

func TestWallet_ConcurrentReadsDuringCommits(t *testing.T) {
	w := newTestWallet(t, WalletConfig{})
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s := w.Snapshot()
				if s.Balance.IsNegative() || s.Holdings.IsNegative() {
					t.Errorf("observed negative state %+v", s)
					return
				}
			}
		}
	}()
	for i := 0; i < 100; i++ {
		side := model.SideBuy
		if i%2 == 1 {
			side = model.SideSell
		}
		if _, err := w.Apply(side, dec("100"), ts, ""); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
}
