// Package portfolio holds the trading wallet (balance, holdings and the
// append-only trade log) and realized P&L tracking.
package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a buy would drive the balance
	// negative after fees, or the computed quantity rounds to zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoHoldings is returned when selling with zero holdings.
	ErrNoHoldings = errors.New("no holdings to sell")
	// ErrInvalidPrice is returned for non-positive execution prices.
	ErrInvalidPrice = errors.New("invalid execution price")
)

// WalletConfig configures a wallet. Zero values take the defaults below,
// except FeeRate, where only an unset value does: a set zero means no fee.
type WalletConfig struct {
	Symbol         string
	InitialBalance decimal.Decimal // default 1000
	FeeRate        decimal.NullDecimal // unset: 0.001 (0.1% taker fee)
	LotSize        decimal.Decimal // quantity step; default 0.00001
	FixedQty       decimal.Decimal // > 0 selects the fixed-quantity buy policy
	OrderPrefix    string          // simulated order id prefix; default "SIM"
}

var (
	DefaultInitialBalance = decimal.NewFromInt(1000)
	DefaultFeeRate        = decimal.NewFromFloat(0.001)
	DefaultLotSize        = decimal.NewFromFloat(0.00001)
)

func (c *WalletConfig) defaults() {
	if c.InitialBalance.IsZero() {
		c.InitialBalance = DefaultInitialBalance
	}
	if !c.FeeRate.Valid {
		c.FeeRate = decimal.NewNullDecimal(DefaultFeeRate)
	}
	if !c.LotSize.IsPositive() {
		c.LotSize = DefaultLotSize
	}
	if c.OrderPrefix == "" {
		c.OrderPrefix = "SIM"
	}
}

// Wallet is the single source of truth for balance and holdings.
// Every commit (balance, holdings and log append) happens under one lock.
type Wallet struct {
	mu       sync.RWMutex
	cfg      WalletConfig
	feeRate  decimal.Decimal
	runID    string
	balance  decimal.Decimal
	holdings decimal.Decimal
	trades   []model.Order
}

// NewWallet creates a wallet funded with cfg.InitialBalance.
func NewWallet(cfg WalletConfig) (*Wallet, error) {
	cfg.defaults()
	if cfg.InitialBalance.IsNegative() {
		return nil, fmt.Errorf("wallet: negative initial balance %s", cfg.InitialBalance)
	}
	fee := cfg.FeeRate.Decimal
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("wallet: fee rate %s outside [0, 1)", fee)
	}
	return &Wallet{
		cfg:     cfg,
		feeRate: fee,
		balance: cfg.InitialBalance,
		trades:  make([]model.Order, 0, 64),
	}, nil
}

// SetRunID tags subsequent orders with the run identifier.
func (w *Wallet) SetRunID(id string) {
	w.mu.Lock()
	w.runID = id
	w.mu.Unlock()
}

// BuyQuantity returns the quantity a buy at price would purchase under the
// configured policy, without committing anything.
//
// Full-balance policy: floor(balance / (price·(1+fee)), lot).
func (w *Wallet) BuyQuantity(price decimal.Decimal) (decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.buyQuantity(price)
}

func (w *Wallet) buyQuantity(price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	var qty decimal.Decimal
	if w.cfg.FixedQty.IsPositive() {
		qty = w.cfg.FixedQty
	} else {
		perUnit := price.Mul(decimal.NewFromInt(1).Add(w.feeRate))
		qty = floorToLot(w.balance.Div(perUnit), w.cfg.LotSize)
	}
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: balance %s buys nothing at %s", ErrInsufficientFunds, w.balance, price)
	}
	return qty, nil
}

// SellQuantity returns the current holdings, or ErrNoHoldings.
func (w *Wallet) SellQuantity() (decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.holdings.IsPositive() {
		return decimal.Zero, ErrNoHoldings
	}
	return w.holdings, nil
}

// Apply executes a simulated order immediately at price: the quantity is
// computed from the wallet state and the result committed in one step.
func (w *Wallet) Apply(side model.Side, price decimal.Decimal, ts time.Time, reason string) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var qty decimal.Decimal
	var err error
	switch side {
	case model.SideBuy:
		qty, err = w.buyQuantity(price)
	case model.SideSell:
		if !w.holdings.IsPositive() {
			err = ErrNoHoldings
		}
		qty = w.holdings
	default:
		err = fmt.Errorf("wallet: unknown side %q", side)
	}
	if err != nil {
		return model.Order{}, err
	}
	id := fmt.Sprintf("%s-%d", w.cfg.OrderPrefix, len(w.trades)+1)
	return w.commit(id, side, qty, price, ts, reason)
}

// Commit records an externally confirmed fill of qty at price. Used in live
// mode after the gateway reports a full fill.
func (w *Wallet) Commit(orderID string, side model.Side, qty, price decimal.Decimal, ts time.Time, reason string) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !price.IsPositive() {
		return model.Order{}, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	return w.commit(orderID, side, qty, price, ts, reason)
}

// commit must be called with w.mu held.
func (w *Wallet) commit(orderID string, side model.Side, qty, price decimal.Decimal, ts time.Time, reason string) (model.Order, error) {
	if !qty.IsPositive() {
		return model.Order{}, fmt.Errorf("wallet: non-positive quantity %s", qty)
	}
	notional := qty.Mul(price)
	fee := notional.Mul(w.feeRate)

	var balDelta, holdDelta decimal.Decimal
	switch side {
	case model.SideBuy:
		balDelta = notional.Add(fee).Neg()
		holdDelta = qty
		if w.balance.Add(balDelta).IsNegative() {
			return model.Order{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, balDelta.Neg(), w.balance)
		}
	case model.SideSell:
		if !w.holdings.IsPositive() {
			return model.Order{}, ErrNoHoldings
		}
		if qty.GreaterThan(w.holdings) {
			return model.Order{}, fmt.Errorf("%w: sell %s exceeds holdings %s", ErrNoHoldings, qty, w.holdings)
		}
		balDelta = notional.Sub(fee)
		holdDelta = qty.Neg()
	default:
		return model.Order{}, fmt.Errorf("wallet: unknown side %q", side)
	}

	w.balance = w.balance.Add(balDelta)
	w.holdings = w.holdings.Add(holdDelta)

	o := model.Order{
		OrderID:       orderID,
		RunID:         w.runID,
		Symbol:        w.cfg.Symbol,
		Side:          side,
		Qty:           qty,
		Price:         price,
		Fee:           fee,
		BalanceDelta:  balDelta,
		HoldingsDelta: holdDelta,
		BalanceAfter:  w.balance,
		Reason:        reason,
		TS:            ts,
	}
	w.trades = append(w.trades, o)
	return o, nil
}

// Balance returns the quote-currency balance.
func (w *Wallet) Balance() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance
}

// Holdings returns the base-asset quantity held.
func (w *Wallet) Holdings() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.holdings
}

// Trades returns a copy of the trade log.
func (w *Wallet) Trades() []model.Order {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]model.Order, len(w.trades))
	copy(cp, w.trades)
	return cp
}

// Config returns the effective configuration (defaults applied).
func (w *Wallet) Config() WalletConfig { return w.cfg }

// WalletSnapshot is a consistent view of the wallet.
type WalletSnapshot struct {
	Symbol         string          `json:"symbol"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Holdings       decimal.Decimal `json:"holdings"`
	Trades         int             `json:"trades"`
	FeeRate        decimal.Decimal `json:"fee_rate"`
}

// Snapshot returns balance, holdings and trade count read under one lock.
func (w *Wallet) Snapshot() WalletSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WalletSnapshot{
		Symbol:         w.cfg.Symbol,
		InitialBalance: w.cfg.InitialBalance,
		Balance:        w.balance,
		Holdings:       w.holdings,
		Trades:         len(w.trades),
		FeeRate:        w.feeRate,
	}
}

// Equity returns balance + holdings × price.
func (s WalletSnapshot) Equity(price decimal.Decimal) decimal.Decimal {
	return s.Balance.Add(s.Holdings.Mul(price))
}

// floorToLot rounds q down to a multiple of lot.
func floorToLot(q, lot decimal.Decimal) decimal.Decimal {
	if !lot.IsPositive() {
		return q
	}
	return q.Div(lot).Floor().Mul(lot)
}
