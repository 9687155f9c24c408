package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/portfolio"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
)

// Executor applies a signal to the wallet. On success the returned order has
// been committed; on error the wallet is unchanged.
type Executor interface {
	Execute(ctx context.Context, sig strategy.Signal) (model.Order, error)
}

// SimExecutor fills at the signal's close price directly against the wallet.
type SimExecutor struct {
	wallet *portfolio.Wallet
}

// NewSimExecutor creates a simulated executor.
func NewSimExecutor(w *portfolio.Wallet) *SimExecutor {
	return &SimExecutor{wallet: w}
}

// Execute implements Executor.
func (s *SimExecutor) Execute(_ context.Context, sig strategy.Signal) (model.Order, error) {
	return s.wallet.Apply(sig.Action.Side(), sig.Price, sig.TS, sig.Reason)
}

// LiveExecutor sizes the order from the wallet, submits it to a gateway and
// commits only a full fill at the filled price.
type LiveExecutor struct {
	wallet   *portfolio.Wallet
	gateway  Gateway
	headroom decimal.Decimal
	logger   *slog.Logger
}

// NewLiveExecutor creates a gateway-backed executor. Buys are sized as if
// the price were headroomBps higher so that a fill with up to that much
// slippage still fits the balance.
func NewLiveExecutor(w *portfolio.Wallet, gw Gateway, headroomBps int64, logger *slog.Logger) *LiveExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveExecutor{
		wallet:   w,
		gateway:  gw,
		headroom: decimal.NewFromInt(headroomBps).Div(bpsDivisor),
		logger:   logger,
	}
}

// Execute implements Executor.
func (l *LiveExecutor) Execute(ctx context.Context, sig strategy.Signal) (model.Order, error) {
	side := sig.Action.Side()

	qty, err := l.quantity(side, sig)
	if err != nil {
		return model.Order{}, err
	}

	req := OrderRequest{
		ClientID: fmt.Sprintf("%s-%d", sig.Strategy, sig.TS.UnixMilli()),
		Symbol:   sig.Symbol,
		Side:     side,
		Qty:      qty,
		RefPrice: sig.Price,
		TS:       sig.TS,
	}
	fill, err := l.gateway.Submit(ctx, req)
	if err != nil {
		return model.Order{}, fmt.Errorf("submit %s: %w", side, err)
	}

	switch fill.Status {
	case StatusFilled:
		if !fill.FilledQty.Equal(qty) {
			return model.Order{}, fmt.Errorf("%w: %s of %s", ErrPartialFill, fill.FilledQty, qty)
		}
	case StatusPartial:
		l.logger.Warn("partial fill not applied",
			"order_id", fill.OrderID, "filled", fill.FilledQty.String(), "requested", qty.String())
		return model.Order{}, fmt.Errorf("%w: %s of %s", ErrPartialFill, fill.FilledQty, qty)
	default:
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderRejected, fill.Message)
	}

	return l.wallet.Commit(fill.OrderID, side, fill.FilledQty, fill.AvgPrice, sig.TS, sig.Reason)
}

func (l *LiveExecutor) quantity(side model.Side, sig strategy.Signal) (decimal.Decimal, error) {
	if side == model.SideSell {
		return l.wallet.SellQuantity()
	}
	return l.wallet.BuyQuantity(sig.Price.Mul(decimal.NewFromInt(1).Add(l.headroom)))
}
