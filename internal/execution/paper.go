package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

var bpsDivisor = decimal.NewFromInt(10000)

// PaperGateway fills every order in full at the reference price adjusted by
// a fixed slippage. Buys fill higher, sells lower.
type PaperGateway struct {
	mu          sync.RWMutex
	fills       []Fill
	orderSeq    int64
	slippageBps decimal.Decimal
	now         func() time.Time
}

// NewPaperGateway creates a paper gateway. slippageBps is in basis points
// (5 = 0.05%).
func NewPaperGateway(slippageBps int64) *PaperGateway {
	return &PaperGateway{
		fills:       make([]Fill, 0, 256),
		slippageBps: decimal.NewFromInt(slippageBps),
		now:         time.Now,
	}
}

// Submit implements Gateway.
func (p *PaperGateway) Submit(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	if !req.Qty.IsPositive() || !req.RefPrice.IsPositive() {
		f := Fill{
			OrderID:  orderID,
			ClientID: req.ClientID,
			Status:   StatusRejected,
			Message:  fmt.Sprintf("invalid qty %s or price %s", req.Qty, req.RefPrice),
			FilledAt: p.now(),
		}
		p.fills = append(p.fills, f)
		p.mu.Unlock()
		return f, nil
	}

	slippage := req.RefPrice.Mul(p.slippageBps).Div(bpsDivisor)
	price := req.RefPrice
	if req.Side == model.SideBuy {
		price = price.Add(slippage)
	} else {
		price = price.Sub(slippage)
	}

	f := Fill{
		OrderID:   orderID,
		ClientID:  req.ClientID,
		Status:    StatusFilled,
		FilledQty: req.Qty,
		AvgPrice:  price,
		Slippage:  slippage,
		FilledAt:  p.now(),
	}
	p.fills = append(p.fills, f)
	p.mu.Unlock()

	slog.Debug("paper fill",
		"order_id", orderID, "side", req.Side, "symbol", req.Symbol,
		"qty", req.Qty.String(), "price", price.String(), "slippage", slippage.String())
	return f, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperGateway) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
