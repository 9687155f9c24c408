// Package execution turns confirmed strategy signals into wallet orders,
// either directly against the simulated wallet or through an order gateway.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

var (
	// ErrOrderRejected is returned when the gateway rejects an order.
	ErrOrderRejected = errors.New("order rejected by gateway")
	// ErrPartialFill is returned when the gateway fills less than requested.
	// Partial fills are not applied to the wallet.
	ErrPartialFill = errors.New("order partially filled")
)

// FillStatus is the gateway's verdict on an order.
type FillStatus string

const (
	StatusFilled   FillStatus = "FILLED"
	StatusPartial  FillStatus = "PARTIAL"
	StatusRejected FillStatus = "REJECTED"
)

// OrderRequest is a market order sent to a gateway.
type OrderRequest struct {
	ClientID string          `json:"client_id"`
	Symbol   string          `json:"symbol"`
	Side     model.Side      `json:"side"`
	Qty      decimal.Decimal `json:"qty"`
	RefPrice decimal.Decimal `json:"ref_price"` // close of the triggering tick
	TS       time.Time       `json:"ts"`
}

// Fill is the gateway's response to an OrderRequest.
type Fill struct {
	OrderID   string          `json:"order_id"`
	ClientID  string          `json:"client_id"`
	Status    FillStatus      `json:"status"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	Slippage  decimal.Decimal `json:"slippage"`
	Message   string          `json:"message,omitempty"`
	FilledAt  time.Time       `json:"filled_at"`
}

// Gateway submits orders to a venue. A non-nil error means the outcome is
// unknown (transport failure); venue decisions are reported via Fill.Status.
type Gateway interface {
	Submit(ctx context.Context, req OrderRequest) (Fill, error)
}
