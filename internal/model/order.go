package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is one committed wallet transaction. Orders are appended to the
// wallet's trade log and never modified afterwards.
type Order struct {
	OrderID       string          `json:"order_id"`
	RunID         string          `json:"run_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	Price         decimal.Decimal `json:"price"` // execution price before fee
	Fee           decimal.Decimal `json:"fee"`   // quote-currency fee charged
	BalanceDelta  decimal.Decimal `json:"balance_delta"`
	HoldingsDelta decimal.Decimal `json:"holdings_delta"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Reason        string          `json:"reason,omitempty"`
	TS            time.Time       `json:"ts"` // timestamp of the triggering tick
}

// Notional returns qty × price.
func (o *Order) Notional() decimal.Decimal {
	return o.Qty.Mul(o.Price)
}

// JSON returns the JSON-encoded order.
func (o *Order) JSON() []byte {
	b, _ := json.Marshal(o)
	return b
}
