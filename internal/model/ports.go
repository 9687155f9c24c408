package model

import (
	"context"
	"time"
)

// ── Port interfaces ──
// These decouple the engine from concrete storage and transport
// implementations (SQLite, Redis, websocket).

// HistoricalSource returns an ordered-by-timestamp slice of price points for
// a symbol in [from, to). A result shorter than the requested range is the
// complete available range, not an error.
type HistoricalSource interface {
	Fetch(ctx context.Context, symbol, interval string, from, to time.Time) ([]PricePoint, error)
}

// TradeJournal persists committed orders.
type TradeJournal interface {
	RecordOrder(o Order) error
}

// EventPublisher forwards events to an external transport.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
