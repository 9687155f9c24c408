// Package wsfeed is the live price feed: a WebSocket client that decodes
// Binance kline events (or plain PricePoint JSON) and reconnects with
// exponential backoff.
//
// Binance wire format:
//
//	{"e":"kline","E":1672515782136,"s":"BTCUSDT","k":{"t":1672515780000,"o":"16500.1","c":"16502.3","h":"16503","l":"16499","v":"12.5","x":true}}
//
// Plain format is model.PricePoint JSON, e.g. as served by cmd/feedserver.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

const (
	FormatBinance = "binance"
	FormatJSON    = "json"
)

// Config holds configuration for the feed client.
type Config struct {
	// URL of the WebSocket stream, e.g.
	// "wss://stream.binance.com:9443/ws/btcusdt@kline_1m".
	URL string

	// Symbol is applied to plain-JSON points that omit it.
	Symbol string

	// Format is FormatBinance (default) or FormatJSON.
	Format string

	// IncludeForming emits in-progress klines too. By default only closed
	// klines are emitted, so each bar is one price point.
	IncludeForming bool

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.Format == "" {
		c.Format = FormatBinance
	}
	c.Format = strings.ToLower(c.Format)
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Feed connects to a kline WebSocket and emits price points.
type Feed struct {
	cfg Config

	// Optional hooks.
	OnConnect    func()
	OnDisconnect func(err error)
	OnReconnect  func()
}

// New creates a Feed. Returns an error if the URL or format is invalid.
func New(cfg Config) (*Feed, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsfeed: unsupported scheme %q", u.Scheme)
	}
	if cfg.Format != FormatBinance && cfg.Format != FormatJSON {
		return nil, fmt.Errorf("wsfeed: unknown format %q", cfg.Format)
	}
	return &Feed{cfg: cfg}, nil
}

// Stream connects and calls emit for every decoded point. Blocks until ctx
// is cancelled, then returns nil. Reconnects automatically on disconnect.
func (f *Feed) Stream(ctx context.Context, emit func(model.PricePoint)) error {
	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := f.runOnce(ctx, emit)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}
		if connected {
			delay = f.cfg.ReconnectDelay
		}
		if f.OnDisconnect != nil {
			f.OnDisconnect(err)
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s...", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. connected reports whether the dial succeeded.
func (f *Feed) runOnce(ctx context.Context, emit func(model.PricePoint)) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", f.cfg.URL)
	if f.OnConnect != nil {
		f.OnConnect()
	}

	// Async context watcher: closes the connection when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		p, ok, err := f.Decode(raw)
		if err != nil {
			log.Printf("[wsfeed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if ok {
			emit(p)
		}
	}
}

// Decode turns one message into a price point. ok is false for messages
// that carry no point to emit (forming klines, other event types).
func (f *Feed) Decode(raw []byte) (p model.PricePoint, ok bool, err error) {
	switch f.cfg.Format {
	case FormatJSON:
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, false, err
		}
		if p.Symbol == "" {
			p.Symbol = f.cfg.Symbol
		}
		return p, true, nil
	default:
		var ev model.KlineEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return p, false, err
		}
		if ev.EventType != "kline" {
			return p, false, nil
		}
		if !ev.Kline.Closed && !f.cfg.IncludeForming {
			return p, false, nil
		}
		if ev.Kline.Symbol == "" {
			ev.Kline.Symbol = ev.Symbol
		}
		p, err = ev.Kline.PricePoint()
		return p, err == nil, err
	}
}
