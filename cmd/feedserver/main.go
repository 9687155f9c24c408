// Command feedserver is a demo WebSocket candle feed.
// Broadcasts a random-walk candle stream so live runs can be exercised
// without an exchange connection.
//
// Each broadcast is one closed candle. Simulated candle time starts at the
// current minute and advances by FEED_CANDLE_SEC per message, so a fast
// broadcast interval compresses hours of market time into seconds.
//
// Config (env vars, .env is read if present):
//
//	FEED_SERVER_ADDR  listen address (default ":9001")
//	FEED_SYMBOL       symbol (default "BTCUSDT")
//	FEED_START_PRICE  first close (default 20000)
//	FEED_FORMAT       "binance" (kline events) or "json" (PricePoint)
//	FEED_INTERVAL_MS  broadcast interval milliseconds (default 500)
//	FEED_CANDLE_SEC   simulated candle length seconds (default 60)
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedserver] upgrade error: %v", err)
			return
		}
		log.Printf("[feedserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedserver] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walker produces consecutive candles from a bounded random walk.
type walker struct {
	symbol string
	candle time.Duration
	rng    *rand.Rand

	price float64
	ts    time.Time
}

// next returns the next candle. Each close moves at most ±0.5% from the
// previous one; high and low wrap open and close with a small wick.
func (w *walker) next() model.PricePoint {
	o := w.price
	c := o * (1 + (w.rng.Float64()-0.5)/100)
	if c < 0.01 {
		c = 0.01
	}
	hi := max(o, c) * (1 + w.rng.Float64()/1000)
	lo := min(o, c) * (1 - w.rng.Float64()/1000)

	p := model.PricePoint{
		Symbol: w.symbol,
		TS:     w.ts,
		Open:   decimal.NewFromFloat(o).Round(2),
		High:   decimal.NewFromFloat(hi).Round(2),
		Low:    decimal.NewFromFloat(lo).Round(2),
		Close:  decimal.NewFromFloat(c).Round(2),
		Volume: decimal.NewFromFloat(w.rng.Float64() * 10).Round(5),
	}
	w.price = c
	w.ts = w.ts.Add(w.candle)
	return p
}

// encodeKline renders p as a closed Binance kline event.
func encodeKline(p model.PricePoint, interval string, candle time.Duration) ([]byte, error) {
	openMs := p.TS.UnixMilli()
	return json.Marshal(model.KlineEvent{
		EventType: "kline",
		EventTime: time.Now().UnixMilli(),
		Symbol:    p.Symbol,
		Kline: model.KlineBody{
			OpenTime:  openMs,
			CloseTime: openMs + candle.Milliseconds() - 1,
			Symbol:    p.Symbol,
			Interval:  interval,
			Open:      p.Open.String(),
			High:      p.High.String(),
			Low:       p.Low.String(),
			Close:     p.Close.String(),
			Volume:    p.Volume.String(),
			Closed:    true,
		},
	})
}

func runGenerator(h *hub, w *walker, format string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	label := candleLabel(w.candle)
	for range ticker.C {
		p := w.next()
		var (
			b   []byte
			err error
		)
		if format == "json" {
			b, err = json.Marshal(p)
		} else {
			b, err = encodeKline(p, label, w.candle)
		}
		if err != nil {
			log.Printf("[feedserver] encode error: %v", err)
			continue
		}
		h.broadcast(b)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedserver] starting demo candle feed...")

	_ = godotenv.Load()

	addr := envOrDefault("FEED_SERVER_ADDR", ":9001")
	symbol := strings.ToUpper(envOrDefault("FEED_SYMBOL", "BTCUSDT"))
	format := strings.ToLower(envOrDefault("FEED_FORMAT", "binance"))
	if format != "binance" && format != "json" {
		log.Fatalf("[feedserver] unknown FEED_FORMAT %q", format)
	}
	intervalMs := envIntOrDefault("FEED_INTERVAL_MS", 500)
	candleSec := envIntOrDefault("FEED_CANDLE_SEC", 60)
	startPrice, err := strconv.ParseFloat(envOrDefault("FEED_START_PRICE", "20000"), 64)
	if err != nil || startPrice <= 0 {
		log.Fatalf("[feedserver] invalid FEED_START_PRICE")
	}
	if intervalMs <= 0 || candleSec <= 0 {
		log.Fatalf("[feedserver] FEED_INTERVAL_MS and FEED_CANDLE_SEC must be positive")
	}

	candle := time.Duration(candleSec) * time.Second
	w := &walker{
		symbol: symbol,
		candle: candle,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		price:  startPrice,
		ts:     time.Now().UTC().Truncate(candle),
	}
	log.Printf("[feedserver] %s %s candles every %dms, format=%s", symbol, candleLabel(candle), intervalMs, format)

	h := newHub()
	go runGenerator(h, w, format, time.Duration(intervalMs)*time.Millisecond)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedserver"}`)
	})

	log.Printf("[feedserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedserver] server error: %v", err)
	}
}

// candleLabel renders d in Binance interval notation ("1m", "4h", "30s").
func candleLabel(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
