// Package gateway fans run events out to browser clients over WebSocket.
//
// Events arrive either in-process from the event bus (Hub.Run) or from
// Redis PubSub when the gateway runs as its own process (PubSubRouter).
// Each is wrapped in an envelope and sent to every client subscribed to
// its channel ("events:tick", "events:trade", ...). The last envelope per
// channel is kept for late joiners and a short per-channel history backs
// gap recovery.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and event fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	Broadcaster *Broadcaster
	Router      *PubSubRouter
}

type latestEntry struct {
	Envelope []byte
	TS       time.Time
	Seq      int64 // per-channel seq
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
	h.Broadcaster = NewBroadcaster(h)
	h.Router = NewPubSubRouter(h)
	return h
}

// Run broadcasts events from an in-process subscription. Blocks until ctx
// is cancelled or ch is closed.
func (h *Hub) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(ev.Channel(), ev.JSON())
		}
	}
}

// broadcast delegates to Broadcaster.
func (h *Hub) broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWS upgrades the request and registers the client. The optional
// "channels" query parameter (comma separated) sets the initial
// subscription; without it the client receives every channel.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}

	client := newClient(h, conn)
	client.subscribe(splitChannels(r.URL.Query().Get("channels")))

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// GetLatestAll returns the latest event payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if json.Unmarshal(v.Envelope, &env) == nil {
			cp[k] = env.Data
		}
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartMetricsBroadcast sends process metrics to all WS clients every interval.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := CollectMetrics(start)
			m.Clients = h.ClientCount()
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":    "metrics",
				"metrics": m,
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
