package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed channels; empty means all.
	subMu sync.RWMutex
	subs  map[string]bool
}

// controlMsg is what clients send:
//
//	{"type":"SUBSCRIBE","channels":["events:trade","events:lifecycle"]}
//	{"type":"UNSUBSCRIBE","channels":["events:tick"]}
//	{"type":"MISSED","channel":"events:trade","from":10,"to":14}
//	{"ping":1700000000000}
type controlMsg struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Channel  string   `json:"channel"`
	From     int64    `json:"from"`
	To       int64    `json:"to"`
	Ping     int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
}

// sendInitialState queues the latest envelope of every subscribed channel.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !c.matchesChannel(channel) {
			continue
		}
		select {
		case c.send <- entry.Envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(msg.Channels)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Channels)
		case "MISSED":
			for _, env := range c.hub.GetReplayRange(msg.Channel, msg.From, msg.To) {
				c.trySend(env)
			}
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.trySend(pong)
			}
		}
	}
}

// trySend queues msg unless the client is gone or its buffer is full.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) subscribe(channels []string) {
	c.subMu.Lock()
	for _, ch := range channels {
		c.subs[ch] = true
	}
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(channels []string) {
	c.subMu.Lock()
	for _, ch := range channels {
		delete(c.subs, ch)
	}
	c.subMu.Unlock()
}

// matchesChannel reports whether the client should receive channel.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	return c.subs[channel]
}

// splitChannels parses "trade,lifecycle" or "events:trade,events:tick".
func splitChannels(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "events:") {
			part = "events:" + part
		}
		out = append(out, part)
	}
	return out
}
