package wsfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

const closedKline = `{"e":"kline","E":1672515782136,"s":"BTCUSDT","k":{"t":1672515720000,"T":1672515779999,"s":"BTCUSDT","i":"1m","o":"16500.10","c":"16502.30","h":"16503.00","l":"16499.00","v":"12.5","x":true}}`
const formingKline = `{"e":"kline","E":1672515782136,"s":"BTCUSDT","k":{"t":1672515780000,"T":1672515839999,"s":"BTCUSDT","i":"1m","o":"16502.30","c":"16504.00","h":"16504.00","l":"16502.00","v":"1.0","x":false}}`

func TestDecode_Binance(t *testing.T) {
	f, err := New(Config{URL: "ws://localhost/ws"})
	if err != nil {
		t.Fatal(err)
	}

	p, ok, err := f.Decode([]byte(closedKline))
	if err != nil || !ok {
		t.Fatalf("closed kline: ok=%v err=%v", ok, err)
	}
	if p.Symbol != "BTCUSDT" || p.Close.String() != "16502.3" || p.TS.UnixMilli() != 1672515720000 {
		t.Errorf("decoded %+v", p)
	}

	if _, ok, _ := f.Decode([]byte(formingKline)); ok {
		t.Error("forming kline should not be emitted by default")
	}
	if _, ok, _ := f.Decode([]byte(`{"e":"trade","s":"BTCUSDT"}`)); ok {
		t.Error("non-kline events should be ignored")
	}
	if _, _, err := f.Decode([]byte(`not json`)); err == nil {
		t.Error("expected parse error")
	}

	f.cfg.IncludeForming = true
	if _, ok, _ := f.Decode([]byte(formingKline)); !ok {
		t.Error("forming kline should be emitted with IncludeForming")
	}
}

func TestDecode_PlainJSON(t *testing.T) {
	f, _ := New(Config{URL: "ws://localhost/ws", Format: "JSON", Symbol: "ETHUSDT"})
	p, ok, err := f.Decode([]byte(`{"ts":"2024-01-01T00:00:00Z","open":"1","high":"2","low":"0.5","close":"1.5","volume":"3"}`))
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if p.Symbol != "ETHUSDT" || p.Close.String() != "1.5" {
		t.Errorf("decoded %+v", p)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{URL: "http://example.com"}); err == nil {
		t.Error("http scheme should be rejected")
	}
	if _, err := New(Config{URL: "ws://example.com", Format: "xml"}); err == nil {
		t.Error("unknown format should be rejected")
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestStream_ReconnectsAfterDisconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		// Each connection serves a later bar.
		msg := strings.Replace(closedKline, "1672515720000", fmt.Sprint(1672515720000+int64(n)*60000), 1)
		c.WriteMessage(websocket.TextMessage, []byte(msg))
		if n == 1 {
			c.Close() // drop the first connection
			return
		}
		// Keep the second one open until the client leaves.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f, err := New(Config{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	var reconnects atomic.Int32
	f.OnReconnect = func() { reconnects.Add(1) }

	var mu sync.Mutex
	var got []model.PricePoint
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Stream(ctx, func(p model.PricePoint) {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("received %d points, want 2", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stream returned %v after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after cancel")
	}
	if reconnects.Load() < 1 {
		t.Error("expected at least one reconnect")
	}
	if !got[0].TS.Before(got[1].TS) {
		t.Errorf("points out of order: %v then %v", got[0].TS, got[1].TS)
	}
}
