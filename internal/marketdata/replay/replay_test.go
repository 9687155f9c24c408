package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

func pt(sec int64, close float64) model.PricePoint {
	return model.NewPricePoint("BTCUSDT", time.Unix(sec, 0), close, close, close, close)
}

func TestPlayer_SortsAndEmitsAll(t *testing.T) {
	p := New([]model.PricePoint{pt(3, 3), pt(1, 1), pt(2, 2), pt(2, 22)}, 0)

	var got []float64
	err := p.Run(context.Background(), func(pp model.PricePoint) error {
		got = append(got, pp.Close.InexactFloat64())
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []float64{1, 2, 22, 3} // stable for equal timestamps
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if p.Emitted() != 4 {
		t.Errorf("emitted = %d, want 4", p.Emitted())
	}
}

func TestPlayer_StopsBetweenPoints(t *testing.T) {
	p := New([]model.PricePoint{pt(1, 1), pt(2, 2), pt(3, 3)}, 0)
	ctx, cancel := context.WithCancel(context.Background())

	n := 0
	err := p.Run(ctx, func(model.PricePoint) error {
		n++
		if n == 2 {
			cancel() // current point still completes
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 2 || p.Emitted() != 2 {
		t.Errorf("emitted %d (counter %d), want 2", n, p.Emitted())
	}
}

func TestPlayer_EmitErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	p := New([]model.PricePoint{pt(1, 1), pt(2, 2)}, 0)
	err := p.Run(context.Background(), func(model.PricePoint) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestPlayer_PauseResume(t *testing.T) {
	p := New([]model.PricePoint{pt(1, 1), pt(2, 2), pt(3, 3)}, 0)
	p.Pause()

	var mu sync.Mutex
	n := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), func(model.PricePoint) error {
			mu.Lock()
			n++
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	held := n
	mu.Unlock()
	if held != 0 {
		t.Fatalf("emitted %d while paused", held)
	}

	p.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("replay did not finish after Resume")
	}
	if n != 3 {
		t.Errorf("emitted %d, want 3", n)
	}
}

func TestPlayer_Delay(t *testing.T) {
	p := New([]model.PricePoint{pt(1, 1), pt(2, 2), pt(3, 3)}, 15*time.Millisecond)
	start := time.Now()
	p.Run(context.Background(), func(model.PricePoint) error { return nil })
	if el := time.Since(start); el < 30*time.Millisecond {
		t.Errorf("elapsed %v, want at least two delays", el)
	}

	p.SetDelay(-time.Second)
	if p.Delay() != 0 {
		t.Errorf("negative delay not clamped: %v", p.Delay())
	}
}
