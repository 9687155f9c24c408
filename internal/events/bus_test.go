package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

func TestBus_BroadcastsToAll(t *testing.T) {
	b := NewBus(10)
	out1 := b.Subscribe()
	out2 := b.Subscribe()

	ev := model.Event{Type: model.EventTick, RunID: "r1", Seq: 1}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, out := range []<-chan model.Event{out1, out2} {
		select {
		case got := <-out:
			if got.RunID != "r1" || got.Seq != 1 {
				t.Errorf("out%d: got %+v", i+1, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for event", i+1)
		}
	}
}

func TestBus_DropsForSlowSubscriber(t *testing.T) {
	b := NewBus(1)
	slow := b.Subscribe()
	var dropped []int
	b.OnDrop = func(idx int, _ model.Event) { dropped = append(dropped, idx) }

	ctx := context.Background()
	b.Publish(ctx, model.Event{Type: model.EventTick, Seq: 1})
	b.Publish(ctx, model.Event{Type: model.EventTick, Seq: 2})

	if b.Drops() != 1 || len(dropped) != 1 || dropped[0] != 0 {
		t.Fatalf("drops=%d dropped=%v, want one drop on subscriber 0", b.Drops(), dropped)
	}
	if got := <-slow; got.Seq != 1 {
		t.Errorf("kept seq %d, want 1", got.Seq)
	}
}

func TestBus_LifecycleBlocksUntilDelivered(t *testing.T) {
	b := NewBus(1)
	out := b.Subscribe()
	ctx := context.Background()

	b.Publish(ctx, model.Event{Type: model.EventTick, Seq: 1})

	done := make(chan struct{})
	go func() {
		b.Publish(ctx, model.Event{Type: model.EventLifecycle, Seq: 2})
		close(done)
	}()

	<-out // frees the slot
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lifecycle publish did not complete")
	}
	if got := <-out; got.Type != model.EventLifecycle {
		t.Errorf("got %s, want lifecycle", got.Type)
	}
	if b.Drops() != 0 {
		t.Errorf("lifecycle event was dropped")
	}
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []int64
}

func (r *recordingPublisher) Publish(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	r.got = append(r.got, ev.Seq)
	r.mu.Unlock()
	return nil
}

func TestForward_UntilClose(t *testing.T) {
	b := NewBus(8)
	ch := b.Subscribe()
	pub := &recordingPublisher{}

	done := make(chan struct{})
	go func() {
		Forward(context.Background(), ch, pub)
		close(done)
	}()

	for i := int64(1); i <= 3; i++ {
		b.Publish(context.Background(), model.Event{Type: model.EventTrade, Seq: i})
	}
	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return after Close")
	}
	if len(pub.got) != 3 || pub.got[2] != 3 {
		t.Errorf("forwarded %v, want [1 2 3]", pub.got)
	}
}
