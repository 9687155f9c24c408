// Package events fans engine events out to any number of subscribers
// (websocket hub, Redis publisher, CLI printer).
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Bus broadcasts events to every subscriber channel. If a subscriber's
// channel is full the event is dropped for that subscriber only, so a slow
// consumer never blocks the run.
type Bus struct {
	mu      sync.RWMutex
	outputs []chan model.Event
	bufSize int
	closed  bool

	drops atomic.Uint64

	// OnDrop is called when an event is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int, ev model.Event)
}

// NewBus creates a Bus with the given buffer size for subscriber channels.
func NewBus(outputBufferSize int) *Bus {
	return &Bus{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. The channel is closed
// by Close.
func (b *Bus) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, b.bufSize)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.outputs = append(b.outputs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to all subscribers without blocking. Lifecycle events
// are the exception: they block until delivered or ctx is done, so a
// subscriber always sees run start and end.
func (b *Bus) Publish(ctx context.Context, ev model.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for i, ch := range b.outputs {
		if ev.Type == model.EventLifecycle {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case ch <- ev:
		default:
			b.drops.Add(1)
			if b.OnDrop != nil {
				b.OnDrop(i, ev)
			} else {
				slog.Warn("event subscriber full, dropping event", "subscriber", i, "type", ev.Type, "seq", ev.Seq)
			}
		}
	}
	return nil
}

// Forward publishes every event received on ch to pub until ch closes or
// ctx is done. Publish errors are logged and do not stop forwarding.
func Forward(ctx context.Context, ch <-chan model.Event, pub model.EventPublisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := pub.Publish(ctx, ev); err != nil {
				slog.Warn("event forward failed", "type", ev.Type, "seq", ev.Seq, "error", err)
			}
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.outputs {
		close(ch)
	}
}

// Drops returns the total number of events dropped across subscribers.
func (b *Bus) Drops() uint64 { return b.drops.Load() }

// ChannelStat reports (length, capacity) of a subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns saturation for each subscriber channel.
func (b *Bus) ChannelStats() []ChannelStat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := make([]ChannelStat, len(b.outputs))
	for i, ch := range b.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
