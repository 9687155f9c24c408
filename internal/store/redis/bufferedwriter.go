package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/circuit"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// publisher is the subset of *Writer the buffered writer needs.
type publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, non-tick events are buffered locally and
// flushed when the circuit closes again. Ticks are dropped; only the
// latest one matters to consumers.
type BufferedWriter struct {
	writer publisher
	cb     *circuit.Breaker

	mu     sync.Mutex
	buffer []model.Event
	maxBuf int // max buffered events before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when an event is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered events
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(w *Writer, cb *circuit.Breaker, maxBufferSize int) *BufferedWriter {
	return newBufferedWriter(w, cb, maxBufferSize)
}

func newBufferedWriter(w publisher, cb *circuit.Breaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		buffer: make([]model.Event, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to circuit.State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == circuit.StateClosed && from != circuit.StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Publish writes ev through the circuit breaker. If the circuit is open the
// event is buffered and nil is returned. Implements model.EventPublisher.
func (bw *BufferedWriter) Publish(ctx context.Context, ev model.Event) error {
	err := bw.cb.Execute(ctx, func(ctx context.Context) error {
		return bw.writer.Publish(ctx, ev)
	})
	if errors.Is(err, circuit.ErrOpen) {
		if ev.Type != model.EventTick {
			bw.bufferWrite(ev)
		}
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(ev model.Event) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, ev)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered events through the underlying writer, in order.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.Event, 0, 256)
	bw.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flushed := 0
	for _, ev := range toFlush {
		if err := bw.writer.Publish(ctx, ev); err != nil {
			log.Printf("[buffered-writer] flush %s seq=%d: %v", ev.Type, ev.Seq, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d/%d buffered events", flushed, len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
