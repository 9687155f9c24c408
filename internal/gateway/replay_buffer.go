package gateway

import "sync"

// replayEntry holds a single broadcast envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the most recent envelopes of one channel. Channel
// sequence numbers are contiguous, so a range lookup is index arithmetic
// from the oldest held seq.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu     sync.RWMutex
	buf    []replayEntry
	start  int // physical index of the oldest entry
	size   int
	oldest int64 // seq of the oldest entry
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayBufferSize
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest entry when full. A seq
// that does not follow the newest held one restarts the buffer.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)

	if rb.size > 0 && seq != rb.oldest+int64(rb.size) {
		rb.start, rb.size = 0, 0
	}
	if rb.size == 0 {
		rb.oldest = seq
	}

	capacity := len(rb.buf)
	if rb.size < capacity {
		rb.buf[(rb.start+rb.size)%capacity] = replayEntry{Seq: seq, Data: cp}
		rb.size++
		return
	}
	rb.buf[rb.start] = replayEntry{Seq: seq, Data: cp}
	rb.start = (rb.start + 1) % capacity
	rb.oldest++
}

// Range returns the held entries with seq in [fromSeq, toSeq], in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}
	newest := rb.oldest + int64(rb.size) - 1
	if fromSeq < rb.oldest {
		fromSeq = rb.oldest
	}
	if toSeq > newest {
		toSeq = newest
	}
	if fromSeq > toSeq {
		return nil
	}

	out := make([]replayEntry, 0, toSeq-fromSeq+1)
	for seq := fromSeq; seq <= toSeq; seq++ {
		idx := (rb.start + int(seq-rb.oldest)) % len(rb.buf)
		out = append(out, rb.buf[idx])
	}
	return out
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
