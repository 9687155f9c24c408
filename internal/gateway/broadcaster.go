package gateway

import (
	"strconv"
	"time"
)

const replayBufferSize = 500

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to all subscribed clients.
// The envelope is hand-built around the already-encoded payload:
//
//	{"channel":"events:trade","data":{...},"ts":"...","seq":N,"channel_seq":M}
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.seq++
	seq := b.hub.seq

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	b.hub.latest[channel] = latestEntry{Envelope: buf, TS: now, Seq: channelSeq}

	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayBufferSize)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()
	rb.Push(channelSeq, buf)

	// Fan out to subscribed clients
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			// slow client: drop rather than block the fan-out
		}
	}
}

func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
