package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	goredis "github.com/go-redis/redis/v8"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate cap per run stream; 0 = 10000

	// OnWrite, if set, is called with the duration of each pipeline.
	OnWrite func(d time.Duration)
}

// Writer publishes run events to Redis:
//
//	PUBLISH events:<type>           every event (live dashboards)
//	SET     run:latest:<type>       last event of each type (late joiners)
//	XADD    run:<run_id>:events     trades, rejections and lifecycle (history)
//
// Tick events are PubSub + SET only; they are not kept in the stream.
type Writer struct {
	client *goredis.Client
	cfg    WriterConfig
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, cfg: cfg}, nil
}

// Publish writes one event in a single pipeline. Implements
// model.EventPublisher.
func (w *Writer) Publish(ctx context.Context, ev model.Event) error {
	start := time.Now()
	jsonBytes := ev.JSON()
	// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

	pipe := w.client.Pipeline()
	if persisted(ev.Type) {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(ev.RunID),
			MaxLen: w.cfg.StreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"type": string(ev.Type),
				"seq":  ev.Seq,
				"data": jsonData,
			},
		})
	}
	pipe.Set(ctx, LatestKey(ev.Type), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, ev.Channel(), jsonData)

	_, err := pipe.Exec(ctx)
	if w.cfg.OnWrite != nil {
		w.cfg.OnWrite(time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("redis pipeline %s seq=%d: %w", ev.Type, ev.Seq, err)
	}
	return nil
}

// History reads up to count persisted events of a run, newest first.
func (w *Writer) History(ctx context.Context, runID string, count int64) ([]string, error) {
	msgs, err := w.client.XRevRangeN(ctx, StreamKey(runID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", StreamKey(runID), err)
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if s, ok := m.Values["data"].(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

// StreamKey is the per-run event stream.
func StreamKey(runID string) string { return "run:" + runID + ":events" }

// LatestKey holds the last event of a type.
func LatestKey(t model.EventType) string { return "run:latest:" + string(t) }

func persisted(t model.EventType) bool { return t != model.EventTick }
