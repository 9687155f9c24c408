// Package resample builds coarser candles from finer ones. It consumes
// finalized candles of a base interval (typically 1m) and keeps one forming
// candle per bucket, updated in O(1). When a candle arrives in a new bucket
// the previous one is finalized.
package resample

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// ErrInterval is returned for malformed or incompatible intervals.
var ErrInterval = errors.New("invalid interval")

// ParseInterval converts Binance interval notation ("30s", "1m", "4h",
// "1d", "1w") to a duration.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInterval, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInterval, s)
	}
	var unit time.Duration
	switch strings.ToLower(s[len(s)-1:]) {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrInterval, s)
	}
	return time.Duration(n) * unit, nil
}

// Builder resamples one symbol's candles into a single timeframe.
// Not goroutine-safe: intended for a single consumer.
type Builder struct {
	tf      time.Duration
	bucket  time.Time
	candle  model.PricePoint
	started bool

	// StaleTolerance bounds how far behind the forming bucket a candle may
	// be before it is rejected. Zero rejects every older candle.
	StaleTolerance time.Duration

	OnCandle func(model.PricePoint) // called on each finalized candle (optional)
	OnStale  func()                 // called when a stale candle is rejected (optional)
}

// New creates a builder for timeframe tf.
func New(tf time.Duration) *Builder {
	return &Builder{tf: tf}
}

// Push merges p into the forming candle. When p opens a new bucket the
// previous candle is returned finalized.
func (b *Builder) Push(p model.PricePoint) (model.PricePoint, bool) {
	bucket := p.TS.UTC().Truncate(b.tf)

	if b.started && bucket.Before(b.bucket) {
		if b.bucket.Sub(bucket) > b.StaleTolerance {
			if b.OnStale != nil {
				b.OnStale()
			}
			return model.PricePoint{}, false
		}
		// Within tolerance: fold into the current bucket.
		bucket = b.bucket
	}

	if b.started && bucket.After(b.bucket) {
		done := b.candle
		b.start(bucket, p)
		if b.OnCandle != nil {
			b.OnCandle(done)
		}
		return done, true
	}

	if !b.started {
		b.start(bucket, p)
		return model.PricePoint{}, false
	}

	fc := &b.candle
	if p.High.GreaterThan(fc.High) {
		fc.High = p.High
	}
	if p.Low.LessThan(fc.Low) {
		fc.Low = p.Low
	}
	fc.Close = p.Close
	fc.Volume = fc.Volume.Add(p.Volume)
	return model.PricePoint{}, false
}

func (b *Builder) start(bucket time.Time, p model.PricePoint) {
	b.bucket = bucket
	b.started = true
	b.candle = p
	b.candle.TS = bucket
}

// Forming returns the in-progress candle.
func (b *Builder) Forming() (model.PricePoint, bool) {
	return b.candle, b.started
}

// Flush finalizes and returns the forming candle, if any.
func (b *Builder) Flush() (model.PricePoint, bool) {
	if !b.started {
		return model.PricePoint{}, false
	}
	done := b.candle
	b.started = false
	if b.OnCandle != nil {
		b.OnCandle(done)
	}
	return done, true
}

// Points resamples an ordered slice into timeframe tf. The last bucket is
// included even when incomplete.
func Points(points []model.PricePoint, tf time.Duration) []model.PricePoint {
	b := New(tf)
	out := make([]model.PricePoint, 0, len(points)/max(1, int(tf/time.Minute))+1)
	for _, p := range points {
		if c, ok := b.Push(p); ok {
			out = append(out, c)
		}
	}
	if c, ok := b.Flush(); ok {
		out = append(out, c)
	}
	return out
}

// Source is a HistoricalSource that serves intervals missing from Base by
// resampling BaseInterval candles.
type Source struct {
	Base         model.HistoricalSource
	BaseInterval string
}

// NewSource wraps base.
func NewSource(base model.HistoricalSource, baseInterval string) *Source {
	return &Source{Base: base, BaseInterval: baseInterval}
}

// Fetch returns stored candles for interval when present, otherwise candles
// resampled from BaseInterval. The range is widened to whole buckets so the
// first and last candles are complete.
func (s *Source) Fetch(ctx context.Context, symbol, interval string, from, to time.Time) ([]model.PricePoint, error) {
	pts, err := s.Base.Fetch(ctx, symbol, interval, from, to)
	if err != nil || len(pts) > 0 || interval == s.BaseInterval {
		return pts, err
	}

	tf, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	base, err := ParseInterval(s.BaseInterval)
	if err != nil {
		return nil, err
	}
	if tf < base || tf%base != 0 {
		return nil, fmt.Errorf("%w: %s is not a multiple of %s", ErrInterval, interval, s.BaseInterval)
	}

	fromB := from.UTC().Truncate(tf)
	toB := to.UTC().Truncate(tf)
	if toB.Before(to) {
		toB = toB.Add(tf)
	}
	raw, err := s.Base.Fetch(ctx, symbol, s.BaseInterval, fromB, toB)
	if err != nil {
		return nil, err
	}
	out := Points(raw, tf)
	if len(out) > 0 {
		log.Printf("[resample] %s: %d %s candles -> %d %s candles", symbol, len(raw), s.BaseInterval, len(out), interval)
	}
	return out, nil
}
