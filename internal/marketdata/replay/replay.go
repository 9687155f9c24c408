// Package replay plays an ordered historical dataset one price point at a
// time, with an optional per-tick delay and pause/resume control.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
)

// Player emits a finite dataset in timestamp order. The delay only paces
// emission: points are never reordered or skipped.
type Player struct {
	points []model.PricePoint

	mu       sync.Mutex
	delay    time.Duration
	paused   bool
	resumeCh chan struct{} // closed on Resume
	emitted  int
}

// New creates a Player over points, stably sorted by timestamp. points may
// be nil and supplied later with Load.
func New(points []model.PricePoint, delay time.Duration) *Player {
	if delay < 0 {
		delay = 0
	}
	p := &Player{delay: delay}
	p.Load(points)
	return p
}

// Load replaces the dataset. Call before Run.
func (p *Player) Load(points []model.PricePoint) {
	sorted := make([]model.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS.Before(sorted[j].TS) })
	p.mu.Lock()
	p.points = sorted
	p.emitted = 0
	p.mu.Unlock()
}

// Run emits every point to emit. It returns early with ctx.Err() when ctx is
// cancelled between points, or with the first error emit returns. The point
// being emitted when ctx is cancelled still completes.
func (p *Player) Run(ctx context.Context, emit func(model.PricePoint) error) error {
	p.mu.Lock()
	points := p.points
	p.mu.Unlock()
	slog.Info("replay started", "points", len(points), "delay", p.Delay())

	for i, pt := range points {
		if err := p.waitIfPaused(ctx); err != nil {
			slog.Info("replay cancelled", "emitted", i)
			return err
		}
		if err := ctx.Err(); err != nil {
			slog.Info("replay cancelled", "emitted", i)
			return err
		}

		if err := emit(pt); err != nil {
			return err
		}
		p.mu.Lock()
		p.emitted++
		p.mu.Unlock()

		if d := p.Delay(); d > 0 && i < len(points)-1 {
			select {
			case <-ctx.Done():
				slog.Info("replay cancelled", "emitted", i+1)
				return ctx.Err()
			case <-time.After(d):
			}
		}
	}

	slog.Info("replay completed", "points", len(points))
	return nil
}

func (p *Player) waitIfPaused(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.paused {
			p.mu.Unlock()
			return nil
		}
		ch := p.resumeCh
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Pause holds emission before the next point.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resumeCh = make(chan struct{})
	}
}

// Resume continues a paused replay.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resumeCh)
	}
}

// Paused reports whether emission is held.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetDelay changes the per-tick delay; it applies from the next wait.
func (p *Player) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// Delay returns the per-tick delay.
func (p *Player) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// Len returns the dataset size.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.points)
}

// Emitted returns how many points have been emitted so far.
func (p *Player) Emitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitted
}
