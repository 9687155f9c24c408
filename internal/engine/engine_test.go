package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/events"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/model"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/ringbuf"
	"github.com/xdrBogdan22/trader-bot-modernized-python-python-d2c6f645/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// sawtooth swings between 85 and 100 so an RSI(2) threshold strategy
// trades several round trips.
func sawtooth(n int) []model.PricePoint {
	levels := []float64{100, 95, 90, 85, 90, 95}
	pts := make([]model.PricePoint, n)
	for i := range pts {
		c := levels[i%len(levels)]
		pts[i] = model.NewPricePoint("BTCUSDT", t0.Add(time.Duration(i)*time.Minute), c, c, c, c)
	}
	return pts
}

func rsiConfig() RunConfig {
	return RunConfig{
		Symbol:   "BTCUSDT",
		Interval: "1m",
		Strategy: "rsi_threshold",
		Params:   map[string]float64{"rsi_period": 2, "lower": 30, "upper": 70},
	}
}

type sliceSource struct {
	pts []model.PricePoint
	err error
}

func (s sliceSource) Fetch(ctx context.Context, symbol, interval string, from, to time.Time) ([]model.PricePoint, error) {
	return s.pts, s.err
}

// gatedSource blocks Fetch until release is closed.
type gatedSource struct {
	pts     []model.PricePoint
	release chan struct{}
}

func (g gatedSource) Fetch(ctx context.Context, _, _ string, _, _ time.Time) ([]model.PricePoint, error) {
	select {
	case <-g.release:
		return g.pts, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type sliceFeed struct{ pts []model.PricePoint }

func (f sliceFeed) Stream(ctx context.Context, emit func(model.PricePoint)) error {
	for _, p := range f.pts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(p)
	}
	return nil
}

func wait(t *testing.T, r *Run) (model.RunSummary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := r.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("run did not finish")
	}
	return s, err
}

func TestReplay_EndsStoppedWithSummary(t *testing.T) {
	bus := events.NewBus(4096)
	sub := bus.Subscribe()
	e := New(Deps{Events: bus})

	pts := sawtooth(60)
	r, err := e.StartReplay(context.Background(), rsiConfig(), sliceSource{pts: pts}, t0, t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	sum, err := wait(t, r)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if r.State() != model.StateStopped {
		t.Errorf("state = %s, want stopped", r.State())
	}
	if sum.Ticks != int64(len(pts)) {
		t.Errorf("ticks = %d, want %d", sum.Ticks, len(pts))
	}
	if sum.Trades < 2 {
		t.Fatalf("trades = %d, want at least one round trip", sum.Trades)
	}
	if e.Active() != nil {
		t.Error("slot not released")
	}
	if e.Last() != r {
		t.Error("Last should return the finished run")
	}

	// Strict alternation in the committed log.
	trades := r.Wallet().Trades()
	for i, o := range trades {
		want := model.SideBuy
		if i%2 == 1 {
			want = model.SideSell
		}
		if o.Side != want {
			t.Fatalf("trade %d side = %s, want %s", i, o.Side, want)
		}
		if o.RunID != r.ID() {
			t.Errorf("trade %d run id = %q", i, o.RunID)
		}
	}

	bus.Close()
	var got []model.Event
	for ev := range sub {
		got = append(got, ev)
	}
	if len(got) == 0 {
		t.Fatal("no events published")
	}
	if got[0].Type != model.EventLifecycle || got[0].Lifecycle.State != model.StateRunning {
		t.Fatalf("first event should be running lifecycle, got %+v", got[0])
	}
	last := got[len(got)-1]
	if last.Type != model.EventLifecycle || last.Lifecycle.State != model.StateStopped || last.Lifecycle.Summary == nil {
		t.Fatalf("last event should be stopped lifecycle with summary, got %+v", last)
	}
	var ticks, tradeEvents int
	for i, ev := range got {
		if ev.Seq != int64(i+1) {
			t.Fatalf("event %d seq = %d", i, ev.Seq)
		}
		switch ev.Type {
		case model.EventTick:
			ticks++
		case model.EventTrade:
			tradeEvents++
		}
	}
	if ticks != len(pts) || tradeEvents != sum.Trades {
		t.Errorf("tick events %d trade events %d, want %d and %d", ticks, tradeEvents, len(pts), sum.Trades)
	}
}

func TestStart_ConfigurationErrorsStayIdle(t *testing.T) {
	e := New(Deps{})
	src := sliceSource{pts: sawtooth(10)}

	cfg := rsiConfig()
	cfg.Strategy = "martingale"
	if _, err := e.StartReplay(context.Background(), cfg, src, t0, t0, 0); !errors.Is(err, strategy.ErrUnknownKind) {
		t.Errorf("unknown kind: got %v", err)
	}

	cfg = rsiConfig()
	cfg.Params["rsi_period"] = 1
	if _, err := e.StartReplay(context.Background(), cfg, src, t0, t0, 0); !errors.Is(err, strategy.ErrInvalidParam) {
		t.Errorf("out of range param: got %v", err)
	}

	if e.Active() != nil || e.Last() != nil {
		t.Error("rejected configuration must not start a run")
	}
}

func TestStart_SecondRunRejected(t *testing.T) {
	e := New(Deps{})
	gate := gatedSource{pts: sawtooth(30), release: make(chan struct{})}

	first, err := e.StartReplay(context.Background(), rsiConfig(), gate, t0, t0, 0)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	if _, err := e.StartReplay(context.Background(), rsiConfig(), sliceSource{}, t0, t0, 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second replay start: got %v, want ErrAlreadyRunning", err)
	}
	if _, err := e.StartLive(context.Background(), rsiConfig(), sliceFeed{}, 8); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second live start: got %v, want ErrAlreadyRunning", err)
	}
	if e.Active() != first {
		t.Fatal("first run lost the slot")
	}

	close(gate.release)
	sum, err := wait(t, first)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if sum.Ticks != 30 {
		t.Errorf("first run ticks = %d, want 30", sum.Ticks)
	}

	// Slot is free again.
	next, err := e.StartReplay(context.Background(), rsiConfig(), sliceSource{}, t0, t0, 0)
	if err != nil {
		t.Fatalf("start after release: %v", err)
	}
	wait(t, next)
}

func TestReplay_FetchFailureFailsRun(t *testing.T) {
	e := New(Deps{})
	r, err := e.StartReplay(context.Background(), rsiConfig(), sliceSource{err: errors.New("disk on fire")}, t0, t0, 0)
	if err != nil {
		t.Fatalf("StartReplay: %v", err)
	}
	sum, err := wait(t, r)
	if !errors.Is(err, ErrHistoricalFetch) {
		t.Fatalf("expected ErrHistoricalFetch, got %v", err)
	}
	var re *RunError
	if !errors.As(err, &re) || re.Phase != "fetch" || re.RunID != r.ID() {
		t.Errorf("expected fetch RunError for %s, got %#v", r.ID(), err)
	}
	if r.State() != model.StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}
	if !sum.FinalBalance.Equal(sum.InitialBalance) || sum.Ticks != 0 {
		t.Errorf("wallet should be untouched: %+v", sum)
	}
	if e.Active() != nil {
		t.Error("failed run kept the slot")
	}
}

func TestReplay_EmptyDatasetStops(t *testing.T) {
	e := New(Deps{})
	r, _ := e.StartReplay(context.Background(), rsiConfig(), sliceSource{}, t0, t0, 0)
	sum, err := wait(t, r)
	if err != nil || r.State() != model.StateStopped || sum.Ticks != 0 {
		t.Errorf("empty replay: err=%v state=%s ticks=%d", err, r.State(), sum.Ticks)
	}
}

func TestReplay_DuplicateTimestampsSkipped(t *testing.T) {
	pts := sawtooth(30)
	pts = append(pts, pts[5], pts[10], pts[20]) // re-delivered points

	e := New(Deps{})
	r, _ := e.StartReplay(context.Background(), rsiConfig(), sliceSource{pts: pts}, t0, t0, 0)
	sum, err := wait(t, r)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Ticks != 30 || sum.Skipped != 3 {
		t.Errorf("ticks=%d skipped=%d, want 30 and 3", sum.Ticks, sum.Skipped)
	}

	clean, _ := New(Deps{}).StartReplay(context.Background(), rsiConfig(), sliceSource{pts: sawtooth(30)}, t0, t0, 0)
	want, _ := wait(t, clean)
	if !sum.FinalBalance.Equal(want.FinalBalance) || sum.Trades != want.Trades {
		t.Errorf("re-ingest changed the outcome: %s/%d vs %s/%d",
			sum.FinalBalance, sum.Trades, want.FinalBalance, want.Trades)
	}
}

func TestReplay_StopIsCooperative(t *testing.T) {
	e := New(Deps{})
	r, err := e.StartReplay(context.Background(), rsiConfig(), sliceSource{pts: sawtooth(500)}, t0, t0, 2*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	sum, err := wait(t, r)
	if err != nil {
		t.Fatalf("stop should not be an error: %v", err)
	}
	if r.State() != model.StateStopped {
		t.Errorf("state = %s", r.State())
	}
	if sum.Ticks == 0 || sum.Ticks >= 500 {
		t.Errorf("ticks = %d, want a partial run", sum.Ticks)
	}
	if len(r.Wallet().Trades()) != sum.Trades {
		t.Error("summary does not match wallet")
	}
}

func TestReplay_PauseResumeAndDelay(t *testing.T) {
	e := New(Deps{})
	r, err := e.StartReplay(context.Background(), rsiConfig(), sliceSource{pts: sawtooth(200)}, t0, t0, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if r.State() != model.StatePaused {
		t.Fatalf("state = %s, want paused", r.State())
	}
	time.Sleep(20 * time.Millisecond)
	held := r.Summary().Ticks
	time.Sleep(20 * time.Millisecond)
	if now := r.Summary().Ticks; now != held {
		t.Errorf("ticks advanced while paused: %d -> %d", held, now)
	}

	if err := r.SetDelay(0); err != nil {
		t.Fatalf("SetDelay: %v", err)
	}
	if err := r.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	sum, err := wait(t, r)
	if err != nil || sum.Ticks != 200 {
		t.Errorf("after resume: err=%v ticks=%d", err, sum.Ticks)
	}
	if err := r.Resume(); err == nil {
		t.Error("resume on a stopped run should fail")
	}
}

func TestReplay_StopDuringFetchEndsStopped(t *testing.T) {
	e := New(Deps{})
	gate := gatedSource{pts: sawtooth(30), release: make(chan struct{})}
	defer close(gate.release)

	r, err := e.StartReplay(context.Background(), rsiConfig(), gate, t0, t0, 0)
	if err != nil {
		t.Fatal(err)
	}
	r.Stop()

	sum, err := wait(t, r)
	if err != nil {
		t.Fatalf("stop during fetch returned %v", err)
	}
	if r.State() != model.StateStopped {
		t.Errorf("state = %s, want stopped", r.State())
	}
	if sum.Ticks != 0 {
		t.Errorf("ticks = %d, want 0", sum.Ticks)
	}
	if e.Active() != nil {
		t.Error("slot not released")
	}
}

func TestReplay_PauseWithStalledSubscriber(t *testing.T) {
	old := lifecycleTimeout
	lifecycleTimeout = 50 * time.Millisecond
	t.Cleanup(func() { lifecycleTimeout = old })

	// One slot: the start event fills it and nobody reads.
	bus := events.NewBus(1)
	_ = bus.Subscribe()
	e := New(Deps{Events: bus})
	gate := gatedSource{pts: sawtooth(30), release: make(chan struct{})}
	defer close(gate.release)

	r, err := e.StartReplay(context.Background(), rsiConfig(), gate, t0, t0, 0)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 2)
	go func() {
		if err := r.Pause(); err != nil {
			done <- err
			return
		}
		done <- r.Resume()
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pause/resume: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pause/resume blocked on a stalled subscriber")
	}

	r.Stop()
	if _, err := wait(t, r); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLive_MatchesReplay(t *testing.T) {
	pts := sawtooth(120)

	replayRun, err := New(Deps{}).StartReplay(context.Background(), rsiConfig(), sliceSource{pts: pts}, t0, t0, 0)
	if err != nil {
		t.Fatal(err)
	}
	replaySum, err := wait(t, replayRun)
	if err != nil {
		t.Fatal(err)
	}

	liveRun, err := New(Deps{}).StartLive(context.Background(), rsiConfig(), sliceFeed{pts: pts}, 256)
	if err != nil {
		t.Fatal(err)
	}
	liveSum, err := wait(t, liveRun)
	if err != nil {
		t.Fatal(err)
	}
	if liveSum.Overruns != 0 {
		t.Fatalf("unexpected overruns: %d", liveSum.Overruns)
	}

	if liveSum.Ticks != replaySum.Ticks || !liveSum.FinalBalance.Equal(replaySum.FinalBalance) ||
		!liveSum.Holdings.Equal(replaySum.Holdings) {
		t.Fatalf("live %+v differs from replay %+v", liveSum, replaySum)
	}
	lt, rt := liveRun.Wallet().Trades(), replayRun.Wallet().Trades()
	if len(lt) != len(rt) || len(lt) == 0 {
		t.Fatalf("trade counts live=%d replay=%d", len(lt), len(rt))
	}
	for i := range lt {
		if lt[i].Side != rt[i].Side || !lt[i].Qty.Equal(rt[i].Qty) || !lt[i].Price.Equal(rt[i].Price) || !lt[i].TS.Equal(rt[i].TS) {
			t.Errorf("trade %d differs: live %+v replay %+v", i, lt[i], rt[i])
		}
	}
}

func TestLive_ControlsNotSupported(t *testing.T) {
	e := New(Deps{})
	r, err := e.StartLive(context.Background(), rsiConfig(), sliceFeed{}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Pause(); !errors.Is(err, ErrNotPausable) {
		t.Errorf("Pause: got %v", err)
	}
	if err := r.SetDelay(time.Second); !errors.Is(err, ErrNotPausable) {
		t.Errorf("SetDelay: got %v", err)
	}
	wait(t, r)
}

func TestLive_OverrunDropsOldest(t *testing.T) {
	e := New(Deps{})
	r, err := e.newRun(rsiConfig(), ModeLive)
	if err != nil {
		t.Fatal(err)
	}
	r.ring = ringbuf.New(2)

	pts := sawtooth(5)
	for _, p := range pts {
		r.enqueue(p)
	}
	if s := r.Summary(); s.Overruns != 3 {
		t.Fatalf("overruns = %d, want 3", s.Overruns)
	}
	// The two newest survive, in order.
	for _, want := range pts[3:] {
		got, ok := r.ring.Pop()
		if !ok || !got.TS.Equal(want.TS) {
			t.Fatalf("got %v ok=%v, want %v", got.TS, ok, want.TS)
		}
	}
}

// blockingFeed emits nothing and returns only when stopped.
type blockingFeed struct{ started chan struct{} }

func (b blockingFeed) Stream(ctx context.Context, _ func(model.PricePoint)) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestLive_StopEndsRun(t *testing.T) {
	e := New(Deps{})
	feed := blockingFeed{started: make(chan struct{})}
	r, err := e.StartLive(context.Background(), rsiConfig(), feed, 8)
	if err != nil {
		t.Fatal(err)
	}
	<-feed.started
	r.Stop()
	if _, err := wait(t, r); err != nil {
		t.Fatalf("stopped live run returned %v", err)
	}
	if r.State() != model.StateStopped {
		t.Errorf("state = %s", r.State())
	}
}

type failingFeed struct{}

func (failingFeed) Stream(context.Context, func(model.PricePoint)) error {
	return errors.New("handshake refused")
}

func TestLive_FeedErrorFailsRun(t *testing.T) {
	r, err := New(Deps{}).StartLive(context.Background(), rsiConfig(), failingFeed{}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wait(t, r); !errors.Is(err, ErrFeed) {
		t.Fatalf("expected ErrFeed, got %v", err)
	}
}

type memJournal struct {
	mu  sync.Mutex
	ids []string
}

func (m *memJournal) RecordOrder(o model.Order) error {
	m.mu.Lock()
	m.ids = append(m.ids, o.OrderID)
	m.mu.Unlock()
	return nil
}

func TestReplay_JournalsEveryOrder(t *testing.T) {
	j := &memJournal{}
	r, _ := New(Deps{Journal: j}).StartReplay(context.Background(), rsiConfig(), sliceSource{pts: sawtooth(60)}, t0, t0, 0)
	sum, _ := wait(t, r)
	if len(j.ids) != sum.Trades || j.ids[0] != "SIM-1" {
		t.Errorf("journal %v, want %d orders starting at SIM-1", j.ids, sum.Trades)
	}
}
