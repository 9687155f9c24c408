package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

func fail(context.Context) error { return errFail }
func ok(context.Context) error   { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	if b.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", b.CurrentState())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	b := New(3, time.Hour)

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, fail); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.CurrentState() != StateOpen {
		t.Fatalf("expected Open after 3 failures, got %v", b.CurrentState())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker: err=%v called=%v, want ErrOpen without call", err, called)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	b := New(2, 30*time.Millisecond)
	var transitions []State
	b.OnStateChange = func(_, to State) { transitions = append(transitions, to) }

	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	time.Sleep(40 * time.Millisecond)

	if err := b.Execute(ctx, ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", b.CurrentState())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	ctx := context.Background()
	b := New(1, 20*time.Millisecond)
	b.Execute(ctx, fail)
	time.Sleep(30 * time.Millisecond)

	b.Execute(ctx, fail)
	if b.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", b.CurrentState())
	}
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	ctx := context.Background()
	errBusiness := errors.New("rejected by venue")
	b := New(1, time.Hour)
	b.IsFailure = func(err error) bool { return !errors.Is(err, errBusiness) }

	for i := 0; i < 5; i++ {
		if err := b.Execute(ctx, func(context.Context) error { return errBusiness }); err != errBusiness {
			t.Fatalf("expected passthrough error, got %v", err)
		}
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("business errors tripped the breaker: %v", b.CurrentState())
	}
}
