package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownRunsPhasesInOrder(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	coord.Register(ShutdownHandler{Name: "cleanup", Phase: PhaseCleanup, Func: record("cleanup")})
	coord.Register(ShutdownHandler{Name: "conn", Phase: PhaseConnections, Func: record("conn")})
	coord.Register(ShutdownHandler{Name: "svc", Phase: PhaseServices, Func: record("svc")})
	coord.Register(ShutdownHandler{Name: "pre", Phase: PhasePreShutdown, Func: record("pre")})

	results := coord.Shutdown(context.Background())
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	want := []string{"pre", "svc", "conn", "cleanup"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownHandlersWithinPhaseRunConcurrently(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)

	var current, peak atomic.Int32
	slow := func(ctx context.Context) error {
		c := current.Add(1)
		if c > peak.Load() {
			peak.Store(c)
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil
	}
	coord.RegisterService("a", slow)
	coord.RegisterService("b", slow)
	coord.RegisterService("c", slow)

	coord.Shutdown(context.Background())
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want >= 2 (same-phase handlers run together)", peak.Load())
	}
}

func TestShutdownRecordsHandlerError(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)
	boom := errors.New("boom")
	coord.RegisterService("bad", func(ctx context.Context) error { return boom })
	coord.RegisterConnection("good", func(ctx context.Context) error { return nil })

	results := coord.Shutdown(context.Background())
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	byName := map[string]ShutdownResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if !errors.Is(byName["bad"].Error, boom) {
		t.Errorf("bad.Error = %v, want boom", byName["bad"].Error)
	}
	if byName["good"].Error != nil {
		t.Errorf("good.Error = %v, want nil", byName["good"].Error)
	}
}

func TestShutdownHandlerTimesOut(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)
	coord.Register(ShutdownHandler{
		Name:    "stuck",
		Phase:   PhaseServices,
		Timeout: 20 * time.Millisecond,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(200 * time.Millisecond)
			return nil
		},
	})

	done := make(chan []ShutdownResult, 1)
	go func() { done <- coord.Shutdown(context.Background()) }()

	select {
	case results := <-done:
		if len(results) != 1 || !errors.Is(results[0].Error, context.DeadlineExceeded) {
			t.Fatalf("results = %+v, want one DeadlineExceeded", results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown blocked on a handler past its timeout")
	}
}

func TestShutdownOnlyRunsOnce(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)
	var calls atomic.Int32
	coord.RegisterService("svc", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	coord.Shutdown(context.Background())
	second := coord.Shutdown(context.Background())
	if calls.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", calls.Load())
	}
	if len(second) != 0 {
		t.Errorf("second Shutdown returned %d results, want 0", len(second))
	}
}

func TestShutdownStopsWhenContextCancelled(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)
	var cleanupRan atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	coord.RegisterService("svc", func(ctx context.Context) error {
		cancel()
		return nil
	})
	coord.Register(ShutdownHandler{Name: "cleanup", Phase: PhaseCleanup, Func: func(ctx context.Context) error {
		cleanupRan.Store(true)
		return nil
	}})

	coord.Shutdown(ctx)
	if cleanupRan.Load() {
		t.Error("later phase ran after the shutdown context was cancelled")
	}
}

func TestShutdownInvalidPhaseFallsBackToCleanup(t *testing.T) {
	coord := NewShutdownCoordinator(5*time.Second, nil)
	coord.Register(ShutdownHandler{Name: "odd", Phase: ShutdownPhase(99), Func: func(ctx context.Context) error { return nil }})

	results := coord.Shutdown(context.Background())
	if len(results) != 1 || results[0].Phase != PhaseCleanup {
		t.Fatalf("results = %+v, want one handler in PhaseCleanup", results)
	}
}

func TestShutdownPhaseString(t *testing.T) {
	cases := map[ShutdownPhase]string{
		PhasePreShutdown:  "pre-shutdown",
		PhaseServices:     "services",
		PhaseConnections:  "connections",
		PhaseCleanup:      "cleanup",
		ShutdownPhase(42): "phase-42",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", phase, got, want)
		}
	}
}
