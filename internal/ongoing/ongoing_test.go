package ongoing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGuardAllocFree(t *testing.T) {
	var g Guard

	ctx, err := g.Alloc(context.Background())
	if err != nil {
		t.Fatalf("Alloc() error: %v", err)
	}
	if !g.Running() {
		t.Error("Running() = false after Alloc")
	}

	if _, err := g.Alloc(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Alloc() error = %v, want ErrAlreadyRunning", err)
	}

	g.Free()
	if g.Running() {
		t.Error("Running() = true after Free")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("context not cancelled by Free")
	}

	if _, err := g.Alloc(context.Background()); err != nil {
		t.Errorf("Alloc() after Free error: %v", err)
	}
}

func TestRequestCancelKeepsSlotHeld(t *testing.T) {
	var g Guard
	ctx, err := g.Alloc(context.Background())
	if err != nil {
		t.Fatalf("Alloc() error: %v", err)
	}

	g.RequestCancel()
	if !ShallStop(ctx) {
		t.Error("ShallStop() = false after RequestCancel")
	}
	if !g.Running() {
		t.Error("RequestCancel must not release the slot")
	}
	g.Free()
}

func TestShallStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if ShallStop(ctx) {
		t.Error("ShallStop() = true before cancel")
	}
	cancel()
	if !ShallStop(ctx) {
		t.Error("ShallStop() = false after cancel")
	}
}

func TestRunnerReplacesRunningJob(t *testing.T) {
	r := NewRunner()

	firstCancelled := make(chan struct{})
	firstStarted := make(chan struct{})
	r.Configure(context.Background(), func(ctx context.Context, progress func(int)) error {
		close(firstStarted)
		<-ctx.Done()
		close(firstCancelled)
		progress(0)
		return ctx.Err()
	}, func(int) {})

	<-firstStarted

	var mu sync.Mutex
	var secondEvents []int
	r.Configure(context.Background(), func(ctx context.Context, progress func(int)) error {
		progress(1000)
		return nil
	}, func(n int) {
		mu.Lock()
		secondEvents = append(secondEvents, n)
		mu.Unlock()
	})

	select {
	case <-firstCancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("first job not cancelled by the replacing Configure")
	}

	r.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(secondEvents) != 1 || secondEvents[0] != 1000 {
		t.Errorf("second job events = %v, want [1000]", secondEvents)
	}
}

func TestRunnerWaitIdle(t *testing.T) {
	r := NewRunner()
	// Wait on an idle runner must not block.
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() blocked on an idle runner")
	}
}
