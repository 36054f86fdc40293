// Package ongoing implements the at-most-one-configuration-run guard and
// job model: a single slot any long-running configuration occupies,
// observable progress callbacks, and cooperative cancellation.
package ongoing

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyRunning is returned by Alloc when a configuration run already
// holds the slot.
var ErrAlreadyRunning = errors.New("ongoing: a configuration run is already active")

// Guard is the process-wide slot: at most one configuration run may hold
// it at a time.
type Guard struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Alloc acquires the slot, deriving a cancellable context from parent.
// It fails with ErrAlreadyRunning if the slot is already held.
func (g *Guard) Alloc(parent context.Context) (context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	g.running = true
	g.cancel = cancel
	return ctx, nil
}

// Free releases the slot and cancels its context, if still held.
func (g *Guard) Free() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.running = false
	g.cancel = nil
}

// RequestCancel signals the held run's context without releasing the slot;
// the run itself observes this via ShallStop and exits, which then calls
// Free on its own exit path.
func (g *Guard) RequestCancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
}

// Running reports whether the slot is currently held.
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// ShallStop polls ctx for cancellation. The pipeline consults it at the
// top of its step loop and after every failed connect attempt.
func ShallStop(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Job is a long-running operation driven by the Runner: it receives a
// cancellable context and a progress callback, and reports success or
// failure. The job emits its own final progress event (0 or 1000).
type Job func(ctx context.Context, progress func(n int)) error

// Runner executes at most one Job at a time, killing any in-flight job
// before starting a new one: enqueue replaces existing.
type Runner struct {
	guard Guard

	mu   sync.Mutex
	done chan struct{}
}

// NewRunner returns an idle Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Guard exposes the underlying slot, e.g. for a status command to report
// whether a run is currently active, or to request cancellation.
func (r *Runner) Guard() *Guard {
	return &r.guard
}

// Configure kills any job already running, waits for it to exit, then
// starts job in a new goroutine. onProgress is called for every
// Progress(n) event the job emits, in the goroutine the job runs on. If
// the slot cannot be acquired even after the kill, the failure is
// reported as a single Progress(0).
func (r *Runner) Configure(parent context.Context, job Job, onProgress func(n int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.guard.Running() {
		r.guard.RequestCancel()
		if r.done != nil {
			<-r.done
		}
	}

	ctx, err := r.guard.Alloc(parent)
	if err != nil {
		onProgress(0)
		return
	}

	done := make(chan struct{})
	r.done = done

	go func() {
		defer close(done)
		defer r.guard.Free()
		_ = job(ctx, onProgress)
	}()
}

// Wait blocks until the currently running job, if any, has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}
