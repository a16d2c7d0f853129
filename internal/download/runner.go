package download

import (
	"context"
	"errors"
	"sync"

	"github.com/reelfetch/backend/internal/logger"
)

const DefaultMaxConcurrent = 8

var ErrRunnerStopped = errors.New("download runner is stopped")

// Runner runs background jobs with a cap on how many execute at once.
// Jobs beyond the cap wait for a slot.
type Runner struct {
	slots chan struct{}
	log   *logger.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunner creates a runner allowing maxConcurrent jobs at once
func NewRunner(maxConcurrent int, log *logger.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if log == nil {
		log = logger.Default()
	}
	return &Runner{
		slots: make(chan struct{}, maxConcurrent),
		log:   log.WithComponent("runner"),
	}
}

// Start lets the runner accept work
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.log.Info(r.ctx, "download runner started", map[string]interface{}{"max_concurrent": cap(r.slots)})
}

// Go runs fn in the background. wait runs before a slot is taken, fn
// runs while holding one. The context passed to both is canceled only
// when Stop gives up waiting.
func (r *Runner) Go(wait, fn func(ctx context.Context)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return ErrRunnerStopped
	}

	ctx := r.ctx
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if wait != nil {
			wait(ctx)
		}
		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			fn(ctx)
			return
		}
		defer func() { <-r.slots }()
		fn(ctx)
	}()
	return nil
}

// Background runs fn without taking a slot. Stop still waits for it.
func (r *Runner) Background(fn func(ctx context.Context)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return ErrRunnerStopped
	}

	ctx := r.ctx
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
	return nil
}

// Stop refuses new work and waits for running jobs. If ctx ends first,
// running jobs are canceled and ctx's error is returned.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		r.log.Info(ctx, "download runner stopped gracefully")
		return nil
	case <-ctx.Done():
		cancel()
		r.log.Warn(ctx, "download runner shutdown timed out, canceling jobs")
		return ctx.Err()
	}
}

// IsRunning returns whether the runner accepts work
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// InFlight returns the number of jobs holding a slot
func (r *Runner) InFlight() int {
	return len(r.slots)
}
