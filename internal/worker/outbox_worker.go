package worker

import (
	"context"
	"sync"
)

// Runner is a blocking loop that returns when its context is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// OutboxWorker runs the outbox dispatcher loop in the background.
type OutboxWorker struct {
	runner  Runner
	enabled bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewOutboxWorker constructs the worker. A disabled worker ignores Start.
func NewOutboxWorker(runner Runner, enabled bool) *OutboxWorker {
	return &OutboxWorker{runner: runner, enabled: enabled}
}

// StartWithContext launches the loop once.
func (w *OutboxWorker) StartWithContext(ctx context.Context) {
	if w == nil || w.runner == nil || !w.enabled {
		return
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.runner.Run(runCtx)
	}()
}

// StopWithContext cancels the loop and waits for the in-flight batch.
func (w *OutboxWorker) StopWithContext(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	wasRunning := w.running
	w.mu.Unlock()
	if !wasRunning || cancel == nil {
		return nil
	}
	cancel()
	return waitGroup(ctx, &w.wg, func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup, done func()) error {
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		done()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
