package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reliefwatch/reliefwatch/internal/logging"
	"github.com/reliefwatch/reliefwatch/internal/store"
)

// Scheduler runs cycles on a fixed interval.
// Uses context cancellation as the ONLY stop mechanism.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	wg       sync.WaitGroup
}

// NewScheduler wraps a runner with periodic execution.
func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{runner: runner, interval: interval}
}

// Start begins periodic cycles. Runs one cycle immediately, then on every
// tick. Call with a cancellable context.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// runOnce executes a cycle. A persistence failure is fatal and cancels
// nothing here; the caller observes it through the log and the missing
// cycle row. Transient errors are logged and the next tick retries.
func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	_, err := s.runner.Run(ctx)
	if err == nil {
		return
	}

	var perr *store.PersistenceError
	if errors.As(err, &perr) {
		logging.Error("cycle persistence failure", "op", perr.Op, "error", perr.Err)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	logging.Error("cycle failed", "error", err)
}
