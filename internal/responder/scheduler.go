package responder

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teemow/awayreply/internal/logging"
)

// Scheduler runs a cycle repeatedly with a random delay before each run.
//
// The next delay is drawn only after the previous run has returned, so runs
// never overlap. Start is idempotent: only the first call launches the loop.
type Scheduler struct {
	interval Interval
	run      func(ctx context.Context)
	logger   *slog.Logger

	// wait blocks for d or until ctx is done; it reports whether the full
	// delay elapsed.
	wait func(ctx context.Context, d time.Duration) bool
	rng  *rand.Rand

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewScheduler creates a Scheduler that calls run after each delay.
func NewScheduler(interval Interval, run func(ctx context.Context), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		logger:   logging.WithComponent(logger, "scheduler"),
		wait:     sleepContext,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		done:     make(chan struct{}),
	}
}

// Start launches the loop in a new goroutine and returns true. If the loop
// was already started it does nothing and returns false. The loop stops when
// ctx is canceled; a run in progress is allowed to finish first.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return false
	}
	s.started = true

	go s.loop(ctx)
	return true
}

// Started reports whether Start has launched the loop.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		delay := s.interval.Next(s.rng)
		s.logger.Debug("next poll scheduled", slog.Duration("delay", delay))

		if !s.wait(ctx, delay) {
			s.logger.Info("scheduler stopped")
			return
		}
		s.run(ctx)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
