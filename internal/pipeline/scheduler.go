package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/trustlab/kestrel/internal/domain"
)

// Scheduler drives the runner: a ticker fires the daily full
// recomputation, and TopicEpochRequested messages trigger on-demand runs.
// Overlapping triggers collapse into the runner's single-epoch guard.
type Scheduler struct {
	runner   *Runner
	bus      domain.EventBus
	interval time.Duration

	trigger chan struct{}
	done    chan struct{}
	sub     domain.Subscription
	once    sync.Once
}

// NewScheduler creates a scheduler. A zero interval disables timed runs;
// epochs then happen only on request.
func NewScheduler(runner *Runner, bus domain.EventBus, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		bus:      bus,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduling loop and the bus subscription. It returns
// immediately; epochs run on the scheduler's goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.bus != nil {
		sub, err := s.bus.Subscribe(ctx, domain.TopicEpochRequested, func(ctx context.Context, msg *domain.Message) error {
			s.Trigger()
			return nil
		})
		if err != nil {
			return err
		}
		s.sub = sub
	}

	go s.loop(ctx)
	return nil
}

// Trigger requests an epoch run. Requests arriving while a run is queued
// coalesce into one.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-tick:
			s.run(ctx, "schedule")
		case <-s.trigger:
			s.run(ctx, "request")
		}
	}
}

func (s *Scheduler) run(ctx context.Context, cause string) {
	slog.Info("scheduler starting epoch", "cause", cause)
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, ErrEpochInProgress) {
			slog.Warn("epoch trigger skipped, run in progress", "cause", cause)
			return
		}
		slog.Error("scheduled epoch failed", "cause", cause, "error", err)
	}
}

// Stop halts the loop and drops the bus subscription.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil {
				slog.Warn("failed to unsubscribe scheduler", "error", err)
			}
		}
		close(s.done)
	})
}
