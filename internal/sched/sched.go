// Package sched drives a node's cooperative loop: one goroutine, fixed
// short ticks, every registered task advanced once per tick. Nothing in a
// task may block — slow operations are bounded attempts that fail fast and
// retry on a later tick — so the loop always returns to servicing the
// stack quickly enough that supervision timeouts never fire.
package sched

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTickInterval keeps stack servicing latency well inside the 10-50ms
// target.
const DefaultTickInterval = 10 * time.Millisecond

// Task is one unit of per-tick work.
type Task interface {
	Tick(ctx context.Context, now time.Time)
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context, now time.Time)

func (f TaskFunc) Tick(ctx context.Context, now time.Time) { f(ctx, now) }

// Every wraps a task so it runs at its own cadence while the scheduler
// ticks faster. A non-positive interval runs the task every tick.
func Every(interval time.Duration, task Task) Task {
	if interval <= 0 {
		return task
	}
	var last time.Time
	return TaskFunc(func(ctx context.Context, now time.Time) {
		if now.Sub(last) < interval {
			return
		}
		last = now
		task.Tick(ctx, now)
	})
}

// Scheduler runs tasks in registration order on a single goroutine.
type Scheduler struct {
	interval time.Duration
	tasks    []Task
	logger   *logrus.Entry
}

// New creates a scheduler. A non-positive interval uses the default.
func New(interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Scheduler{
		interval: interval,
		logger:   logger.WithField("component", "sched"),
	}
}

// Add registers a task. Not safe to call once Run has started.
func (s *Scheduler) Add(tasks ...Task) {
	s.tasks = append(s.tasks, tasks...)
}

// Run ticks until the context is canceled. The first tick fires
// immediately so a node starts advertising/scanning without waiting one
// interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"interval": s.interval,
		"tasks":    len(s.tasks),
	}).Info("Scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		t.Tick(ctx, now)
	}
}
