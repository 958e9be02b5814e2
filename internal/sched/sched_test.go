package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerTicksUntilCancel(t *testing.T) {
	var ticks atomic.Int64
	s := New(time.Millisecond, nil)
	s.Add(TaskFunc(func(context.Context, time.Time) { ticks.Add(1) }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, ticks.Load(), int64(5))
}

func TestSchedulerRunsTasksInOrder(t *testing.T) {
	var order []int
	s := New(time.Millisecond, nil)
	s.Add(
		TaskFunc(func(context.Context, time.Time) { order = append(order, 1) }),
		TaskFunc(func(context.Context, time.Time) { order = append(order, 2) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.Add(TaskFunc(func(context.Context, time.Time) { cancel() }))

	_ = s.Run(ctx)
	assert.GreaterOrEqual(t, len(order), 2)
	assert.Equal(t, []int{1, 2}, order[:2])
}

func TestEveryGatesCadence(t *testing.T) {
	count := 0
	task := Every(100*time.Millisecond, TaskFunc(func(context.Context, time.Time) { count++ }))

	base := time.Now()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		task.Tick(ctx, base.Add(time.Duration(i)*10*time.Millisecond))
	}

	// 500ms simulated at a 100ms cadence.
	assert.InDelta(t, 5, count, 1)
}

func TestEveryZeroIntervalRunsAlways(t *testing.T) {
	count := 0
	task := Every(0, TaskFunc(func(context.Context, time.Time) { count++ }))
	now := time.Now()
	for i := 0; i < 10; i++ {
		task.Tick(context.Background(), now)
	}
	assert.Equal(t, 10, count)
}
