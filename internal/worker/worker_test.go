package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/service"
)

type blockingRunner struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (r *blockingRunner) Run(ctx context.Context) {
	r.started.Add(1)
	<-ctx.Done()
	r.stopped.Add(1)
}

func TestOutboxWorkerStartsOnceAndStops(t *testing.T) {
	runner := &blockingRunner{}
	w := NewOutboxWorker(runner, true)

	w.StartWithContext(context.Background())
	w.StartWithContext(context.Background())
	require.Eventually(t, func() bool { return runner.started.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.StopWithContext(ctx))
	require.Equal(t, int32(1), runner.stopped.Load())
	require.Equal(t, int32(1), runner.started.Load())
}

func TestDisabledOutboxWorkerDoesNothing(t *testing.T) {
	runner := &blockingRunner{}
	w := NewOutboxWorker(runner, false)
	w.StartWithContext(context.Background())
	require.NoError(t, w.StopWithContext(context.Background()))
	require.Zero(t, runner.started.Load())
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepOverdue(context.Context) (service.SweepResult, error) {
	s.calls.Add(1)
	return service.SweepResult{}, s.err
}

type countingPurger struct{ calls atomic.Int32 }

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{SweepSpec: "every now and then"}, &countingSweeper{}, nil, zap.NewNop())
	require.Error(t, err)
}

func TestSchedulerRunsJobs(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	purger := &countingPurger{}
	s, err := NewScheduler(SchedulerConfig{SweepSpec: "@every 1s", PurgeSpec: "@hourly"}, sweeper, purger, zap.NewNop())
	require.NoError(t, err)

	s.RunSweep()
	s.RunPurge()
	require.Equal(t, int32(1), sweeper.calls.Load())
	require.Equal(t, int32(1), purger.calls.Load())

	s.Start()
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.StopWithContext(ctx))
}
