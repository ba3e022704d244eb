package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queue отдаёт n единиц работы, затем сообщает, что очередь пуста.
type queue struct {
	left  int64
	calls int64
	err   error
}

func (q *queue) next(context.Context) (bool, error) {
	atomic.AddInt64(&q.calls, 1)
	if q.err != nil {
		return false, q.err
	}
	if atomic.AddInt64(&q.left, -1) < 0 {
		return false, nil
	}
	return true, nil
}

type jobQueue struct{ queue }

func (q *jobQueue) ConsumeNext(ctx context.Context) (bool, error) { return q.next(ctx) }

type conveyorQueue struct{ queue }

func (q *conveyorQueue) ProcessNext(ctx context.Context) (bool, error) { return q.next(ctx) }

type fixer struct {
	calls int
	limit int
}

func (f *fixer) AutoFix(_ context.Context, limit int) (int, error) {
	f.calls++
	f.limit = limit
	return 0, nil
}

type refresher struct {
	calls int
	err   error
}

func (r *refresher) EnsureFresh(context.Context, time.Duration) error {
	r.calls++
	return r.err
}

func TestTick(t *testing.T) {
	jobs := &jobQueue{queue{left: 2}}
	conv := &conveyorQueue{queue{left: 3}}
	fix := &fixer{}
	settings := &refresher{err: errors.New("db down")}

	w := New(jobs, conv, fix, settings, &cfg.WorkerCfg{ModerationAutoFix: true, ModerationBatch: 7}, logger.NewNop())
	w.Tick(context.Background())

	assert.Equal(t, 1, settings.calls, "refresh failure does not stop the tick")
	assert.Equal(t, int64(3), jobs.calls, "drains until the queue reports empty")
	assert.Equal(t, int64(4), conv.calls)
	assert.Equal(t, 1, fix.calls)
	assert.Equal(t, 7, fix.limit)
}

func TestTick_LimitsAndErrors(t *testing.T) {
	jobs := &jobQueue{queue{err: errors.New("claim failed")}}
	conv := &conveyorQueue{queue{left: drainLimit * 3}}
	fix := &fixer{}

	w := New(jobs, conv, fix, &refresher{}, &cfg.WorkerCfg{}, logger.NewNop())
	w.Tick(context.Background())

	assert.Equal(t, int64(1), jobs.calls, "an error ends the drain for this tick")
	assert.Equal(t, int64(drainLimit), conv.calls)
	assert.Zero(t, fix.calls, "auto fix is opt-in")
}

func TestRun_StopsOnCancel(t *testing.T) {
	jobs := &jobQueue{}
	conv := &conveyorQueue{}
	w := New(jobs, conv, &fixer{}, &refresher{}, &cfg.WorkerCfg{PollInterval: 10 * time.Millisecond}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt64(&jobs.calls) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
