package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockerStub struct {
	acquired bool
	err      error
	released int
}

func (l *lockerStub) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, true, nil
}

type observerStub struct {
	outcomes []string
}

func (o *observerStub) ObserveJobTick(job, outcome string, duration time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func TestPeriodicRunOnceOutcomes(t *testing.T) {
	obs := &observerStub{}
	calls := 0
	job := NewPeriodic("term-status", func(ctx context.Context) error {
		calls++
		return nil
	}, PeriodicConfig{Interval: time.Minute, Observer: obs})

	assert.Equal(t, TickOutcomeOK, job.RunOnce(context.Background()))
	assert.Equal(t, 1, calls)

	failing := NewPeriodic("form-expiry", func(ctx context.Context) error {
		return errors.New("db down")
	}, PeriodicConfig{Observer: obs})
	assert.Equal(t, TickOutcomeFailed, failing.RunOnce(context.Background()))
	assert.Equal(t, []string{TickOutcomeOK, TickOutcomeFailed}, obs.outcomes)
}

func TestPeriodicSkipsWhenLockHeldElsewhere(t *testing.T) {
	locker := &lockerStub{acquired: false}
	calls := 0
	job := NewPeriodic("term-status", func(ctx context.Context) error {
		calls++
		return nil
	}, PeriodicConfig{Locker: locker})

	assert.Equal(t, TickOutcomeSkipped, job.RunOnce(context.Background()))
	assert.Zero(t, calls)

	locker.err = errors.New("redis down")
	assert.Equal(t, TickOutcomeSkipped, job.RunOnce(context.Background()))
	assert.Zero(t, calls)
}

func TestPeriodicReleasesLockAfterTick(t *testing.T) {
	locker := &lockerStub{acquired: true}
	job := NewPeriodic("term-status", func(ctx context.Context) error { return nil }, PeriodicConfig{Locker: locker})

	assert.Equal(t, TickOutcomeOK, job.RunOnce(context.Background()))
	assert.Equal(t, 1, locker.released)
}

func TestPeriodicRunStopsOnCancel(t *testing.T) {
	var calls int32
	job := NewPeriodic("term-status", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, PeriodicConfig{Interval: 5 * time.Millisecond, RunImmediately: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("periodic job did not stop after cancel")
	}
}
