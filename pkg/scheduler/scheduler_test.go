package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRunsRegisteredTask(t *testing.T) {
	s := New(zap.NewNop(), nil)
	var runs atomic.Int32
	require.NoError(t, s.Register("sweep", "@every 1s", time.Second, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		runs.Add(1)
		return nil
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	next, ok := s.Next("sweep")
	require.True(t, ok)
	assert.False(t, next.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerRecoversFailingTasks(t *testing.T) {
	s := New(nil, time.UTC)
	var runs atomic.Int32
	require.NoError(t, s.Register("flaky", "@every 1s", 0, func(context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("still failing")
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerRejectsBadRegistrations(t *testing.T) {
	s := New(zap.NewNop(), nil)

	err := s.Register("sweep", "every five minutes", 0, func(context.Context) error { return nil })
	require.Error(t, err)

	require.NoError(t, s.Register("sweep", "@every 5m", 0, func(context.Context) error { return nil }))
	err = s.Register("sweep", "@every 1m", 0, func(context.Context) error { return nil })
	require.Error(t, err)

	_, ok := s.Next("missing")
	assert.False(t, ok)
}
