package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls int32
	block chan struct{}
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	atomic.AddInt32(&c.calls, 1)
	if c.block != nil {
		<-c.block
	}
	return c.err
}

func TestSchedulerRunsRefresh(t *testing.T) {
	r := &countingRefresher{}
	s := NewScheduler(r, "@every 1s", time.Second)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&r.calls) >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&countingRefresher{}, "not a schedule", 0)
	assert.Error(t, s.Start())
}

func TestRefreshDirectorySkipsOverlap(t *testing.T) {
	r := &countingRefresher{block: make(chan struct{})}
	s := NewScheduler(r, "@every 1h", time.Second)

	done := make(chan struct{})
	go func() {
		s.RefreshDirectory()
		close(done)
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&r.calls) == 1 }, time.Second, 10*time.Millisecond)

	s.RefreshDirectory()
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))

	close(r.block)
	<-done
}

func TestRefreshDirectoryLogsErrors(t *testing.T) {
	r := &countingRefresher{err: errors.New("backend down")}
	s := NewScheduler(r, "@every 1h", time.Second)

	s.RefreshDirectory()
	s.RefreshDirectory()
	assert.Equal(t, int32(2), atomic.LoadInt32(&r.calls))
}
