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

func TestAdd_RejectsBadSpec(t *testing.T) {
	s := New(time.Minute)
	_, err := s.Add("bad", "every tuesday", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestAdd_Schedules(t *testing.T) {
	s := New(time.Minute)
	_, err := s.Add("weekly-newsletter", "0 9 * * 1", func(context.Context) error { return nil })
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Monday, entries[0].Next.Weekday())
	assert.Equal(t, 9, entries[0].Next.Hour())
}

func TestWrap_RunsJobWithDeadline(t *testing.T) {
	s := New(50 * time.Millisecond)
	var hadDeadline atomic.Bool

	s.wrap("job", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return errors.New("logged, not returned")
	})()

	assert.True(t, hadDeadline.Load())
}

func TestSkipIfStillRunning(t *testing.T) {
	s := New(time.Minute)
	var runs atomic.Int32
	release := make(chan struct{})

	_, err := s.Add("slow", "@every 1s", func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(2500 * time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.Equal(t, int32(1), runs.Load())
}

func TestFields(t *testing.T) {
	f := fields([]interface{}{"entry", 1, "dangling"})
	assert.Equal(t, 1, f["entry"])
	assert.Len(t, f, 1)
}
