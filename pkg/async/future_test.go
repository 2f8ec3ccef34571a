package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/taskpilot/pkg/async"
)

func TestFuture_Await(t *testing.T) {
	t.Parallel()

	future := async.Go(func() (int, error) {
		return 42, nil
	})

	v, err := future.Await()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, future.IsComplete())
}

func TestFuture_AwaitError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("fetch failed")
	future := async.Go(func() (string, error) {
		return "", wantErr
	})

	_, err := future.Await()
	require.ErrorIs(t, err, wantErr)
}

func TestFuture_AwaitWithTimeout(t *testing.T) {
	t.Parallel()

	t.Run("completes in time", func(t *testing.T) {
		t.Parallel()

		future := async.Go(func() (int, error) { return 1, nil })
		v, err := future.AwaitWithTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("times out", func(t *testing.T) {
		t.Parallel()

		blocked := make(chan struct{})
		defer close(blocked)

		future := async.Go(func() (int, error) {
			<-blocked
			return 0, nil
		})

		_, err := future.AwaitWithTimeout(20 * time.Millisecond)
		require.ErrorIs(t, err, async.ErrTimeout)
	})
}

func TestFuture_AwaitContext(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	defer close(blocked)

	future := async.Go(func() (int, error) {
		<-blocked
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := future.AwaitContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFuture_CompleteOnce(t *testing.T) {
	t.Parallel()

	future := async.NewFuture[string]()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			future.Complete("winner", nil)
		}(i)
	}
	wg.Wait()

	v, err := future.Await()
	require.NoError(t, err)
	assert.Equal(t, "winner", v)

	// A late failure source must be a no-op on the settled future.
	future.Complete("", errors.New("too late"))
	v, err = future.Await()
	require.NoError(t, err)
	assert.Equal(t, "winner", v)
}

func TestFuture_Done(t *testing.T) {
	t.Parallel()

	future := async.NewFuture[int]()

	select {
	case <-future.Done():
		t.Fatal("future should not be complete yet")
	default:
	}

	future.Complete(1, nil)

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}
}

func TestWaitAll(t *testing.T) {
	t.Parallel()

	t.Run("all succeed", func(t *testing.T) {
		t.Parallel()

		futures := []*async.Future[int]{
			async.Go(func() (int, error) { return 1, nil }),
			async.Go(func() (int, error) { return 2, nil }),
			async.Go(func() (int, error) { return 3, nil }),
		}

		values, err := async.WaitAll(futures...)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, values)
	})

	t.Run("reports first error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("second failed")
		futures := []*async.Future[int]{
			async.Go(func() (int, error) { return 1, nil }),
			async.Go(func() (int, error) { return 0, wantErr }),
		}

		_, err := async.WaitAll(futures...)
		require.ErrorIs(t, err, wantErr)
	})
}

func TestWaitAny(t *testing.T) {
	t.Parallel()

	t.Run("returns the first completion", func(t *testing.T) {
		t.Parallel()

		blocked := make(chan struct{})
		defer close(blocked)

		fast := async.Go(func() (string, error) { return "fast", nil })
		slow := async.Go(func() (string, error) {
			<-blocked
			return "slow", nil
		})

		index, v, err := async.WaitAny(slow, fast)
		require.NoError(t, err)
		assert.Equal(t, 1, index)
		assert.Equal(t, "fast", v)
	})

	t.Run("no futures", func(t *testing.T) {
		t.Parallel()

		index, _, err := async.WaitAny[int]()
		require.ErrorIs(t, err, async.ErrNoFutures)
		assert.Equal(t, -1, index)
	})
}
