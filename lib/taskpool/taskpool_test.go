package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunKeepsInputOrder(t *testing.T) {
	ctx := context.Background()

	tasks := make([]Task[int], 16)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (int, error) {
			// later indices finish first
			time.Sleep(time.Millisecond * time.Duration(16-i))
			return i * 10, nil
		}
	}

	results := Run(ctx, 4, tasks)
	require.Len(t, results, 16)
	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, i*10, r.Value)
	}
}

func TestRunNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	const limit = 3

	var inflight, peak atomic.Int64
	tasks := make([]Task[struct{}], 24)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond * 2)
			inflight.Add(-1)
			return struct{}{}, nil
		}
	}

	Run(ctx, limit, tasks)
	require.LessOrEqual(t, peak.Load(), int64(limit))
}

func TestRunIsolatesFailures(t *testing.T) {
	ctx := context.Background()

	tasks := []Task[string]{
		func(ctx context.Context) (string, error) { return "a", nil },
		func(ctx context.Context) (string, error) { return "", errors.New("boom") },
		func(ctx context.Context) (string, error) { return "c", nil },
	}

	results := Run(ctx, 2, tasks)
	require.Equal(t, "a", results[0].Value)
	require.Error(t, results[1].Err)
	require.Empty(t, results[1].Value)
	require.Equal(t, "c", results[2].Value)
}

func TestRunClampsLimit(t *testing.T) {
	ctx := context.Background()

	tasks := make([]Task[int], 3)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (int, error) { return i, nil }
	}

	for _, limit := range []int{-1, 0, 1, 3, 100} {
		results := Run(ctx, limit, tasks)
		require.Len(t, results, 3, fmt.Sprint("limit ", limit))
		for i, r := range results {
			require.Equal(t, i, r.Value)
		}
	}

	require.Empty(t, Run[int](ctx, 2, nil))
}
