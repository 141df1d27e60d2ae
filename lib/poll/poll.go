// Package poll implements timed condition polling against external
// actors that expose no completion events, such as a third-party UI
// mid-rerender or a network resource that appears asynchronously.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Poll when the condition never materialized
// before the timeout elapsed.
var ErrTimeout = errors.New("poll: condition did not materialize before timeout")

// Producer evaluates a condition once. ok reports whether the produced
// value is usable; a false ok schedules another attempt.
type Producer[T any] func(ctx context.Context) (value T, ok bool)

// Poll invokes produce at fixed interval spacing until it reports ok or
// timeout elapses. Invocations never overlap: the next attempt is only
// scheduled after the previous one returns.
func Poll[T any](ctx context.Context, produce Producer[T], interval, timeout time.Duration) (T, error) {
	var zero T

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		value, ok := produce(ctx)
		if ok {
			return value, nil
		}
		if time.Now().After(deadline) {
			return zero, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Soft behaves like Poll but converts a timeout into an absence value
// instead of an error. Context cancellation still propagates.
func Soft[T any](ctx context.Context, produce Producer[T], interval, timeout time.Duration) (T, bool, error) {
	value, err := Poll(ctx, produce, interval, timeout)
	if errors.Is(err, ErrTimeout) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}
