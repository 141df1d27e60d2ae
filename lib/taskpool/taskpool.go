// Package taskpool runs a fixed list of independent operations under a
// concurrency cap while keeping results aligned with the input order.
package taskpool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task is a single unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Result carries the outcome of one task. A failed task leaves Value at
// its zero value.
type Result[T any] struct {
	Value T
	Err   error
}

// Run executes tasks with at most limit in flight at any instant and
// returns results in the original index order regardless of completion
// order. A per-task failure is recorded in its slot and does not abort
// sibling tasks.
//
// Scheduling is a fixed pool of limit workers, each pulling the next
// unclaimed index. There is no priority and no reordering.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}
	if limit > len(tasks) {
		limit = len(tasks)
	}

	var next atomic.Int64
	wg := sync.WaitGroup{}

	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(next.Add(1)) - 1
				if idx >= len(tasks) {
					return
				}
				value, err := tasks[idx](ctx)
				results[idx] = Result[T]{Value: value, Err: err}
			}
		}()
	}

	wg.Wait()
	return results
}
