// Package fanout runs independent units of work concurrently and waits for all of
// them. A failing task never cancels its siblings.
package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds concurrent calls against third-party APIs.
const DefaultLimit = 5

type Task func(ctx context.Context) error

// Settle runs tasks with at most limit in flight and returns one error slot per task.
func Settle(ctx context.Context, limit int, tasks ...Task) []error {
	errs := make([]error, len(tasks))

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task panicked: %v", r)
				}
			}()
			errs[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

// Each applies fn to every item in chunks of size, settling each chunk before
// the next one starts. It returns the per-item errors in input order.
func Each[T any](ctx context.Context, items []T, size int, fn func(ctx context.Context, item T) error) []error {
	if size <= 0 {
		size = DefaultLimit
	}

	errs := make([]error, 0, len(items))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))

		tasks := make([]Task, 0, end-start)
		for _, item := range items[start:end] {
			tasks = append(tasks, func(ctx context.Context) error { return fn(ctx, item) })
		}
		errs = append(errs, Settle(ctx, size, tasks...)...)
	}
	return errs
}

// Count returns the number of non-nil errors.
func Count(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
