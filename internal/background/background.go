// Package background runs best-effort side effects after the primary write of a
// request has committed. Failures are logged and never reach the caller.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Runner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Async runs each job on its own goroutine with a context detached from the
// request's cancellation.
type Async struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewAsync() *Async {
	return &Async{timeout: 30 * time.Second}
}

func (a *Async) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		run(jobCtx, name, fn)
	}()
}

// Wait blocks until every started job returned or ctx is done.
func (a *Async) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Gave up waiting for background jobs", slog.Any("error", ctx.Err()))
	}
}

// Inline runs jobs synchronously. Used by tests and one-shot commands.
type Inline struct{}

func (Inline) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	run(context.WithoutCancel(ctx), name, fn)
}

func run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Background job panicked", slog.String("job", name), slog.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := fn(ctx); err != nil {
		slog.WarnContext(ctx, "Background job failed", slog.String("job", name), slog.Any("error", err))
	}
}
