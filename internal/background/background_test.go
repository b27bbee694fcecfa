package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsync_DetachedFromCancel(t *testing.T) {
	a := NewAsync()
	ctx, cancel := context.WithCancel(context.Background())

	var sawErr atomic.Value
	a.Go(ctx, "audit", func(jobCtx context.Context) error {
		cancel()
		time.Sleep(5 * time.Millisecond)
		sawErr.Store(jobCtx.Err() == nil)
		return errors.New("sink down")
	})

	waitCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	a.Wait(waitCtx)

	assert.Equal(t, true, sawErr.Load())
}

func TestInline_SwallowsFailures(t *testing.T) {
	calls := 0
	assert.NotPanics(t, func() {
		Inline{}.Go(context.Background(), "boom", func(context.Context) error {
			calls++
			panic("sink exploded")
		})
		Inline{}.Go(context.Background(), "fail", func(context.Context) error {
			calls++
			return errors.New("nope")
		})
	})
	assert.Equal(t, 2, calls)
}
