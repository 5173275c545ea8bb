// Package async runs blocking calls on their own goroutine and hands back a
// Future the caller can wait on.
package async

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Future is the pending result of a call started by Go or Run.
type Future[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Go starts fn on a new goroutine. If ctx is already done fn is not called
// and the future fails with ctx.Err(). A panic inside fn is recovered and
// surfaces as the future's error.
func Go[V any](ctx context.Context, fn func(context.Context) (V, error)) *Future[V] {
	f := &Future[V]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		var pc panics.Catcher
		pc.Try(func() { f.val, f.err = fn(ctx) })
		if r := pc.Recovered(); r != nil {
			var zero V
			f.val, f.err = zero, r.AsError()
		}
	}()
	return f
}

// Run is Go for calls that only return an error.
func Run(ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Await blocks until the call finishes or ctx is done. Giving up on the wait
// does not cancel the call; cancel the context passed to Go for that.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Result blocks until the call finishes.
func (f *Future[V]) Result() (V, error) {
	<-f.done
	return f.val, f.err
}
