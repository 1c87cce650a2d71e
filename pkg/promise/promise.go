package promise

import (
	"context"
	"sync"

	"github.com/pingcap/errors"

	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// Promise is the producing endpoint of a one-shot asynchronous result. The
// first call to Complete, Fail or Cancel resolves it; later calls are no-ops
// and return false.
type Promise[T any] struct {
	mu        sync.Mutex
	resolved  bool
	value     T
	err       error
	doneCh    chan struct{}
	callbacks []func(T, error)
}

// Future is the read-only view of a Promise. Holders can observe and wait for
// the result but can never resolve it.
type Future[T any] struct {
	p *Promise[T]
}

// NewPromise creates an unresolved Promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{doneCh: make(chan struct{})}
}

// Future returns the read-only view of p. All returned views share the same
// underlying result.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{p: p}
}

func (p *Promise[T]) resolve(value T, err error) bool {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return false
	}
	p.resolved = true
	p.value = value
	p.err = err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.doneCh)
	p.mu.Unlock()

	for _, cb := range callbacks {
		go cb(value, err)
	}
	return true
}

// Complete resolves the promise with value.
func (p *Promise[T]) Complete(value T) bool {
	return p.resolve(value, nil)
}

// Fail resolves the promise with err.
func (p *Promise[T]) Fail(err error) bool {
	var zero T
	return p.resolve(zero, errors.Trace(err))
}

// Cancel resolves the promise abruptly. Waiters observe ErrFutureCanceled.
func (p *Promise[T]) Cancel() bool {
	var zero T
	return p.resolve(zero, derror.ErrFutureCanceled.FastGenByArgs())
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.p.doneCh
}

// Value returns the result. Calling it before Done is closed returns
// ErrFutureNotResolved.
func (f *Future[T]) Value() (T, error) {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	if !f.p.resolved {
		var zero T
		return zero, derror.ErrFutureNotResolved.FastGenByArgs()
	}
	return f.p.value, f.p.err
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, errors.Trace(ctx.Err())
	case <-f.p.doneCh:
		return f.Value()
	}
}

// WhenComplete registers fn to run on its own goroutine once the future
// resolves. If the future has already resolved, fn is started right away.
func (f *Future[T]) WhenComplete(fn func(T, error)) {
	f.p.mu.Lock()
	if f.p.resolved {
		value, err := f.p.value, f.p.err
		f.p.mu.Unlock()
		go fn(value, err)
		return
	}
	f.p.callbacks = append(f.p.callbacks, fn)
	f.p.mu.Unlock()
}

// AllOf returns a future that resolves once every input future has resolved.
// The result carries the first error among the inputs in argument order, or
// nil if all succeeded.
func AllOf[T any](futures ...*Future[T]) *Future[struct{}] {
	p := NewPromise[struct{}]()
	if len(futures) == 0 {
		p.Complete(struct{}{})
		return p.Future()
	}
	go func() {
		for _, f := range futures {
			<-f.Done()
		}
		for _, f := range futures {
			if _, err := f.Value(); err != nil {
				p.Fail(err)
				return
			}
		}
		p.Complete(struct{}{})
	}()
	return p.Future()
}
