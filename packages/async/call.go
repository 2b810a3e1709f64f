package async

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled is the error reported by a call that was cancelled before it
// completed.
var ErrCanceled = errors.New("call canceled")

// Void is the value type of calls that only report success or failure
type Void = struct{}

type state int

const (
	pending state = iota
	resolved
	canceled
)

// Call is the handle of one asynchronous unit of work.
//
// Callbacks of one call never run concurrently and run in the order they
// were registered. A call returned by ReceiveOn runs every callback on its
// executor, including callbacks registered after it completed.
type Call[T any] struct {
	mu         sync.Mutex
	state      state
	value      T
	err        error
	done       chan struct{}
	callbacks  []func(T, error)
	delivering bool
	exec       Executor
	onCancel   []func()
	abort      func()
}

func newCall[T any](abort func()) *Call[T] {
	return &Call[T]{
		done:  make(chan struct{}),
		abort: abort,
	}
}

// Go runs fn on a new goroutine. The context handed to fn is cancelled when
// the call is cancelled or once fn returns.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Call[T] {
	ctx, cancel := context.WithCancel(ctx)
	c := newCall[T](cancel)
	go func() {
		defer cancel()
		v, err := fn(ctx)
		c.resolve(v, err)
	}()
	return c
}

// Resolved returns a call already completed with v
func Resolved[T any](v T) *Call[T] {
	c := newCall[T](nil)
	c.resolve(v, nil)
	return c
}

// Failed returns a call already completed with err
func Failed[T any](err error) *Call[T] {
	c := newCall[T](nil)
	var zero T
	c.resolve(zero, err)
	return c
}

func (c *Call[T]) resolve(v T, err error) {
	c.mu.Lock()
	if c.state != pending {
		c.mu.Unlock()
		return
	}
	c.state = resolved
	c.value, c.err = v, err
	c.onCancel = nil
	c.delivering = true
	close(c.done)
	c.mu.Unlock()

	c.drain()
}

// drain runs queued callbacks until none are left. Only the goroutine that
// set delivering calls it, so callbacks of one call never overlap.
func (c *Call[T]) drain() {
	for {
		c.mu.Lock()
		callbacks := c.callbacks
		c.callbacks = nil
		if len(callbacks) == 0 {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		v, err := c.value, c.err
		c.mu.Unlock()

		for _, cb := range callbacks {
			cb(v, err)
		}
	}
}

// subscribe registers cb for completion. It never runs when the call was
// cancelled. On a completed call, cb joins a delivery in progress or starts
// a new one on the call's executor.
func (c *Call[T]) subscribe(cb func(T, error)) {
	c.mu.Lock()
	switch c.state {
	case pending:
		c.callbacks = append(c.callbacks, cb)
		c.mu.Unlock()
		return
	case canceled:
		c.mu.Unlock()
		return
	}
	c.callbacks = append(c.callbacks, cb)
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	exec := c.exec
	c.mu.Unlock()

	if exec == nil {
		c.drain()
		return
	}
	exec.Execute(c.drain)
}

func (c *Call[T]) whenCanceled(fn func()) {
	c.mu.Lock()
	switch c.state {
	case pending:
		c.onCancel = append(c.onCancel, fn)
		c.mu.Unlock()
	case canceled:
		c.mu.Unlock()
		fn()
	default:
		c.mu.Unlock()
	}
}

// Cancel aborts a pending call. Continuations registered on the call are
// dropped and Await reports ErrCanceled. Cancelling a completed call has no
// effect.
func (c *Call[T]) Cancel() {
	c.mu.Lock()
	if c.state != pending {
		c.mu.Unlock()
		return
	}
	c.state = canceled
	c.err = ErrCanceled
	c.callbacks = nil
	hooks := c.onCancel
	c.onCancel = nil
	close(c.done)
	abort := c.abort
	c.mu.Unlock()

	if abort != nil {
		abort()
	}
	for _, fn := range hooks {
		fn()
	}
}

// Done is closed once the call completed or was cancelled
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Await blocks until the call completes or ctx is done
func (c *Call[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Canceled reports whether the call was cancelled before completing
func (c *Call[T]) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == canceled
}

// Then runs fn with the value on success
func (c *Call[T]) Then(fn func(T)) *Call[T] {
	c.subscribe(func(v T, err error) {
		if err == nil {
			fn(v)
		}
	})
	return c
}

// OnError runs fn with the failure
func (c *Call[T]) OnError(fn func(error)) *Call[T] {
	c.subscribe(func(_ T, err error) {
		if err != nil {
			fn(err)
		}
	})
	return c
}

// Finally runs fn once the call completed, whatever the outcome
func (c *Call[T]) Finally(fn func()) *Call[T] {
	c.subscribe(func(T, error) {
		fn()
	})
	return c
}

// ReceiveOn returns a call completing with the same outcome, delivered on e.
// Callbacks registered on the returned call always run on e. Cancelling the
// returned call cancels c.
func (c *Call[T]) ReceiveOn(e Executor) *Call[T] {
	d := newCall[T](c.Cancel)
	d.exec = e
	c.subscribe(func(v T, err error) {
		e.Execute(func() {
			d.resolve(v, err)
		})
	})
	c.whenCanceled(d.Cancel)
	return d
}

// Map transforms the success value of c. Failures pass through unchanged.
func Map[T, U any](c *Call[T], fn func(T) U) *Call[U] {
	return TryMap(c, func(v T) (U, error) {
		return fn(v), nil
	})
}

// TryMap is like Map with a fallible transformation
func TryMap[T, U any](c *Call[T], fn func(T) (U, error)) *Call[U] {
	d := newCall[U](c.Cancel)
	c.subscribe(func(v T, err error) {
		if err != nil {
			var zero U
			d.resolve(zero, err)
			return
		}
		d.resolve(fn(v))
	})
	c.whenCanceled(d.Cancel)
	return d
}

// ToVoid discards the success value of c
func ToVoid[T any](c *Call[T]) *Call[Void] {
	return Map(c, func(T) Void {
		return Void{}
	})
}
