package async

import "sync"

// Executor runs functions on some execution context
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// Immediate runs functions on the calling goroutine
var Immediate Executor = ExecutorFunc(func(fn func()) {
	fn()
})

// SerialQueue runs functions one at a time, in submission order, on a single
// goroutine it owns. It plays the role of an application's main queue.
type SerialQueue struct {
	mu      sync.Mutex
	tasks   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

// Execute enqueues fn. After Close, fn runs on the calling goroutine so that
// no delivery is lost.
func (q *SerialQueue) Execute(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		fn()
		return
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close drains pending tasks and stops the queue goroutine. It must not be
// called from a task running on the queue.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.stopped
}

func (q *SerialQueue) loop() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		closed := q.closed
		q.mu.Unlock()

		for _, task := range tasks {
			task()
		}

		if len(tasks) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
