package engine

import (
	goruntime "runtime"
	"sync"

	"github.com/marcut/runtime-bridge/errors"
)

// Worker owns the runtime thread. Every foreign call in the process goes
// through one Worker, so the runtime only ever observes a single OS
// thread: its lock bookkeeping, thread-local state, and signal handling
// all key off thread identity, and migrating between threads mid-call is
// undefined behavior there.
//
// Tasks run strictly in submission order. A task that blocks delays
// everything behind it, which is the intended backpressure: the runtime
// can only do one thing at a time anyway.
type Worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []workerTask
	stopped bool
	done    chan struct{}
}

type workerTask struct {
	run func()
	// drop is called instead of run when the worker stops with the task
	// still queued, so blocked submitters are released.
	drop func()
}

// NewWorker starts the runtime thread and returns its queue.
func NewWorker() *Worker {
	w := &Worker{done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// loop consumes tasks until stopped. The goroutine stays locked to its
// OS thread for its whole life and never unlocks: when the loop exits
// the thread is retired rather than returned to the scheduler, since
// the runtime may have poisoned its thread-local state.
func (w *Worker) loop() {
	goruntime.LockOSThread()
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			dropped := w.queue
			w.queue = nil
			w.mu.Unlock()
			for _, t := range dropped {
				if t.drop != nil {
					t.drop()
				}
			}
			return
		}
		t := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		t.run()
	}
}

// submit enqueues a task. It fails once the worker has stopped.
func (w *Worker) submit(t workerTask) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return errors.WorkerStopped()
	}
	w.queue = append(w.queue, t)
	w.cond.Signal()
	return nil
}

// PerformAsync submits fn without waiting for it. Once the worker has
// stopped, or stops before fn is reached, fn is silently dropped.
func (w *Worker) PerformAsync(fn func()) {
	_ = w.submit(workerTask{run: fn})
}

// Stop shuts the worker down and waits for the loop to exit. The task
// currently running completes; queued tasks are dropped with a stopped
// error to their submitters. Stop is idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.done
}

// Stopped reports whether Stop has been called.
func (w *Worker) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Perform runs fn on the worker thread and returns its result. It blocks
// until fn completes. When the worker is stopped, or stops while fn is
// still queued, Perform returns a stopped error without running fn.
func Perform[T any](w *Worker, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)

	err := w.submit(workerTask{
		run: func() {
			value, err := fn()
			ch <- result{value: value, err: err}
		},
		drop: func() {
			var zero T
			ch <- result{value: zero, err: errors.WorkerStopped()}
		},
	})
	if err != nil {
		var zero T
		return zero, err
	}

	r := <-ch
	return r.value, r.err
}
