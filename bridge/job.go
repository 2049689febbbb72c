package bridge

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcut/runtime-bridge/progress"
)

// job is one run's state: a fresh generation token, the wall clock the
// total budget is measured against, the budget frozen at submission,
// and the stream progress lands on. Immutable once built.
type job struct {
	op       Operation
	token    uuid.UUID
	start    time.Time
	timeouts OpTimeouts
	stream   *progress.Stream
}

// Handle resolves to a job's outcome.
type Handle struct {
	done    chan struct{}
	outcome RunOutcome
}

// Wait blocks until the job concludes and returns its outcome.
func (h *Handle) Wait() RunOutcome {
	<-h.done
	return h.outcome
}

// Done returns a channel closed once the outcome is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// startJob queues run behind any active job and drives it on its own
// goroutine. Jobs never interleave on the runtime thread.
func (b *Bridge) startJob(op Operation, stream *progress.Stream, cancelled func() bool, run func(*job) RunOutcome) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		b.jobMu.Lock()
		defer b.jobMu.Unlock()
		h.outcome = b.runJob(op, stream, cancelled, run)
	}()
	return h
}

// runJob brackets one job: mint the generation token, install the
// per-job cancellation predicate, run, then retire the generation,
// clear cancellation state, and finish the stream on every path.
func (b *Bridge) runJob(op Operation, stream *progress.Stream, cancelled func() bool, run func(*job) RunOutcome) RunOutcome {
	j := &job{
		op:       op,
		token:    uuid.New(),
		start:    time.Now(),
		timeouts: b.timeouts.For(op),
		stream:   stream,
	}
	if b.timeouts.Trace {
		b.log.Info("phase budget resolved",
			zap.String("operation", string(op)),
			zap.Duration("step", j.timeouts.Step),
			zap.Duration("total", j.timeouts.Total),
			zap.Bool("disabled", j.timeouts.Disabled))
	}

	b.mu.Lock()
	b.generation = j.token
	b.mu.Unlock()
	if cancelled != nil {
		b.canceller.SetPredicate(cancelled)
	}

	defer func() {
		b.mu.Lock()
		if b.generation == j.token {
			b.generation = uuid.Nil
		}
		b.mu.Unlock()
		b.canceller.Clear()
		stream.Finish()
	}()

	b.log.Info("job started", zap.String("operation", string(op)))
	outcome := run(j)
	b.log.Info("job finished",
		zap.String("operation", string(op)),
		zap.String("outcome", outcome.Status.String()),
		zap.Duration("took", time.Since(j.start)))
	return outcome
}

// progressSink adapts the foreign progress callback to the job's
// stream. Updates the bridge cannot interpret are dropped, not fatal.
func (b *Bridge) progressSink(j *job) func([]any) {
	return func(args []any) {
		ev, err := progress.Normalize(args)
		if err != nil {
			b.log.Warn("progress update dropped", zap.Error(err))
			return
		}
		j.stream.Emit(ev)
	}
}
