package progress

import "sync"

// Stream is an unbounded ordered event channel between one producer and
// one consumer. Emit never blocks: the producer holds the runtime lock
// while reporting, and a slow consumer must not be able to stall the
// pipeline. Next blocks until an event arrives or the stream finishes.
//
// Finish is idempotent. After it, the consumer drains buffered events and
// then observes termination; late Emits are dropped.
type Stream struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	finished bool
}

// NewStream returns an empty, unfinished stream.
func NewStream() *Stream {
	s := &Stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Emit appends e to the stream. It never blocks. Events emitted after
// Finish are dropped.
func (s *Stream) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
}

// Next returns the oldest unconsumed event. It blocks until one is
// available. The second return is false once the stream has finished and
// every buffered event has been consumed.
func (s *Stream) Next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.finished {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return Event{}, false
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true
}

// Finish marks the stream complete. Buffered events remain consumable.
// Calling Finish again has no effect.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.finished = true
	s.cond.Broadcast()
}

// Finished reports whether Finish has been called. Buffered events may
// still be pending.
func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Chan drains the stream through a channel that closes on termination.
// It starts the draining goroutine; call it at most once per stream and
// do not mix it with Next.
func (s *Stream) Chan() <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for {
			e, ok := s.Next()
			if !ok {
				return
			}
			ch <- e
		}
	}()
	return ch
}
