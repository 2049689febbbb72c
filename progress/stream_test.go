package progress

import (
	"fmt"
	"testing"
	"time"
)

func TestStream_OrderPreserved(t *testing.T) {
	s := NewStream()
	for i := 0; i < 10; i++ {
		s.Emit(ChunkEvent(i+1, 10, fmt.Sprintf("chunk %d", i+1)))
	}
	s.Finish()

	for i := 0; i < 10; i++ {
		e, ok := s.Next()
		if !ok {
			t.Fatalf("stream ended early at event %d", i)
		}
		if e.Chunk != i+1 {
			t.Errorf("expected chunk %d, got %d", i+1, e.Chunk)
		}
	}
	if _, ok := s.Next(); ok {
		t.Error("expected termination after buffered events drained")
	}
}

func TestStream_EmitNeverBlocksWithoutConsumer(t *testing.T) {
	s := NewStream()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			s.Emit(ChunkEvent(i, 10000, ""))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked with no consumer attached")
	}
}

func TestStream_FinishIdempotent(t *testing.T) {
	s := NewStream()
	s.Emit(ChunkEvent(1, 2, "kept"))
	s.Finish()
	s.Finish()
	s.Emit(ChunkEvent(2, 2, "dropped"))

	e, ok := s.Next()
	if !ok {
		t.Fatal("expected buffered event to survive Finish")
	}
	if e.Message != "kept" {
		t.Errorf("expected buffered event, got %q", e.Message)
	}
	if _, ok := s.Next(); ok {
		t.Error("expected event emitted after Finish to be dropped")
	}
	if !s.Finished() {
		t.Error("expected stream to report finished")
	}
}

func TestStream_NextBlocksUntilEmit(t *testing.T) {
	s := NewStream()

	got := make(chan Event, 1)
	go func() {
		e, ok := s.Next()
		if !ok {
			t.Error("expected an event, got termination")
		}
		got <- e
	}()

	time.Sleep(20 * time.Millisecond)
	s.Emit(ChunkEvent(1, 1, "late"))

	select {
	case e := <-got:
		if e.Message != "late" {
			t.Errorf("expected late event, got %q", e.Message)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestStream_ConcurrentProducer(t *testing.T) {
	s := NewStream()
	const n = 1000

	go func() {
		for i := 0; i < n; i++ {
			s.Emit(ChunkEvent(i, n, ""))
		}
		s.Finish()
	}()

	next := 0
	for {
		e, ok := s.Next()
		if !ok {
			break
		}
		if e.Chunk != next {
			t.Fatalf("expected chunk %d, got %d", next, e.Chunk)
		}
		next++
	}
	if next != n {
		t.Errorf("expected %d events, got %d", n, next)
	}
}

func TestStream_Chan(t *testing.T) {
	s := NewStream()
	go func() {
		for i := 1; i <= 3; i++ {
			s.Emit(ChunkEvent(i, 3, ""))
		}
		s.Finish()
	}()

	var chunks []int
	for e := range s.Chan() {
		chunks = append(chunks, e.Chunk)
	}
	if len(chunks) != 3 || chunks[0] != 1 || chunks[2] != 3 {
		t.Errorf("expected chunks [1 2 3], got %v", chunks)
	}
}
