// Package runtimebridge embeds a lock-constrained scripting runtime inside a
// Go host process and supervises long-running, cancellable jobs against it.
//
// The runtime is not linked at build time. Its shared library is located on
// disk, loaded dynamically, and driven through C-ABI entry points resolved by
// name, so the same binary works whether or not the runtime is installed and
// fails with a diagnosable error instead of a link failure when it is not.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	runtimebridge/       Root package documentation
//	├── abi/             Dynamic symbol resolution with missing-symbol tracking
//	├── locator/         On-disk runtime discovery and search-path layout
//	├── engine/          Single-threaded execution engine over the runtime ABI
//	├── bridge/          Job supervision: phases, timeouts, cancellation
//	├── progress/        Ordered progress event stream with close-once semantics
//	├── pipeline/        Call contract of the document pipeline entry point
//	└── errors/          Structured error types for classification
//
// # Quick Start
//
// Construct a bridge once per process and submit jobs to it:
//
//	b, err := bridge.New(bridge.Options{Logger: logger})
//	if err != nil {
//	    log.Fatal(err) // runtime missing or failed to load
//	}
//	defer b.Close()
//
//	stream, handle := b.SubmitRedaction(req, nil)
//	for ev := range stream.Chan() {
//	    fmt.Println(ev.Message)
//	}
//	outcome := handle.Wait()
//
// # Threading Model
//
// Every call into the foreign runtime happens on one dedicated OS thread owned
// by the engine. The runtime enforces a global interpreter lock, so the engine
// serializes all work through a FIFO queue and acquires the lock state around
// each unit. Callers may be multi-threaded; they never touch the runtime
// directly.
//
// # Cancellation Model
//
// Cancellation is cooperative. A cancel request sets a flag checked at phase
// boundaries and signals the runtime's interrupt mechanism so a blocked
// foreign call unwinds at its next interpreter checkpoint. Foreign code that
// never yields cannot be interrupted before it does.
package runtimebridge
