// Package engine embeds the scripting runtime inside the host process.
//
// The runtime is a shared library resolved at runtime, not a linked
// dependency: the engine locates it on disk, loads it, validates its
// entry points, initializes it once, and from then on executes every
// foreign call on one dedicated OS thread under the runtime's own lock.
//
// # Architecture
//
// The package provides four main types:
//
//	Worker  - The affinity thread: a FIFO task queue consumed by a single
//	          goroutine locked to its OS thread
//	Profile - Declares a concrete runtime flavor: entry-point names,
//	          isolation environment, warm-up modules, pipeline bindings
//	API     - The resolved call surface (production DynAPI over purego,
//	          Fake for tests)
//	Engine  - Lifecycle and lock management tying the three together
//
// # Call Flow
//
//  1. Engine.Initialize() locates the runtime, loads it, validates the
//     required symbols, initializes the interpreter, and smoke-tests an
//     import, all on the worker under one shared deadline
//  2. Locked()/WithLock() dispatch a body to the worker, acquire the
//     runtime lock, hand the body a Session, and release unconditionally
//  3. Session.Call drives the foreign object protocol and decodes the
//     result into plain Go values
//  4. Engine.Interrupt() is the one call safe off the worker: it flags
//     the runtime to raise its interrupt exception inside running code
//
// The interpreter is never finalized. Embedding runtimes with loaded
// native extensions cannot be torn down reliably, so Close stops the
// worker and releases the library handle but leaves the runtime
// initialized until process exit.
package engine
