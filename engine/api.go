package engine

// LockHandle is the opaque token returned by the runtime's lock acquire,
// passed back verbatim on release.
type LockHandle int32

// API is the resolved control surface of the embedded runtime. Apart
// from Interrupt, every method must be called on the worker thread.
type API interface {
	// Initialized reports whether the runtime has been initialized,
	// by this process or by an earlier embedding in it.
	Initialized() bool

	// Initialize initializes the runtime without installing its own
	// signal handlers, leaving signal disposition to the host.
	Initialize() error

	// Acquire takes the runtime lock and returns a Session valid until
	// release is called. release must run on the same thread, clears
	// any pending error state, and is safe to defer.
	Acquire() (session Session, release func(), err error)

	// Interrupt flags the runtime to raise its interrupt exception at
	// the next safe point in running code. It is async-safe: the one
	// API call permitted from any thread, with or without the lock.
	Interrupt()

	// Close releases resources owned by the API, not the runtime itself.
	Close() error
}

// Session is the foreign call surface, valid only between an Acquire and
// its release, on the worker thread.
type Session interface {
	// RunString executes a code snippet in the runtime's main namespace.
	RunString(code string) error

	// Import imports a module by dotted name.
	Import(name string) error

	// Call invokes module.fn with keyword arguments and returns the
	// decoded result: integers as int64, floats as float64, strings,
	// bools, nil, sequences as []any, mappings as map[string]any.
	//
	// When onProgress is non-nil it is attached as the call's
	// progress_callback keyword and invoked with the decoded positional
	// arguments of each report.
	Call(module, fn string, kwargs map[string]any, onProgress func([]any)) (any, error)

	// CheckSignals surfaces pending interrupts: it returns the foreign
	// interrupt error when one is pending, nil otherwise.
	CheckSignals() error
}
