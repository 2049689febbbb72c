package engine

import (
	"sync"
	"time"

	"github.com/marcut/runtime-bridge/errors"
)

// Fake is a scripted API and Session for tests: no library, no foreign
// runtime, fully controllable failure injection. It records lock
// traffic, imports, and interrupts so tests can assert the discipline
// around them.
type Fake struct {
	mu sync.Mutex

	// Failure injection.
	InitErr    error
	AcquireErr error
	RunErr     error
	ImportErrs map[string]error

	// ImportDelay stalls every import, for deadline tests.
	ImportDelay time.Duration

	// CallFunc scripts Call. Nil means every call returns status zero.
	CallFunc func(module, fn string, kwargs map[string]any, onProgress func([]any)) (any, error)

	initialized      bool
	pendingInterrupt bool
	interrupts       int
	acquires         int
	releases         int
	imports          []string
	ranStrings       []string
	closed           bool
}

// NewFake returns an unscripted Fake: initializes cleanly, imports
// everything, answers every call with status zero.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *Fake) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InitErr != nil {
		return f.InitErr
	}
	f.initialized = true
	return nil
}

func (f *Fake) Acquire() (Session, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AcquireErr != nil {
		return nil, nil, f.AcquireErr
	}
	f.acquires++
	return f, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.releases++
	}, nil
}

func (f *Fake) Interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	f.pendingInterrupt = true
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// --- Session ---

func (f *Fake) RunString(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranStrings = append(f.ranStrings, code)
	return f.RunErr
}

func (f *Fake) Import(name string) error {
	f.mu.Lock()
	delay := f.ImportDelay
	f.imports = append(f.imports, name)
	err := f.ImportErrs[name]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *Fake) Call(module, fn string, kwargs map[string]any, onProgress func([]any)) (any, error) {
	f.mu.Lock()
	callFunc := f.CallFunc
	f.mu.Unlock()

	if callFunc == nil {
		return int64(0), nil
	}
	return callFunc(module, fn, kwargs, onProgress)
}

// CheckSignals surfaces one pending interrupt as the foreign interrupt
// exception, mirroring the runtime's raise-once behavior.
func (f *Fake) CheckSignals() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pendingInterrupt {
		return nil
	}
	f.pendingInterrupt = false
	return errors.CallFailed("pending interrupt",
		errors.NewForeign("KeyboardInterrupt", "", ""))
}

// --- recordings ---

// Interrupts returns how many times Interrupt was called.
func (f *Fake) Interrupts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupts
}

// Imports returns the imported module names in order.
func (f *Fake) Imports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.imports...)
}

// Balanced reports whether every lock acquire has been released.
func (f *Fake) Balanced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires == f.releases
}

// Acquires returns how many times the lock was taken.
func (f *Fake) Acquires() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
