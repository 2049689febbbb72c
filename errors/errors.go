package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Phase indicates where in the bridge lifecycle the error occurred
type Phase string

const (
	PhaseLocate Phase = "locate" // on-disk runtime discovery
	PhaseLoad   Phase = "load"   // library loading and symbol validation
	PhaseInit   Phase = "init"   // interpreter initialization and warm-up
	PhaseJob    Phase = "job"    // job-level supervision
	PhaseCall   Phase = "call"   // a call into the foreign runtime
	PhaseDecode Phase = "decode" // decoding a foreign result
	PhaseConfig Phase = "config" // timeout/override configuration
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound    Kind = "not_found"   // runtime absent; fatal to construction
	KindLoadFailed  Kind = "load_failed" // library/symbol/smoke-test failure; fatal
	KindTimeout     Kind = "timeout"     // step or total phase timeout
	KindCancelled   Kind = "cancelled"   // cooperative cancellation took effect
	KindForeign     Kind = "foreign"     // the runtime raised an exception
	KindBadShape    Kind = "bad_shape"   // foreign result the bridge cannot interpret
	KindUnsupported Kind = "unsupported" // operation unsupported on this platform
	KindInvalid     Kind = "invalid"     // invalid input to a bridge operation
	KindStopped     Kind = "stopped"     // worker no longer accepting tasks
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two *Errors match when their
// Phase and Kind agree, so sentinel comparisons like
// errors.Is(err, errors.Cancelled("")) work regardless of detail text.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Convenience constructors for common error patterns

// RuntimeNotFound reports that the locator found no usable runtime.
// Fatal: the bridge cannot be constructed.
func RuntimeNotFound(detail string) *Error {
	return &Error{Phase: PhaseLocate, Kind: KindNotFound, Detail: detail}
}

// RuntimeLoadFailed reports a library, symbol, or smoke-test failure during
// bridge construction.
func RuntimeLoadFailed(detail string, cause error) *Error {
	return &Error{Phase: PhaseLoad, Kind: KindLoadFailed, Detail: detail, Cause: cause}
}

// InitFailed reports an interpreter initialization or warm-up failure.
func InitFailed(detail string, cause error) *Error {
	return &Error{Phase: PhaseInit, Kind: KindLoadFailed, Detail: detail, Cause: cause}
}

// Cancelled reports that cooperative cancellation took effect. source names
// who requested it (user, timer, predicate) and may be empty in comparisons.
func Cancelled(source string) *Error {
	return &Error{Phase: PhaseJob, Kind: KindCancelled, Detail: source}
}

// Unsupported reports an operation that cannot work on this platform.
func Unsupported(what string) *Error {
	return &Error{Phase: PhaseLoad, Kind: KindUnsupported, Detail: what}
}

// Invalid reports invalid input to a bridge operation.
func Invalid(detail string) *Error {
	return &Error{Phase: PhaseJob, Kind: KindInvalid, Detail: detail}
}

// WorkerStopped reports a task submitted after the worker shut down.
func WorkerStopped() *Error {
	return &Error{Phase: PhaseCall, Kind: KindStopped, Detail: "worker stopped"}
}

// BadShape reports a foreign result the bridge could not interpret.
func BadShape(detail string) *Error {
	return &Error{Phase: PhaseDecode, Kind: KindBadShape, Detail: detail}
}

// CallFailed wraps a low-level failure from the foreign call surface.
func CallFailed(detail string, cause error) *Error {
	return &Error{Phase: PhaseCall, Kind: KindForeign, Detail: detail, Cause: cause}
}

// IsCancelled reports whether err classifies as cooperative cancellation,
// either the bridge's own Cancelled error or the runtime's interrupt
// exception surfaced as a ForeignError.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := AsError(err); ok && e.Kind == KindCancelled {
		return true
	}
	if fe, ok := AsForeign(err); ok && fe.Interrupted() {
		return true
	}
	return false
}

// TimeoutError reports that a phase exceeded its step budget or that the job
// exceeded its total budget while entering the phase.
type TimeoutError struct {
	Phase   string        // phase name, e.g. "process"
	Elapsed time.Duration // observed wall clock
	Limit   time.Duration // configured budget
	Total   bool          // true for job-total, false for per-step
}

func (e *TimeoutError) Error() string {
	scope := "step"
	if e.Total {
		scope = "total"
	}
	return fmt.Sprintf("[job] timeout: phase %q exceeded %s limit (%.1fs elapsed, %.1fs allowed)",
		e.Phase, scope, e.Elapsed.Seconds(), e.Limit.Seconds())
}

// Is reports whether target matches this error type or the timeout kind.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == KindTimeout
	}
	return false
}

// StepTimeout reports a phase body outliving its step budget.
func StepTimeout(phase string, elapsed, limit time.Duration) *TimeoutError {
	return &TimeoutError{Phase: phase, Elapsed: elapsed, Limit: limit}
}

// TotalTimeout reports the job budget exhausted before the named phase.
func TotalTimeout(phase string, elapsed, limit time.Duration) *TimeoutError {
	return &TimeoutError{Phase: phase, Elapsed: elapsed, Limit: limit, Total: true}
}

// interruptTypeName is the foreign runtime's own "interrupted by signal"
// exception type. A ForeignError of this type classifies as cancellation even
// when the bridge's interrupt flag never fired.
const interruptTypeName = "KeyboardInterrupt"

// maxTracebackLen bounds the formatted traceback carried by a ForeignError.
const maxTracebackLen = 64 << 10

// ForeignError carries a raised foreign exception: type name, message, and a
// bounded-length formatted traceback when one was available.
type ForeignError struct {
	Type      string
	Message   string
	Traceback string
}

func (e *ForeignError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[call] foreign: %s", e.Type)
	}
	return fmt.Sprintf("[call] foreign: %s: %s", e.Type, e.Message)
}

// Is reports whether target is also a ForeignError.
func (e *ForeignError) Is(target error) bool {
	_, ok := target.(*ForeignError)
	return ok
}

// Interrupted reports whether this exception is the runtime's interrupt type.
func (e *ForeignError) Interrupted() bool {
	return e.Type == interruptTypeName
}

// NewForeign builds a ForeignError, truncating oversized tracebacks.
func NewForeign(typ, message, traceback string) *ForeignError {
	if len(traceback) > maxTracebackLen {
		traceback = traceback[:maxTracebackLen] + "\n... (truncated)"
	}
	return &ForeignError{Type: typ, Message: message, Traceback: traceback}
}

// MissingSymbolsError is returned when required ABI entry points could not be
// resolved from the loaded runtime library.
type MissingSymbolsError struct {
	Names []string
}

// NewMissingSymbolsError creates an error from the resolver's missing set.
// Names are deduplicated and sorted for stable messages.
func NewMissingSymbolsError(names []string) *MissingSymbolsError {
	seen := make(map[string]struct{}, len(names))
	uniq := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)
	return &MissingSymbolsError{Names: uniq}
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Names) == 0 {
		return "[load] load_failed: no symbols specified"
	}
	return fmt.Sprintf("Missing ABI symbols: %s", strings.Join(e.Names, ", "))
}

// Is reports whether target matches this error type or the load-failed kind.
func (e *MissingSymbolsError) Is(target error) bool {
	if _, ok := target.(*MissingSymbolsError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == KindLoadFailed
	}
	return false
}

// AsError unwraps err to a *Error when one is in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsForeign unwraps err to a *ForeignError when one is in the chain.
func AsForeign(err error) (*ForeignError, bool) {
	var e *ForeignError
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// AsTimeout unwraps err to a *TimeoutError when one is in the chain.
func AsTimeout(err error) (*TimeoutError, bool) {
	var e *TimeoutError
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
