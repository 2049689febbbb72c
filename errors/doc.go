// Package errors provides structured error types for the runtime bridge.
//
// Errors are categorized by Phase (where in the bridge lifecycle the error
// occurred) and Kind (error category). Construction-time kinds (not_found,
// load_failed) are fatal to bridge creation; job-time kinds (timeout,
// cancelled, foreign, bad_shape) fail the current job and leave the bridge
// usable for the next one.
//
// Use the convenience constructors:
//
//	err := errors.RuntimeNotFound("no runtime under candidate roots")
//	err := errors.StepTimeout("process", elapsed, limit)
//
// Kinds with structured payloads have dedicated types, so callers can pull
// fields out after errors.As:
//
//	var fe *errors.ForeignError
//	if stderrors.As(err, &fe) {
//	    log.Println(fe.Type, fe.Message)
//	}
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
