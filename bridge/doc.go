// Package bridge supervises jobs against the embedded runtime: ordered
// phases with per-step and job-total timeout budgets, cooperative
// cancellation wired to the runtime's interrupt mechanism, progress
// streaming, and terminal outcome classification.
//
// # Architecture
//
// A Bridge owns one engine.Engine and runs every job through it as an
// ordered sequence of phases. Each phase body executes on the runtime
// thread with the runtime lock held; the supervisor around it checks
// cancellation before and immediately after lock acquisition, arms an
// independent step timer, and measures the body against its budget.
//
// Step timers never touch the runtime. A firing timer only requests
// cancellation, and only after proving its generation token still names
// the active job; a timer that outlives its job is a no-op. The token
// check and the cancellation it guards happen under one lock, so a
// stale timer racing a job boundary cannot leak a cancellation into
// the next job.
//
// Jobs serialize: phases of two jobs never interleave on the runtime
// thread. Callers either block for a RunOutcome or submit and consume
// a progress.Stream alongside a Handle. The stream finishes exactly
// once per job, on success, failure, and cancellation alike.
//
// Timeout budgets resolve once per job from TimeoutConfig, which reads
// the process environment unless overridden in Options.
package bridge
