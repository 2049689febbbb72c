package bridge

import (
	"time"

	"go.uber.org/zap"

	"github.com/marcut/runtime-bridge/engine"
	"github.com/marcut/runtime-bridge/errors"
)

// runPhase executes one named stage of a job under the runtime lock,
// supervised by the job's budget. Order matters: cancellation is
// checked before anything else and again right after lock acquisition;
// the step timer is armed before the body and cancelled unconditionally
// after it; the body's wall clock is measured against the step budget
// even when the timer never got to fire.
func runPhase[T any](b *Bridge, j *job, name string, body func(engine.Session) (T, error)) (T, error) {
	var zero T
	if err := b.canceller.Check(); err != nil {
		return zero, err
	}

	enabled := !j.timeouts.Disabled
	if enabled && j.timeouts.Total > 0 {
		if elapsed := time.Since(j.start); elapsed > j.timeouts.Total {
			return zero, errors.TotalTimeout(name, elapsed, j.timeouts.Total)
		}
	}

	var timer *time.Timer
	if enabled && j.timeouts.Step > 0 {
		token, limit := j.token, j.timeouts.Step
		timer = time.AfterFunc(limit, func() {
			b.cancelIfCurrent(token, name, limit)
		})
	}

	start := time.Now()
	result, err := engine.Locked(b.eng, func(s engine.Session) (T, error) {
		if cerr := b.canceller.Check(); cerr != nil {
			return zero, cerr
		}
		return body(s)
	})
	if timer != nil {
		timer.Stop()
	}

	took := time.Since(start)
	b.log.Debug("phase finished",
		zap.String("phase", name),
		zap.Duration("took", took))

	// The interrupt a firing timer induces surfaces from the body as a
	// cancellation; the wall-clock check turns it back into the timeout
	// it really is.
	if enabled && j.timeouts.Step > 0 && took > j.timeouts.Step {
		return zero, errors.StepTimeout(name, took, j.timeouts.Step)
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}
