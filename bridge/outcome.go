package bridge

import (
	"fmt"

	"github.com/marcut/runtime-bridge/errors"
	"github.com/marcut/runtime-bridge/pipeline"
)

// Status is a job's terminal classification.
type Status int

const (
	StatusSuccess Status = iota
	StatusCancelled
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	default:
		return "failure"
	}
}

// RunOutcome is a job's final state: its classification, the foreign
// status code when a non-zero one was returned, the timing breakdown
// when the pipeline reported one, and the terminal error otherwise.
type RunOutcome struct {
	Status  Status
	Code    int
	Timings map[string]float64
	Err     error
}

func (o RunOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Reason renders the terminal error, empty on success.
func (o RunOutcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Classify maps a job's final state to its outcome. Timeouts and shape
// errors are failures; the runtime's own interrupt exception counts as
// cancellation even when the bridge's flag never fired; a non-zero
// status code from a clean call is a failure carrying that code.
func Classify(res pipeline.Result, err error) RunOutcome {
	switch {
	case err != nil && errors.IsCancelled(err):
		return RunOutcome{Status: StatusCancelled, Err: err}
	case err != nil:
		return RunOutcome{Status: StatusFailure, Err: err}
	case res.Status != 0:
		return RunOutcome{
			Status: StatusFailure,
			Code:   res.Status,
			Err:    errors.CallFailed(fmt.Sprintf("pipeline exited with status %d", res.Status), nil),
		}
	default:
		return RunOutcome{Status: StatusSuccess, Timings: res.Timings}
	}
}
