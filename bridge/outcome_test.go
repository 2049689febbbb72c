package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marcut/runtime-bridge/errors"
	"github.com/marcut/runtime-bridge/pipeline"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  pipeline.Result
		err  error
		want Status
	}{
		{
			name: "clean zero status",
			res:  pipeline.Result{Status: 0},
			want: StatusSuccess,
		},
		{
			name: "non-zero status",
			res:  pipeline.Result{Status: 3},
			want: StatusFailure,
		},
		{
			name: "bridge cancellation",
			err:  errors.Cancelled("user"),
			want: StatusCancelled,
		},
		{
			name: "runtime interrupt reclassified",
			err:  errors.CallFailed("pipeline raised", errors.NewForeign("KeyboardInterrupt", "", "")),
			want: StatusCancelled,
		},
		{
			name: "foreign exception",
			err:  errors.CallFailed("pipeline raised", errors.NewForeign("ValueError", "bad document", "")),
			want: StatusFailure,
		},
		{
			name: "step timeout",
			err:  errors.StepTimeout("process", 0, 0),
			want: StatusFailure,
		},
		{
			name: "shape error",
			err:  errors.BadShape("pipeline result is str"),
			want: StatusFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.res, tt.err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestClassify_SuccessCarriesTimings(t *testing.T) {
	timings := map[string]float64{"llm": 2.5, "rules": 0.4}
	got := Classify(pipeline.Result{Status: 0, Timings: timings}, nil)

	assert.True(t, got.Succeeded())
	assert.Equal(t, timings, got.Timings)
	assert.Empty(t, got.Reason())
	assert.NoError(t, got.Err)
}

func TestClassify_NonZeroStatusCarriesCode(t *testing.T) {
	got := Classify(pipeline.Result{Status: 3}, nil)

	assert.False(t, got.Succeeded())
	assert.Equal(t, 3, got.Code)
	assert.Contains(t, got.Reason(), "status 3")
}

func TestClassify_ForeignReasonNamesException(t *testing.T) {
	err := errors.CallFailed("pipeline raised",
		errors.NewForeign("ValueError", "bad document", "Traceback (most recent call last): ..."))
	got := Classify(pipeline.Result{}, err)

	assert.Equal(t, StatusFailure, got.Status)
	assert.Contains(t, got.Reason(), "ValueError")
	assert.Contains(t, got.Reason(), "bad document")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "failure", StatusFailure.String())
}
