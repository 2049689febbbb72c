package pipeline

import (
	"fmt"

	"github.com/marcut/runtime-bridge/errors"
)

// Result is the decoded outcome of a redaction run. Status zero means
// success; anything else is the pipeline's failure code.
type Result struct {
	Status int

	// Timings maps phase names to seconds spent. Nil when the pipeline
	// reported a bare status, as older builds do.
	Timings map[string]float64
}

// DecodeResult interprets the value returned by the redaction entry
// point. Two shapes are valid: a bare integer status, and a two-element
// sequence of (status, timings mapping). Anything else fails decoding.
func DecodeResult(v any) (Result, error) {
	if status, ok := asInt(v); ok {
		return Result{Status: status}, nil
	}

	seq, ok := v.([]any)
	if !ok || len(seq) != 2 {
		return Result{}, errors.BadShape(
			fmt.Sprintf("pipeline result is %s, want status or (status, timings)", describe(v)))
	}
	status, ok := asInt(seq[0])
	if !ok {
		return Result{}, errors.BadShape(
			fmt.Sprintf("pipeline status is %s, want integer", describe(seq[0])))
	}
	timings, err := decodeTimings(seq[1])
	if err != nil {
		return Result{}, err
	}
	return Result{Status: status, Timings: timings}, nil
}

// ScrubResult is the decoded outcome of a metadata scrub.
type ScrubResult struct {
	OK      bool
	Message string

	// Report carries the scrubber's before/after field report.
	Report map[string]any
}

// DecodeScrub interprets the (ok, message, report) triple returned by
// the scrub entry point.
func DecodeScrub(v any) (ScrubResult, error) {
	seq, ok := v.([]any)
	if !ok || len(seq) != 3 {
		return ScrubResult{}, errors.BadShape(
			fmt.Sprintf("scrub result is %s, want (ok, message, report)", describe(v)))
	}
	okFlag, ok := seq[0].(bool)
	if !ok {
		return ScrubResult{}, errors.BadShape(
			fmt.Sprintf("scrub ok flag is %s, want boolean", describe(seq[0])))
	}
	message, ok := asOptionalString(seq[1])
	if !ok {
		return ScrubResult{}, errors.BadShape(
			fmt.Sprintf("scrub message is %s, want string", describe(seq[1])))
	}
	report, ok := asOptionalMap(seq[2])
	if !ok {
		return ScrubResult{}, errors.BadShape(
			fmt.Sprintf("scrub report is %s, want mapping", describe(seq[2])))
	}
	return ScrubResult{OK: okFlag, Message: message, Report: report}, nil
}

// Analysis is the decoded outcome of a document analysis pass.
type Analysis struct {
	WordCount   int
	EntityCount int

	// Details is the full analysis mapping as returned, for callers
	// that want fields beyond the counts.
	Details map[string]any
}

// DecodeAnalysis interprets the mapping returned by the analyze entry
// point. The counts are optional in older pipeline builds and default
// to zero.
func DecodeAnalysis(v any) (Analysis, error) {
	details, ok := v.(map[string]any)
	if !ok {
		return Analysis{}, errors.BadShape(
			fmt.Sprintf("analysis result is %s, want mapping", describe(v)))
	}
	a := Analysis{Details: details}
	if n, ok := asInt(details["word_count"]); ok {
		a.WordCount = n
	}
	if n, ok := asInt(details["entity_count"]); ok {
		a.EntityCount = n
	}
	return a, nil
}

// decodeTimings converts a timings mapping with numeric values.
func decodeTimings(v any) (map[string]float64, error) {
	switch m := v.(type) {
	case map[string]float64:
		return m, nil
	case map[string]any:
		timings := make(map[string]float64, len(m))
		for phase, value := range m {
			f, ok := asFloat(value)
			if !ok {
				return nil, errors.BadShape(
					fmt.Sprintf("timing for %q is %s, want number", phase, describe(value)))
			}
			timings[phase] = f
		}
		return timings, nil
	case nil:
		return nil, nil
	default:
		return nil, errors.BadShape(
			fmt.Sprintf("pipeline timings is %s, want mapping", describe(v)))
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asOptionalString(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func asOptionalMap(v any) (map[string]any, bool) {
	if v == nil {
		return nil, true
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// describe names a decoded value for error messages: its dynamic type,
// or "nil" for absent values.
func describe(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
