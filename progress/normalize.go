package progress

import (
	"fmt"
	"math"

	"github.com/marcut/runtime-bridge/errors"
)

// Normalize converts the decoded arguments of one progress callback
// invocation into an Event.
//
// Two shapes are accepted, distinguished by argument count the same way
// the pipeline distinguishes callback signatures: three positional
// arguments form a (chunk, total, message) triple; a single argument is a
// rich update object decoded to a map and must carry at least a phase
// identifier. Anything else is a shape error.
func Normalize(args []any) (Event, error) {
	switch len(args) {
	case 3:
		return normalizeTriple(args)
	case 1:
		return normalizeRich(args[0])
	default:
		return Event{}, errors.BadShape(
			fmt.Sprintf("progress callback with %d arguments", len(args)))
	}
}

func normalizeTriple(args []any) (Event, error) {
	chunk, ok := asInt(args[0])
	if !ok {
		return Event{}, errors.BadShape(
			fmt.Sprintf("progress chunk is %T, want integer", args[0]))
	}
	total, ok := asInt(args[1])
	if !ok {
		return Event{}, errors.BadShape(
			fmt.Sprintf("progress total is %T, want integer", args[1]))
	}
	message, ok := asString(args[2])
	if !ok {
		return Event{}, errors.BadShape(
			fmt.Sprintf("progress message is %T, want string", args[2]))
	}
	return ChunkEvent(chunk, total, message), nil
}

func normalizeRich(arg any) (Event, error) {
	fields, ok := arg.(map[string]any)
	if !ok {
		return Event{}, errors.BadShape(
			fmt.Sprintf("progress update is %T, want mapping", arg))
	}
	phase, ok := asString(fields["phase"])
	if !ok || phase == "" {
		return Event{}, errors.BadShape("progress update without phase identifier")
	}

	e := Event{
		Phase:              phase,
		PhaseName:          DisplayName(phase),
		PhaseProgress:      floatField(fields, "phase_progress"),
		OverallProgress:    floatField(fields, "overall_progress"),
		EstimatedRemaining: floatField(fields, "estimated_remaining"),
		Elapsed:            floatField(fields, "elapsed_time"),
	}
	if name, ok := asString(fields["phase_name"]); ok && name != "" {
		e.PhaseName = name
	}
	if message, ok := asString(fields["message"]); ok {
		e.Message = message
	}
	return e, nil
}

// floatField reads a fractional field, NaN when absent or ill-typed.
func floatField(fields map[string]any, key string) float64 {
	if f, ok := asFloat(fields[key]); ok {
		return f
	}
	return math.NaN()
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
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

// asString accepts a string or nil; nil reads as the empty string, the
// way the pipeline passes an absent message.
func asString(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}
