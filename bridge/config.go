package bridge

import (
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes every configuration variable the bridge reads.
const envPrefix = "MARCUT_"

// Operation names a job flavor with its own timeout budget.
type Operation string

const (
	OpRedaction Operation = "redaction"
	OpScrub     Operation = "scrub"
	OpAnalyze   Operation = "analyze"
)

// OpTimeouts is one operation's resolved budget. Step bounds a single
// phase, Total bounds the whole job. Disabled turns both off.
type OpTimeouts struct {
	Step     time.Duration
	Total    time.Duration
	Disabled bool
}

// TimeoutConfig carries the per-operation budgets, resolved once and
// immutable afterwards. Trace enables verbose phase-configuration
// logging at job start.
type TimeoutConfig struct {
	Redaction OpTimeouts
	Scrub     OpTimeouts
	Analyze   OpTimeouts
	Trace     bool
}

// For returns the budget for op. Unknown operations get the redaction
// budget, the widest one.
func (c TimeoutConfig) For(op Operation) OpTimeouts {
	switch op {
	case OpScrub:
		return c.Scrub
	case OpAnalyze:
		return c.Analyze
	default:
		return c.Redaction
	}
}

// DefaultTimeouts returns the hardcoded per-operation budgets used when
// no override is present.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Redaction: OpTimeouts{Step: 300 * time.Second, Total: 1800 * time.Second},
		Scrub:     OpTimeouts{Step: 60 * time.Second, Total: 300 * time.Second},
		Analyze:   OpTimeouts{Step: 120 * time.Second, Total: 600 * time.Second},
	}
}

// LoadTimeouts resolves the timeout configuration from the process
// environment:
//
//	MARCUT_<OP>_STEP_TIMEOUT    float seconds, ignored unless positive
//	MARCUT_<OP>_TOTAL_TIMEOUT   float seconds, ignored unless positive
//	MARCUT_DISABLE_PY_TIMEOUTS  disables every operation's timers
//	MARCUT_DISABLE_<OP>_TIMEOUT disables one operation's timers
//	MARCUT_TRACE_TIMEOUTS       verbose phase-configuration logging
//
// where <OP> is REDACTION, SCRUB or ANALYZE.
func LoadTimeouts() TimeoutConfig {
	return LoadTimeoutsFrom(env.Provider(envPrefix, ".", envKeyToPath))
}

// LoadTimeoutsFrom resolves the configuration from any koanf provider.
// Tests pass an in-memory confmap instead of mutating the real
// environment. Unparsable or non-positive values keep the default.
func LoadTimeoutsFrom(provider koanf.Provider) TimeoutConfig {
	cfg := DefaultTimeouts()

	k := koanf.New(".")
	if err := k.Load(provider, nil); err != nil {
		return cfg
	}

	globalDisable := boolValue(k, "disable.py.timeouts")
	cfg.Trace = boolValue(k, "trace.timeouts")
	cfg.Redaction = opTimeouts(k, OpRedaction, cfg.Redaction, globalDisable)
	cfg.Scrub = opTimeouts(k, OpScrub, cfg.Scrub, globalDisable)
	cfg.Analyze = opTimeouts(k, OpAnalyze, cfg.Analyze, globalDisable)
	return cfg
}

func opTimeouts(k *koanf.Koanf, op Operation, def OpTimeouts, globalDisable bool) OpTimeouts {
	out := def
	if d, ok := seconds(k, string(op)+".step.timeout"); ok {
		out.Step = d
	}
	if d, ok := seconds(k, string(op)+".total.timeout"); ok {
		out.Total = d
	}
	if globalDisable || boolValue(k, "disable."+string(op)+".timeout") {
		out.Disabled = true
	}
	return out
}

// seconds parses a float-seconds value. Empty, unparsable and
// non-positive values report false so the default survives.
func seconds(k *koanf.Koanf, path string) (time.Duration, bool) {
	raw := strings.TrimSpace(k.String(path))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

func boolValue(k *koanf.Koanf, path string) bool {
	switch strings.ToLower(strings.TrimSpace(k.String(path))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// envKeyToPath turns MARCUT_REDACTION_STEP_TIMEOUT into
// redaction.step.timeout.
func envKeyToPath(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}
