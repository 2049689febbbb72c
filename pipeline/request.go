package pipeline

import (
	"fmt"

	"github.com/marcut/runtime-bridge/errors"
)

// Mode selects the redaction strategy.
type Mode string

const (
	// ModeRules applies structured-data rules only, no model calls.
	ModeRules Mode = "rules"
	// ModeBalanced combines rules with a reduced model pass.
	ModeBalanced Mode = "balanced"
	// ModeEnhanced is the full rules + model pipeline.
	ModeEnhanced Mode = "enhanced"
)

// Defaults for redaction requests, matching the pipeline's own CLI.
const (
	DefaultMode        = ModeEnhanced
	DefaultModelID     = "llama3.1:8b"
	DefaultChunkTokens = 1000
	DefaultOverlap     = 150
	DefaultTemperature = 0.1
	DefaultSeed        = 42
)

// Request describes one redaction run.
type Request struct {
	InputPath  string
	OutputPath string
	ReportPath string

	Mode        Mode
	ModelID     string
	ChunkTokens int
	Overlap     int
	Temperature float64
	Seed        int

	// Debug enables the pipeline's own diagnostic output.
	Debug bool

	// Timing asks the pipeline for its per-phase timing breakdown.
	Timing bool
}

// WithDefaults returns a copy with unset fields filled from the defaults.
// Zero values for numeric fields mean unset; a zero seed is still the
// default seed, which is what the pipeline ships with.
func (r Request) WithDefaults() Request {
	if r.Mode == "" {
		r.Mode = DefaultMode
	}
	if r.ModelID == "" {
		r.ModelID = DefaultModelID
	}
	if r.ChunkTokens == 0 {
		r.ChunkTokens = DefaultChunkTokens
	}
	if r.Overlap == 0 {
		r.Overlap = DefaultOverlap
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.Seed == 0 {
		r.Seed = DefaultSeed
	}
	return r
}

// Validate checks the request before any foreign work starts.
func (r Request) Validate() error {
	if r.InputPath == "" {
		return errors.Invalid("input path is required")
	}
	if r.OutputPath == "" {
		return errors.Invalid("output path is required")
	}
	switch r.Mode {
	case ModeRules, ModeBalanced, ModeEnhanced:
	default:
		return errors.Invalid(fmt.Sprintf("unknown mode %q", r.Mode))
	}
	if r.ChunkTokens <= 0 {
		return errors.Invalid("chunk tokens must be positive")
	}
	if r.Overlap < 0 || r.Overlap >= r.ChunkTokens {
		return errors.Invalid("overlap must be non-negative and smaller than chunk tokens")
	}
	return nil
}

// Kwargs produces the keyword arguments for the pipeline entry point.
// The progress callback is attached separately by the caller.
func (r Request) Kwargs() map[string]any {
	return map[string]any{
		"input_path":   r.InputPath,
		"output_path":  r.OutputPath,
		"report_path":  r.ReportPath,
		"mode":         string(r.Mode),
		"model_id":     r.ModelID,
		"chunk_tokens": r.ChunkTokens,
		"overlap":      r.Overlap,
		"temperature":  r.Temperature,
		"seed":         r.Seed,
		"debug":        r.Debug,
		"timing":       r.Timing,
	}
}

// ScrubRequest describes a metadata-only scrub, which runs without rules
// or model involvement.
type ScrubRequest struct {
	InputPath  string
	OutputPath string

	// MetadataArgs is the space-separated cleaning settings string the
	// scrubber reads from its environment.
	MetadataArgs string

	// ReportPath, when set, is where the scrubber writes its report.
	ReportPath string

	Debug bool
}

// Validate checks the scrub request.
func (r ScrubRequest) Validate() error {
	if r.InputPath == "" {
		return errors.Invalid("input path is required")
	}
	if r.OutputPath == "" {
		return errors.Invalid("output path is required")
	}
	return nil
}

// Kwargs produces the keyword arguments for the scrub entry point.
func (r ScrubRequest) Kwargs() map[string]any {
	return map[string]any{
		"input_path":  r.InputPath,
		"output_path": r.OutputPath,
		"debug":       r.Debug,
	}
}

// AnalyzeRequest describes a document analysis pass.
type AnalyzeRequest struct {
	InputPath string
	Debug     bool
}

// Validate checks the analyze request.
func (r AnalyzeRequest) Validate() error {
	if r.InputPath == "" {
		return errors.Invalid("input path is required")
	}
	return nil
}

// Kwargs produces the keyword arguments for the analyze entry point.
func (r AnalyzeRequest) Kwargs() map[string]any {
	return map[string]any{
		"input_path": r.InputPath,
		"debug":      r.Debug,
	}
}
