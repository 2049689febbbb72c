package progress

import (
	"math"
	"strings"
)

// Processing phase identifiers reported by the pipeline.
const (
	PhasePreflight        = "preflight"
	PhaseRuleDetection    = "rule_detection"
	PhaseDocumentAnalysis = "document_analysis"
	PhaseLLMExtraction    = "llm_extraction"
	PhaseValidation       = "validation"
	PhaseMerging          = "merging"
	PhaseTrackChanges     = "track_changes"
	PhaseComplete         = "complete"
)

var displayNames = map[string]string{
	PhasePreflight:        "Loading Document",
	PhaseRuleDetection:    "Detecting Structured Data",
	PhaseDocumentAnalysis: "Analyzing Document",
	PhaseLLMExtraction:    "AI Entity Extraction",
	PhaseValidation:       "Validating Entities",
	PhaseMerging:          "Merging & Clustering",
	PhaseTrackChanges:     "Generating Track Changes",
	PhaseComplete:         "Complete",
}

// DisplayName returns the human-readable name for a phase identifier.
// Unknown identifiers are title-cased with underscores spaced, matching
// the pipeline's own fallback.
func DisplayName(phase string) string {
	if name, ok := displayNames[phase]; ok {
		return name
	}
	words := strings.Split(phase, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Event is one progress report. Fields the producing callback shape does
// not carry hold their absent sentinel: NaN for fractions and second
// counts, 0 for chunk ordinals, "" for strings. Use the constructors; the
// zero value wrongly reports zero progress.
type Event struct {
	// Phase is the machine-readable phase identifier, "" when the
	// producer reported none.
	Phase string

	// PhaseName is the human-readable phase name.
	PhaseName string

	// PhaseProgress is the fraction of the current phase completed,
	// in [0, 1]. NaN when unreported.
	PhaseProgress float64

	// OverallProgress is the fraction of the whole job completed,
	// in [0, 1]. NaN when unreported.
	OverallProgress float64

	// Chunk and TotalChunks describe triple-shaped reports. Zero when
	// unreported.
	Chunk       int
	TotalChunks int

	// EstimatedRemaining and Elapsed are wall-clock seconds. NaN when
	// unreported.
	EstimatedRemaining float64
	Elapsed            float64

	// Message is free-form text, "" when absent.
	Message string
}

// ChunkEvent builds an Event from a (chunk, total, message) triple.
func ChunkEvent(chunk, total int, message string) Event {
	return Event{
		PhaseProgress:      math.NaN(),
		OverallProgress:    math.NaN(),
		Chunk:              chunk,
		TotalChunks:        total,
		EstimatedRemaining: math.NaN(),
		Elapsed:            math.NaN(),
		Message:            message,
	}
}

// PhaseEvent builds a rich Event for phase with the given fractional
// progress values. The display name is derived from the identifier.
func PhaseEvent(phase string, phaseProgress, overallProgress float64, message string) Event {
	return Event{
		Phase:              phase,
		PhaseName:          DisplayName(phase),
		PhaseProgress:      phaseProgress,
		OverallProgress:    overallProgress,
		EstimatedRemaining: math.NaN(),
		Elapsed:            math.NaN(),
		Message:            message,
	}
}

// HasPhaseProgress reports whether the producer supplied a phase fraction.
func (e Event) HasPhaseProgress() bool {
	return !math.IsNaN(e.PhaseProgress)
}

// HasOverallProgress reports whether the producer supplied an overall fraction.
func (e Event) HasOverallProgress() bool {
	return !math.IsNaN(e.OverallProgress)
}

// HasChunks reports whether the producer supplied chunk counts.
func (e Event) HasChunks() bool {
	return e.TotalChunks > 0
}

// Fraction returns the best available completion fraction for display:
// overall progress, else phase progress, else chunk ratio, else NaN.
func (e Event) Fraction() float64 {
	switch {
	case e.HasOverallProgress():
		return e.OverallProgress
	case e.HasPhaseProgress():
		return e.PhaseProgress
	case e.HasChunks():
		return float64(e.Chunk) / float64(e.TotalChunks)
	default:
		return math.NaN()
	}
}
