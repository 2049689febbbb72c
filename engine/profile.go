package engine

import "github.com/marcut/runtime-bridge/locator"

// Profile declares everything runtime-flavor-specific: which entry points
// must exist, how the process environment is prepared, what gets imported
// up front, and where the pipeline lives. The engine itself stays
// flavor-agnostic; swapping the embedded runtime means writing a Profile.
type Profile struct {
	// Name identifies the flavor in logs.
	Name string

	// Layout describes the on-disk bundle shape for the locator.
	Layout locator.Layout

	// Symbol names for the core control surface. All are required; a
	// missing one fails loading with the full missing list.
	InitCheckSymbol   string // reports whether the runtime is initialized
	InitSymbol        string // initializes the runtime
	LockAcquireSymbol string // acquires the runtime lock for this thread
	LockReleaseSymbol string // releases the runtime lock
	InterruptSymbol   string // flags the interrupt exception, any thread
	SignalCheckSymbol string // surfaces pending interrupts as an error
	ErrorClearSymbol  string // clears pending error state

	// EnvUnset lists environment variables removed before initialization
	// so host or user configuration cannot leak into the runtime.
	EnvUnset []string

	// EnvExtra is set as-is before initialization, on top of the home
	// and search-path variables derived from the locator config.
	EnvExtra map[string]string

	// HomeEnv and PathEnv name the variables carrying the runtime home
	// and the joined module search paths.
	HomeEnv string
	PathEnv string

	// TempDirPrefix names the owned temp directory the runtime's TMPDIR
	// is redirected into.
	TempDirPrefix string

	// SmokeModule is imported right after initialization to prove the
	// standard library is reachable.
	SmokeModule string

	// WarmUpModules are imported during a job's warm-up phase, heaviest
	// dependencies first, so import cost lands in a supervised phase
	// instead of the middle of processing.
	WarmUpModules []string

	// PipelineModule and the function names bind the pipeline contract.
	PipelineModule  string
	RedactFunction  string
	ScrubFunction   string
	AnalyzeFunction string

	// Environment variable names the pipeline reads its side channel
	// configuration from.
	MetadataArgsEnv string
	ScrubReportEnv  string
	CollaboratorEnv string

	// InterruptExceptionType is the foreign exception type raised by the
	// interrupt mechanism, reclassified as cancellation.
	InterruptExceptionType string
}

// RequiredSymbols returns the core entry-point names in validation order.
func (p Profile) RequiredSymbols() []string {
	return []string{
		p.InitCheckSymbol,
		p.InitSymbol,
		p.LockAcquireSymbol,
		p.LockReleaseSymbol,
		p.InterruptSymbol,
		p.SignalCheckSymbol,
		p.ErrorClearSymbol,
	}
}

// DefaultProfile returns the CPython profile the product ships with.
func DefaultProfile() Profile {
	return Profile{
		Name:   "cpython",
		Layout: locator.DefaultLayout(),

		InitCheckSymbol:   "Py_IsInitialized",
		InitSymbol:        "Py_InitializeEx",
		LockAcquireSymbol: "PyGILState_Ensure",
		LockReleaseSymbol: "PyGILState_Release",
		InterruptSymbol:   "PyErr_SetInterrupt",
		SignalCheckSymbol: "PyErr_CheckSignals",
		ErrorClearSymbol:  "PyErr_Clear",

		EnvUnset: []string{
			"PYTHONSTARTUP",
			"PYTHONEXECUTABLE",
			"PYTHONOPTIMIZE",
			"PYTHONDEBUG",
			"PYTHONINSPECT",
			"PYTHONUSERBASE",
		},
		EnvExtra: map[string]string{
			"PYTHONDONTWRITEBYTECODE": "1",
			"PYTHONNOUSERSITE":        "1",
			"PYTHONIOENCODING":        "utf-8",
		},
		HomeEnv: "PYTHONHOME",
		PathEnv: "PYTHONPATH",

		TempDirPrefix: "marcut-runtime",
		SmokeModule:   "sys",

		WarmUpModules: []string{
			"json",
			"re",
			"zipfile",
			"regex",
			"docx",
			"requests",
		},

		PipelineModule:  "marcut.pipeline",
		RedactFunction:  "run_redaction",
		ScrubFunction:   "scrub_metadata_only",
		AnalyzeFunction: "analyze_document",

		MetadataArgsEnv: "MARCUT_METADATA_ARGS",
		ScrubReportEnv:  "MARCUT_SCRUB_REPORT_PATH",
		CollaboratorEnv: "OLLAMA_HOST",

		InterruptExceptionType: "KeyboardInterrupt",
	}
}
