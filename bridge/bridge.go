package bridge

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcut/runtime-bridge/engine"
	"github.com/marcut/runtime-bridge/errors"
	"github.com/marcut/runtime-bridge/pipeline"
	"github.com/marcut/runtime-bridge/progress"
)

// Options configure a Bridge.
type Options struct {
	// Logger receives bridge-level events. Nil means no logging.
	Logger *zap.Logger

	// Engine configures the embedded runtime.
	Engine engine.Options

	// Timeouts overrides the environment-resolved budgets.
	Timeouts *TimeoutConfig

	// CollaboratorURL overrides where the pipeline reaches its model
	// server. Empty falls back to the environment, then the default.
	CollaboratorURL string

	// AllowRemoteCollaborator lifts the loopback clamp on the
	// collaborator address.
	AllowRemoteCollaborator bool
}

// Bridge runs supervised jobs against the embedded runtime. Construction
// initializes the runtime end to end and fails hard; a returned Bridge
// is fully usable. Jobs after that fail individually, never fatally.
type Bridge struct {
	log       *zap.Logger
	eng       *engine.Engine
	canceller *Canceller
	timeouts  TimeoutConfig
	opts      Options

	// mu guards the active generation. The step-timer token check and
	// the cancellation it guards run under it, so a stale timer racing
	// a job boundary observes the new generation and does nothing.
	mu         sync.Mutex
	generation uuid.UUID

	// jobMu serializes whole jobs.
	jobMu sync.Mutex
}

// New builds the bridge: locates the runtime, loads and validates its
// library, initializes it, and pre-imports the warm-up modules so
// cold-import cost is paid here rather than inside the first job.
func New(opts Options) (*Bridge, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeouts := LoadTimeouts()
	if opts.Timeouts != nil {
		timeouts = *opts.Timeouts
	}

	eng := engine.New(opts.Engine)
	if err := eng.Initialize(); err != nil {
		eng.Close()
		return nil, err
	}

	b := &Bridge{
		log:       log,
		eng:       eng,
		canceller: NewCanceller(log, eng),
		timeouts:  timeouts,
		opts:      opts,
	}

	start := time.Now()
	if err := eng.ImportModules(eng.Profile().WarmUpModules...); err != nil {
		log.Warn("warm-up imports incomplete", zap.Error(err))
	} else {
		log.Info("warm-up imports done", zap.Duration("took", time.Since(start)))
	}
	return b, nil
}

// Engine exposes the embedded runtime engine.
func (b *Bridge) Engine() *engine.Engine {
	return b.eng
}

// Cancel requests cancellation of the current operation.
func (b *Bridge) Cancel() {
	b.canceller.Request("user")
}

// Close stops the runtime thread and releases engine resources. The
// active job, if any, fails its next phase with a stopped error.
func (b *Bridge) Close() error {
	b.log.Info("bridge closing")
	return b.eng.Close()
}

// cancelIfCurrent is the step-timer body. It acts only while the
// generation it was minted for is still active; the check and the
// cancellation share one critical section.
func (b *Bridge) cancelIfCurrent(token uuid.UUID, phase string, limit time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != token {
		b.log.Debug("stale phase timer ignored", zap.String("phase", phase))
		return
	}
	b.log.Warn("phase exceeded step budget, interrupting",
		zap.String("phase", phase),
		zap.Duration("limit", limit))
	b.canceller.Request("timeout: " + phase)
}

// RunRedaction runs a redaction job to completion.
func (b *Bridge) RunRedaction(req pipeline.Request) RunOutcome {
	_, h := b.SubmitRedaction(req, nil)
	return h.Wait()
}

// SubmitRedaction queues a redaction job and returns its progress
// stream and completion handle. The optional cancelled predicate is
// polled at every cancellation checkpoint on top of the bridge's own
// flag, and is dropped when the job ends.
func (b *Bridge) SubmitRedaction(req pipeline.Request, cancelled func() bool) (*progress.Stream, *Handle) {
	stream := progress.NewStream()
	h := b.startJob(OpRedaction, stream, cancelled, func(j *job) RunOutcome {
		return b.runRedaction(j, req)
	})
	return stream, h
}

func (b *Bridge) runRedaction(j *job, req pipeline.Request) RunOutcome {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return Classify(pipeline.Result{}, err)
	}
	prof := b.eng.Profile()

	if _, err := runPhase(b, j, "env", func(s engine.Session) (struct{}, error) {
		return struct{}{}, b.exportCollaborator()
	}); err != nil {
		return Classify(pipeline.Result{}, err)
	}

	if _, err := runPhase(b, j, "imports", func(s engine.Session) (struct{}, error) {
		for _, name := range prof.WarmUpModules {
			if err := s.Import(name); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	}); err != nil {
		return Classify(pipeline.Result{}, err)
	}

	if _, err := runPhase(b, j, "pipeline", func(s engine.Session) (struct{}, error) {
		return struct{}{}, s.Import(prof.PipelineModule)
	}); err != nil {
		return Classify(pipeline.Result{}, err)
	}

	res, err := runPhase(b, j, "process", func(s engine.Session) (pipeline.Result, error) {
		value, err := s.Call(prof.PipelineModule, prof.RedactFunction, req.Kwargs(), b.progressSink(j))
		if err != nil {
			return pipeline.Result{}, err
		}
		return pipeline.DecodeResult(value)
	})
	return Classify(res, err)
}

// ScrubMetadata runs a metadata-only scrub to completion and returns
// the scrubber's (ok, message, report) verdict alongside the outcome.
func (b *Bridge) ScrubMetadata(req pipeline.ScrubRequest) (pipeline.ScrubResult, RunOutcome) {
	var result pipeline.ScrubResult
	stream := progress.NewStream()
	h := b.startJob(OpScrub, stream, nil, func(j *job) RunOutcome {
		var outcome RunOutcome
		result, outcome = b.runScrub(j, req)
		return outcome
	})
	return result, h.Wait()
}

func (b *Bridge) runScrub(j *job, req pipeline.ScrubRequest) (pipeline.ScrubResult, RunOutcome) {
	if err := req.Validate(); err != nil {
		return pipeline.ScrubResult{}, Classify(pipeline.Result{}, err)
	}
	prof := b.eng.Profile()

	if _, err := runPhase(b, j, "env", func(s engine.Session) (struct{}, error) {
		setOrUnset(prof.MetadataArgsEnv, req.MetadataArgs)
		setOrUnset(prof.ScrubReportEnv, req.ReportPath)
		return struct{}{}, nil
	}); err != nil {
		return pipeline.ScrubResult{}, Classify(pipeline.Result{}, err)
	}

	if _, err := runPhase(b, j, "pipeline", func(s engine.Session) (struct{}, error) {
		return struct{}{}, s.Import(prof.PipelineModule)
	}); err != nil {
		return pipeline.ScrubResult{}, Classify(pipeline.Result{}, err)
	}

	res, err := runPhase(b, j, "process", func(s engine.Session) (pipeline.ScrubResult, error) {
		value, err := s.Call(prof.PipelineModule, prof.ScrubFunction, req.Kwargs(), nil)
		if err != nil {
			return pipeline.ScrubResult{}, err
		}
		return pipeline.DecodeScrub(value)
	})
	if err != nil {
		return pipeline.ScrubResult{}, Classify(pipeline.Result{}, err)
	}
	if !res.OK {
		detail := res.Message
		if detail == "" {
			detail = "metadata scrub failed"
		}
		return res, RunOutcome{Status: StatusFailure, Err: errors.CallFailed(detail, nil)}
	}
	return res, RunOutcome{Status: StatusSuccess}
}

// AnalyzeDocument runs a document analysis to completion.
func (b *Bridge) AnalyzeDocument(req pipeline.AnalyzeRequest) (pipeline.Analysis, RunOutcome) {
	var result pipeline.Analysis
	stream := progress.NewStream()
	h := b.startJob(OpAnalyze, stream, nil, func(j *job) RunOutcome {
		var outcome RunOutcome
		result, outcome = b.runAnalyze(j, req)
		return outcome
	})
	return result, h.Wait()
}

func (b *Bridge) runAnalyze(j *job, req pipeline.AnalyzeRequest) (pipeline.Analysis, RunOutcome) {
	if err := req.Validate(); err != nil {
		return pipeline.Analysis{}, Classify(pipeline.Result{}, err)
	}
	prof := b.eng.Profile()

	if _, err := runPhase(b, j, "env", func(s engine.Session) (struct{}, error) {
		return struct{}{}, nil
	}); err != nil {
		return pipeline.Analysis{}, Classify(pipeline.Result{}, err)
	}

	if _, err := runPhase(b, j, "pipeline", func(s engine.Session) (struct{}, error) {
		return struct{}{}, s.Import(prof.PipelineModule)
	}); err != nil {
		return pipeline.Analysis{}, Classify(pipeline.Result{}, err)
	}

	res, err := runPhase(b, j, "analyze", func(s engine.Session) (pipeline.Analysis, error) {
		value, err := s.Call(prof.PipelineModule, prof.AnalyzeFunction, req.Kwargs(), nil)
		if err != nil {
			return pipeline.Analysis{}, err
		}
		return pipeline.DecodeAnalysis(value)
	})
	if err != nil {
		return pipeline.Analysis{}, Classify(pipeline.Result{}, err)
	}
	return res, RunOutcome{Status: StatusSuccess}
}

// exportCollaborator points the pipeline's model-server variable at the
// normalized collaborator address before processing starts.
func (b *Bridge) exportCollaborator() error {
	base := pipeline.NormalizeOllamaBaseURL(b.opts.CollaboratorURL, !b.opts.AllowRemoteCollaborator)
	hostArg := pipeline.OllamaHostArg(base)
	b.log.Debug("collaborator resolved", zap.String("host", hostArg))
	return os.Setenv(b.eng.Profile().CollaboratorEnv, hostArg)
}

func setOrUnset(key, value string) {
	if value == "" {
		os.Unsetenv(key)
		return
	}
	os.Setenv(key, value)
}
