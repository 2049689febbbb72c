package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/marcut/runtime-bridge/abi"
	"github.com/marcut/runtime-bridge/errors"
	"github.com/marcut/runtime-bridge/locator"
)

// initTimeout bounds the whole initialization pass, including time spent
// queued behind other work on the runtime thread. Initialization that
// cannot finish in this window fails instead of hanging the first job.
const initTimeout = 30 * time.Second

// Options configure an Engine. The zero value embeds the default profile
// with production loading; tests override Source or API.
type Options struct {
	// Profile selects the runtime flavor. Nil means DefaultProfile.
	Profile *Profile

	// Locator controls where the runtime is searched for.
	Locator locator.Options

	// Config skips on-disk location entirely when set.
	Config *locator.Config

	// Source overrides how symbols are resolved. Defaults to loading
	// the located library.
	Source abi.SymbolSource

	// API overrides the whole call surface, bypassing loading and
	// symbol validation. Used with Fake in tests.
	API API

	// TempDir overrides the owned temp directory the runtime's TMPDIR
	// is redirected into.
	TempDir string
}

// Engine owns the embedded runtime's lifecycle: location, loading,
// validation, one-time initialization, and the lock discipline around
// every foreign call. All foreign work funnels through its Worker.
type Engine struct {
	profile Profile
	opts    Options
	worker  *Worker

	initialized atomic.Bool

	// Written on the worker during initialization, then read-only.
	config   *locator.Config
	resolver *abi.Resolver
	api      API
	tempDir  string
}

// New creates an Engine and starts its runtime thread. The runtime is
// not touched until Initialize or the first locked call.
func New(opts Options) *Engine {
	profile := DefaultProfile()
	if opts.Profile != nil {
		profile = *opts.Profile
	}
	return &Engine{
		profile: profile,
		opts:    opts,
		worker:  NewWorker(),
	}
}

// Profile returns the runtime flavor the engine was built with.
func (e *Engine) Profile() Profile {
	return e.profile
}

// Config returns the locator result. Nil before initialization.
func (e *Engine) Config() *locator.Config {
	if !e.initialized.Load() {
		return nil
	}
	return e.config
}

// Initialized reports whether the runtime is ready for locked calls.
func (e *Engine) Initialized() bool {
	return e.initialized.Load()
}

// Initialize prepares the runtime end to end: environment isolation,
// on-disk location, library loading, symbol validation, interpreter
// initialization, and a smoke import. It is idempotent and safe to call
// from any goroutine; concurrent callers serialize through the runtime
// thread and share one deadline.
func (e *Engine) Initialize() error {
	if e.initialized.Load() {
		return nil
	}

	timer := time.NewTimer(initTimeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := Perform(e.worker, func() (struct{}, error) {
			return struct{}{}, e.initOnWorker()
		})
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.InitFailed("initialization deadline of 30s exceeded", nil)
	}
}

// initOnWorker runs the initialization steps on the runtime thread.
// Later arrivals observe the initialized flag and return immediately.
func (e *Engine) initOnWorker() error {
	if e.initialized.Load() {
		return nil
	}
	log := Logger()
	start := time.Now()

	if err := e.prepareTempDir(); err != nil {
		return errors.InitFailed("temp directory setup failed", err)
	}
	for _, key := range e.profile.EnvUnset {
		os.Unsetenv(key)
	}

	cfg := e.opts.Config
	if cfg == nil {
		located, err := locator.Locate(e.profile.Layout, e.opts.Locator)
		if err != nil {
			return err
		}
		cfg = located
	}
	e.config = cfg
	log.Info("runtime located",
		zap.String("home", cfg.Home),
		zap.String("version", cfg.Version),
		zap.String("library", cfg.LibraryPath))

	os.Setenv(e.profile.HomeEnv, cfg.Home)
	os.Setenv(e.profile.PathEnv, strings.Join(cfg.SearchPaths, string(os.PathListSeparator)))
	for key, value := range e.profile.EnvExtra {
		os.Setenv(key, value)
	}
	os.Setenv("TMPDIR", e.tempDir)

	api := e.opts.API
	if api == nil {
		source := e.opts.Source
		if source == nil {
			source = abi.NewDylibSource(cfg.LibraryPath)
		}
		e.resolver = abi.NewResolver(source)
		built, err := NewDynAPI(e.resolver, e.profile)
		if err != nil {
			return err
		}
		api = built
	}
	e.api = api

	if !api.Initialized() {
		if err := api.Initialize(); err != nil {
			return errors.InitFailed("runtime initialization failed", err)
		}
	}

	sess, release, err := api.Acquire()
	if err != nil {
		return errors.InitFailed("lock acquire failed", err)
	}
	err = sess.Import(e.profile.SmokeModule)
	release()
	if err != nil {
		return errors.InitFailed("standard library unreachable", err)
	}

	e.initialized.Store(true)
	log.Info("runtime initialized",
		zap.String("profile", e.profile.Name),
		zap.Duration("took", time.Since(start)))
	return nil
}

// prepareTempDir redirects the runtime's scratch space into a directory
// this process owns, wiping whatever a previous run left behind.
func (e *Engine) prepareTempDir() error {
	dir := e.opts.TempDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), e.profile.TempDirPrefix)
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	e.tempDir = dir
	return nil
}

// Locked runs body on the runtime thread with the lock held, initializing
// the runtime first if this is the first use. The lock is released when
// body returns, regardless of outcome.
func Locked[T any](e *Engine, body func(Session) (T, error)) (T, error) {
	var zero T
	if err := e.Initialize(); err != nil {
		return zero, err
	}
	return Perform(e.worker, func() (T, error) {
		sess, release, err := e.api.Acquire()
		if err != nil {
			return zero, errors.CallFailed("lock acquire failed", err)
		}
		defer release()
		return body(sess)
	})
}

// WithLock is Locked for bodies without a result.
func (e *Engine) WithLock(body func(Session) error) error {
	_, err := Locked(e, func(s Session) (struct{}, error) {
		return struct{}{}, body(s)
	})
	return err
}

// ImportModules imports each named module in order under one lock
// acquisition, logging per-module timings.
func (e *Engine) ImportModules(names ...string) error {
	return e.WithLock(func(s Session) error {
		for _, name := range names {
			start := time.Now()
			if err := s.Import(name); err != nil {
				return err
			}
			Logger().Debug("module imported",
				zap.String("module", name),
				zap.Duration("took", time.Since(start)))
		}
		return nil
	})
}

// Interrupt asks the runtime to raise its interrupt exception inside
// whatever is currently running. Safe from any goroutine; a no-op until
// the runtime is initialized, since there is nothing to interrupt yet.
func (e *Engine) Interrupt() {
	if !e.initialized.Load() {
		return
	}
	Logger().Info("runtime interrupt requested")
	e.api.Interrupt()
}

// Close stops the runtime thread and releases engine-owned resources.
// Queued work is dropped; the running task, if any, completes first. The
// interpreter itself stays initialized, see the package documentation.
func (e *Engine) Close() error {
	e.worker.Stop()

	var err error
	if e.api != nil {
		err = multierr.Append(err, e.api.Close())
	}
	if e.resolver != nil {
		err = multierr.Append(err, e.resolver.Close())
	}
	if e.tempDir != "" {
		err = multierr.Append(err, os.RemoveAll(e.tempDir))
	}
	return err
}
