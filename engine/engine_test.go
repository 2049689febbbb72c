package engine

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcut/runtime-bridge/abi"
	"github.com/marcut/runtime-bridge/errors"
	"github.com/marcut/runtime-bridge/locator"
)

// testProfile is the default profile with test-only environment variable
// names, so initialization never touches the real interpreter variables.
func testProfile() *Profile {
	p := DefaultProfile()
	p.Name = "fake"
	p.EnvUnset = []string{"MARCUT_TEST_UNSET"}
	p.EnvExtra = map[string]string{"MARCUT_TEST_EXTRA": "1"}
	p.HomeEnv = "MARCUT_TEST_HOME"
	p.PathEnv = "MARCUT_TEST_PATH"
	return &p
}

func testConfig() *locator.Config {
	return &locator.Config{
		LibraryPath: "/fake/Python.framework/Versions/3.10/Python",
		Home:        "/fake/Python.framework/Versions/3.10",
		Version:     "3.10",
		SearchPaths: []string{"/fake/site", "/fake/lib/python3.10"},
	}
}

// isolateEnv registers restores for every variable initialization mutates.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TMPDIR", os.Getenv("TMPDIR"))
	t.Setenv("MARCUT_TEST_HOME", "")
	t.Setenv("MARCUT_TEST_PATH", "")
	t.Setenv("MARCUT_TEST_EXTRA", "")
	t.Setenv("MARCUT_TEST_UNSET", "leftover")
}

func newTestEngine(t *testing.T, fake *Fake) *Engine {
	t.Helper()
	isolateEnv(t)
	e := New(Options{
		Profile: testProfile(),
		Config:  testConfig(),
		API:     fake,
		TempDir: filepath.Join(t.TempDir(), "scratch"),
	})
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngine_Initialize(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)

	if e.Initialized() {
		t.Fatal("expected engine to start uninitialized")
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Initialized() {
		t.Error("expected engine to report initialized")
	}
	if !fake.Initialized() {
		t.Error("expected runtime Initialize to have been called")
	}

	imports := fake.Imports()
	if len(imports) != 1 || imports[0] != "sys" {
		t.Errorf("expected smoke import of sys, got %v", imports)
	}
	if !fake.Balanced() {
		t.Error("expected smoke import to release the lock")
	}

	cfg := e.Config()
	if cfg == nil || cfg.Home != "/fake/Python.framework/Versions/3.10" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if got := os.Getenv("MARCUT_TEST_HOME"); got != cfg.Home {
		t.Errorf("expected home env %q, got %q", cfg.Home, got)
	}
	wantPath := strings.Join(cfg.SearchPaths, string(os.PathListSeparator))
	if got := os.Getenv("MARCUT_TEST_PATH"); got != wantPath {
		t.Errorf("expected path env %q, got %q", wantPath, got)
	}
	if got := os.Getenv("MARCUT_TEST_EXTRA"); got != "1" {
		t.Errorf("expected extra env to be set, got %q", got)
	}
	if _, ok := os.LookupEnv("MARCUT_TEST_UNSET"); ok {
		t.Error("expected leaking variable to be unset")
	}
	if got := os.Getenv("TMPDIR"); got != e.tempDir {
		t.Errorf("expected TMPDIR %q, got %q", e.tempDir, got)
	}
	if fi, err := os.Stat(e.tempDir); err != nil || !fi.IsDir() {
		t.Errorf("expected owned temp directory to exist: %v", err)
	}
}

func TestEngine_InitializeIsIdempotent(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)

	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if got := fake.Acquires(); got != 1 {
		t.Errorf("expected one smoke-import acquire, got %d", got)
	}
	if got := len(fake.Imports()); got != 1 {
		t.Errorf("expected one import, got %d", got)
	}
}

func TestEngine_InitializeFailure(t *testing.T) {
	fake := NewFake()
	fake.InitErr = stderrors.New("interpreter refused")
	e := newTestEngine(t, fake)

	err := e.Initialize()
	if err == nil {
		t.Fatal("expected an error")
	}
	be, ok := errors.AsError(err)
	if !ok || be.Kind != errors.KindLoadFailed {
		t.Errorf("expected load_failed kind, got %v", err)
	}
	if e.Initialized() {
		t.Error("expected engine to stay uninitialized")
	}
}

func TestEngine_SmokeImportFailure(t *testing.T) {
	fake := NewFake()
	fake.ImportErrs = map[string]error{"sys": stderrors.New("no stdlib")}
	e := newTestEngine(t, fake)

	err := e.Initialize()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "standard library unreachable") {
		t.Errorf("expected smoke failure detail, got %v", err)
	}
	if !fake.Balanced() {
		t.Error("expected lock released despite smoke failure")
	}
	if e.Initialized() {
		t.Error("expected engine to stay uninitialized")
	}
}

func TestEngine_MissingSymbolsFailLoading(t *testing.T) {
	isolateEnv(t)
	profile := testProfile()
	table := abi.NewTable(map[string]abi.Symbol{
		profile.InitCheckSymbol:   1,
		profile.InitSymbol:        2,
		profile.LockAcquireSymbol: 3,
		profile.LockReleaseSymbol: 4,
		profile.ErrorClearSymbol:  5,
	})
	e := New(Options{
		Profile: profile,
		Config:  testConfig(),
		Source:  table,
		TempDir: filepath.Join(t.TempDir(), "scratch"),
	})
	t.Cleanup(func() { e.Close() })

	err := e.Initialize()
	if err == nil {
		t.Fatal("expected an error")
	}
	be, ok := errors.AsError(err)
	if !ok || be.Kind != errors.KindLoadFailed {
		t.Fatalf("expected load_failed kind, got %v", err)
	}

	var missing *errors.MissingSymbolsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected missing-symbols cause, got %v", err)
	}
	want := []string{"PyErr_CheckSignals", "PyErr_SetInterrupt"}
	if len(missing.Names) != len(want) {
		t.Fatalf("expected %v missing, got %v", want, missing.Names)
	}
	for i, name := range want {
		if missing.Names[i] != name {
			t.Errorf("expected %q at %d, got %q", name, i, missing.Names[i])
		}
	}
	for _, name := range want {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected error message to name %s: %v", name, err)
		}
	}
}

func TestEngine_LocateFailurePropagates(t *testing.T) {
	isolateEnv(t)
	e := New(Options{
		Profile: testProfile(),
		Locator: locator.Options{Roots: []string{t.TempDir()}},
		TempDir: filepath.Join(t.TempDir(), "scratch"),
	})
	t.Cleanup(func() { e.Close() })

	err := e.Initialize()
	if err == nil {
		t.Fatal("expected an error")
	}
	be, ok := errors.AsError(err)
	if !ok || be.Kind != errors.KindNotFound {
		t.Errorf("expected not_found kind, got %v", err)
	}
}

func TestEngine_LockedInitializesOnFirstUse(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)

	got, err := Locked(e, func(s Session) (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected body result, got %q", got)
	}
	if !e.Initialized() {
		t.Error("expected first locked call to initialize")
	}
	if got := fake.Acquires(); got != 2 {
		t.Errorf("expected smoke and body acquires, got %d", got)
	}
	if !fake.Balanced() {
		t.Error("expected every acquire released")
	}
}

func TestEngine_WithLockReleasesOnBodyError(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)

	wantErr := stderrors.New("body blew up")
	err := e.WithLock(func(s Session) error { return wantErr })
	if !stderrors.Is(err, wantErr) {
		t.Errorf("expected body error, got %v", err)
	}
	if !fake.Balanced() {
		t.Error("expected lock released despite body error")
	}
}

func TestEngine_LockedAcquireFailure(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.AcquireErr = stderrors.New("lock wedged")
	_, err := Locked(e, func(s Session) (int, error) { return 1, nil })
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "lock acquire failed") {
		t.Errorf("expected acquire failure detail, got %v", err)
	}
}

func TestEngine_ImportModules(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)

	if err := e.ImportModules("json", "re", "zipfile"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"sys", "json", "re", "zipfile"}
	got := fake.Imports()
	if len(got) != len(want) {
		t.Fatalf("expected imports %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected import %q at %d, got %q", want[i], i, got[i])
		}
	}
	// One acquire for the smoke import, one for the whole batch.
	if got := fake.Acquires(); got != 2 {
		t.Errorf("expected 2 acquires, got %d", got)
	}
}

func TestEngine_InterruptGatesOnInitialization(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)

	e.Interrupt()
	if got := fake.Interrupts(); got != 0 {
		t.Errorf("expected interrupt before init to be a no-op, got %d", got)
	}

	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Interrupt()
	if got := fake.Interrupts(); got != 1 {
		t.Errorf("expected one interrupt after init, got %d", got)
	}
}

func TestEngine_InterruptSurfacesThroughCheckSignals(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.Interrupt()
	err := e.WithLock(func(s Session) error { return s.CheckSignals() })
	if err == nil {
		t.Fatal("expected pending interrupt to surface")
	}
	foreign, ok := errors.AsForeign(err)
	if !ok || foreign.Type != "KeyboardInterrupt" {
		t.Errorf("expected KeyboardInterrupt, got %v", err)
	}

	// The interrupt is consumed once surfaced.
	if err := e.WithLock(func(s Session) error { return s.CheckSignals() }); err != nil {
		t.Errorf("expected second check to be clean, got %v", err)
	}
}

func TestEngine_CloseStopsWorkerAndCleansUp(t *testing.T) {
	fake := NewFake()
	isolateEnv(t)
	e := New(Options{
		Profile: testProfile(),
		Config:  testConfig(),
		API:     fake,
		TempDir: filepath.Join(t.TempDir(), "scratch"),
	})
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tempDir := e.tempDir

	if err := e.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.Closed() {
		t.Error("expected runtime API closed")
	}
	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Errorf("expected temp directory removed, stat err: %v", err)
	}

	err := e.WithLock(func(s Session) error { return nil })
	if !stderrors.Is(err, errors.WorkerStopped()) {
		t.Errorf("expected stopped error after close, got %v", err)
	}
}

func TestEngine_InitializeReturnsFastWhenBusy(t *testing.T) {
	fake := NewFake()
	e := newTestEngine(t, fake)
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Occupy the runtime thread; the initialized fast path must not
	// queue behind it.
	gate := make(chan struct{})
	started := make(chan struct{})
	e.worker.PerformAsync(func() {
		close(started)
		<-gate
	})
	<-started
	defer close(gate)

	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
