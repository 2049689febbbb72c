//go:build darwin || linux

package abi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// DylibSource resolves symbols from a shared library loaded at runtime.
//
// The library is opened RTLD_LAZY|RTLD_GLOBAL: lazy because the runtime
// exports thousands of entry points and only a handful are ever bound, and
// global so extension modules loaded later by the runtime itself can find
// its symbols. When the handle lookup is unavailable the source falls back
// to the process-global table, which covers runtimes already linked into
// the host image.
type DylibSource struct {
	path   string
	handle uintptr
}

// NewDylibSource returns a source that loads the library at path on Open.
// An empty path skips loading and resolves against the global table only.
func NewDylibSource(path string) *DylibSource {
	return &DylibSource{path: path}
}

// Path returns the library path the source was built with.
func (s *DylibSource) Path() string {
	return s.path
}

func (s *DylibSource) Open() error {
	if s.path == "" || s.handle != 0 {
		return nil
	}
	handle, err := purego.Dlopen(s.path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("dlopen %s: %w", s.path, err)
	}
	s.handle = handle
	return nil
}

func (s *DylibSource) Resolve(name string) (Symbol, bool) {
	handle := s.handle
	if handle == 0 {
		handle = purego.RTLD_DEFAULT
	}
	addr, err := purego.Dlsym(handle, name)
	if err != nil || addr == 0 {
		return 0, false
	}
	return Symbol(addr), true
}

func (s *DylibSource) Close() error {
	if s.handle == 0 {
		return nil
	}
	handle := s.handle
	s.handle = 0
	return purego.Dlclose(handle)
}
