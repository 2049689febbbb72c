//go:build !darwin && !linux

package abi

import (
	goruntime "runtime"

	"github.com/marcut/runtime-bridge/errors"
)

// DylibSource is unavailable on this platform; every Open fails.
type DylibSource struct {
	path string
}

func NewDylibSource(path string) *DylibSource {
	return &DylibSource{path: path}
}

func (s *DylibSource) Path() string {
	return s.path
}

func (s *DylibSource) Open() error {
	return errors.Unsupported("dynamic library loading on " + goruntime.GOOS)
}

func (s *DylibSource) Resolve(string) (Symbol, bool) {
	return 0, false
}

func (s *DylibSource) Close() error {
	return nil
}
