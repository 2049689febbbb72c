package abi

import (
	"sort"
	"sync"
)

// Symbol is a raw entry-point address produced by a SymbolSource.
//
// A zero Symbol is never a valid resolution result.
type Symbol uintptr

// SymbolSource produces entry-point addresses by name.
//
// Implementations must be safe for use from a single goroutine at a time;
// the Resolver serializes access for callers that share one.
type SymbolSource interface {
	// Open prepares the source for resolution. It is called once before
	// the first Resolve and must be idempotent.
	Open() error

	// Resolve returns the address bound to name, or false when the source
	// has no such entry point.
	Resolve(name string) (Symbol, bool)

	// Close releases any resources held by the source. Resolve must not
	// be called after Close.
	Close() error
}

// Resolver wraps a SymbolSource and records every name that failed to
// resolve since the last Reset. The record is what turns a partial or
// mismatched runtime build into an actionable error instead of a fault
// at call time.
type Resolver struct {
	mu      sync.Mutex
	source  SymbolSource
	opened  bool
	missing map[string]struct{}
}

// NewResolver returns a Resolver backed by source. The source is opened
// lazily on the first Lookup or ResolveAll.
func NewResolver(source SymbolSource) *Resolver {
	return &Resolver{
		source:  source,
		missing: make(map[string]struct{}),
	}
}

// Lookup resolves name through the underlying source. A failed resolution
// is recorded and reported by Missing until the next Reset.
func (r *Resolver) Lookup(name string) (Symbol, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.open(); err != nil {
		r.missing[name] = struct{}{}
		return 0, false
	}
	sym, ok := r.source.Resolve(name)
	if !ok || sym == 0 {
		r.missing[name] = struct{}{}
		return 0, false
	}
	return sym, true
}

// ResolveAll performs a validation pass over names. The missing-symbol
// record is cleared first, so the result reflects exactly this pass and
// earlier probes of optional entry points do not pollute it.
//
// It returns the resolved symbols keyed by name. Names that failed are
// absent from the map and reported by Missing.
func (r *Resolver) ResolveAll(names []string) map[string]Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.missing = make(map[string]struct{})
	resolved := make(map[string]Symbol, len(names))
	if err := r.open(); err != nil {
		for _, name := range names {
			r.missing[name] = struct{}{}
		}
		return resolved
	}
	for _, name := range names {
		sym, ok := r.source.Resolve(name)
		if !ok || sym == 0 {
			r.missing[name] = struct{}{}
			continue
		}
		resolved[name] = sym
	}
	return resolved
}

// Missing returns the sorted names that failed to resolve since the last
// Reset or ResolveAll.
func (r *Resolver) Missing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.missing))
	for name := range r.missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears the missing-symbol record.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missing = make(map[string]struct{})
}

// Close closes the underlying source.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.opened {
		return nil
	}
	r.opened = false
	return r.source.Close()
}

// open opens the source once. Callers must hold r.mu.
func (r *Resolver) open() error {
	if r.opened {
		return nil
	}
	if err := r.source.Open(); err != nil {
		return err
	}
	r.opened = true
	return nil
}
