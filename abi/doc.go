// Package abi resolves C-ABI entry points of the embedded runtime by name.
//
// The runtime's shared library is never linked at build time. A SymbolSource
// produces raw entry-point addresses: DylibSource loads a library with the
// platform dynamic loader, Table serves a fixed in-memory map for tests. The
// Resolver wraps a source and owns the missing-symbol bookkeeping that load
// errors report from, so a failed lookup is a recorded, diagnosable condition
// rather than a crash.
//
// Resolution priority inside DylibSource:
//  1. The registered library handle, when Open succeeded
//  2. The process-global symbol table (default-handle lookup)
package abi
