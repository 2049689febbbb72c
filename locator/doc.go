// Package locator finds the embedded runtime on disk.
//
// The runtime ships inside the application bundle as a relocatable framework,
// so nothing about its location is known at build time. Locate walks a set of
// candidate roots relative to the host executable, resolves the framework's
// version indirection (Current symlink first, then a version-directory scan,
// then the declared default), and derives the module search paths so that
// application-vendored packages shadow runtime-bundled ones.
//
// Locate returns a fully populated Config or a not-found error naming every
// location it tried; it never half-configures.
package locator
