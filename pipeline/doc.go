// Package pipeline defines the contract with the foreign redaction
// pipeline: the request shape handed to it, the result shapes accepted
// back, and the address of its network collaborator.
//
// The pipeline's entry points take keyword arguments and return loosely
// typed values. Everything crossing that boundary is normalized here, so
// the rest of the bridge works with checked Go types and a result the
// bridge cannot interpret fails as a decode error instead of a panic.
package pipeline
