// Package progress carries processing progress from the foreign pipeline to
// exactly one consumer.
//
// The pipeline reports through a callback in one of two shapes: a plain
// (chunk, total, message) triple, or a single rich update object carrying
// phase identity and fractional progress. Normalize converts either shape
// into an Event; Stream delivers Events in emission order without ever
// blocking the producer, which holds the runtime lock while it reports.
package progress
